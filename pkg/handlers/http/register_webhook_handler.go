package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/handlers/http/request"
	"github.com/NeuralTrust/gateguard/pkg/handlers/http/response"
	"github.com/NeuralTrust/gateguard/pkg/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type registerWebhookHandler struct {
	logger        *logrus.Logger
	authenticator *webhook.Authenticator
}

func NewRegisterWebhookHandler(logger *logrus.Logger, authenticator *webhook.Authenticator) Handler {
	return &registerWebhookHandler{
		logger:        logger,
		authenticator: authenticator,
	}
}

// Handle @Summary Register a webhook
// @Description Creates or replaces the configuration of a webhook endpoint
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param name path string true "Webhook name"
// @Param request body request.RegisterWebhookRequest true "Webhook configuration"
// @Success 200 {object} response.WebhookOutput "Webhook registered"
// @Failure 400 {object} map[string]interface{} "Invalid configuration"
// @Security AdminToken
// @Router /__/admin/webhooks/{name} [put]
func (h *registerWebhookHandler) Handle(c *fiber.Ctx) error {
	name := c.Params(common.WebhookNameParam)

	var req request.RegisterWebhookRequest
	if err := request.DecodeCtx(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.authenticator.Register(name, req.ToConfig()); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cfg, _ := h.authenticator.Webhook(name)
	return c.Status(fiber.StatusOK).JSON(response.NewWebhookOutput(name, cfg))
}
