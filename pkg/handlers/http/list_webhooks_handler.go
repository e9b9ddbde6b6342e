package http

import (
	"github.com/NeuralTrust/gateguard/pkg/handlers/http/response"
	"github.com/NeuralTrust/gateguard/pkg/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listWebhooksHandler struct {
	logger        *logrus.Logger
	authenticator *webhook.Authenticator
}

func NewListWebhooksHandler(logger *logrus.Logger, authenticator *webhook.Authenticator) Handler {
	return &listWebhooksHandler{
		logger:        logger,
		authenticator: authenticator,
	}
}

// Handle @Summary Retrieve registered webhooks
// @Description Lists webhook endpoints without their secrets
// @Tags Webhooks
// @Produce json
// @Success 200 {array} response.WebhookOutput "Registered webhooks"
// @Security AdminToken
// @Router /__/admin/webhooks [get]
func (h *listWebhooksHandler) Handle(c *fiber.Ctx) error {
	names := h.authenticator.Names()
	out := make([]response.WebhookOutput, 0, len(names))
	for _, name := range names {
		if cfg, ok := h.authenticator.Webhook(name); ok {
			out = append(out, response.NewWebhookOutput(name, cfg))
		}
	}
	return c.Status(fiber.StatusOK).JSON(out)
}
