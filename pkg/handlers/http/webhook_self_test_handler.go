package http

import (
	"encoding/json"
	"errors"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/handlers/http/request"
	"github.com/NeuralTrust/gateguard/pkg/infra/httpx"
	"github.com/NeuralTrust/gateguard/pkg/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type webhookSelfTestHandler struct {
	logger        *logrus.Logger
	authenticator *webhook.Authenticator
}

func NewWebhookSelfTestHandler(logger *logrus.Logger, authenticator *webhook.Authenticator) Handler {
	return &webhookSelfTestHandler{
		logger:        logger,
		authenticator: authenticator,
	}
}

// Handle @Summary Send a signed test delivery
// @Description Signs a payload with the webhook secret and posts it to the target
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param name path string true "Webhook name"
// @Param request body request.SelfTestRequest true "Target and payload"
// @Success 200 {object} webhook.SelfTestResult "Target accepted the delivery"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 404 {object} map[string]interface{} "Webhook not found"
// @Failure 502 {object} map[string]interface{} "Target failed"
// @Failure 503 {object} map[string]interface{} "Outbound circuit open"
// @Security AdminToken
// @Router /__/admin/webhooks/{name}/self-test [post]
func (h *webhookSelfTestHandler) Handle(c *fiber.Ctx) error {
	name := c.Params(common.WebhookNameParam)

	var req request.SelfTestRequest
	if err := request.DecodeCtx(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Payload == nil {
		req.Payload = map[string]interface{}{"event": "gateguard.self_test"}
	}
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := h.authenticator.SelfTest(c.UserContext(), name, req.Target, payload)
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(result)
	case errors.Is(err, webhook.ErrWebhookNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "webhook not found"})
	case errors.Is(err, httpx.ErrCircuitOpen):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error(), "result": result})
	default:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error(), "result": result})
	}
}
