package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type webhookReceivedHandler struct {
	logger *logrus.Logger
}

func NewWebhookReceivedHandler(logger *logrus.Logger) Handler {
	return &webhookReceivedHandler{logger: logger}
}

// Handle @Summary Receive a webhook delivery
// @Description Accepts a signed delivery for a registered webhook
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param name path string true "Webhook name"
// @Success 202 {object} map[string]interface{} "Delivery accepted"
// @Failure 401 {object} map[string]interface{} "Signature, timestamp or replay check failed"
// @Router /webhooks/{name} [post]
func (h *webhookReceivedHandler) Handle(c *fiber.Ctx) error {
	name := c.Params(common.WebhookNameParam)
	h.logger.WithField("webhook", name).Debug("webhook delivery accepted")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"received": true,
		"webhook":  name,
	})
}
