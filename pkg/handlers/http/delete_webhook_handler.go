package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type deleteWebhookHandler struct {
	logger        *logrus.Logger
	authenticator *webhook.Authenticator
}

func NewDeleteWebhookHandler(logger *logrus.Logger, authenticator *webhook.Authenticator) Handler {
	return &deleteWebhookHandler{
		logger:        logger,
		authenticator: authenticator,
	}
}

// Handle @Summary Unregister a webhook
// @Tags Webhooks
// @Param name path string true "Webhook name"
// @Success 204 "Webhook removed"
// @Failure 404 {object} map[string]interface{} "Webhook not found"
// @Security AdminToken
// @Router /__/admin/webhooks/{name} [delete]
func (h *deleteWebhookHandler) Handle(c *fiber.Ctx) error {
	name := c.Params(common.WebhookNameParam)
	if !h.authenticator.Unregister(name) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "webhook not found"})
	}
	h.logger.WithField("webhook", name).Info("webhook unregistered")
	return c.SendStatus(fiber.StatusNoContent)
}
