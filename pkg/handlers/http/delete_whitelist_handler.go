package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type deleteWhitelistHandler struct {
	logger  *logrus.Logger
	limiter *ratelimit.Limiter
}

func NewDeleteWhitelistHandler(logger *logrus.Logger, limiter *ratelimit.Limiter) Handler {
	return &deleteWhitelistHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Remove a whitelist entry
// @Tags Rate limiting
// @Param identifier path string true "Identifier"
// @Success 204 "Entry removed"
// @Failure 404 {object} map[string]interface{} "Identifier is not whitelisted"
// @Security AdminToken
// @Router /__/admin/whitelist/{identifier} [delete]
func (h *deleteWhitelistHandler) Handle(c *fiber.Ctx) error {
	identifier := c.Params(common.IdentifierParam)
	removed, err := h.limiter.RemoveFromWhitelist(c.UserContext(), identifier)
	if err != nil {
		return identifierError(c, h.logger, err, "failed to remove whitelist entry")
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "identifier is not whitelisted"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
