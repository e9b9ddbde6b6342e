package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type deleteBlacklistHandler struct {
	logger  *logrus.Logger
	limiter *ratelimit.Limiter
}

func NewDeleteBlacklistHandler(logger *logrus.Logger, limiter *ratelimit.Limiter) Handler {
	return &deleteBlacklistHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Lift a blacklist entry
// @Description Removes an identifier from the blacklist and clears its violation history
// @Tags Rate limiting
// @Param identifier path string true "Identifier"
// @Success 204 "Entry removed"
// @Failure 404 {object} map[string]interface{} "Identifier is not blacklisted"
// @Security AdminToken
// @Router /__/admin/blacklist/{identifier} [delete]
func (h *deleteBlacklistHandler) Handle(c *fiber.Ctx) error {
	identifier := c.Params(common.IdentifierParam)
	removed, err := h.limiter.RemoveFromBlacklist(c.UserContext(), identifier)
	if err != nil {
		return identifierError(c, h.logger, err, "failed to remove blacklist entry")
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "identifier is not blacklisted"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
