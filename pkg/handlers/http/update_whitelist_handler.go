package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type updateWhitelistHandler struct {
	logger  *logrus.Logger
	limiter *ratelimit.Limiter
}

func NewUpdateWhitelistHandler(logger *logrus.Logger, limiter *ratelimit.Limiter) Handler {
	return &updateWhitelistHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Whitelist an identifier
// @Description Lets an identifier bypass every rate limit rule. A blacklist entry still takes precedence.
// @Tags Rate limiting
// @Produce json
// @Param identifier path string true "Identifier"
// @Success 200 {object} ratelimit.Status "Updated status"
// @Security AdminToken
// @Router /__/admin/whitelist/{identifier} [put]
func (h *updateWhitelistHandler) Handle(c *fiber.Ctx) error {
	identifier := c.Params(common.IdentifierParam)
	if err := h.limiter.AddToWhitelist(c.UserContext(), identifier); err != nil {
		return identifierError(c, h.logger, err, "failed to whitelist identifier")
	}
	status, err := h.limiter.Status(c.UserContext(), identifier)
	if err != nil {
		return identifierError(c, h.logger, err, "failed to read rate limit status")
	}
	return c.Status(fiber.StatusOK).JSON(status)
}
