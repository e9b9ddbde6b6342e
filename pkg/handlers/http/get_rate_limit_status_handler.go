package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getRateLimitStatusHandler struct {
	logger  *logrus.Logger
	limiter *ratelimit.Limiter
}

func NewGetRateLimitStatusHandler(logger *logrus.Logger, limiter *ratelimit.Limiter) Handler {
	return &getRateLimitStatusHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Get rate limit status
// @Description Returns the black/whitelist membership and per-rule counters of an identifier
// @Tags Rate limiting
// @Produce json
// @Param identifier path string true "Identifier"
// @Success 200 {object} ratelimit.Status "Identifier status"
// @Failure 400 {object} map[string]interface{} "Invalid identifier"
// @Security AdminToken
// @Router /__/admin/identifiers/{identifier} [get]
func (h *getRateLimitStatusHandler) Handle(c *fiber.Ctx) error {
	identifier := c.Params(common.IdentifierParam)
	status, err := h.limiter.Status(c.UserContext(), identifier)
	if err != nil {
		return identifierError(c, h.logger, err, "failed to read rate limit status")
	}
	return c.Status(fiber.StatusOK).JSON(status)
}
