package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/handlers/http/request"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type updateBlacklistHandler struct {
	logger  *logrus.Logger
	limiter *ratelimit.Limiter
}

func NewUpdateBlacklistHandler(logger *logrus.Logger, limiter *ratelimit.Limiter) Handler {
	return &updateBlacklistHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Blacklist an identifier
// @Description Blocks an identifier until the given duration elapses. Without a duration the configured blacklist duration applies.
// @Tags Rate limiting
// @Accept json
// @Produce json
// @Param identifier path string true "Identifier"
// @Param request body request.BlacklistRequest false "Blacklist duration"
// @Success 200 {object} ratelimit.Status "Updated status"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Security AdminToken
// @Router /__/admin/blacklist/{identifier} [put]
func (h *updateBlacklistHandler) Handle(c *fiber.Ctx) error {
	identifier := c.Params(common.IdentifierParam)

	var req request.BlacklistRequest
	if err := request.DecodeCtx(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.limiter.AddToBlacklist(c.UserContext(), identifier, req.Duration); err != nil {
		return identifierError(c, h.logger, err, "failed to blacklist identifier")
	}
	status, err := h.limiter.Status(c.UserContext(), identifier)
	if err != nil {
		return identifierError(c, h.logger, err, "failed to read rate limit status")
	}
	return c.Status(fiber.StatusOK).JSON(status)
}
