package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/middleware"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type forwardedHandler struct {
	logger *logrus.Logger
}

// NewForwardedHandler is the terminal handler for general traffic. The
// gateway has no upstream of its own, so admitted requests are acknowledged.
func NewForwardedHandler(logger *logrus.Logger) Handler {
	return &forwardedHandler{logger: logger}
}

// Handle @Summary Admit a request
// @Description Acknowledges a request that passed every validation stage
// @Tags Gateway
// @Produce json
// @Success 200 {object} map[string]interface{} "Request admitted"
// @Failure 405 {object} map[string]interface{} "Method not allowed"
// @Failure 413 {object} map[string]interface{} "Payload too large"
// @Failure 429 {object} map[string]interface{} "Rate limit exceeded"
// @Router /api/v1/{path} [post]
func (h *forwardedHandler) Handle(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":     "accepted",
		"request_id": middleware.RequestID(c),
		"identifier": middleware.Identifier(c),
		"path":       c.Path(),
	}
	if res, ok := c.Locals(common.RateLimitKey).(ratelimit.Result); ok && res.Limit > 0 {
		body["rate_limit"] = fiber.Map{
			"rule":      res.Rule,
			"limit":     res.Limit,
			"remaining": res.Remaining,
		}
	}
	return c.Status(fiber.StatusOK).JSON(body)
}
