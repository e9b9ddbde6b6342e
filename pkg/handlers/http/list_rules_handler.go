package http

import (
	"github.com/NeuralTrust/gateguard/pkg/handlers/http/response"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listRulesHandler struct {
	logger  *logrus.Logger
	limiter *ratelimit.Limiter
}

func NewListRulesHandler(logger *logrus.Logger, limiter *ratelimit.Limiter) Handler {
	return &listRulesHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Retrieve all rate limit rules
// @Description Returns the rules in evaluation order
// @Tags Rate limiting
// @Produce json
// @Success 200 {object} response.ListRulesOutput "List of rules"
// @Security AdminToken
// @Router /__/admin/rules [get]
func (h *listRulesHandler) Handle(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(response.NewListRulesOutput(h.limiter.Rules()))
}
