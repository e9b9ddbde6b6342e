package middleware

import (
	"fmt"
	"strconv"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/NeuralTrust/gateguard/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type rateLimitMiddleware struct {
	logger  *logrus.Logger
	limiter *ratelimit.Limiter
}

func NewRateLimitMiddleware(logger *logrus.Logger, limiter *ratelimit.Limiter) Middleware {
	return &rateLimitMiddleware{
		logger:  logger,
		limiter: limiter,
	}
}

func (m *rateLimitMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := m.limiter.CheckLimit(c.UserContext(), Identifier(c), "", c.Path(), c.Method())
		if err != nil {
			return fmt.Errorf("rate limit check: %w", err)
		}
		c.Locals(common.RateLimitKey, res)

		if res.Limit > 0 {
			c.Set(common.RateLimitLimitHeader, strconv.Itoa(res.Limit))
			c.Set(common.RateLimitRemainingHeader, strconv.Itoa(max(res.Remaining, 0)))
		}
		if res.Allowed {
			return c.Next()
		}

		gerr := &types.GatewayError{
			StatusCode: fiber.StatusTooManyRequests,
			Code:       types.CodeRateLimitExceeded,
			Category:   types.CategoryAbuse,
			Message:    "rate limit exceeded",
			RetryAfter: res.RetryAfter,
			Details:    res,
		}
		if res.Reason == ratelimit.ReasonBlacklisted {
			gerr.Code = types.CodeBlacklisted
			gerr.Message = "identifier is temporarily blocked"
		}
		if res.Limit == 0 {
			c.Set(common.RateLimitLimitHeader, "0")
		}
		c.Set(common.RateLimitRemainingHeader, "0")
		return reject(c, m.logger, StageRateLimit, gerr, logrus.Fields{
			"rule":        res.Rule,
			"reason":      res.Reason,
			"retry_after": res.RetryAfter,
		})
	}
}
