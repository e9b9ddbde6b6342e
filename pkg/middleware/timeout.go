package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type timeoutMiddleware struct {
	logger  *logrus.Logger
	timeout time.Duration
}

// NewTimeoutMiddleware bounds the user context of every request. Stages pass
// that context to their stores, so a stalled store surfaces as a 408.
func NewTimeoutMiddleware(logger *logrus.Logger, timeout time.Duration) Middleware {
	return &timeoutMiddleware{logger: logger, timeout: timeout}
}

func (m *timeoutMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.timeout <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), m.timeout)
		defer cancel()
		c.SetUserContext(ctx)

		err := c.Next()
		if errors.Is(err, context.DeadlineExceeded) {
			return reject(c, m.logger, StageTimeout, timeoutError(err), logrus.Fields{
				"timeout": m.timeout.String(),
			})
		}
		return err
	}
}
