package middleware

import (
	"fmt"

	"github.com/NeuralTrust/gateguard/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type panicRecoverMiddleware struct {
	logger *logrus.Logger
}

func NewPanicRecoverMiddleware(logger *logrus.Logger) Middleware {
	return &panicRecoverMiddleware{logger: logger}
}

func (m *panicRecoverMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = reject(c, m.logger, StageInternal, types.NewInternalError(fmt.Errorf("panic: %v", r)), logrus.Fields{
					"panic": r,
				})
			}
		}()

		return c.Next()
	}
}
