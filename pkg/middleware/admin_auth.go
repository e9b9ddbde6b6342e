package middleware

import (
	"crypto/subtle"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type adminAuthMiddleware struct {
	logger *logrus.Logger
	token  string
}

// NewAdminAuthMiddleware guards the admin surface with a static token. With
// no token configured every admin call is refused.
func NewAdminAuthMiddleware(logger *logrus.Logger, token string) Middleware {
	return &adminAuthMiddleware{
		logger: logger,
		token:  token,
	}
}

func (m *adminAuthMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		provided := ctx.Get(common.AdminTokenHeader)
		if m.token == "" || provided == "" {
			return m.deny(ctx, "admin token required")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.token)) != 1 {
			return m.deny(ctx, "invalid admin token")
		}
		return ctx.Next()
	}
}

func (m *adminAuthMiddleware) deny(ctx *fiber.Ctx, message string) error {
	return reject(ctx, m.logger, StageAdmin, &types.GatewayError{
		StatusCode: fiber.StatusUnauthorized,
		Code:       types.CodeAdminUnauthorized,
		Category:   types.CategoryAuthentication,
		Message:    message,
	}, nil)
}
