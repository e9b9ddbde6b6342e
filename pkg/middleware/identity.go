package middleware

import (
	"strings"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	IdentitySourcePrincipal = "principal"
	IdentitySourceNetwork   = "network"
)

type identityMiddleware struct {
	logger *logrus.Logger
	secret []byte
}

// NewIdentityMiddleware resolves the identifier every later stage keys its
// state on: the subject of a valid bearer token when a secret is configured,
// otherwise the client IP as resolved by fiber's proxy header settings.
func NewIdentityMiddleware(logger *logrus.Logger, jwtSecret string) Middleware {
	return &identityMiddleware{
		logger: logger,
		secret: []byte(jwtSecret),
	}
}

func (m *identityMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if subject := m.principal(c); subject != "" {
			c.Locals(common.IdentifierKey, subject)
			c.Locals(common.IdentitySourceKey, IdentitySourcePrincipal)
			return c.Next()
		}
		c.Locals(common.IdentifierKey, c.IP())
		c.Locals(common.IdentitySourceKey, IdentitySourceNetwork)
		return c.Next()
	}
}

// An invalid token is not a rejection here: the request falls back to its
// network origin and authentication stays the business handler's concern.
func (m *identityMiddleware) principal(c *fiber.Ctx) string {
	if len(m.secret) == 0 {
		return ""
	}
	authHeader := c.Get(authorizationHeader)
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	if tokenString == "" {
		return ""
	}

	token, err := jwt.Parse(
		tokenString,
		func(token *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	)
	if err != nil || !token.Valid {
		m.logger.WithError(err).Debug("ignoring invalid bearer token")
		return ""
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return subject
}

// Identifier returns the identifier resolved for the request, falling back to
// the client IP when the identity middleware did not run.
func Identifier(c *fiber.Ctx) string {
	if id, ok := c.Locals(common.IdentifierKey).(string); ok && id != "" {
		return id
	}
	return c.IP()
}
