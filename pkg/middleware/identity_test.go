package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "identity-secret"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func identify(t *testing.T, app *fiber.App, authorization string) (string, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body), resp.Header.Get("X-Identity-Source")
}

func TestIdentityMiddleware(t *testing.T) {
	logger := quietLogger()
	app := newApp(logger)
	app.Use(middleware.NewIdentityMiddleware(logger, jwtSecret).Middleware())
	app.Get("/whoami", func(c *fiber.Ctx) error {
		source, _ := c.Locals(common.IdentitySourceKey).(string)
		c.Set("X-Identity-Source", source)
		return c.SendString(middleware.Identifier(c))
	})

	valid := signToken(t, jwtSecret, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	id, source := identify(t, app, "Bearer "+valid)
	assert.Equal(t, "user-42", id)
	assert.Equal(t, middleware.IdentitySourcePrincipal, source)

	network, source := identify(t, app, "")
	assert.NotEmpty(t, network)
	assert.Equal(t, middleware.IdentitySourceNetwork, source)

	forged := signToken(t, "another-secret", jwt.RegisteredClaims{Subject: "admin"})
	id, source = identify(t, app, "Bearer "+forged)
	assert.Equal(t, network, id)
	assert.Equal(t, middleware.IdentitySourceNetwork, source)

	expired := signToken(t, jwtSecret, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	id, _ = identify(t, app, "Bearer "+expired)
	assert.Equal(t, network, id)

	id, _ = identify(t, app, "Basic dXNlcjpwYXNz")
	assert.Equal(t, network, id)
}

func TestIdentityMiddleware_NoSecretIgnoresTokens(t *testing.T) {
	logger := quietLogger()
	app := newApp(logger)
	app.Use(middleware.NewIdentityMiddleware(logger, "").Middleware())
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(middleware.Identifier(c))
	})

	token := signToken(t, jwtSecret, jwt.RegisteredClaims{Subject: "user-42"})
	id, _ := identify(t, app, "Bearer "+token)
	assert.NotEqual(t, "user-42", id)
}
