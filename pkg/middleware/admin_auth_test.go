package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		provided   string
		status     int
	}{
		{"valid token", "s3cret", "s3cret", fiber.StatusOK},
		{"missing token", "s3cret", "", fiber.StatusUnauthorized},
		{"wrong token", "s3cret", "s3cre", fiber.StatusUnauthorized},
		{"admin disabled", "", "anything", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			logger := quietLogger()
			app := newApp(logger)
			app.Use(middleware.NewAdminAuthMiddleware(logger, tt.configured).Middleware())
			app.Get("/__/admin/rules", func(c *fiber.Ctx) error {
				return c.SendString("OK")
			})

			// Test
			req := httptest.NewRequest(http.MethodGet, "/__/admin/rules", nil)
			if tt.provided != "" {
				req.Header.Set(common.AdminTokenHeader, tt.provided)
			}
			resp, err := app.Test(req)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
