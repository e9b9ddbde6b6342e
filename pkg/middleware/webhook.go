package middleware

import (
	"errors"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/types"
	"github.com/NeuralTrust/gateguard/pkg/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type webhookMiddleware struct {
	logger        *logrus.Logger
	authenticator *webhook.Authenticator
}

// NewWebhookMiddleware authenticates deliveries to /webhooks/:name against
// the endpoint registered under that name.
func NewWebhookMiddleware(logger *logrus.Logger, authenticator *webhook.Authenticator) Middleware {
	return &webhookMiddleware{
		logger:        logger,
		authenticator: authenticator,
	}
}

func (m *webhookMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params(common.WebhookNameParam)
		res := m.authenticator.ValidateWebhook(c.UserContext(), name, webhook.Request{
			URL:     c.BaseURL() + c.OriginalURL(),
			Method:  c.Method(),
			Headers: headerMap(c),
			Body:    c.Request().Body(),
		})
		c.Locals(common.WebhookResultKey, res)
		if res.Valid {
			return c.Next()
		}

		if errors.Is(res.Err, webhook.ErrLedger) {
			return res.Err
		}
		gerr := &types.GatewayError{
			StatusCode: fiber.StatusUnauthorized,
			Code:       types.CodeWebhookUnauthorized,
			Category:   types.CategoryAuthentication,
			Message:    res.Error,
			Details:    res.Details,
			Err:        res.Err,
		}
		if errors.Is(res.Err, webhook.ErrPayloadTooLarge) {
			gerr.StatusCode = fiber.StatusRequestEntityTooLarge
			gerr.Code = types.CodePayloadTooLarge
			gerr.Category = types.CategoryStructural
		}
		return reject(c, m.logger, StageWebhook, gerr, logrus.Fields{"webhook": name})
	}
}
