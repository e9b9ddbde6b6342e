package middleware

import (
	"mime"
	"strings"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/limits"
	"github.com/NeuralTrust/gateguard/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type limitsMiddleware struct {
	logger      *logrus.Logger
	guard       *limits.Guard
	uploadGuard *limits.Guard
}

// NewLimitsMiddleware runs the structural checks on every request.
// uploadGuard, when set, replaces guard for multipart bodies posted to the
// upload route so that batches are bounded by the upload size caps. Every
// other route keeps the general body cap whatever its content type.
func NewLimitsMiddleware(logger *logrus.Logger, guard, uploadGuard *limits.Guard) Middleware {
	if uploadGuard == nil {
		uploadGuard = guard
	}
	return &limitsMiddleware{
		logger:      logger,
		guard:       guard,
		uploadGuard: uploadGuard,
	}
}

func (m *limitsMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		guard := m.guard
		if isUploadRoute(c.Path()) && isMultipart(c.Get(fiber.HeaderContentType)) {
			guard = m.uploadGuard
		}

		// Ctx.Body inflates Content-Encoding without a bound. The guard gets
		// the bytes as sent and decodes them under its own cap.
		res := guard.ValidateRequest(limits.Request{
			Method:   c.Method(),
			URL:      c.OriginalURL(),
			Headers:  headerMap(c),
			Body:     c.Request().Body(),
			BodySize: int64(max(c.Request().Header.ContentLength(), 0)),
		})
		if res.Valid {
			return c.Next()
		}

		first := res.Errors[0]
		checks := make([]string, 0, len(res.Errors))
		for _, v := range res.Errors {
			checks = append(checks, string(v.Check))
		}
		return reject(c, m.logger, StageLimits, &types.GatewayError{
			StatusCode: res.Status(),
			Code:       first.Code,
			Category:   types.CategoryStructural,
			Message:    first.Message,
			Details:    res.Errors,
		}, logrus.Fields{"checks": strings.Join(checks, ",")})
	}
}

func isUploadRoute(path string) bool {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return strings.EqualFold(path, common.UploadPath)
}

func isMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == fiber.MIMEMultipartForm
}
