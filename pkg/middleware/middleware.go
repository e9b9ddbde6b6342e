package middleware

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/infra/prometheus"
	"github.com/NeuralTrust/gateguard/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

const (
	StageLimits    = "limits"
	StageRateLimit = "rate_limit"
	StageUpload    = "upload"
	StageWebhook   = "webhook"
	StageTimeout   = "timeout"
	StageAdmin     = "admin"
	StageInternal  = "internal"
)

type Middleware interface {
	Middleware() fiber.Handler
}

// Transport carries every middleware the routers mount. The global chain runs
// on all traffic; Upload, Webhook and AdminAuth are attached per route class.
type Transport struct {
	PanicRecoverMiddleware Middleware
	RequestIDMiddleware    Middleware
	CORSMiddleware         Middleware
	MetricsMiddleware      Middleware
	TimeoutMiddleware      Middleware
	IdentityMiddleware     Middleware
	LimitsMiddleware       Middleware
	RateLimitMiddleware    Middleware
	UploadMiddleware       Middleware
	WebhookMiddleware      Middleware
	AdminAuthMiddleware    Middleware
}

// GetMiddlewares returns the global chain in execution order.
func (t *Transport) GetMiddlewares() []interface{} {
	var handlers []interface{}
	for _, m := range []Middleware{
		t.PanicRecoverMiddleware,
		t.RequestIDMiddleware,
		t.CORSMiddleware,
		t.MetricsMiddleware,
		t.TimeoutMiddleware,
		t.IdentityMiddleware,
		t.LimitsMiddleware,
		t.RateLimitMiddleware,
	} {
		if m != nil {
			handlers = append(handlers, m.Middleware())
		}
	}
	return handlers
}

// reject logs the rejection, counts it and writes the JSON body. The chain
// stops here: the handler returns nil so fiber does not run its error handler.
func reject(c *fiber.Ctx, logger *logrus.Logger, stage string, gerr *types.GatewayError, fields logrus.Fields) error {
	entry := logger.WithFields(logrus.Fields{
		"stage":      stage,
		"code":       gerr.Code,
		"status":     gerr.StatusCode,
		"path":       c.Path(),
		"method":     c.Method(),
		"identifier": Identifier(c),
		"request_id": RequestID(c),
	})
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	if gerr.Err != nil {
		entry = entry.WithError(gerr.Err)
	}
	if gerr.StatusCode >= fiber.StatusInternalServerError {
		entry.Error(gerr.Message)
	} else {
		entry.Warn(gerr.Message)
	}

	prometheus.GatewayRejections.WithLabelValues(stage, string(gerr.Code)).Inc()

	if gerr.RetryAfter > 0 {
		c.Set(common.RetryAfterHeader, strconv.Itoa(gerr.RetryAfter))
	}
	return c.Status(gerr.StatusCode).JSON(gerr.Body())
}

// ErrorHandler is installed as the fiber error handler. Rejections are written
// by the middlewares themselves; anything arriving here is either a fiber
// error, a deadline, or an unexpected failure.
func ErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var gerr *types.GatewayError
		var ferr *fiber.Error
		switch {
		case errors.As(err, &gerr):
		case errors.Is(err, context.DeadlineExceeded):
			gerr = timeoutError(err)
		case errors.As(err, &ferr) && ferr.Code < fiber.StatusInternalServerError:
			return c.Status(ferr.Code).JSON(fiber.Map{
				"error": ferr.Message,
				"code":  strings.ToUpper(strings.ReplaceAll(utils.StatusMessage(ferr.Code), " ", "_")),
			})
		default:
			gerr = types.NewInternalError(err)
		}
		stage := StageInternal
		if gerr.Code == types.CodeRequestTimeout {
			stage = StageTimeout
		}
		return reject(c, logger, stage, gerr, nil)
	}
}

func timeoutError(err error) *types.GatewayError {
	return &types.GatewayError{
		StatusCode: fiber.StatusRequestTimeout,
		Code:       types.CodeRequestTimeout,
		Category:   types.CategoryStructural,
		Message:    "request processing timed out",
		Err:        err,
	}
}

// statusOf reports the status a request finished with, including errors that
// fiber's error handler has not written yet.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var gerr *types.GatewayError
	var ferr *fiber.Error
	switch {
	case errors.As(err, &gerr):
		return gerr.StatusCode
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusRequestTimeout
	case errors.As(err, &ferr):
		return ferr.Code
	default:
		return fiber.StatusInternalServerError
	}
}

func headerMap(c *fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	for k, values := range c.GetReqHeaders() {
		headers[k] = strings.Join(values, ", ")
	}
	return headers
}
