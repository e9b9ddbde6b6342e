package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/infra/prometheus"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	RouteClassUpload  = "upload"
	RouteClassWebhook = "webhook"
	RouteClassAdmin   = "admin"
	RouteClassAPI     = "api"
	RouteClassOther   = "other"
)

type metricsMiddleware struct {
	logger *logrus.Logger
}

func NewMetricsMiddleware(logger *logrus.Logger) Middleware {
	return &metricsMiddleware{logger: logger}
}

func (m *metricsMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		c.Locals(common.LatencyContextKey, start)

		err := c.Next()

		status := statusOf(c, err)
		elapsed := time.Since(start)
		prometheus.GatewayRequestTotal.WithLabelValues(c.Method(), strconv.Itoa(status)).Inc()
		if prometheus.Config.EnableLatency {
			prometheus.GatewayRequestLatency.WithLabelValues(RouteClass(c.Path())).
				Observe(float64(elapsed.Microseconds()) / 1000)
		}

		m.logger.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency_ms": elapsed.Milliseconds(),
			"request_id": RequestID(c),
		}).Debug("request completed")
		return err
	}
}

// RouteClass maps a path onto the route classes the chain distinguishes.
func RouteClass(path string) string {
	switch {
	case path == "/api/v1/uploads" || strings.HasPrefix(path, "/api/v1/uploads/"):
		return RouteClassUpload
	case strings.HasPrefix(path, "/webhooks/"):
		return RouteClassWebhook
	case strings.HasPrefix(path, "/__/"):
		return RouteClassAdmin
	case strings.HasPrefix(path, "/api/"):
		return RouteClassAPI
	default:
		return RouteClassOther
	}
}
