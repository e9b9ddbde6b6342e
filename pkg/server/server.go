package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/config"
	"github.com/NeuralTrust/gateguard/pkg/infra/prometheus"
	"github.com/NeuralTrust/gateguard/pkg/middleware"
	"github.com/NeuralTrust/gateguard/pkg/server/router"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"golang.org/x/sync/errgroup"
)

const (
	HealthPath      = "/health"
	AdminHealthPath = "/__/health"
	MetricsPath     = "/metrics"

	// bodySlack covers multipart framing and headers on top of the largest
	// payload either guard accepts, so the guards report oversize bodies
	// themselves instead of fasthttp.
	bodySlack = 1 << 20
)

// Server interface defines the common behavior for all servers
type Server interface {
	Run() error
	Shutdown(ctx context.Context) error
}

type BaseServer struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Router     *fiber.App
	metricsApp *fiber.App
}

func NewBaseServer(cfg *config.Config, logger *logrus.Logger) *BaseServer {
	r := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReduceMemoryUsage:     true,
		Network:               fiber.NetworkTCP,
		EnablePrintRoutes:     false,
		BodyLimit:             BodyLimit(cfg),
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
		Concurrency:           16384,
		ProxyHeader:           cfg.Server.ProxyHeader,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	r.Server().MaxConnsPerIP = 1024
	r.Server().ReadBufferSize = 8192
	r.Server().WriteBufferSize = 8192
	r.Server().NoDefaultServerHeader = true
	r.Server().NoDefaultDate = true

	return &BaseServer{
		Config: cfg,
		Logger: logger,
		Router: r,
	}
}

// BodyLimit is the transport level cap: the larger of the general body limit
// and the upload batch limit, plus framing slack.
func BodyLimit(cfg *config.Config) int {
	limit := max(cfg.Limits.MaxBodySize, cfg.Upload.MaxTotalSize)
	return int(limit) + bodySlack
}

// setupHealthCheck adds the health endpoints. They are registered before the
// validation chain so probes are never rate limited.
func (s *BaseServer) setupHealthCheck() {
	s.Router.Get(HealthPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	s.Router.Get(AdminHealthPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}

func (s *BaseServer) WithRouters(routers ...router.ServerRouter) error {
	for _, r := range routers {
		if err := r.BuildRoutes(s.Router); err != nil {
			s.Logger.WithError(err).Error("failed to build routes")
			return err
		}
	}
	return nil
}

func (s *BaseServer) setupMetricsEndpoint() {
	if !s.Config.Metrics.Enabled {
		s.Logger.Info("prometheus metrics are disabled by configuration")
		return
	}
	if s.metricsApp != nil {
		return
	}

	s.metricsApp = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	s.metricsApp.Use(recover.New())

	handler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(prometheus.Registry(), promhttp.HandlerOpts{}),
	)
	s.metricsApp.Get(MetricsPath, func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	})
}

// serve listens on the main port and, when enabled, the metrics port. It
// returns when either listener fails or both are shut down.
func (s *BaseServer) serve() error {
	var g errgroup.Group
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	g.Go(func() error {
		s.Logger.WithField("addr", addr).Info("starting gateway server")
		err := s.Router.Listen(addr)
		if err != nil && s.metricsApp != nil {
			_ = s.metricsApp.Shutdown()
		}
		return err
	})
	if s.metricsApp != nil {
		metricsAddr := fmt.Sprintf(":%d", s.Config.Server.MetricsPort)
		g.Go(func() error {
			s.Logger.WithField("addr", metricsAddr).Info("starting metrics server")
			err := s.metricsApp.Listen(metricsAddr)
			if err != nil && strings.Contains(err.Error(), "address already in use") {
				s.Logger.WithError(err).Warn("metrics port in use, metrics endpoint disabled")
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (s *BaseServer) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.Router.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("gateway server: %w", err))
	}
	if s.metricsApp != nil {
		if err := s.metricsApp.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	return errors.Join(errs...)
}
