package dependency_container

import (
	"errors"
	"fmt"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/config"
	handlers "github.com/NeuralTrust/gateguard/pkg/handlers/http"
	"github.com/NeuralTrust/gateguard/pkg/infra/httpx"
	"github.com/NeuralTrust/gateguard/pkg/infra/scheduler"
	"github.com/NeuralTrust/gateguard/pkg/infra/store"
	"github.com/NeuralTrust/gateguard/pkg/limits"
	"github.com/NeuralTrust/gateguard/pkg/middleware"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/NeuralTrust/gateguard/pkg/upload"
	"github.com/NeuralTrust/gateguard/pkg/version"
	"github.com/NeuralTrust/gateguard/pkg/webhook"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// multipartOverhead is added to the upload batch cap when sizing the body
// limit applied to multipart requests.
const multipartOverhead = 1 << 20

type Container struct {
	Config              *config.Config
	Logger              *logrus.Logger
	Scheduler           *scheduler.Scheduler
	RedisClient         *redis.Client
	Limiter             *ratelimit.Limiter
	LimitsGuard         *limits.Guard
	UploadGuard         *limits.Guard
	UploadValidator     *upload.Validator
	Authenticator       *webhook.Authenticator
	MiddlewareTransport *middleware.Transport
	HandlerTransport    *handlers.HandlerTransport
}

type ContainerDI struct {
	Cfg    *config.Config
	Logger *logrus.Logger
	// TimeProvider overrides the clock of every time dependent component.
	TimeProvider func() time.Time
	// HTTPClient replaces the outbound client used by webhook self-tests.
	HTTPClient httpx.Client
}

type stores struct {
	records   store.RecordStore
	blacklist store.IdentifierSet
	whitelist store.IdentifierSet
	ledger    store.ReplayLedger
}

func NewContainer(di ContainerDI) (*Container, error) {
	cfg, logger := di.Cfg, di.Logger
	if cfg == nil || logger == nil {
		return nil, errors.New("container requires config and logger")
	}
	now := di.TimeProvider
	if now == nil {
		now = time.Now
	}

	c := &Container{
		Config:    cfg,
		Logger:    logger,
		Scheduler: scheduler.New(logger),
	}

	st, err := c.buildStores(now)
	if err != nil {
		return nil, err
	}

	// rate limiting
	rules := make([]ratelimit.Rule, 0, len(cfg.RateLimit.Rules))
	for _, r := range cfg.RateLimit.Rules {
		rules = append(rules, ratelimit.Rule{
			Name:        r.Name,
			Path:        r.Path,
			Methods:     r.Methods,
			Window:      r.Window,
			MaxRequests: r.MaxRequests,
		})
	}
	c.Limiter, err = ratelimit.New(logger, rules, ratelimit.Options{
		Records:            st.records,
		Blacklist:          st.blacklist,
		Whitelist:          st.whitelist,
		Scheduler:          c.Scheduler,
		BlacklistThreshold: cfg.RateLimit.BlacklistThreshold,
		BlacklistDuration:  cfg.RateLimit.BlacklistDuration,
		SweepInterval:      cfg.RateLimit.SweepInterval,
		InitialWhitelist:   cfg.RateLimit.Whitelist,
		TimeProvider:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	// request limits
	limitsConfig := limits.Config{
		AllowedMethods:      cfg.Limits.AllowedMethods,
		AllowedContentTypes: cfg.Limits.AllowedContentTypes,
		MaxBodySize:         cfg.Limits.MaxBodySize,
		MaxURLLength:        cfg.Limits.MaxURLLength,
		MaxJSONDepth:        cfg.Limits.MaxJSONDepth,
		MaxArrayLength:      cfg.Limits.MaxArrayLength,
	}
	if c.LimitsGuard, err = limits.NewGuard(logger, limitsConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize limits guard: %w", err)
	}
	uploadLimits := limitsConfig
	uploadLimits.MaxBodySize = cfg.Upload.MaxTotalSize + multipartOverhead
	if c.UploadGuard, err = limits.NewGuard(logger, uploadLimits); err != nil {
		return nil, fmt.Errorf("failed to initialize upload limits guard: %w", err)
	}

	// uploads
	c.UploadValidator = upload.NewValidator(logger, uploadConfig(cfg.Upload), upload.WithTimeProvider(now))

	// webhooks
	client := di.HTTPClient
	if client == nil {
		client = httpx.NewFastHTTPClient(
			httpx.WithTimeout(cfg.Outbound.Timeout),
			httpx.WithUserAgent(version.AppName+"/"+version.Version),
		)
	}
	c.Authenticator = webhook.NewAuthenticator(logger, st.ledger, webhook.Options{
		Client:          client,
		Breaker:         httpx.NewCircuitBreaker("webhook-self-test", cfg.Outbound.BreakerTimeout, cfg.Outbound.BreakerMaxFailures, logger),
		SelfTestTimeout: cfg.Outbound.Timeout,
		SweepInterval:   cfg.RateLimit.SweepInterval,
		TimeProvider:    now,
	})
	for name, wh := range cfg.Webhooks {
		if err := c.Authenticator.Register(name, webhookConfig(wh)); err != nil {
			return nil, fmt.Errorf("failed to register webhook: %w", err)
		}
	}

	corsMiddleware := middleware.NewCORSMiddleware(middleware.CORSOptions{
		AllowOrigins:     cfg.Server.CORS.AllowOrigins,
		AllowMethods:     cfg.Server.CORS.AllowMethods,
		AllowCredentials: cfg.Server.CORS.AllowCredentials,
		ExposeHeaders:    cfg.Server.CORS.ExposeHeaders,
		MaxAge:           cfg.Server.CORS.MaxAge,
	})
	c.MiddlewareTransport = &middleware.Transport{
		PanicRecoverMiddleware: middleware.NewPanicRecoverMiddleware(logger),
		RequestIDMiddleware:    middleware.NewRequestIDMiddleware(),
		CORSMiddleware:         corsMiddleware,
		MetricsMiddleware:      middleware.NewMetricsMiddleware(logger),
		TimeoutMiddleware:      middleware.NewTimeoutMiddleware(logger, cfg.Server.RequestTimeout),
		IdentityMiddleware:     middleware.NewIdentityMiddleware(logger, cfg.Auth.JWTSecret),
		LimitsMiddleware:       middleware.NewLimitsMiddleware(logger, c.LimitsGuard, c.UploadGuard),
		RateLimitMiddleware:    middleware.NewRateLimitMiddleware(logger, c.Limiter),
		UploadMiddleware:       middleware.NewUploadMiddleware(logger, c.UploadValidator),
		WebhookMiddleware:      middleware.NewWebhookMiddleware(logger, c.Authenticator),
		AdminAuthMiddleware:    middleware.NewAdminAuthMiddleware(logger, cfg.Server.AdminToken),
	}

	c.HandlerTransport = &handlers.HandlerTransport{
		// Gateway traffic
		ForwardedHandler:       handlers.NewForwardedHandler(logger),
		UploadHandler:          handlers.NewUploadHandler(logger),
		WebhookReceivedHandler: handlers.NewWebhookReceivedHandler(logger),
		// Rate limiting
		GetRateLimitStatusHandler: handlers.NewGetRateLimitStatusHandler(logger, c.Limiter),
		ListRulesHandler:          handlers.NewListRulesHandler(logger, c.Limiter),
		UpdateBlacklistHandler:    handlers.NewUpdateBlacklistHandler(logger, c.Limiter),
		DeleteBlacklistHandler:    handlers.NewDeleteBlacklistHandler(logger, c.Limiter),
		UpdateWhitelistHandler:    handlers.NewUpdateWhitelistHandler(logger, c.Limiter),
		DeleteWhitelistHandler:    handlers.NewDeleteWhitelistHandler(logger, c.Limiter),
		// Webhooks
		ListWebhooksHandler:    handlers.NewListWebhooksHandler(logger, c.Authenticator),
		RegisterWebhookHandler: handlers.NewRegisterWebhookHandler(logger, c.Authenticator),
		DeleteWebhookHandler:   handlers.NewDeleteWebhookHandler(logger, c.Authenticator),
		WebhookSelfTestHandler: handlers.NewWebhookSelfTestHandler(logger, c.Authenticator),

		GetVersionHandler: handlers.NewGetVersionHandler(logger),
	}

	return c, nil
}

func (c *Container) buildStores(now func() time.Time) (stores, error) {
	if !c.Config.Redis.Enabled {
		c.Logger.Info("using in-memory stores")
		return stores{
			records:   store.NewMemoryRecordStore(),
			blacklist: store.NewMemoryIdentifierSet(now),
			whitelist: store.NewMemoryIdentifierSet(now),
			ledger:    store.NewMemoryReplayLedger(now),
		}, nil
	}

	client, err := store.NewRedisClient(c.Config.Redis, c.Logger)
	if err != nil {
		return stores{}, err
	}
	c.RedisClient = client
	prefix := c.Config.Redis.Prefix
	return stores{
		records:   store.NewRedisRecordStore(client, prefix),
		blacklist: store.NewRedisIdentifierSet(client, prefix, "blacklist", now),
		whitelist: store.NewRedisIdentifierSet(client, prefix, "whitelist", now),
		ledger:    store.NewRedisReplayLedger(client, prefix, now),
	}, nil
}

// Start registers the periodic sweeps and starts the scheduler.
func (c *Container) Start() error {
	if err := c.Limiter.Start(); err != nil {
		return fmt.Errorf("failed to schedule rate limit sweep: %w", err)
	}
	if err := c.Authenticator.Start(c.Scheduler); err != nil {
		return fmt.Errorf("failed to schedule replay ledger sweep: %w", err)
	}
	c.Scheduler.Start()
	return nil
}

// Close stops background work and releases the Redis connection.
func (c *Container) Close() error {
	c.Scheduler.Stop()
	if c.RedisClient != nil {
		return c.RedisClient.Close()
	}
	return nil
}

func uploadConfig(cfg config.UploadConfig) upload.Config {
	out := upload.DefaultConfig()
	out.MaxFileSize = cfg.MaxFileSize
	out.MaxFilenameLength = cfg.MaxFilenameLength
	out.MaxFiles = cfg.MaxFiles
	out.MaxTotalSize = cfg.MaxTotalSize
	out.GenerateUniqueNames = cfg.GenerateUniqueNames
	if len(cfg.AllowedExtensions) > 0 {
		out.AllowedExtensions = cfg.AllowedExtensions
	}
	if len(cfg.BlockedExtensions) > 0 {
		out.BlockedExtensions = cfg.BlockedExtensions
	}
	if len(cfg.AllowedMimeTypes) > 0 {
		out.AllowedMimeTypes = cfg.AllowedMimeTypes
	}
	if cfg.SanitizeFilenames != nil {
		out.SanitizeFilenames = *cfg.SanitizeFilenames
	}
	if cfg.ScanContent != nil {
		out.ScanContent = *cfg.ScanContent
	}
	return out
}

func webhookConfig(cfg config.WebhookConfig) webhook.Config {
	return webhook.Config{
		Secret:           cfg.Secret,
		Algorithm:        webhook.Algorithm(cfg.Algorithm),
		AllowedDomains:   cfg.AllowedDomains,
		MaxPayloadSize:   cfg.MaxPayloadSize,
		ReplayWindow:     cfg.ReplayWindow,
		ReplayProtection: cfg.ReplayProtection,
	}
}
