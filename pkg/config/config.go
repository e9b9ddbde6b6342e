package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	Metrics   MetricsConfig            `mapstructure:"metrics"`
	Redis     RedisConfig              `mapstructure:"redis"`
	Auth      AuthConfig               `mapstructure:"auth"`
	Limits    LimitsConfig             `mapstructure:"limits"`
	RateLimit RateLimitConfig          `mapstructure:"rate_limit"`
	Upload    UploadConfig             `mapstructure:"upload"`
	Webhooks  map[string]WebhookConfig `mapstructure:"webhooks"`
	Outbound  OutboundConfig           `mapstructure:"outbound"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	MetricsPort    int           `mapstructure:"metrics_port"`
	Host           string        `mapstructure:"host"`
	AdminToken     string        `mapstructure:"admin_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ProxyHeader    string        `mapstructure:"proxy_header"`
	CORS           CORSConfig    `mapstructure:"cors"`
}

// CORSConfig enables preflight handling for browser clients. No origins
// means CORS headers are never written.
type CORSConfig struct {
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	AllowMethods     []string      `mapstructure:"allow_methods"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	ExposeHeaders    []string      `mapstructure:"expose_headers"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
	Prefix   string `mapstructure:"prefix"`
}

// AuthConfig holds the secret used to verify bearer tokens when deriving the
// caller identifier. When empty, callers are identified by network origin.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LimitsConfig struct {
	AllowedMethods      []string `mapstructure:"allowed_methods"`
	AllowedContentTypes []string `mapstructure:"allowed_content_types"`
	MaxBodySize         int64    `mapstructure:"max_body_size"`
	MaxURLLength        int      `mapstructure:"max_url_length"`
	MaxJSONDepth        int      `mapstructure:"max_json_depth"`
	MaxArrayLength      int      `mapstructure:"max_array_length"`
}

type RateLimitRuleConfig struct {
	Name        string        `mapstructure:"name"`
	Path        string        `mapstructure:"path"`
	Methods     []string      `mapstructure:"methods"`
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

type RateLimitConfig struct {
	Rules              []RateLimitRuleConfig `mapstructure:"rules"`
	Whitelist          []string              `mapstructure:"whitelist"`
	BlacklistThreshold int                   `mapstructure:"blacklist_threshold"`
	BlacklistDuration  time.Duration         `mapstructure:"blacklist_duration"`
	SweepInterval      time.Duration         `mapstructure:"sweep_interval"`
}

type UploadConfig struct {
	MaxFileSize         int64    `mapstructure:"max_file_size"`
	MaxFilenameLength   int      `mapstructure:"max_filename_length"`
	MaxFiles            int      `mapstructure:"max_files"`
	MaxTotalSize        int64    `mapstructure:"max_total_size"`
	AllowedExtensions   []string `mapstructure:"allowed_extensions"`
	BlockedExtensions   []string `mapstructure:"blocked_extensions"`
	AllowedMimeTypes    []string `mapstructure:"allowed_mime_types"`
	SanitizeFilenames   *bool    `mapstructure:"sanitize_filenames"`
	GenerateUniqueNames bool     `mapstructure:"generate_unique_names"`
	ScanContent         *bool    `mapstructure:"scan_content"`
}

type WebhookConfig struct {
	Secret           string        `mapstructure:"secret"`
	Algorithm        string        `mapstructure:"algorithm"`
	AllowedDomains   []string      `mapstructure:"allowed_domains"`
	MaxPayloadSize   int64         `mapstructure:"max_payload_size"`
	ReplayWindow     time.Duration `mapstructure:"replay_window"`
	ReplayProtection *bool         `mapstructure:"replay_protection"`
}

type OutboundConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

// Load reads config.yaml from configPath (falling back to ./config and the
// working directory) and overlays environment variables. A missing file is
// not an error: defaults plus environment are enough to boot.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	if err := loadConfigFile(configPath, "config", cfg); err != nil {
		var notFound *fileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	setDefaultValues(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration populated only with default values.
func Default() *Config {
	cfg := &Config{}
	setDefaultValues(cfg)
	return cfg
}

type fileNotFoundError struct {
	fileName string
}

func (e *fileNotFoundError) Error() string {
	return fmt.Sprintf("config file %s.yaml not found, using only environment variables", e.fileName)
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	v := viper.New()
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			if uerr := v.Unmarshal(out); uerr != nil {
				return fmt.Errorf("failed to unmarshal %s config: %w", fileName, uerr)
			}
			return &fileNotFoundError{fileName: fileName}
		}
		return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}

	return nil
}

// AutomaticEnv only resolves keys viper already knows about, so scalar keys
// that are commonly set through the environment are bound explicitly.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.port",
		"server.metrics_port",
		"server.host",
		"server.admin_token",
		"server.request_timeout",
		"server.proxy_header",
		"metrics.enabled",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.password",
		"redis.db",
		"redis.tls",
		"redis.prefix",
		"auth.jwt_secret",
		"limits.max_body_size",
		"limits.max_url_length",
		"limits.max_json_depth",
		"limits.max_array_length",
		"rate_limit.blacklist_threshold",
		"rate_limit.blacklist_duration",
		"rate_limit.sweep_interval",
		"upload.max_file_size",
		"upload.max_files",
		"upload.max_total_size",
		"outbound.timeout",
	} {
		_ = v.BindEnv(key)
	}
}

func setDefaultValues(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if len(cfg.Server.CORS.AllowMethods) == 0 {
		cfg.Server.CORS.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"}
	}
	if len(cfg.Server.CORS.ExposeHeaders) == 0 {
		cfg.Server.CORS.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "gateguard"
	}

	if len(cfg.Limits.AllowedMethods) == 0 {
		cfg.Limits.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"}
	}
	if len(cfg.Limits.AllowedContentTypes) == 0 {
		cfg.Limits.AllowedContentTypes = []string{
			"application/json",
			"application/x-www-form-urlencoded",
			"multipart/form-data",
			"text/*",
		}
	}
	if cfg.Limits.MaxBodySize <= 0 {
		cfg.Limits.MaxBodySize = 10 << 20
	}
	if cfg.Limits.MaxURLLength <= 0 {
		cfg.Limits.MaxURLLength = 2048
	}
	if cfg.Limits.MaxJSONDepth <= 0 {
		cfg.Limits.MaxJSONDepth = 20
	}
	if cfg.Limits.MaxArrayLength <= 0 {
		cfg.Limits.MaxArrayLength = 1000
	}

	if len(cfg.RateLimit.Rules) == 0 {
		cfg.RateLimit.Rules = []RateLimitRuleConfig{
			{Name: "auth", Path: "/api/v1/auth/*", Window: 15 * time.Minute, MaxRequests: 5},
			{Name: "upload", Path: "/api/v1/uploads", Methods: []string{"POST"}, Window: time.Minute, MaxRequests: 10},
			{Name: "webhook", Path: "/webhooks/*", Window: time.Minute, MaxRequests: 100},
			{Name: "api", Path: "/api/*", Window: 15 * time.Minute, MaxRequests: 100},
		}
	}
	if cfg.RateLimit.BlacklistThreshold <= 0 {
		cfg.RateLimit.BlacklistThreshold = 10
	}
	if cfg.RateLimit.BlacklistDuration <= 0 {
		cfg.RateLimit.BlacklistDuration = time.Hour
	}
	if cfg.RateLimit.SweepInterval <= 0 {
		cfg.RateLimit.SweepInterval = time.Minute
	}

	if cfg.Upload.MaxFileSize <= 0 {
		cfg.Upload.MaxFileSize = 10 << 20
	}
	if cfg.Upload.MaxFilenameLength <= 0 {
		cfg.Upload.MaxFilenameLength = 255
	}
	if cfg.Upload.MaxFiles <= 0 {
		cfg.Upload.MaxFiles = 10
	}
	if cfg.Upload.MaxTotalSize <= 0 {
		cfg.Upload.MaxTotalSize = 50 << 20
	}
	if cfg.Upload.SanitizeFilenames == nil {
		enabled := true
		cfg.Upload.SanitizeFilenames = &enabled
	}
	if cfg.Upload.ScanContent == nil {
		enabled := true
		cfg.Upload.ScanContent = &enabled
	}

	for name, wh := range cfg.Webhooks {
		if wh.Algorithm == "" {
			wh.Algorithm = "sha256"
		}
		if wh.MaxPayloadSize <= 0 {
			wh.MaxPayloadSize = 1 << 20
		}
		if wh.ReplayWindow <= 0 {
			wh.ReplayWindow = 5 * time.Minute
		}
		if wh.ReplayProtection == nil {
			enabled := true
			wh.ReplayProtection = &enabled
		}
		cfg.Webhooks[name] = wh
	}

	if cfg.Outbound.Timeout <= 0 {
		cfg.Outbound.Timeout = 10 * time.Second
	}
	if cfg.Outbound.BreakerMaxFailures == 0 {
		cfg.Outbound.BreakerMaxFailures = 3
	}
	if cfg.Outbound.BreakerTimeout <= 0 {
		cfg.Outbound.BreakerTimeout = 30 * time.Second
	}
}

// maxJSONDepth mirrors the nesting ceiling of the JSON validator used by the
// limits guard.
const maxJSONDepth = 300

func (c *Config) Validate() error {
	if c.Server.CORS.AllowCredentials && slices.Contains(c.Server.CORS.AllowOrigins, "*") {
		return errors.New("server.cors cannot allow credentials for every origin")
	}
	if c.Limits.MaxJSONDepth > maxJSONDepth {
		return fmt.Errorf("limits.max_json_depth must not exceed %d", maxJSONDepth)
	}
	seen := make(map[string]struct{}, len(c.RateLimit.Rules))
	for _, r := range c.RateLimit.Rules {
		if r.Name == "" {
			return errors.New("rate_limit rule requires a name")
		}
		if _, ok := seen[r.Name]; ok {
			return fmt.Errorf("rate_limit rule %q is declared twice", r.Name)
		}
		seen[r.Name] = struct{}{}
		if r.Window <= 0 || r.MaxRequests <= 0 {
			return fmt.Errorf("rate_limit rule %q requires positive window and max_requests", r.Name)
		}
	}
	for name, wh := range c.Webhooks {
		if wh.Secret == "" {
			return fmt.Errorf("webhook %q requires a secret", name)
		}
	}
	return nil
}
