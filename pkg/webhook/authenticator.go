package webhook

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/infra/httpx"
	"github.com/NeuralTrust/gateguard/pkg/infra/prometheus"
	"github.com/NeuralTrust/gateguard/pkg/infra/scheduler"
	"github.com/NeuralTrust/gateguard/pkg/infra/store"
	"github.com/sirupsen/logrus"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	TimestampHeader = "X-Webhook-Timestamp"

	DefaultSelfTestTimeout = 10 * time.Second
	DefaultSweepInterval   = time.Minute

	sweepJobName = "webhook-replay-sweep"
)

var signatureHeaders = []string{
	SignatureHeader,
	"X-Signature",
	"X-Hub-Signature-256",
	"X-Hub-Signature",
}

var timestampHeaders = []string{
	TimestampHeader,
	"X-Timestamp",
	"X-Signature-Timestamp",
}

var (
	ErrWebhookNotFound  = errors.New("webhook not registered")
	ErrPayloadTooLarge  = errors.New("payload exceeds maximum size")
	ErrDomainNotAllowed = errors.New("request domain is not allowed")
	ErrMissingTimestamp = errors.New("timestamp is required")
	ErrInvalidTimestamp = errors.New("timestamp is not valid")
	ErrStaleTimestamp   = errors.New("timestamp is outside the replay window")
	ErrReplay           = errors.New("webhook delivery was already processed")
	ErrMissingSignature = errors.New("signature is required")
	ErrInvalidSignature = errors.New("signature does not match")
	ErrSelfTestFailed   = errors.New("webhook self-test failed")
	ErrLedger           = errors.New("replay ledger unavailable")
)

type Request struct {
	URL       string
	Method    string
	Headers   map[string]string
	Body      []byte
	Timestamp string
}

// Details records which checks passed before the result was decided.
type Details struct {
	Webhook        string `json:"webhook"`
	PayloadSizeOK  bool   `json:"payload_size_ok"`
	DomainChecked  bool   `json:"domain_checked"`
	DomainOK       bool   `json:"domain_ok"`
	ReplayChecked  bool   `json:"replay_checked"`
	TimestampOK    bool   `json:"timestamp_ok"`
	NotReplayed    bool   `json:"not_replayed"`
	SignatureFound bool   `json:"signature_found"`
	SignatureOK    bool   `json:"signature_ok"`
	AgeSeconds     int64  `json:"age_seconds,omitempty"`
}

type Result struct {
	Valid   bool    `json:"valid"`
	Error   string  `json:"error,omitempty"`
	Details Details `json:"details"`
	Err     error   `json:"-"`
}

type Options struct {
	Client          httpx.Client
	Breaker         httpx.CircuitBreaker
	SelfTestTimeout time.Duration
	SweepInterval   time.Duration
	TimeProvider    func() time.Time
}

type Authenticator struct {
	logger *logrus.Logger
	ledger store.ReplayLedger

	mu       sync.RWMutex
	webhooks map[string]Config

	client          httpx.Client
	breaker         httpx.CircuitBreaker
	selfTestTimeout time.Duration
	sweepInterval   time.Duration
	now             func() time.Time
}

func NewAuthenticator(logger *logrus.Logger, ledger store.ReplayLedger, opts Options) *Authenticator {
	a := &Authenticator{
		logger:          logger,
		ledger:          ledger,
		webhooks:        make(map[string]Config),
		client:          opts.Client,
		breaker:         opts.Breaker,
		selfTestTimeout: opts.SelfTestTimeout,
		sweepInterval:   opts.SweepInterval,
		now:             opts.TimeProvider,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.ledger == nil {
		a.ledger = store.NewMemoryReplayLedger(a.now)
	}
	if a.client == nil {
		a.client = httpx.NewFastHTTPClient(httpx.WithTimeout(DefaultSelfTestTimeout))
	}
	if a.selfTestTimeout <= 0 {
		a.selfTestTimeout = DefaultSelfTestTimeout
	}
	if a.sweepInterval <= 0 {
		a.sweepInterval = DefaultSweepInterval
	}
	return a
}

// Register adds or replaces the configuration of a named webhook endpoint.
func (a *Authenticator) Register(name string, cfg Config) error {
	if name == "" {
		return errors.New("webhook name is required")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("webhook %s: %w", name, err)
	}
	a.mu.Lock()
	a.webhooks[name] = cfg
	a.mu.Unlock()
	a.logger.WithFields(logrus.Fields{
		"webhook":   name,
		"algorithm": cfg.Algorithm,
	}).Info("webhook registered")
	return nil
}

func (a *Authenticator) Unregister(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.webhooks[name]
	delete(a.webhooks, name)
	return ok
}

func (a *Authenticator) Webhook(name string) (Config, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cfg, ok := a.webhooks[name]
	return cfg, ok
}

func (a *Authenticator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.webhooks))
	for name := range a.webhooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateWebhook applies the checks in order: payload size, domain, replay
// window and ledger, then the signature. The first failing check decides the
// result.
func (a *Authenticator) ValidateWebhook(ctx context.Context, name string, req Request) Result {
	res := a.validate(ctx, name, req)
	outcome := "accepted"
	if !res.Valid {
		outcome = "rejected"
		a.logger.WithFields(logrus.Fields{
			"webhook": name,
			"url":     req.URL,
			"reason":  res.Error,
		}).Warn("webhook rejected")
	}
	prometheus.WebhookValidations.WithLabelValues(name, outcome).Inc()
	return res
}

func (a *Authenticator) validate(ctx context.Context, name string, req Request) Result {
	res := Result{Details: Details{Webhook: name}}
	fail := func(err error) Result {
		res.Valid = false
		res.Err = err
		res.Error = err.Error()
		return res
	}

	cfg, ok := a.Webhook(name)
	if !ok {
		return fail(ErrWebhookNotFound)
	}

	if int64(len(req.Body)) > cfg.MaxPayloadSize {
		return fail(fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(req.Body), cfg.MaxPayloadSize))
	}
	res.Details.PayloadSizeOK = true

	if len(cfg.AllowedDomains) > 0 {
		res.Details.DomainChecked = true
		u, err := url.Parse(req.URL)
		if err != nil || !domainAllowed(u.Hostname(), cfg.AllowedDomains) {
			return fail(ErrDomainNotAllowed)
		}
		res.Details.DomainOK = true
	}

	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = lookupHeader(req.Headers, timestampHeaders)
	}

	var replayHash string
	var sentAt time.Time
	if cfg.replayEnabled() {
		res.Details.ReplayChecked = true
		if timestamp == "" {
			return fail(ErrMissingTimestamp)
		}
		var err error
		sentAt, err = ParseTimestamp(timestamp)
		if err != nil {
			return fail(err)
		}
		age := a.now().Sub(sentAt)
		res.Details.AgeSeconds = int64(age / time.Second)
		if math.Abs(float64(age)) > float64(cfg.ReplayWindow) {
			return fail(fmt.Errorf("%w: age %s exceeds %s", ErrStaleTimestamp, age.Round(time.Second), cfg.ReplayWindow))
		}
		res.Details.TimestampOK = true

		replayHash = deliveryHash(name, timestamp, req.Body)
		seen, err := a.ledger.Seen(ctx, replayHash)
		if err != nil {
			return fail(fmt.Errorf("%w: %w", ErrLedger, err))
		}
		if seen {
			return fail(ErrReplay)
		}
		res.Details.NotReplayed = true
	}

	provided := lookupHeader(req.Headers, signatureHeaders)
	if provided == "" {
		return fail(ErrMissingSignature)
	}
	res.Details.SignatureFound = true

	expected, err := sign(cfg, timestamp, req.Body)
	if err != nil {
		return fail(err)
	}
	if !secureCompare(strings.TrimSpace(provided), expected) {
		return fail(ErrInvalidSignature)
	}
	res.Details.SignatureOK = true

	if replayHash != "" {
		fresh, err := a.ledger.Remember(ctx, replayHash, sentAt.Add(cfg.ReplayWindow))
		if err != nil {
			return fail(fmt.Errorf("%w: %w", ErrLedger, err))
		}
		if !fresh {
			res.Details.NotReplayed = false
			return fail(ErrReplay)
		}
	}

	res.Valid = true
	return res
}

// GenerateSignature signs payload with the named webhook's secret. An empty
// timestamp signs the bare payload.
func (a *Authenticator) GenerateSignature(name string, payload []byte, timestamp string) (string, error) {
	cfg, ok := a.Webhook(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrWebhookNotFound, name)
	}
	return sign(cfg, timestamp, payload)
}

// GenerateHeaders returns the headers a sender attaches to payload so that
// ValidateWebhook accepts it.
func (a *Authenticator) GenerateHeaders(name string, payload []byte) (map[string]string, error) {
	timestamp := strconv.FormatInt(a.now().Unix(), 10)
	signature, err := a.GenerateSignature(name, payload, timestamp)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		SignatureHeader: signature,
		TimestampHeader: timestamp,
		"Content-Type":  "application/json",
	}, nil
}

type SelfTestResult struct {
	Webhook    string        `json:"webhook"`
	Target     string        `json:"target"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"duration"`
	Signature  string        `json:"signature"`
}

// SelfTest sends a signed POST to target. The call runs under the self-test
// timeout and the outbound circuit breaker. 5xx responses count as failures.
func (a *Authenticator) SelfTest(ctx context.Context, name, target string, payload []byte) (SelfTestResult, error) {
	headers, err := a.GenerateHeaders(name, payload)
	if err != nil {
		return SelfTestResult{}, err
	}
	result := SelfTestResult{Webhook: name, Target: target, Signature: headers[SignatureHeader]}

	ctx, cancel := context.WithTimeout(ctx, a.selfTestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrSelfTestFailed, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := a.now()
	call := func() error {
		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)
		result.StatusCode = resp.StatusCode
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("target answered %d", resp.StatusCode)
		}
		return nil
	}
	if a.breaker != nil {
		err = a.breaker.Execute(call)
	} else {
		err = call()
	}
	result.Duration = a.now().Sub(start)

	entry := a.logger.WithFields(logrus.Fields{
		"webhook": name,
		"target":  target,
		"status":  result.StatusCode,
	})
	if err != nil {
		entry.WithError(err).Warn("webhook self-test failed")
		return result, fmt.Errorf("%w: %w", ErrSelfTestFailed, err)
	}
	entry.Info("webhook self-test succeeded")
	return result, nil
}

// Sweep purges ledger entries whose replay window has passed.
func (a *Authenticator) Sweep(ctx context.Context) (int, error) {
	removed, err := a.ledger.Sweep(ctx, a.now())
	if removed > 0 {
		a.logger.WithField("removed", removed).Debug("swept replay ledger")
	}
	return removed, err
}

func (a *Authenticator) Start(s *scheduler.Scheduler) error {
	return s.Every(sweepJobName, a.sweepInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.sweepInterval)
		defer cancel()
		if _, err := a.Sweep(ctx); err != nil {
			a.logger.WithError(err).Error("replay ledger sweep failed")
		}
	})
}

// ParseTimestamp accepts unix seconds, unix milliseconds and RFC 3339.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n), nil
		}
		return time.Unix(n, 0), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, v)
}

func deliveryHash(name, timestamp string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(timestamp))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func lookupHeader(headers map[string]string, names []string) string {
	for _, name := range names {
		for k, v := range headers {
			if strings.EqualFold(k, name) && v != "" {
				return v
			}
		}
	}
	return ""
}
