package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/infra/prometheus"
	"github.com/NeuralTrust/gateguard/pkg/infra/scheduler"
	"github.com/NeuralTrust/gateguard/pkg/infra/store"
	"github.com/sirupsen/logrus"
)

const (
	ReasonBlacklisted = "blacklisted"
	ReasonExceeded    = "rate_limit_exceeded"

	DefaultBlacklistThreshold = 10
	DefaultBlacklistDuration  = time.Hour
	DefaultSweepInterval      = time.Minute

	violationsKeyPrefix = "violations:"
	blacklistTaskPrefix = "blacklist:"
	sweepJobName        = "ratelimit-sweep"
)

type Result struct {
	Allowed    bool   `json:"allowed"`
	RetryAfter int    `json:"retry_after,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Rule       string `json:"rule,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Remaining  int    `json:"remaining"`
}

type Options struct {
	Records   store.RecordStore
	Blacklist store.IdentifierSet
	Whitelist store.IdentifierSet
	Scheduler *scheduler.Scheduler

	BlacklistThreshold int
	BlacklistDuration  time.Duration
	SweepInterval      time.Duration
	InitialWhitelist   []string

	TimeProvider func() time.Time
}

// Limiter is a fixed-window limiter keyed by identifier and rule. Rules are
// fixed at construction.
type Limiter struct {
	logger    *logrus.Logger
	rules     []Rule
	byName    map[string]int
	records   store.RecordStore
	blacklist store.IdentifierSet
	whitelist store.IdentifierSet
	scheduler *scheduler.Scheduler

	threshold         int
	blacklistDuration time.Duration
	sweepInterval     time.Duration
	now               func() time.Time
}

func New(logger *logrus.Logger, rules []Rule, opts Options) (*Limiter, error) {
	l := &Limiter{
		logger:            logger,
		byName:            make(map[string]int, len(rules)),
		records:           opts.Records,
		blacklist:         opts.Blacklist,
		whitelist:         opts.Whitelist,
		scheduler:         opts.Scheduler,
		threshold:         opts.BlacklistThreshold,
		blacklistDuration: opts.BlacklistDuration,
		sweepInterval:     opts.SweepInterval,
		now:               opts.TimeProvider,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.records == nil {
		l.records = store.NewMemoryRecordStore()
	}
	if l.blacklist == nil {
		l.blacklist = store.NewMemoryIdentifierSet(l.now)
	}
	if l.whitelist == nil {
		l.whitelist = store.NewMemoryIdentifierSet(l.now)
	}
	if l.scheduler == nil {
		l.scheduler = scheduler.New(logger)
	}
	if l.threshold <= 0 {
		l.threshold = DefaultBlacklistThreshold
	}
	if l.blacklistDuration <= 0 {
		l.blacklistDuration = DefaultBlacklistDuration
	}
	if l.sweepInterval <= 0 {
		l.sweepInterval = DefaultSweepInterval
	}

	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, ok := l.byName[r.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.Name)
		}
		l.byName[r.Name] = len(l.rules)
		r.Methods = append([]string(nil), r.Methods...)
		l.rules = append(l.rules, r)
	}

	for _, id := range opts.InitialWhitelist {
		if err := l.whitelist.Add(context.Background(), id, time.Time{}); err != nil {
			return nil, fmt.Errorf("failed to whitelist %s: %w", id, err)
		}
	}
	return l, nil
}

// Start registers the periodic record sweep on the scheduler.
func (l *Limiter) Start() error {
	return l.scheduler.Every(sweepJobName, l.sweepInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.sweepInterval)
		defer cancel()
		if _, err := l.Sweep(ctx); err != nil {
			l.logger.WithError(err).Error("rate limit sweep failed")
		}
	})
}

// CheckLimit counts one request from identifier. With a non-empty ruleName
// only that rule is evaluated, otherwise every rule matching path and method.
func (l *Limiter) CheckLimit(ctx context.Context, identifier, ruleName, path, method string) (Result, error) {
	if identifier == "" {
		return Result{}, ErrEmptyIdentifier
	}

	exp, blacklisted, err := l.blacklist.Get(ctx, identifier)
	if err != nil {
		return Result{}, fmt.Errorf("blacklist lookup failed: %w", err)
	}
	if blacklisted {
		return Result{
			Allowed:    false,
			Reason:     ReasonBlacklisted,
			RetryAfter: l.retryAfter(exp),
		}, nil
	}

	_, whitelisted, err := l.whitelist.Get(ctx, identifier)
	if err != nil {
		return Result{}, fmt.Errorf("whitelist lookup failed: %w", err)
	}
	if whitelisted {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	rules, err := l.applicable(ruleName, path, method)
	if err != nil {
		return Result{}, err
	}

	result := Result{Allowed: true, Remaining: -1}
	for _, rule := range rules {
		var transitioned bool
		rec, err := l.records.Update(ctx, recordKey(rule.Name, identifier), func(rec *store.Record) error {
			now := l.now()
			transitioned = false
			if rec.WindowStart.IsZero() || now.Sub(rec.WindowStart) >= rule.Window {
				rec.Count = 1
				rec.WindowStart = now
				rec.Blocked = false
			} else {
				rec.Count++
			}
			rec.LastRequest = now
			rec.Window = rule.Window
			if rec.Count > rule.MaxRequests {
				transitioned = !rec.Blocked
				rec.Blocked = true
				rec.Violations++
			}
			return nil
		})
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name, err)
		}

		if rec.Blocked {
			retryAfter := l.retryAfter(rec.WindowStart.Add(rule.Window))
			if transitioned {
				l.onBreach(identifier, rule, rec)
			}
			if err := l.recordViolation(ctx, identifier); err != nil {
				l.logger.WithError(err).WithField("identifier", identifier).Error("failed to record violation")
			}
			return Result{
				Allowed:    false,
				RetryAfter: retryAfter,
				Reason:     ReasonExceeded,
				Rule:       rule.Name,
				Limit:      rule.MaxRequests,
				Remaining:  0,
			}, nil
		}

		remaining := rule.MaxRequests - rec.Count
		if result.Remaining < 0 || remaining < result.Remaining {
			result.Rule = rule.Name
			result.Limit = rule.MaxRequests
			result.Remaining = remaining
		}
	}
	return result, nil
}

func (l *Limiter) applicable(ruleName, path, method string) ([]Rule, error) {
	if ruleName != "" {
		i, ok := l.byName[ruleName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleName)
		}
		return []Rule{l.rules[i]}, nil
	}
	var out []Rule
	for _, r := range l.rules {
		if r.Matches(path, method) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Limiter) onBreach(identifier string, rule Rule, rec store.Record) {
	prometheus.RateLimitBreaches.WithLabelValues(rule.Name).Inc()
	l.logger.WithFields(logrus.Fields{
		"identifier":   identifier,
		"rule":         rule.Name,
		"count":        rec.Count,
		"max_requests": rule.MaxRequests,
		"window":       rule.Window.String(),
	}).Warn("rate limit exceeded")

	if rule.OnLimitReached == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("rule", rule.Name).Errorf("limit reached callback panicked: %v", r)
		}
	}()
	rule.OnLimitReached(identifier, rule)
}

func (l *Limiter) recordViolation(ctx context.Context, identifier string) error {
	var escalate bool
	_, err := l.records.Update(ctx, violationsKeyPrefix+identifier, func(rec *store.Record) error {
		now := l.now()
		escalate = false
		if rec.WindowStart.IsZero() {
			rec.WindowStart = now
		}
		rec.Window = l.blacklistDuration
		rec.LastRequest = now
		rec.Count++
		rec.Violations = rec.Count
		if rec.Count >= l.threshold {
			escalate = true
			rec.Count = 0
			rec.Violations = 0
			rec.WindowStart = now
		}
		return nil
	})
	if err != nil {
		return err
	}
	if escalate {
		return l.AddToBlacklist(ctx, identifier, l.blacklistDuration)
	}
	return nil
}

// AddToBlacklist blocks identifier for d (the configured duration when d is
// not positive) and schedules its removal.
func (l *Limiter) AddToBlacklist(ctx context.Context, identifier string, d time.Duration) error {
	if identifier == "" {
		return ErrEmptyIdentifier
	}
	if d <= 0 {
		d = l.blacklistDuration
	}
	expiresAt := l.now().Add(d)
	if err := l.blacklist.Add(ctx, identifier, expiresAt); err != nil {
		return err
	}
	l.scheduler.After(blacklistTaskPrefix+identifier, d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.evict(ctx, identifier); err != nil {
			l.logger.WithError(err).WithField("identifier", identifier).Error("failed to evict blacklist entry")
		}
	})
	l.refreshBlacklistGauge(ctx)
	l.logger.WithFields(logrus.Fields{
		"identifier": identifier,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}).Warn("identifier blacklisted")
	return nil
}

// RemoveFromBlacklist lifts a block early and clears the identifier's
// violation history.
func (l *Limiter) RemoveFromBlacklist(ctx context.Context, identifier string) (bool, error) {
	l.scheduler.Cancel(blacklistTaskPrefix + identifier)
	return l.evict(ctx, identifier)
}

func (l *Limiter) evict(ctx context.Context, identifier string) (bool, error) {
	removed, err := l.blacklist.Remove(ctx, identifier)
	if err != nil {
		return false, err
	}
	if err := l.records.Delete(ctx, violationsKeyPrefix+identifier); err != nil {
		return removed, err
	}
	l.refreshBlacklistGauge(ctx)
	if removed {
		l.logger.WithField("identifier", identifier).Info("identifier removed from blacklist")
	}
	return removed, nil
}

func (l *Limiter) IsBlacklisted(ctx context.Context, identifier string) (bool, error) {
	_, ok, err := l.blacklist.Get(ctx, identifier)
	return ok, err
}

func (l *Limiter) AddToWhitelist(ctx context.Context, identifier string) error {
	if identifier == "" {
		return ErrEmptyIdentifier
	}
	if err := l.whitelist.Add(ctx, identifier, time.Time{}); err != nil {
		return err
	}
	l.logger.WithField("identifier", identifier).Info("identifier whitelisted")
	return nil
}

func (l *Limiter) RemoveFromWhitelist(ctx context.Context, identifier string) (bool, error) {
	return l.whitelist.Remove(ctx, identifier)
}

// Sweep drops stale records. Blacklist entries expire through their own
// scheduled evictions.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	removed, err := l.records.Sweep(ctx, l.now())
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		l.logger.WithField("removed", removed).Debug("swept stale rate limit records")
	}
	l.refreshBlacklistGauge(ctx)
	return removed, nil
}

func (l *Limiter) Rules() []Rule {
	out := make([]Rule, len(l.rules))
	copy(out, l.rules)
	return out
}

func (l *Limiter) refreshBlacklistGauge(ctx context.Context) {
	entries, err := l.blacklist.List(ctx)
	if err != nil {
		return
	}
	prometheus.BlacklistedIdentifiers.Set(float64(len(entries)))
}

func (l *Limiter) retryAfter(until time.Time) int {
	if until.IsZero() {
		return 0
	}
	secs := int(math.Ceil(until.Sub(l.now()).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func recordKey(rule, identifier string) string {
	return "rule:" + rule + ":" + identifier
}
