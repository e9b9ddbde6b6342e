package ratelimit

import (
	"context"
	"time"
)

type RuleStatus struct {
	Rule        string    `json:"rule"`
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	Blocked     bool      `json:"blocked"`
	Violations  int       `json:"violations"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
}

type Status struct {
	Identifier         string       `json:"identifier"`
	Blacklisted        bool         `json:"blacklisted"`
	BlacklistExpiresAt *time.Time   `json:"blacklist_expires_at,omitempty"`
	Whitelisted        bool         `json:"whitelisted"`
	Violations         int          `json:"violations"`
	Rules              []RuleStatus `json:"rules"`
}

// Status is a read-only snapshot. Records whose window already elapsed are
// reported as reset.
func (l *Limiter) Status(ctx context.Context, identifier string) (Status, error) {
	if identifier == "" {
		return Status{}, ErrEmptyIdentifier
	}
	st := Status{Identifier: identifier, Rules: []RuleStatus{}}

	exp, ok, err := l.blacklist.Get(ctx, identifier)
	if err != nil {
		return Status{}, err
	}
	if ok {
		st.Blacklisted = true
		if !exp.IsZero() {
			st.BlacklistExpiresAt = &exp
		}
	}
	if _, ok, err = l.whitelist.Get(ctx, identifier); err != nil {
		return Status{}, err
	}
	st.Whitelisted = ok

	if rec, ok, err := l.records.Get(ctx, violationsKeyPrefix+identifier); err != nil {
		return Status{}, err
	} else if ok {
		st.Violations = rec.Count
	}

	now := l.now()
	for _, rule := range l.rules {
		rec, ok, err := l.records.Get(ctx, recordKey(rule.Name, identifier))
		if err != nil {
			return Status{}, err
		}
		if !ok {
			continue
		}
		rs := RuleStatus{
			Rule:        rule.Name,
			Count:       rec.Count,
			Limit:       rule.MaxRequests,
			Blocked:     rec.Blocked,
			Violations:  rec.Violations,
			WindowStart: rec.WindowStart,
			ResetAt:     rec.WindowStart.Add(rule.Window),
		}
		if !now.Before(rs.ResetAt) {
			rs.Count = 0
			rs.Blocked = false
		}
		rs.Remaining = rule.MaxRequests - rs.Count
		if rs.Remaining < 0 {
			rs.Remaining = 0
		}
		st.Rules = append(st.Rules, rs)
	}
	return st, nil
}
