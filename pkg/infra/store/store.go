package store

import (
	"context"
	"errors"
	"time"
)

var ErrStoreClosed = errors.New("store is closed")

// Record is the fixed-window state kept per identifier and rule.
type Record struct {
	Count       int           `json:"count"`
	WindowStart time.Time     `json:"window_start"`
	LastRequest time.Time     `json:"last_request"`
	Blocked     bool          `json:"blocked"`
	Violations  int           `json:"violations"`
	Window      time.Duration `json:"window"`
}

// Stale reports whether the record has been idle for more than twice its window.
func (r Record) Stale(now time.Time) bool {
	return now.Sub(r.LastRequest) > 2*r.Window
}

type RecordStore interface {
	// Update runs fn against the record stored under key. No other Update for
	// the same key runs concurrently with fn, so read-modify-write inside fn is
	// atomic. A missing record is passed as a zero Record.
	Update(ctx context.Context, key string, fn func(rec *Record) error) (Record, error)
	Get(ctx context.Context, key string) (Record, bool, error)
	Delete(ctx context.Context, key string) error
	// Sweep drops records that are stale at now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// ReplayLedger remembers accepted webhook deliveries for the replay window.
type ReplayLedger interface {
	Seen(ctx context.Context, hash string) (bool, error)
	// Remember stores hash until expiresAt. It returns false when the hash was
	// already present, which callers must treat as a replay.
	Remember(ctx context.Context, hash string, expiresAt time.Time) (bool, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// IdentifierSet backs the blacklist and whitelist. A zero expiresAt means the
// entry never expires on its own.
type IdentifierSet interface {
	Add(ctx context.Context, id string, expiresAt time.Time) error
	Remove(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (expiresAt time.Time, ok bool, err error)
	List(ctx context.Context) (map[string]time.Time, error)
}
