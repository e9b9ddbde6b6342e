package store

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

type recordShard struct {
	mu   sync.Mutex
	data map[string]*Record
}

// MemoryRecordStore shards records by key hash. Each shard has its own lock,
// so Update for unrelated identifiers rarely contends and there is no store
// wide lock on the request path.
type MemoryRecordStore struct {
	shards []*recordShard
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return NewMemoryRecordStoreWithShards(defaultShards)
}

func NewMemoryRecordStoreWithShards(n int) *MemoryRecordStore {
	if n <= 0 {
		n = defaultShards
	}
	s := &MemoryRecordStore{shards: make([]*recordShard, n)}
	for i := range s.shards {
		s.shards[i] = &recordShard{data: make(map[string]*Record)}
	}
	return s
}

func (s *MemoryRecordStore) shard(key string) *recordShard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

func (s *MemoryRecordStore) Update(_ context.Context, key string, fn func(rec *Record) error) (Record, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var rec Record
	if existing, ok := sh.data[key]; ok {
		rec = *existing
	}
	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	sh.data[key] = &rec
	return rec, nil
}

func (s *MemoryRecordStore) Get(_ context.Context, key string) (Record, bool, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.data[key]
	if !ok {
		return Record{}, false, nil
	}
	return *rec, true, nil
}

func (s *MemoryRecordStore) Delete(_ context.Context, key string) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.data, key)
	return nil
}

func (s *MemoryRecordStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh.mu.Lock()
		for key, rec := range sh.data {
			if rec.Stale(now) {
				delete(sh.data, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len is the number of records currently held.
func (s *MemoryRecordStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.data)
		sh.mu.Unlock()
	}
	return n
}

// MemoryReplayLedger is a single-lock map of delivery hashes to expiry.
type MemoryReplayLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryReplayLedger(now func() time.Time) *MemoryReplayLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryReplayLedger{entries: make(map[string]time.Time), now: now}
}

func (l *MemoryReplayLedger) Seen(_ context.Context, hash string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[hash]
	return ok, nil
}

func (l *MemoryReplayLedger) Remember(_ context.Context, hash string, expiresAt time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[hash]; ok {
		return false, nil
	}
	l.entries[hash] = expiresAt
	return true, nil
}

func (l *MemoryReplayLedger) Sweep(ctx context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for hash, exp := range l.entries {
		if !now.Before(exp) {
			delete(l.entries, hash)
			removed++
		}
	}
	return removed, ctx.Err()
}

func (l *MemoryReplayLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// MemoryIdentifierSet keeps identifiers with an optional expiry. Expired
// entries are reported as absent even before their scheduled eviction runs.
type MemoryIdentifierSet struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryIdentifierSet(now func() time.Time) *MemoryIdentifierSet {
	if now == nil {
		now = time.Now
	}
	return &MemoryIdentifierSet{entries: make(map[string]time.Time), now: now}
}

func (m *MemoryIdentifierSet) Add(_ context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = expiresAt
	return nil
}

func (m *MemoryIdentifierSet) Remove(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	delete(m.entries, id)
	return ok, nil
}

func (m *MemoryIdentifierSet) Get(_ context.Context, id string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.entries[id]
	if !ok {
		return time.Time{}, false, nil
	}
	if !exp.IsZero() && !m.now().Before(exp) {
		return time.Time{}, false, nil
	}
	return exp, true, nil
}

func (m *MemoryIdentifierSet) List(_ context.Context) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	out := make(map[string]time.Time, len(m.entries))
	for id, exp := range m.entries {
		if !exp.IsZero() && !now.Before(exp) {
			continue
		}
		out[id] = exp
	}
	return out, nil
}
