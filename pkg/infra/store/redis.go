package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/config"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	RecordKeyPattern = "%s:ratelimit:%s"
	ReplayKeyPattern = "%s:replay:%s"
	SetKeyPattern    = "%s:set:%s"

	maxWatchRetries = 10
	minRecordTTL    = time.Minute
)

var ErrTooManyRetries = errors.New("record update kept conflicting with concurrent writers")

// NewRedisClient connects and pings before returning, so a misconfigured
// Redis fails startup instead of the first request.
func NewRedisClient(cfg config.RedisConfig, logger *logrus.Logger) (*redis.Client, error) {
	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: true, // #nosec G402
		}
	}
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithFields(logrus.Fields{
			"host":  cfg.Host,
			"port":  cfg.Port,
			"error": err.Error(),
		}).Error("failed to connect to redis")
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host": cfg.Host,
		"port": cfg.Port,
	}).Info("redis connected successfully")
	return client, nil
}

// RedisRecordStore shares rate records between gateway instances. Records
// carry a TTL of twice their window, so Redis expiry does the sweeping.
type RedisRecordStore struct {
	client *redis.Client
	prefix string
}

func NewRedisRecordStore(client *redis.Client, prefix string) *RedisRecordStore {
	return &RedisRecordStore{client: client, prefix: prefix}
}

func (s *RedisRecordStore) key(key string) string {
	return fmt.Sprintf(RecordKeyPattern, s.prefix, key)
}

func (s *RedisRecordStore) Update(ctx context.Context, key string, fn func(rec *Record) error) (Record, error) {
	redisKey := s.key(key)
	var result Record

	txf := func(tx *redis.Tx) error {
		var rec Record
		raw, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("failed to decode record %s: %w", key, err)
			}
		}

		if err := fn(&rec); err != nil {
			return err
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, recordTTL(rec))
			return nil
		})
		if err == nil {
			result = rec
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Record{}, err
	}
	return Record{}, ErrTooManyRetries
}

func recordTTL(rec Record) time.Duration {
	ttl := 2 * rec.Window
	if ttl < minRecordTTL {
		return minRecordTTL
	}
	return ttl
}

func (s *RedisRecordStore) Get(ctx context.Context, key string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return rec, true, nil
}

func (s *RedisRecordStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Sweep is a no-op: every key is written with an expiry.
func (s *RedisRecordStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

type RedisReplayLedger struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisReplayLedger(client *redis.Client, prefix string, now func() time.Time) *RedisReplayLedger {
	if now == nil {
		now = time.Now
	}
	return &RedisReplayLedger{client: client, prefix: prefix, now: now}
}

func (l *RedisReplayLedger) key(hash string) string {
	return fmt.Sprintf(ReplayKeyPattern, l.prefix, hash)
}

func (l *RedisReplayLedger) Seen(ctx context.Context, hash string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(hash)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisReplayLedger) Remember(ctx context.Context, hash string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	return l.client.SetNX(ctx, l.key(hash), "1", ttl).Result()
}

func (l *RedisReplayLedger) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// RedisIdentifierSet stores members in one hash, field = identifier and
// value = expiry in unix milliseconds (0 for none).
type RedisIdentifierSet struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewRedisIdentifierSet(client *redis.Client, prefix, name string, now func() time.Time) *RedisIdentifierSet {
	if now == nil {
		now = time.Now
	}
	return &RedisIdentifierSet{
		client: client,
		key:    fmt.Sprintf(SetKeyPattern, prefix, name),
		now:    now,
	}
}

func (s *RedisIdentifierSet) Add(ctx context.Context, id string, expiresAt time.Time) error {
	return s.client.HSet(ctx, s.key, id, encodeExpiry(expiresAt)).Err()
}

func (s *RedisIdentifierSet) Remove(ctx context.Context, id string) (bool, error) {
	n, err := s.client.HDel(ctx, s.key, id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisIdentifierSet) Get(ctx context.Context, id string) (time.Time, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, id).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	exp, err := decodeExpiry(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	if !exp.IsZero() && !s.now().Before(exp) {
		return time.Time{}, false, nil
	}
	return exp, true, nil
}

// List also prunes members whose expiry passed while no instance was around
// to run the scheduled eviction.
func (s *RedisIdentifierSet) List(ctx context.Context) (map[string]time.Time, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make(map[string]time.Time, len(raw))
	var expired []string
	for id, v := range raw {
		exp, err := decodeExpiry(v)
		if err != nil {
			continue
		}
		if !exp.IsZero() && !now.Before(exp) {
			expired = append(expired, id)
			continue
		}
		out[id] = exp
	}
	if len(expired) > 0 {
		if err := s.client.HDel(ctx, s.key, expired...).Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

func encodeExpiry(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeExpiry(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %q: %w", v, err)
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}
