// Package cache implements the read-through cache layer of spec §4.4: the
// two-key evidence-bundle pattern, Memory's resolve/expand caches with
// negative caching and SWR, and the process-local LRU+TTL artifact cache.
// The Redis client wrapper is adapted from the teacher's
// internal/infra.GoRedisAdapter (go-redis v9), generalised from pub/sub
// key-value access to the typed Get/SetEX/negative-cache operations BatVault
// needs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/batvault/batvault/internal/obslog"
)

// ErrMiss is returned by Get when the key is absent or its body fails to
// decode; a decode error is treated as a miss (§4.4: "on decode error treat
// as miss"), never surfaced as a cache error (errors are never cached and
// never propagated as hits).
var ErrMiss = errors.New("cache: miss")

// negSentinel marks a cached negative resolver result (§4.4).
type negSentinel struct {
	Neg bool `json:"_neg"`
}

// Redis wraps go-redis for BatVault's cache keys.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to addr (a redis:// URL) and verifies connectivity.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", url, err)
	}
	obslog.Event(obslog.StageCache, "redis_connected")
	return &Redis{rdb: rdb}, nil
}

// Close shuts down the underlying client.
func (r *Redis) Close() error { return r.rdb.Close() }

// PingLatency measures a single PING round trip, used by loadshed (§5).
func (r *Redis) PingLatency(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := r.rdb.Ping(ctx).Err()
	return time.Since(start), err
}

// Get fetches key and JSON-decodes it into out. Absence or a decode error
// both return ErrMiss.
func (r *Redis) Get(ctx context.Context, key string, out interface{}) error {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return ErrMiss
	}
	return nil
}

// SetEX JSON-encodes value and writes it with the given TTL.
func (r *Redis) SetEX(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.rdb.SetEx(ctx, key, raw, ttl).Err()
}

// TTL returns the remaining TTL for key, or a negative duration if the key
// is absent or has no expiry.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.rdb.TTL(ctx, key).Result()
}

// SetNegative writes the sentinel {_neg:true} marker for a resolver miss
// (§4.4), with the same TTL as a positive entry would use.
func (r *Redis) SetNegative(ctx context.Context, key string, ttl time.Duration) error {
	return r.SetEX(ctx, key, negSentinel{Neg: true}, ttl)
}

// IsNegative reports whether raw decodes as the negative-cache sentinel.
func IsNegative(raw json.RawMessage) bool {
	var n negSentinel
	if err := json.Unmarshal(raw, &n); err != nil {
		return false
	}
	return n.Neg
}

// Del removes keys; used by ingest to evict stale bundle entries.
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}
