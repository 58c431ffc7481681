// Package loadshed implements the backpressure sampling of spec §5:
// should_load_shed() samples Redis ping latency and upstream Memory
// /healthz status; when tripped, /v2/query sheds with 429 and /v2/ask
// forces the LLM-off fallback path with meta.load_shed=true.
package loadshed

import (
	"context"
	"net/http"
	"time"

	"github.com/batvault/batvault/internal/cache"
	"github.com/batvault/batvault/internal/obslog"
)

// DefaultLatencyThreshold is the default Redis ping latency above which
// load shedding trips (§5, REDIS LoadShedLatencyMs config default 100ms).
const DefaultLatencyThreshold = 100 * time.Millisecond

// RetryAfterSeconds is the Retry-After value returned on a shed /v2/query
// response (P11).
const RetryAfterSeconds = 1

// Sampler decides should_load_shed() by sampling Redis latency and an
// upstream Memory health probe.
type Sampler struct {
	redis             *cache.Redis
	latencyThreshold  time.Duration
	memoryHealthzURL  string
	httpClient        *http.Client
}

// NewSampler builds a Sampler. memoryHealthzURL may be empty, in which case
// only the Redis latency probe is consulted.
func NewSampler(r *cache.Redis, latencyThreshold time.Duration, memoryHealthzURL string) *Sampler {
	if latencyThreshold <= 0 {
		latencyThreshold = DefaultLatencyThreshold
	}
	return &Sampler{
		redis: r, latencyThreshold: latencyThreshold, memoryHealthzURL: memoryHealthzURL,
		httpClient: &http.Client{Timeout: 500 * time.Millisecond},
	}
}

// ShouldLoadShed samples Redis ping latency and, if configured, Memory's
// /healthz 5xx status; true if either signal trips (§5).
func (s *Sampler) ShouldLoadShed(ctx context.Context) bool {
	if s.redis != nil {
		latency, err := s.redis.PingLatency(ctx)
		if err != nil || latency > s.latencyThreshold {
			obslog.Warn(obslog.StageGateway, "load_shed_redis_latency", "latency_ms", latency.Milliseconds(), "error", err)
			return true
		}
	}
	if s.memoryHealthzURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.memoryHealthzURL, nil)
		if err != nil {
			return false
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			obslog.Warn(obslog.StageGateway, "load_shed_memory_healthz_unreachable", "error", err)
			return true
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			obslog.Warn(obslog.StageGateway, "load_shed_memory_healthz_5xx", "status", resp.StatusCode)
			return true
		}
	}
	return false
}
