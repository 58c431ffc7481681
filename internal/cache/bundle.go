package cache

import (
	"context"
	"time"
)

// EvidenceTTL is the fixed TTL for both the composite and alias entries of
// the two-key evidence bundle pattern (§3, §4.4).
const EvidenceTTL = 900 * time.Second

type staleHook func(compositeKey string)

// BundleCache implements the alias -> composite -> body read-through
// pattern for evidence bundles (§4.4).
type BundleCache struct {
	r       *Redis
	onStale staleHook
}

func NewBundleCache(r *Redis) *BundleCache { return &BundleCache{r: r} }

// OnStaleWhileRevalidate registers the SWR refresh callback invoked
// (fire-and-forget, §5) with the composite key whose entry should be
// refreshed in the background.
func (c *BundleCache) OnStaleWhileRevalidate(hook func(compositeKey string)) {
	c.onStale = hook
}

// Get resolves anchorID through the alias key to the composite key, then to
// the stored body. Any miss or decode error at any hop is a full miss.
func (c *BundleCache) Get(ctx context.Context, anchorID string, body interface{}) (hit bool) {
	var composite string
	if err := c.r.Get(ctx, AliasKey(anchorID), &composite); err != nil {
		return false
	}
	if err := c.r.Get(ctx, composite, body); err != nil {
		return false
	}
	c.maybeScheduleRefresh(ctx, composite)
	return true
}

// Put writes the composite entry first, then the alias entry, both with
// EvidenceTTL (§4.4: "write composite with TTL; write alias last, same
// TTL"). basis must produce the same CompositeKey a future Get's basis
// would, for the same (anchor, intent, scope, snapshot, truncation).
func (c *BundleCache) Put(ctx context.Context, anchorID string, basis CompositeBasis, body interface{}) error {
	composite := CompositeKey(basis)
	if err := c.r.SetEX(ctx, composite, body, EvidenceTTL); err != nil {
		return err
	}
	return c.r.SetEX(ctx, AliasKey(anchorID), composite, EvidenceTTL)
}

// maybeScheduleRefresh fires the SWR refresh callback, if one is
// registered, when the composite entry's remaining TTL drops below the
// configured fraction of EvidenceTTL (§4.4). It never blocks the caller.
func (c *BundleCache) maybeScheduleRefresh(ctx context.Context, compositeKey string) {
	if c.onStale == nil {
		return
	}
	ttl, err := c.r.TTL(ctx, compositeKey)
	if err != nil || ttl <= 0 {
		return
	}
	if float64(ttl) < swrThresholdPct*float64(EvidenceTTL) {
		go c.onStale(compositeKey)
	}
}

var swrThresholdPct = 0.2

// SetSWRThreshold overrides the default 20% SWR trigger fraction
// (TTL_* config-driven, §4.4).
func SetSWRThreshold(pct float64) { swrThresholdPct = pct }
