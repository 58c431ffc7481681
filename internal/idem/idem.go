// Package idem implements the idempotency guard of spec §5 / SPEC_FULL
// §SF.4: a Redis-backed key with a 24h TTL, guarded by a request_scope_fp so
// concurrent retries of the same logical request merge, while a different
// request colliding on the same raw key is rejected. Ported from
// original_source's core_idem.
package idem

import (
	"context"
	"fmt"
	"time"

	"github.com/batvault/batvault/internal/cache"
	"github.com/batvault/batvault/internal/canon"
	"github.com/batvault/batvault/internal/obslog"
)

// TTL is the fixed idempotency-key lifetime (§5).
const TTL = 24 * time.Hour

// RedisKey builds the namespaced idempotency key for rawKey scoped to
// service (idem_redis_key in the spec).
func RedisKey(rawKey, service string) string {
	return fmt.Sprintf("bv:idem:%s:%s", service, rawKey)
}

// ScopeBasis is the canonical basis hashed into request_scope_fp (§5):
// {method, path_template, canonical(query), canonical(body), snapshot_etag,
// policy_fp}.
type ScopeBasis struct {
	Method       string      `json:"method"`
	PathTemplate string      `json:"path_template"`
	Query        interface{} `json:"query"`
	Body         interface{} `json:"body"`
	SnapshotETag string      `json:"snapshot_etag"`
	PolicyFP     string      `json:"policy_fp"`
}

// ScopeFP computes request_scope_fp over basis.
func ScopeFP(basis ScopeBasis) (string, error) {
	return canon.Fingerprint(basis)
}

// record is the Redis-stored value behind an idempotency key.
type record struct {
	ScopeFP  string          `json:"scope_fp"`
	Response interface{}     `json:"response"`
}

// Guard coordinates idempotent merges over a Redis-backed store.
type Guard struct {
	r *cache.Redis
}

func NewGuard(r *cache.Redis) *Guard { return &Guard{r: r} }

// Outcome describes what Check found for a (rawKey, service) pair.
type Outcome int

const (
	// OutcomeFresh: no prior record; caller should execute and then Commit.
	OutcomeFresh Outcome = iota
	// OutcomeMerged: a prior record with a matching scope_fp exists;
	// caller should return its cached response.
	OutcomeMerged
	// OutcomeRejected: a prior record exists with a mismatched scope_fp;
	// the merge is rejected and logged (§5).
	OutcomeRejected
)

// Check looks up rawKey under service and compares scopeFP against any
// existing record's scope_fp.
func (g *Guard) Check(ctx context.Context, rawKey, service, scopeFP string) (Outcome, interface{}, error) {
	key := RedisKey(rawKey, service)
	var rec record
	err := g.r.Get(ctx, key, &rec)
	if err == cache.ErrMiss {
		return OutcomeFresh, nil, nil
	}
	if err != nil {
		return OutcomeFresh, nil, err
	}
	if rec.ScopeFP != scopeFP {
		obslog.Warn(obslog.StageGateway, "idem_scope_fp_mismatch", "raw_key", rawKey, "service", service)
		return OutcomeRejected, nil, nil
	}
	return OutcomeMerged, rec.Response, nil
}

// Commit stores response under rawKey/service/scopeFP with TTL.
func (g *Guard) Commit(ctx context.Context, rawKey, service, scopeFP string, response interface{}) error {
	key := RedisKey(rawKey, service)
	return g.r.SetEX(ctx, key, record{ScopeFP: scopeFP, Response: response}, TTL)
}
