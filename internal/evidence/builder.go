package evidence

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/batvault/batvault/internal/allowedids"
	"github.com/batvault/batvault/internal/bverr"
	"github.com/batvault/batvault/internal/cache"
	"github.com/batvault/batvault/internal/canon"
	"github.com/batvault/batvault/internal/memory"
	"github.com/batvault/batvault/internal/obslog"
	"github.com/batvault/batvault/internal/policy"
)

// Builder implements Collect (§4.6) over a MemoryClient and the two-key
// bundle cache.
type Builder struct {
	Memory MemoryClient
	Cache  *cache.BundleCache
}

// NewBuilder builds a Builder.
func NewBuilder(memClient MemoryClient, bundleCache *cache.BundleCache) *Builder {
	return &Builder{Memory: memClient, Cache: bundleCache}
}

// cachedBundle is the two-key cache's stored body shape: the evidence bundle
// plus its own snapshot etag, since WhyDecisionEvidence.SnapshotETag is not
// (de)serialised via the struct's own json tags.
type cachedBundle struct {
	Evidence WhyDecisionEvidence `json:"evidence"`
	Snapshot string              `json:"snapshot_etag"`
}

// Collect implements §4.6's Collect(anchor_id): cache check, upstream
// fetch with bounded retry, classification, normalisation, allowed_ids,
// and two-key cache write.
func (b *Builder) Collect(ctx context.Context, anchorID string, headers http.Header, snapshotETag string) (*WhyDecisionEvidence, error) {
	if b.Cache != nil {
		var cached cachedBundle
		if b.Cache.Get(ctx, anchorID, &cached) && cached.Snapshot == snapshotETag {
			ev := cached.Evidence
			ev.SnapshotETag = cached.Snapshot
			return &ev, nil
		}
	}

	var anchorNode policy.Node
	var expand *memory.ExpandResponse

	err := withRetry(ctx, func() error {
		n, err := b.Memory.Enrich(ctx, anchorID, snapshotETag, headers)
		if err != nil {
			return err
		}
		anchorNode = n
		return nil
	})
	if err != nil {
		return nil, bverr.Wrap(bverr.KindUpstreamTimeout, err, "evidence collect: enrich %s", anchorID)
	}

	err = withRetry(ctx, func() error {
		e, err := b.Memory.ExpandCandidates(ctx, anchorID, snapshotETag, headers)
		if err != nil {
			return err
		}
		expand = e
		return nil
	})
	if err != nil {
		return nil, bverr.Wrap(bverr.KindUpstreamTimeout, err, "evidence collect: expand_candidates %s", anchorID)
	}

	anchorWireID, _ := anchorNode["id"].(string)
	if anchorWireID == "" {
		anchorWireID = anchorID
	}

	eventIDs, precedingIDs, succeedingIDs := memory.ClassifyEdgeEndpoints(expand.Graph.Edges, anchorWireID)

	events := fetchNodes(ctx, b.Memory, eventIDs, snapshotETag, headers)
	events = normalizeEvents(events)
	preceding := fetchNodes(ctx, b.Memory, precedingIDs, snapshotETag, headers)
	succeeding := fetchNodes(ctx, b.Memory, succeedingIDs, snapshotETag, headers)

	eventIDsOut := nodeIDs(events)
	precedingIDsOut := nodeIDs(preceding)
	succeedingIDsOut := nodeIDs(succeeding)
	allowed := allowedids.Derive(anchorWireID, eventIDsOut, precedingIDsOut, succeedingIDsOut)

	ev := &WhyDecisionEvidence{
		Anchor:       anchorNode,
		Events:       events,
		Transitions:  Transitions{Preceding: preceding, Succeeding: succeeding},
		AllowedIDs:   allowed,
		SnapshotETag: snapshotETag,
	}

	if b.Cache != nil {
		basis := cache.CompositeBasis{
			DecisionID:     anchorWireID,
			Intent:         "why_decision",
			GraphScope:     "k1",
			SnapshotETag:   snapshotETag,
			TruncationFlag: false,
		}
		if err := b.Cache.Put(ctx, anchorID, basis, cachedBundle{Evidence: *ev, Snapshot: snapshotETag}); err != nil {
			obslog.Warn(obslog.StageGateway, "bundle cache put failed", err, "anchor_id", anchorID)
		}
	}

	obslog.Event(obslog.StageGateway, "evidence_collected", "anchor_id", anchorWireID, "events", len(events))
	return ev, nil
}

// BundleFP computes I4's bundle_fp over the evidence bundle without its
// snapshot_etag.
func (e *WhyDecisionEvidence) BundleFP() string {
	return canon.MustFingerprint(e.fingerprintBasis())
}

// fetchNodes enriches each id individually via the Memory client; a
// not-found or ACL-denied id is dropped rather than failing the whole
// collection (mirrors EnrichBatch's per-id degradation in internal/memory).
func fetchNodes(ctx context.Context, mc MemoryClient, ids []string, snapshotETag string, headers http.Header) []policy.Node {
	var out []policy.Node
	for _, id := range ids {
		node, err := mc.Enrich(ctx, id, snapshotETag, headers)
		if err != nil || node == nil {
			continue
		}
		out = append(out, node)
	}
	return out
}

func nodeIDs(nodes []policy.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if id, _ := n["id"].(string); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// normalizeEvents implements §4.6 step 4: dedup by id, collapse same-day
// currency/magnitude variants, attach normalized_amount/normalized_currency.
func normalizeEvents(events []policy.Node) []policy.Node {
	seen := make(map[string]bool, len(events))
	deduped := make([]policy.Node, 0, len(events))
	for _, e := range events {
		id, _ := e["id"].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		deduped = append(deduped, e)
	}

	for _, e := range deduped {
		text := strings.Join([]string{strField2(e, "title"), strField2(e, "description")}, " ")
		if amt, cur, ok := NormalizeAmount(text); ok {
			e["normalized_amount"] = amt
			if cur != "" {
				e["normalized_currency"] = cur
			}
		}
	}

	out := make([]policy.Node, 0, len(deduped))
	skip := make(map[string]bool, len(deduped))
	for i, e := range deduped {
		idI, _ := e["id"].(string)
		if skip[idI] {
			continue
		}
		dayI := eventDay(e)
		for j := i + 1; j < len(deduped); j++ {
			o := deduped[j]
			idJ, _ := o["id"].(string)
			if skip[idJ] || eventDay(o) != dayI {
				continue
			}
			if sameAmountVariant(e, o) {
				skip[idJ] = true
			}
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		idI, _ := out[i]["id"].(string)
		idJ, _ := out[j]["id"].(string)
		return idI < idJ
	})
	return out
}

func strField2(n policy.Node, key string) string {
	s, _ := n[key].(string)
	return s
}

func eventDay(n policy.Node) string {
	ts := strField2(n, "timestamp")
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

func sameAmountVariant(a, b policy.Node) bool {
	aAmt, aok := a["normalized_amount"].(float64)
	bAmt, bok := b["normalized_amount"].(float64)
	if !aok || !bok {
		return false
	}
	if aAmt != bAmt {
		return false
	}
	titleA, titleB := strField2(a, "title"), strField2(b, "title")
	return strings.TrimSpace(titleA) != "" && strings.EqualFold(
		stripAmountTokens(titleA), stripAmountTokens(titleB))
}

func stripAmountTokens(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '$', '€', '¥', '£', ',':
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
