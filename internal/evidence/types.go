// Package evidence implements the Gateway's evidence builder (spec §4.6):
// assembling a WhyDecisionEvidence bundle from Memory's enrich and
// expand_candidates views, normalising events, and caching the result under
// the two-key pattern of §4.4. Ported from original_source's
// gateway.evidence.builder.
package evidence

import "github.com/batvault/batvault/internal/policy"

// Transitions holds the preceding/succeeding decision neighbours of the
// anchor (§3).
type Transitions struct {
	Preceding []policy.Node `json:"preceding"`
	Succeeding []policy.Node `json:"succeeding"`
}

// WhyDecisionEvidence is the canonical evidence bundle of §3. SnapshotETag
// is carried out-of-band and is not part of the canonical bundle bytes used
// for bundle_fp (I4).
type WhyDecisionEvidence struct {
	Anchor      policy.Node   `json:"anchor"`
	Events      []policy.Node `json:"events"`
	Transitions Transitions   `json:"transitions"`
	AllowedIDs  []string      `json:"allowed_ids"`

	SnapshotETag string `json:"-"`
}

// withoutSnapshotETag is the exact shape fingerprinted for bundle_fp (I4):
// evidence_without_snapshot_etag.
type withoutSnapshotETag struct {
	Anchor      policy.Node   `json:"anchor"`
	Events      []policy.Node `json:"events"`
	Transitions Transitions   `json:"transitions"`
	AllowedIDs  []string      `json:"allowed_ids"`
}

func (e *WhyDecisionEvidence) fingerprintBasis() withoutSnapshotETag {
	return withoutSnapshotETag{
		Anchor:      e.Anchor,
		Events:      e.Events,
		Transitions: e.Transitions,
		AllowedIDs:  e.AllowedIDs,
	}
}
