package cache

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/batvault/batvault/internal/canon"
)

// FP returns a compact 16-hex-char blake2b fingerprint of the canonical
// bytes of basis, used to keep Redis keys short (ported from
// original_source's core_cache.keys._fp, which uses blake2s for the same
// purpose).
func FP(basis interface{}) string {
	b, err := canon.Bytes(basis)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", basis))
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// ResolveKey builds the Memory resolver cache key (§4.4):
// bv:mem:v1:resolve:{fp(etag,policy_fp,q)}.
func ResolveKey(etag, policyFP, q string) string {
	return "bv:mem:v1:resolve:" + FP([]interface{}{etag, policyFP, q})
}

// ExpandKey builds the Memory expand_candidates cache key (§4.4):
// bv:mem:v1:expand:{fp(etag,policy_fp,anchor)}.
func ExpandKey(etag, policyFP, anchor string) string {
	return "bv:mem:v1:expand:" + FP([]interface{}{etag, policyFP, anchor})
}

// SchemaKey builds the schema-cache key for a named wire schema
// (Graph View / Bundle View), per SPEC_FULL §SF.4's schema cache.
func SchemaKey(name string) string {
	return "bv:mem:v1:schema:" + name
}

// AliasKey is the two-key evidence bundle alias entry (§3, §4.4):
// evidence:{anchor_id}:latest.
func AliasKey(anchorID string) string {
	return "evidence:" + anchorID + ":latest"
}

// CompositeBasis is the canonical basis hashed to form an evidence bundle's
// composite key (§4.4).
type CompositeBasis struct {
	DecisionID     string `json:"decision_id"`
	Intent         string `json:"intent"`
	GraphScope     string `json:"graph_scope"`
	SnapshotETag   string `json:"snapshot_etag"`
	TruncationFlag bool   `json:"truncation_flag"`
}

// CompositeKey builds evidence:sha256({...}) from basis (§4.4).
func CompositeKey(basis CompositeBasis) string {
	fp, err := canon.Fingerprint(basis)
	if err != nil {
		fp = canon.EnsurePrefix(FP(basis))
	}
	return "evidence:" + fp
}
