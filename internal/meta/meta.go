// Package meta assembles the response envelope meta block and mirrored
// headers of spec §4.13. Ported from original_source's gateway.meta.
package meta

import "net/http"

// GatewayVersion is stamped into every response's meta.gateway_version.
const GatewayVersion = "1.0.0"

// EvidenceMetrics reports the shape of the evidence bundle actually used,
// independent of the budget gate's trimming (§4.13).
type EvidenceMetrics struct {
	TotalEdges  int `json:"total_edges"`
	TotalEvents int `json:"total_events"`
}

// Meta is the response envelope's required meta block (§4.13, all fields
// required unless marked optional).
type Meta struct {
	RequestID          string           `json:"request_id"`
	PolicyID           string           `json:"policy_id"`
	PolicyFingerprint  string           `json:"-"`
	PromptID           string           `json:"prompt_id"`
	PromptFingerprint  string           `json:"prompt_fingerprint"`
	BundleFingerprint  string           `json:"bundle_fingerprint"`
	BundleSizeBytes    int              `json:"bundle_size_bytes"`
	PromptTokens       int              `json:"prompt_tokens"`
	MaxTokens          int              `json:"max_tokens"`
	EvidenceTokens     int              `json:"evidence_tokens"`
	SnapshotETag       string           `json:"snapshot_etag"`
	GatewayVersion     string           `json:"gateway_version"`
	SelectorModelID    string           `json:"selector_model_id"`
	FallbackUsed       bool             `json:"fallback_used"`
	FallbackReason     string           `json:"fallback_reason,omitempty"`
	Retries            int              `json:"retries"`
	LatencyMs          int64            `json:"latency_ms"`
	ValidatorErrorCount int             `json:"validator_error_count"`
	ValidatorWarnings  []string         `json:"validator_warnings"`
	EvidenceMetrics    EvidenceMetrics  `json:"evidence_metrics"`
	EventsTotal        int              `json:"events_total"`
	EventsTruncated    bool             `json:"events_truncated"`
	SnapshotAvailable  bool             `json:"snapshot_available"`
	LoadShed           bool             `json:"load_shed"`
	TraceID            string           `json:"trace_id,omitempty"`
	SpanID             string           `json:"span_id,omitempty"`
	ResolverPath        string          `json:"resolver_path"`
}

// Fingerprint header names mirrored alongside the request/trace/snapshot
// headers (§4.13: "Headers mirror the four fingerprints plus
// x-request-id, x-trace-id, x-snapshot-etag").
const (
	HeaderPolicyFP    = "X-BV-Policy-Fingerprint"
	HeaderPromptFP    = "X-BV-Prompt-Fingerprint"
	HeaderBundleFP    = "X-BV-Bundle-Fingerprint"
	HeaderAllowedIDsFP = "X-BV-Allowed-Ids-FP"
	HeaderRequestID   = "X-Request-Id"
	HeaderTraceID     = "X-Trace-Id"
	HeaderSnapshotETag = "X-Snapshot-ETag"
)

// MirrorHeaders writes the four fingerprints plus request/trace/snapshot
// headers onto w, per §4.13. allowedIDsFP stands in for the "policy
// fingerprint" slot's sibling in Memory responses; Gateway responses pass
// the values they actually computed, omitting any that are empty.
func MirrorHeaders(w http.Header, m Meta, allowedIDsFP string) {
	if m.PolicyFingerprint != "" {
		w.Set(HeaderPolicyFP, m.PolicyFingerprint)
	}
	if m.PromptFingerprint != "" {
		w.Set(HeaderPromptFP, m.PromptFingerprint)
	}
	if m.BundleFingerprint != "" {
		w.Set(HeaderBundleFP, m.BundleFingerprint)
	}
	if allowedIDsFP != "" {
		w.Set(HeaderAllowedIDsFP, allowedIDsFP)
	}
	if m.RequestID != "" {
		w.Set(HeaderRequestID, m.RequestID)
	}
	if m.TraceID != "" {
		w.Set(HeaderTraceID, m.TraceID)
	}
	if m.SnapshotETag != "" {
		w.Set(HeaderSnapshotETag, m.SnapshotETag)
	}
}

// Envelope is the canonical wire shape returned from /v2/ask and /v2/query
// (§6).
type Envelope struct {
	Answer    interface{} `json:"answer,omitempty"`
	Evidence  interface{} `json:"evidence,omitempty"`
	CitedIDs  []string    `json:"cited_ids,omitempty"`
	Meta      Meta        `json:"meta"`
}
