// Package memory implements the Memory service endpoints of spec §4.5:
// enrich, enrich/batch, resolve/text, expand_candidates — policy-enforced,
// snapshot-pinned graph reads with fail-closed ACL and field masking.
// Ported from original_source's memory_api.routes.
package memory

import "github.com/batvault/batvault/internal/policy"

// EnrichRequest is the request body/query of POST|GET /api/enrich.
type EnrichRequest struct {
	AnchorID     string `json:"anchor_id"`
	SnapshotETag string `json:"snapshot_etag,omitempty"`
}

// EnrichResponse wraps the masked node with its field-mask audit trail.
type EnrichResponse struct {
	MaskSummary policy.MaskSummary     `json:"mask_summary"`
	Node        map[string]interface{} `json:"-"` // flattened into the wire body by handlers.go
}

// EnrichBatchRequest is the request body of POST /api/enrich/batch.
type EnrichBatchRequest struct {
	AnchorID     string   `json:"anchor_id"`
	SnapshotETag string   `json:"snapshot_etag"`
	IDs          []string `json:"ids"`
}

// EnrichBatchResponse is the wire shape of enrich/batch's response (§4.5).
type EnrichBatchResponse struct {
	Items map[string]map[string]interface{} `json:"items"`
	Meta  EnrichBatchMeta                    `json:"meta"`
}

// EnrichBatchMeta is enrich/batch's nested meta object.
type EnrichBatchMeta struct {
	ReturnedCount int      `json:"returned_count"`
	AllowedIDs    []string `json:"allowed_ids"`
	AllowedIDsFP  string   `json:"allowed_ids_fp"`
	PolicyFP      string   `json:"policy_fp"`
	SnapshotETag  string   `json:"snapshot_etag"`
}

// ResolveRequest is the request body of POST /api/resolve/text.
type ResolveRequest struct {
	Q            string    `json:"q"`
	Limit        int       `json:"limit,omitempty"`
	UseVector    bool      `json:"use_vector,omitempty"`
	QueryVector  []float64 `json:"query_vector,omitempty"`
	SnapshotETag string    `json:"snapshot_etag,omitempty"`
}

// ResolveMatch is one row of ResolveResponse.Matches.
type ResolveMatch struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Title string  `json:"title"`
	Type  string  `json:"type"`
}

// ResolveResponse is the wire shape of resolve/text's response (§4.5).
type ResolveResponse struct {
	Query      string         `json:"query"`
	Matches    []ResolveMatch `json:"matches"`
	VectorUsed bool           `json:"vector_used"`
	ResolvedID string         `json:"resolved_id,omitempty"`
}

// ExpandRequest is the request body of POST /api/graph/expand_candidates.
type ExpandRequest struct {
	AnchorID     string `json:"anchor_id"`
	SnapshotETag string `json:"snapshot_etag,omitempty"`
}

// WireEdge is a single edge in ExpandResponse.Graph.Edges.
type WireEdge struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// ExpandGraph is the nested "graph" object of ExpandResponse.
type ExpandGraph struct {
	Edges []WireEdge `json:"edges"`
}

// AliasInfo reports the alias-tail wire ids that survived ACL (§4.7).
type AliasInfo struct {
	Returned []string `json:"returned"`
}

// ExpandFingerprints is the nested fingerprints object of ExpandMeta.
type ExpandFingerprints struct {
	GraphFP string `json:"graph_fp"`
}

// ExpandMeta is expand_candidates's nested meta object (§4.5).
type ExpandMeta struct {
	SnapshotETag string             `json:"snapshot_etag"`
	PolicyFP     string             `json:"policy_fp"`
	AllowedIDs   []string           `json:"allowed_ids"`
	AllowedIDsFP string             `json:"allowed_ids_fp"`
	Fingerprints ExpandFingerprints `json:"fingerprints"`
	Alias        AliasInfo          `json:"alias"`
}

// ExpandResponse is the wire shape of expand_candidates's response (§4.5).
type ExpandResponse struct {
	Anchor map[string]interface{} `json:"anchor"`
	Graph  ExpandGraph            `json:"graph"`
	Meta   ExpandMeta             `json:"meta"`
}
