// Package ingestpipeline implements the ingest normaliser of spec §4.14:
// batch directory collection, alias canonicalisation, schema validation,
// id/timestamp/tag normalisation, reciprocal link derivation, referential
// integrity checks, snapshot ETag computation and graph upsert. Ported
// from original_source's ingest.cli / ingest.pipeline.*.
package ingestpipeline

// Kind is the inferred document kind (§4.14).
type Kind string

const (
	KindDecision   Kind = "decision"
	KindEvent      Kind = "event"
	KindTransition Kind = "transition"
)

// Doc is a raw or normalised fixture document, keyed generically like every
// other node shape in this module.
type Doc = map[string]interface{}

// ValidationError pairs a fixture path with a human-readable message, the
// wire shape expected by callers driving a CLI or HTTP batch endpoint.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// BatchReport summarises one ingest run (§4.14).
type BatchReport struct {
	OK              bool              `json:"ok"`
	Files           int               `json:"files"`
	Decisions       int               `json:"decisions"`
	Events          int               `json:"events"`
	Transitions     int               `json:"transitions"`
	AliasHits       int               `json:"alias_hits"`
	Errors          []ValidationError `json:"errors,omitempty"`
	SnapshotETag    string            `json:"snapshot_etag,omitempty"`
	NodesUpserted   int               `json:"nodes_upserted,omitempty"`
	EdgesUpserted   int               `json:"edges_upserted,omitempty"`
	NodesRemoved    int               `json:"nodes_removed,omitempty"`
	EdgesRemoved    int               `json:"edges_removed,omitempty"`
}
