// Package storage implements the graph storage adapter (spec §4.3): node
// and edge reads/writes against ArangoDB, with a dev-mode in-memory stub
// used when the database is unreachable and BV_ENV=dev.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/batvault/batvault/internal/policy"
)

// Edge is the wire shape of a graph edge document.
type Edge struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// NextDecision is one row of next_decisions_from_event's result.
type NextDecision struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Domain    string `json:"domain"`
	Timestamp string `json:"timestamp"`
	EdgeType  string `json:"edge_type"`
	EdgeTS    string `json:"edge_ts"`
}

// Match is one row of resolve_text's result.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Title string  `json:"title"`
	Type  string  `json:"type"`
}

// Adapter is the storage contract every component depends on; ArangoAdapter
// and StubAdapter both implement it.
type Adapter interface {
	GetNode(ctx context.Context, storageKey string) (policy.Node, error)
	GetEnrichedNode(ctx context.Context, storageKey string) (policy.Node, error)
	GetEdgesAdjacent(ctx context.Context, storageKey string) ([]Edge, error)
	NextDecisionsFromEvent(ctx context.Context, eventID string, limit int) ([]NextDecision, error)
	ResolveText(ctx context.Context, q string, limit int, useVector bool, queryVector []float64) ([]Match, bool, error)
	GetSnapshotETag(ctx context.Context) (string, error)
	SetSnapshotETag(ctx context.Context, etag string) error
	PruneStale(ctx context.Context, etag string) (nodesRemoved, edgesRemoved int, err error)
	UpsertNodes(ctx context.Context, nodes []policy.Node) error
	UpsertEdges(ctx context.Context, edges []Edge) error
}

// DefaultBatchSize is the default micro-batch size for bulk writes (§4.3).
const DefaultBatchSize = 1000

// backoffSchedule returns the exponential backoff delays for up to
// `attempts` retries of a micro-batch upsert.
func backoffSchedule(attempts int) []time.Duration {
	out := make([]time.Duration, attempts)
	d := 50 * time.Millisecond
	for i := range out {
		out[i] = d
		d *= 2
	}
	return out
}

// RejectedDoc records a per-document write fallback failure.
type RejectedDoc struct {
	DocID  string
	Reason string
}

// Batches splits items into micro-batches of size n (>=1).
func Batches[T any](items []T, n int) [][]T {
	if n <= 0 {
		n = DefaultBatchSize
	}
	var out [][]T
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// sortEdgesForNextDecisions orders candidate next-decision rows by
// (edge.ts desc, decision.ts desc, decision.id asc), per §4.3.
func sortEdgesForNextDecisions(rows []NextDecision) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp > rows[j].Timestamp })
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].EdgeTS > rows[j].EdgeTS })
}

// ErrStubMode describes stub-mode use outside dev. No method in this
// package returns it; outside dev, DialArango returns its own error instead
// of falling back to a StubAdapter.
var ErrStubMode = fmt.Errorf("storage: stub mode is dev-only")

func normalizeVectorMetric(m string) string {
	switch strings.ToLower(m) {
	case "cosine", "dot", "euclidean":
		return strings.ToLower(m)
	default:
		return "cosine"
	}
}
