package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batvault/batvault/internal/policy"
	"github.com/batvault/batvault/internal/storage"
)

var sensOrder = []string{"low", "medium", "high"}

func allowAllPolicy() *policy.Policy {
	return &policy.Policy{
		Role:          "engineer",
		Namespaces:    nil,
		DomainScopes:  nil,
		EdgeAllowlist: nil,
		Sensitivity:   "high",
		MaxHops:       1,
		DeniedStatus:  403,
		PolicyFP:      "sha256:test",
	}
}

func seedGraph(t *testing.T) *storage.StubAdapter {
	t.Helper()
	adapter := storage.NewStubAdapter()
	require.NoError(t, adapter.UpsertNodes(context.Background(), []policy.Node{
		{"_key": "eng_d-anchor", "id": "eng#d-anchor", "type": "DECISION", "domain": "eng", "title": "Anchor Decision", "timestamp": "2020-01-01T00:00:00Z"},
		{"_key": "eng_e-1", "id": "eng#e-1", "type": "EVENT", "domain": "eng", "title": "Event One", "timestamp": "2019-12-01T00:00:00Z"},
		{"_key": "eng_d-prev", "id": "eng#d-prev", "type": "DECISION", "domain": "eng", "title": "Previous Decision", "timestamp": "2019-01-01T00:00:00Z"},
	}))
	require.NoError(t, adapter.UpsertEdges(context.Background(), []storage.Edge{
		{Type: "LED_TO", From: "eng_e-1", To: "eng_d-anchor"},
		{Type: "CAUSAL", From: "eng_d-prev", To: "eng_d-anchor"},
	}))
	require.NoError(t, adapter.SetSnapshotETag(context.Background(), "snap-1"))
	return adapter
}

func TestCheckSnapshotPrecondition_NoSnapshot(t *testing.T) {
	svc := NewService(storage.NewStubAdapter(), nil, sensOrder, 0)
	_, err := svc.CheckSnapshotPrecondition(context.Background(), "anything")
	require.Error(t, err)
}

func TestCheckSnapshotPrecondition_Mismatch(t *testing.T) {
	svc := NewService(seedGraph(t), nil, sensOrder, 0)
	_, err := svc.CheckSnapshotPrecondition(context.Background(), "wrong-etag")
	require.Error(t, err)
}

func TestCheckSnapshotPrecondition_Match(t *testing.T) {
	svc := NewService(seedGraph(t), nil, sensOrder, 0)
	current, err := svc.CheckSnapshotPrecondition(context.Background(), "snap-1")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", current)
}

func TestEnrich_ReturnsMaskedNode(t *testing.T) {
	svc := NewService(seedGraph(t), nil, sensOrder, 0)
	node, _, err := svc.Enrich(context.Background(), "eng#d-anchor", allowAllPolicy())
	require.NoError(t, err)
	assert.Equal(t, "eng#d-anchor", node["id"])
	assert.Equal(t, "Anchor Decision", node["title"])
}

func TestEnrich_NotFound(t *testing.T) {
	svc := NewService(seedGraph(t), nil, sensOrder, 0)
	_, _, err := svc.Enrich(context.Background(), "eng#d-missing", allowAllPolicy())
	require.Error(t, err)
}

func TestExpandCandidates_ClassifiesEventsAndTransitions(t *testing.T) {
	svc := NewService(seedGraph(t), nil, sensOrder, 0)
	resp, err := svc.ExpandCandidates(context.Background(), "eng#d-anchor", allowAllPolicy(), "snap-1")
	require.NoError(t, err)

	assert.Len(t, resp.Graph.Edges, 2)
	assert.ElementsMatch(t, []string{"eng#d-anchor", "eng#d-prev", "eng#e-1"}, resp.Meta.AllowedIDs)
	assert.Equal(t, "snap-1", resp.Meta.SnapshotETag)
}

func TestEnrichBatch_DeniesOutOfScopeID(t *testing.T) {
	svc := NewService(seedGraph(t), nil, sensOrder, 0)
	_, err := svc.EnrichBatch(context.Background(), EnrichBatchRequest{
		AnchorID:     "eng#d-anchor",
		SnapshotETag: "snap-1",
		IDs:          []string{"eng#d-not-in-scope"},
	}, allowAllPolicy())
	require.Error(t, err)
}

func TestEnrichBatch_AllowsScopedIDs(t *testing.T) {
	svc := NewService(seedGraph(t), nil, sensOrder, 0)
	resp, err := svc.EnrichBatch(context.Background(), EnrichBatchRequest{
		AnchorID:     "eng#d-anchor",
		SnapshotETag: "snap-1",
		IDs:          []string{"eng#e-1"},
	}, allowAllPolicy())
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Meta.ReturnedCount)
	assert.Contains(t, resp.Items, "eng#e-1")
}

func TestResolveText_AnchorShortCircuit(t *testing.T) {
	svc := NewService(seedGraph(t), nil, sensOrder, 0)
	resp, err := svc.ResolveText(context.Background(), ResolveRequest{Q: "eng#d-anchor"}, allowAllPolicy(), "snap-1")
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "eng#d-anchor", resp.ResolvedID)
	assert.Equal(t, 1.0, resp.Matches[0].Score)
}
