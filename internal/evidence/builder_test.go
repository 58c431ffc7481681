package evidence

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batvault/batvault/internal/memory"
	"github.com/batvault/batvault/internal/policy"
)

type stubMemoryClient struct {
	nodes  map[string]policy.Node
	expand *memory.ExpandResponse
}

func (s *stubMemoryClient) Enrich(ctx context.Context, anchorID, snapshotETag string, headers http.Header) (policy.Node, error) {
	n, ok := s.nodes[anchorID]
	if !ok {
		return nil, nil
	}
	return n, nil
}

func (s *stubMemoryClient) ExpandCandidates(ctx context.Context, anchorID, snapshotETag string, headers http.Header) (*memory.ExpandResponse, error) {
	return s.expand, nil
}

func TestCollect_ClassifiesAndDerivesAllowedIDs(t *testing.T) {
	client := &stubMemoryClient{
		nodes: map[string]policy.Node{
			"eng#d-anchor": {"id": "eng#d-anchor", "title": "Anchor Decision", "timestamp": "2020-01-01T00:00:00Z"},
			"eng#e-1":      {"id": "eng#e-1", "title": "Event One", "timestamp": "2019-12-01T00:00:00Z"},
			"eng#d-prev":   {"id": "eng#d-prev", "title": "Previous Decision", "timestamp": "2019-01-01T00:00:00Z"},
			"eng#d-next":   {"id": "eng#d-next", "title": "Next Decision", "timestamp": "2021-01-01T00:00:00Z"},
		},
		expand: &memory.ExpandResponse{
			Anchor: policy.Node{"id": "eng#d-anchor"},
			Graph: memory.ExpandGraph{Edges: []memory.WireEdge{
				{Type: "LED_TO", From: "eng#e-1", To: "eng#d-anchor"},
				{Type: "CAUSAL", From: "eng#d-prev", To: "eng#d-anchor"},
				{Type: "CAUSAL", From: "eng#d-anchor", To: "eng#d-next"},
			}},
		},
	}

	b := NewBuilder(client, nil)
	ev, err := b.Collect(context.Background(), "eng#d-anchor", http.Header{}, "snap-1")
	require.NoError(t, err)

	assert.Equal(t, "eng#d-anchor", ev.Anchor["id"])
	require.Len(t, ev.Events, 1)
	assert.Equal(t, "eng#e-1", ev.Events[0]["id"])
	require.Len(t, ev.Transitions.Preceding, 1)
	assert.Equal(t, "eng#d-prev", ev.Transitions.Preceding[0]["id"])
	require.Len(t, ev.Transitions.Succeeding, 1)
	assert.Equal(t, "eng#d-next", ev.Transitions.Succeeding[0]["id"])

	assert.Equal(t, []string{"eng#d-anchor", "eng#d-next", "eng#d-prev", "eng#e-1"}, ev.AllowedIDs)
}

func TestWhyDecisionEvidence_BundleFPStableAcrossSnapshotETag(t *testing.T) {
	a := WhyDecisionEvidence{Anchor: policy.Node{"id": "x"}, AllowedIDs: []string{"x"}, SnapshotETag: "snap-1"}
	b := a
	b.SnapshotETag = "snap-2"
	assert.Equal(t, a.BundleFP(), b.BundleFP())
}
