package ingestpipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/batvault/batvault/internal/catalog"
	"github.com/batvault/batvault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name string, doc map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), b, 0o644))
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "decision.json", map[string]interface{}{
		"id":             "d-anchor",
		"domain":         "eng",
		"option":         "Adopt gRPC",
		"rationale":      "Lower latency for internal services.",
		"timestamp":      "2024-01-01T00:00:00Z",
		"decision_maker": "Jane Doe",
	})
	writeFixture(t, dir, "event.json", map[string]interface{}{
		"id":          "e-1",
		"domain":      "eng",
		"timestamp":   "2023-12-15T00:00:00Z",
		"description": "Latency spikes observed in the REST gateway under load.",
		"led_to":      []interface{}{"d-anchor"},
	})
	writeFixture(t, dir, "transition.json", map[string]interface{}{
		"id":        "d-anchor-to-d-next",
		"domain":    "eng",
		"from":      "d-anchor",
		"to":        "d-next",
		"relation":  "superseded_by",
		"timestamp": "2024-06-01T00:00:00Z",
		"reason":    "Superseded by the service mesh rollout.",
	})
	writeFixture(t, dir, "decision2.json", map[string]interface{}{
		"id":        "d-next",
		"domain":    "eng",
		"option":    "Adopt service mesh",
		"timestamp": "2024-06-01T00:00:00Z",
	})

	store := storage.NewStubAdapter()
	catalogStore := catalog.NewStore()
	versionStore := catalog.NewVersionStore()
	p := NewPipeline(store, catalogStore, versionStore)

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 4, report.Files)
	assert.Equal(t, 2, report.Decisions)
	assert.Equal(t, 1, report.Events)
	assert.Equal(t, 1, report.Transitions)
	assert.NotEmpty(t, report.SnapshotETag)
	assert.Equal(t, 4, report.NodesUpserted)
	assert.Equal(t, 2, report.EdgesUpserted)

	etag, err := store.GetSnapshotETag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.SnapshotETag, etag)

	anchor, err := store.GetEnrichedNode(context.Background(), "eng_d-anchor")
	require.NoError(t, err)
	assert.Equal(t, "Adopt gRPC", anchor["title"])

	fields, relations := catalogStore.Current()
	assert.Contains(t, fields, "option")
	assert.Contains(t, relations, "CAUSAL")
}

func TestPipeline_Run_ReferentialIntegrityFails(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "event.json", map[string]interface{}{
		"id":          "e-1",
		"domain":      "eng",
		"timestamp":   "2023-12-15T00:00:00Z",
		"description": "Orphaned event pointing nowhere.",
		"led_to":      []interface{}{"missing-decision"},
	})

	store := storage.NewStubAdapter()
	p := NewPipeline(store, catalog.NewStore(), catalog.NewVersionStore())

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "missing decision")
}

func TestPipeline_Run_SchemaViolationFails(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "decision.json", map[string]interface{}{
		"id":        "d-anchor",
		"domain":    "eng",
		"timestamp": "2024-01-01T00:00:00Z",
	})

	store := storage.NewStubAdapter()
	p := NewPipeline(store, catalog.NewStore(), catalog.NewVersionStore())

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.NotEmpty(t, report.Errors)
}

func TestPipeline_Run_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewStubAdapter()
	p := NewPipeline(store, catalog.NewStore(), catalog.NewVersionStore())

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, report.OK)
}

func TestPipeline_Run_AliasCanonicalisation(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "decision.json", map[string]interface{}{
		"id":        "d-anchor",
		"domain":    "eng",
		"title":     "Adopt gRPC",
		"ts":        "2024-01-01T00:00:00Z",
		"reasoning": "Lower latency.",
	})

	store := storage.NewStubAdapter()
	p := NewPipeline(store, catalog.NewStore(), catalog.NewVersionStore())

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 3, report.AliasHits) // title->option, ts->timestamp, reasoning->rationale

	node, err := store.GetEnrichedNode(context.Background(), "eng_d-anchor")
	require.NoError(t, err)
	assert.Equal(t, "Adopt gRPC", node["title"])
}
