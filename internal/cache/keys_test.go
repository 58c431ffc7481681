package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFP_DeterministicAndShort(t *testing.T) {
	a := FP([]interface{}{"etag-1", "policy-fp-1", "what was decided"})
	b := FP([]interface{}{"etag-1", "policy-fp-1", "what was decided"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestFP_DiffersOnInput(t *testing.T) {
	a := FP([]interface{}{"etag-1", "policy-fp-1", "q1"})
	b := FP([]interface{}{"etag-1", "policy-fp-1", "q2"})
	assert.NotEqual(t, a, b)
}

func TestResolveKey_ExpandKey_AreNamespacedAndDistinct(t *testing.T) {
	rk := ResolveKey("etag-1", "policy-fp", "why adopt grpc")
	ek := ExpandKey("etag-1", "policy-fp", "d-anchor")
	assert.Contains(t, rk, "bv:mem:v1:resolve:")
	assert.Contains(t, ek, "bv:mem:v1:expand:")
	assert.NotEqual(t, rk, ek)
}

func TestSchemaKey(t *testing.T) {
	assert.Equal(t, "bv:mem:v1:schema:graph_view", SchemaKey("graph_view"))
}

func TestAliasKey(t *testing.T) {
	assert.Equal(t, "evidence:d-anchor:latest", AliasKey("d-anchor"))
}

func TestCompositeKey_StableForSameBasis(t *testing.T) {
	basis := CompositeBasis{
		DecisionID: "d-anchor", Intent: "why_decision",
		GraphScope: "eng", SnapshotETag: "etag-1", TruncationFlag: false,
	}
	assert.Equal(t, CompositeKey(basis), CompositeKey(basis))

	other := basis
	other.TruncationFlag = true
	assert.NotEqual(t, CompositeKey(basis), CompositeKey(other))
}
