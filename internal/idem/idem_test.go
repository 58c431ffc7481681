package idem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKey_NamespacesByService(t *testing.T) {
	assert.Equal(t, "bv:idem:gateway:req-1", RedisKey("req-1", "gateway"))
	assert.Equal(t, "bv:idem:memory:req-1", RedisKey("req-1", "memory"))
}

func TestScopeFP_DeterministicForSameBasis(t *testing.T) {
	basis := ScopeBasis{
		Method: "POST", PathTemplate: "/v2/ask",
		Body:         map[string]interface{}{"anchor_id": "d-anchor"},
		SnapshotETag: "etag-1", PolicyFP: "policy-fp-1",
	}
	a, err := ScopeFP(basis)
	require.NoError(t, err)
	b, err := ScopeFP(basis)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestScopeFP_DiffersOnBody(t *testing.T) {
	base := ScopeBasis{
		Method: "POST", PathTemplate: "/v2/ask",
		SnapshotETag: "etag-1", PolicyFP: "policy-fp-1",
	}
	base.Body = map[string]interface{}{"anchor_id": "d-anchor"}
	a, err := ScopeFP(base)
	require.NoError(t, err)

	base.Body = map[string]interface{}{"anchor_id": "d-other"}
	b, err := ScopeFP(base)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOutcome_ValuesAreDistinct(t *testing.T) {
	assert.NotEqual(t, OutcomeFresh, OutcomeMerged)
	assert.NotEqual(t, OutcomeMerged, OutcomeRejected)
	assert.NotEqual(t, OutcomeFresh, OutcomeRejected)
}
