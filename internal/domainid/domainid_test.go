package domainid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnchorStorageKeyRoundTrip(t *testing.T) {
	anchors := []string{
		"eng#d-eng-010",
		"hr#d-hr-01",
		"eng/platform#event-2021-01-01t00",
	}
	for _, a := range anchors {
		key, err := AnchorToStorageKey(a)
		require.NoError(t, err)
		back, err := StorageKeyToAnchor(key)
		require.NoError(t, err)
		assert.Equal(t, a, back)
	}
}

func TestIsAnchor(t *testing.T) {
	assert.True(t, IsAnchor("eng#d-eng-010"))
	assert.False(t, IsAnchor("Eng#D-ENG-010"))
	assert.False(t, IsAnchor("no-hash-here"))
}

func TestSlugifyID(t *testing.T) {
	out, err := SlugifyID("  Panasonic Exit Plasma 2012!! ")
	require.NoError(t, err)
	assert.True(t, IsSlug(out))
	assert.Equal(t, "panasonic-exit-plasma-2012", out)
}

func TestSlugifyTag(t *testing.T) {
	out, err := SlugifyTag("M-and-A")
	require.NoError(t, err)
	assert.Equal(t, "m_and_a", out)
}

func TestStableShortID_Deterministic(t *testing.T) {
	a := StableShortID("batch-1")
	b := StableShortID("batch-1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
}

func TestEdgeID(t *testing.T) {
	assert.Equal(t, "led_to:eng#e-1:eng#d-1", EdgeID("led_to", "eng#e-1", "eng#d-1"))
}
