package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompute_DeterministicRegardlessOfInputOrder(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	a := []FileContent{
		{Path: "decisions/d1.json", Content: []byte(`{"id":"d1"}`)},
		{Path: "events/e1.json", Content: []byte(`{"id":"e1"}`)},
	}
	b := []FileContent{a[1], a[0]}

	assert.Equal(t, Compute(a, now), Compute(b, now))
}

func TestCompute_ChangesWithContent(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	a := []FileContent{{Path: "decisions/d1.json", Content: []byte(`{"id":"d1"}`)}}
	b := []FileContent{{Path: "decisions/d1.json", Content: []byte(`{"id":"d1-modified"}`)}}

	assert.NotEqual(t, Compute(a, now), Compute(b, now))
}

func TestCompute_SameWithinBucketWindow(t *testing.T) {
	files := []FileContent{{Path: "decisions/d1.json", Content: []byte(`{"id":"d1"}`)}}
	t1 := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Minute)

	assert.Equal(t, Compute(files, t1), Compute(files, t2))
}

func TestCompute_DiffersAcrossBucketWindow(t *testing.T) {
	files := []FileContent{{Path: "decisions/d1.json", Content: []byte(`{"id":"d1"}`)}}
	t1 := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)

	assert.NotEqual(t, Compute(files, t1), Compute(files, t2))
}

func TestIsKnown(t *testing.T) {
	assert.False(t, IsKnown(""))
	assert.False(t, IsKnown(Unknown))
	assert.True(t, IsKnown("a1b2c3"))
}
