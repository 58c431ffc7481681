package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/batvault/batvault/internal/evidence"
	"github.com/batvault/batvault/internal/policy"
)

func TestComposeFallback_LeadAndBecauseLeaveNoRoomForNext(t *testing.T) {
	ev := sampleEvidence()
	text := ComposeFallback(ev, []string{"eng#e-1"})
	assert.True(t, strings.HasPrefix(text, "Jane on 2021-05-01: Adopt gRPC."))
	assert.Contains(t, text, "Because Latency regressed.")
	assert.NotContains(t, text, "Next:")
	assert.NotContains(t, text, "eng#e-1")
	assert.NotContains(t, text, "eng#d-anchor")
}

func TestComposeFallback_NeverExceeds320Chars(t *testing.T) {
	longTitle := strings.Repeat("x", 500)
	ev := &evidence.WhyDecisionEvidence{
		Anchor: policy.Node{"id": "eng#d-anchor", "maker": "Jane", "timestamp": "2021-05-01T00:00:00Z", "title": longTitle},
	}
	text := ComposeFallback(ev, nil)
	assert.LessOrEqual(t, len(text), fallbackMaxChars)
}

func TestComposeFallback_AtMostTwoSentences(t *testing.T) {
	ev := sampleEvidence()
	text := ComposeFallback(ev, []string{"eng#e-1"})
	sentenceCount := strings.Count(text, ". ") + 1
	assert.LessOrEqual(t, sentenceCount, 2)
}

func TestComposeFallback_NilEvidenceReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", ComposeFallback(nil, nil))
}
