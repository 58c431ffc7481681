package gateway

import (
	"strings"
	"testing"

	"github.com/batvault/batvault/internal/evidence"
	"github.com/batvault/batvault/internal/policy"
	"github.com/stretchr/testify/assert"
)

func TestRenderMessages_EmbedsEvidenceAndAllowedIDs(t *testing.T) {
	ev := &evidence.WhyDecisionEvidence{
		Anchor:     policy.Node{"id": "d-anchor", "title": "Adopt gRPC"},
		AllowedIDs: []string{"d-anchor", "e-1"},
	}
	messages := RenderMessages(ev)
	assert.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[0].Content, "short_answer")
	assert.Equal(t, "user", messages[1].Role)
	assert.True(t, strings.Contains(messages[1].Content, "d-anchor"))
}
