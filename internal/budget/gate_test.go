package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batvault/batvault/internal/config"
	"github.com/batvault/batvault/internal/evidence"
	"github.com/batvault/batvault/internal/policy"
)

func sampleEvidence() *evidence.WhyDecisionEvidence {
	return &evidence.WhyDecisionEvidence{
		Anchor: policy.Node{"id": "eng#d-anchor"},
		Events: []policy.Node{
			{"id": "eng#e-1", "timestamp": "2020-01-01T00:00:00Z"},
			{"id": "eng#e-2", "timestamp": "2020-02-01T00:00:00Z"},
			{"id": "eng#e-3", "timestamp": "2020-02-01T00:00:00Z"},
		},
		Transitions: evidence.Transitions{
			Preceding:  []policy.Node{{"id": "eng#d-prev"}},
			Succeeding: []policy.Node{{"id": "eng#d-next"}},
		},
		AllowedIDs: []string{"eng#d-anchor", "eng#d-next", "eng#d-prev", "eng#e-1", "eng#e-2", "eng#e-3"},
	}
}

func TestRun_RanksEventsByTimestampDescThenIDAsc(t *testing.T) {
	cfg := config.BudgetConfig{MaxEdges: 10, MaxEvents: 10, MaxCitedIDs: 10}
	_, plan := Run(sampleEvidence(), cfg, nil)
	require.Len(t, plan.EventsRankedTop, 3)
	assert.Equal(t, []string{"eng#e-2", "eng#e-3", "eng#e-1"}, plan.EventsRankedTop)
}

func TestRun_CitedIDsLeadsWithAnchor(t *testing.T) {
	cfg := config.BudgetConfig{MaxEdges: 10, MaxEvents: 10, MaxCitedIDs: 10}
	_, plan := Run(sampleEvidence(), cfg, nil)
	require.NotEmpty(t, plan.CitedIDsGate)
	assert.Equal(t, "eng#d-anchor", plan.CitedIDsGate[0])
}

func TestRun_CapsCitedIDs(t *testing.T) {
	cfg := config.BudgetConfig{MaxEdges: 10, MaxEvents: 10, MaxCitedIDs: 2}
	_, plan := Run(sampleEvidence(), cfg, nil)
	assert.Len(t, plan.CitedIDsGate, 2)
	assert.True(t, plan.Truncated)
}

func TestRun_NeverMutatesAllowedIDs(t *testing.T) {
	cfg := config.BudgetConfig{MaxEdges: 1, MaxEvents: 1, MaxCitedIDs: 1}
	ev := sampleEvidence()
	trimmed, _ := Run(ev, cfg, nil)
	assert.Equal(t, ev.AllowedIDs, trimmed.AllowedIDs)
}

func TestBudgetCfgFP_StableForEquivalentAllowlistOrder(t *testing.T) {
	cfg := config.BudgetConfig{MaxEdges: 5, MaxEvents: 5, MaxCitedIDs: 5}
	a := BudgetCfgFP(cfg, []string{"LED_TO", "CAUSAL"})
	b := BudgetCfgFP(cfg, []string{"CAUSAL", "LED_TO"})
	assert.Equal(t, a, b)
}
