// Package budget implements the deterministic, LLM-free budget gate of spec
// §4.10: it clamps edges/events, fixes citation candidates, and computes
// budget_cfg_fp before any LLM call. Ported from original_source's
// gateway.budget.gate.
package budget

import (
	"sort"

	"github.com/batvault/batvault/internal/canon"
	"github.com/batvault/batvault/internal/config"
	"github.com/batvault/batvault/internal/evidence"
)

// Plan is the gate's output alongside the trimmed evidence (§4.10 step 5):
// zero token counts, empty messages (LLM-free), and the fingerprints the
// meta assembler surfaces.
type Plan struct {
	BudgetCfgFP     string   `json:"budget_cfg_fp"`
	PromptFP        string   `json:"prompt_fp"`
	EventsRankedTop []string `json:"_events_ranked_top"`
	CitedIDsGate    []string `json:"_cited_ids_gate"`
	Truncated       bool     `json:"truncated"`
}

// cfgBasis is the canonical basis fingerprinted into budget_cfg_fp.
type cfgBasis struct {
	MaxEdges      int      `json:"max_edges"`
	MaxEvents     int      `json:"max_events"`
	MaxCitedIDs   int      `json:"max_cited_ids"`
	EdgeAllowlist []string `json:"edge_allowlist"`
}

// BudgetCfgFP fingerprints the gate's policy-derived config basis.
func BudgetCfgFP(cfg config.BudgetConfig, edgeAllowlist []string) string {
	allow := append([]string(nil), edgeAllowlist...)
	sort.Strings(allow)
	basis := cfgBasis{
		MaxEdges:      cfg.MaxEdges,
		MaxEvents:     cfg.MaxEvents,
		MaxCitedIDs:   cfg.MaxCitedIDs,
		EdgeAllowlist: allow,
	}
	return canon.MustFingerprint(basis)
}

// fieldStr reads a string field (id, timestamp) off a policy.Node without
// importing policy's masking concerns.
func fieldStr(n map[string]interface{}, key string) string {
	s, _ := n[key].(string)
	return s
}

// Run implements the budget gate's five steps over ev. edgeAllowlist is the
// effective policy's edge allowlist (already enforced upstream by Memory;
// carried here only to compute budget_cfg_fp, per §4.10 step 4). The gate
// never re-ranks outside §4.9's selector and never mutates ev.AllowedIDs.
func Run(ev *evidence.WhyDecisionEvidence, cfg config.BudgetConfig, edgeAllowlist []string) (*evidence.WhyDecisionEvidence, Plan) {
	trimmed := *ev
	truncated := false

	// Step 1: the neighbour set ev carries (events ∪ preceding ∪
	// succeeding) stands in for "edges" post-classification; cap total
	// count to max_edges, events first (causal, highest-value), then
	// transitions, preserving each list's own deterministic order.
	totalEdges := len(ev.Events) + len(ev.Transitions.Preceding) + len(ev.Transitions.Succeeding)
	if cfg.MaxEdges > 0 && totalEdges > cfg.MaxEdges {
		truncated = true
		budget := cfg.MaxEdges
		events := ev.Events
		if len(events) > budget {
			events = events[:budget]
		}
		budget -= len(events)
		preceding := ev.Transitions.Preceding
		if budget <= 0 {
			preceding = nil
		} else if len(preceding) > budget {
			preceding = preceding[:budget]
		}
		budget -= len(preceding)
		succeeding := ev.Transitions.Succeeding
		if budget <= 0 {
			succeeding = nil
		} else if len(succeeding) > budget {
			succeeding = succeeding[:budget]
		}
		trimmed.Events = events
		trimmed.Transitions = evidence.Transitions{Preceding: preceding, Succeeding: succeeding}
	}

	// Step 2: top events by (timestamp desc, id asc), capped to max_events.
	var topEvents []map[string]interface{}
	for _, e := range trimmed.Events {
		topEvents = append(topEvents, e)
	}
	sort.SliceStable(topEvents, func(i, j int) bool {
		ti, tj := fieldStr(topEvents[i], "timestamp"), fieldStr(topEvents[j], "timestamp")
		if ti != tj {
			return ti > tj
		}
		return fieldStr(topEvents[i], "id") < fieldStr(topEvents[j], "id")
	})
	if cfg.MaxEvents > 0 && len(topEvents) > cfg.MaxEvents {
		topEvents = topEvents[:cfg.MaxEvents]
		truncated = true
	}

	eventsRankedTop := make([]string, 0, len(topEvents))
	for _, e := range topEvents {
		if id := fieldStr(e, "id"); id != "" {
			eventsRankedTop = append(eventsRankedTop, id)
		}
	}

	// Step 3: cited_ids = [anchor.id] ++ top_event_ids, capped, empties
	// dropped.
	cited := make([]string, 0, 1+len(eventsRankedTop))
	if anchorID := fieldStr(trimmed.Anchor, "id"); anchorID != "" {
		cited = append(cited, anchorID)
	}
	for _, id := range eventsRankedTop {
		if id == "" {
			continue
		}
		cited = append(cited, id)
	}
	if cfg.MaxCitedIDs > 0 && len(cited) > cfg.MaxCitedIDs {
		cited = cited[:cfg.MaxCitedIDs]
		truncated = true
	}

	plan := Plan{
		BudgetCfgFP:     BudgetCfgFP(cfg, edgeAllowlist),
		PromptFP:        "none",
		EventsRankedTop: eventsRankedTop,
		CitedIDsGate:    cited,
		Truncated:       truncated,
	}
	return &trimmed, plan
}
