package policy

import (
	"strings"

	"github.com/batvault/batvault/internal/domainid"
)

// MaskSummaryItem records one removed field and why.
type MaskSummaryItem struct {
	Field      string `json:"field"`
	ReasonCode string `json:"reason_code"`
	RuleID     string `json:"rule_id"`
}

// MaskSummary is attached to field_mask_with_summary's output.
type MaskSummary struct {
	TotalRemoved int               `json:"total_removed"`
	Items        []MaskSummaryItem `json:"items"`
}

// alwaysVisible fields are never stripped regardless of visible_fields.
var alwaysVisible = map[string]bool{"id": true, "type": true, "domain": true}

func fieldPatternMatches(pattern, field string) bool {
	if pattern == "*" || pattern == field {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(field, strings.TrimSuffix(pattern, ".*")+".")
	}
	return false
}

func fieldVisible(field string, patterns []string) (bool, string) {
	for _, pat := range patterns {
		if fieldPatternMatches(pat, field) {
			return true, pat
		}
	}
	return false, ""
}

// FieldMask returns a masked copy of node under policy's field visibility
// rules for the node's type (§4.2). The storage-key id is normalised to its
// wire anchor form.
func FieldMask(node Node, p *Policy) Node {
	masked, _ := fieldMaskInternal(node, p)
	return masked
}

// FieldMaskWithSummary is FieldMask plus the removed-field audit trail.
func FieldMaskWithSummary(node Node, p *Policy) (Node, MaskSummary) {
	return fieldMaskInternal(node, p)
}

func fieldMaskInternal(node Node, p *Policy) (Node, MaskSummary) {
	out := Node{}
	summary := MaskSummary{}

	if id := node.str("id"); id != "" {
		if anchor, err := domainid.StorageKeyToAnchor(id); err == nil {
			out["id"] = anchor
		} else {
			out["id"] = id
		}
	}
	out["type"] = node.str("type")
	if d := node.str("domain"); d != "" {
		out["domain"] = d
	}

	fv := p.FieldVisibility[node.str("type")]

	for key, val := range node {
		if key == "id" || key == "type" || key == "x-extra" {
			continue
		}
		if alwaysVisible[key] {
			if _, exists := out[key]; !exists {
				out[key] = val
			}
			continue
		}
		if key == "rationale" && !fv.RationaleVisible {
			summary.Items = append(summary.Items, MaskSummaryItem{Field: key, ReasonCode: "rationale_hidden", RuleID: "rationale_visible=false"})
			continue
		}
		if ok, rule := fieldVisible(key, fv.VisibleFields); ok {
			out[key] = val
			_ = rule
		} else {
			summary.Items = append(summary.Items, MaskSummaryItem{Field: key, ReasonCode: "not_in_visible_fields", RuleID: strings.Join(fv.VisibleFields, "|")})
		}
	}

	if extra, ok := node["x-extra"].(map[string]interface{}); ok {
		maskedExtra := maskExtra(extra, p.ExtraVisible, "")
		if len(maskedExtra) > 0 {
			out["x-extra"] = maskedExtra
		}
	}

	summary.TotalRemoved = len(summary.Items)
	return out, summary
}

func maskExtra(extra map[string]interface{}, patterns []string, prefix string) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range extra {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if ok, _ := fieldVisible(path, patterns); ok {
			out[k] = v
			continue
		}
		if nested, isMap := v.(map[string]interface{}); isMap {
			sub := maskExtra(nested, patterns, path)
			if len(sub) > 0 {
				out[k] = sub
			}
		}
	}
	return out
}

// NeighborView is the masked, ACL-filtered view of a neighbour edge+node
// pair returned by FilterAndMaskNeighbors.
type NeighborView struct {
	Events   []Node
	Edges    []map[string]interface{}
	Withheld []string
}

// FilterAndMaskNeighbors applies the edge allowlist and per-neighbour ACL,
// then masks survivors, mirroring original_source's
// filter_and_mask_neighbors (§4.2, feeding §4.5's expand_candidates).
func FilterAndMaskNeighbors(edges []map[string]interface{}, nodesByID map[string]Node, p *Policy, sensitivityOrder []string) NeighborView {
	view := NeighborView{}
	allowSet := map[string]bool{}
	for _, t := range p.EdgeAllowlist {
		allowSet[t] = true
	}
	for _, e := range edges {
		edgeType, _ := e["type"].(string)
		if len(allowSet) > 0 && !allowSet[edgeType] {
			view.Withheld = append(view.Withheld, edgeType+":edge_type_not_allowed")
			continue
		}
		to, _ := e["to"].(string)
		node, ok := nodesByID[to]
		if !ok {
			continue
		}
		res := ACLCheck(node, p, sensitivityOrder)
		if !res.Allowed {
			view.Withheld = append(view.Withheld, to+":"+res.Reason)
			continue
		}
		view.Events = append(view.Events, FieldMask(node, p))
		view.Edges = append(view.Edges, e)
	}
	return view
}
