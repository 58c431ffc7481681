// Package allowedids implements the single canonical allowed_ids derivation
// of spec §4.8, shared verbatim between the Memory batch endpoint and the
// Gateway evidence builder so the two can never diverge (§4.8: "any
// divergence is a bug").
package allowedids

import "sort"

// Derive returns the canonical sorted, deduplicated union of anchorID, the
// event ids and the preceding/succeeding transition ids (§4.8).
func Derive(anchorID string, eventIDs, precedingIDs, succeedingIDs []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(anchorID)
	for _, id := range eventIDs {
		add(id)
	}
	for _, id := range precedingIDs {
		add(id)
	}
	for _, id := range succeedingIDs {
		add(id)
	}
	sort.Strings(out)
	return out
}
