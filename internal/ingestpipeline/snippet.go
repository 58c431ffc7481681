package ingestpipeline

import "strings"

const snippetMaxLen = 160

// enrichSnippet implements §4.14's "enrich snippets (≤160 chars from
// title+summary+rationale)", ported from original_source's
// snippet_enricher.enrich_decision/enrich_event. It is a no-op if doc
// already carries a non-empty snippet (e.g. NormalizeEvent's
// description-derived fallback).
func enrichSnippet(doc Doc, kind Kind) {
	if strOf(doc, "snippet") != "" {
		return
	}
	var parts []string
	switch kind {
	case KindDecision:
		parts = []string{strOf(doc, "option"), strOf(doc, "summary"), strOf(doc, "rationale")}
	case KindEvent:
		parts = []string{strOf(doc, "option"), strOf(doc, "summary"), strOf(doc, "description")}
	default:
		return
	}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	text := normText(strings.Join(nonEmpty, " "), snippetMaxLen)
	if text != "" {
		doc["snippet"] = text
	}
}
