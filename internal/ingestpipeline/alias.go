package ingestpipeline

// aliasGroups maps each canonical field to the spellings accepted for it,
// in lookup priority order. Ported from original_source's ingest.cli
// ALIASES (§4.14: "canonicalise aliases (title↔option, ts↔timestamp,
// etc.) preserving originals under x-extra").
var aliasGroups = map[string][]string{
	"id":           {"id", "_id", "key"},
	"timestamp":    {"timestamp", "ts", "updated_at"},
	"option":       {"option", "title", "decision", "choice"},
	"rationale":    {"rationale", "why", "reasoning"},
	"summary":      {"summary", "headline"},
	"description":  {"description", "content", "text", "body"},
	"supported_by": {"supported_by", "evidence", "events"},
	"based_on":     {"based_on", "basedOn", "sources"},
	"transitions":  {"transitions", "links"},
	"led_to":       {"led_to", "leads_to", "ledTo"},
	"from":         {"from", "src", "source"},
	"to":           {"to", "dst", "target"},
	"relation":     {"relation", "rel"},
	"tags":         {"tags", "labels"},
}

// pickAlias returns doc's value for the first spelling of key present, and
// which spelling matched.
func pickAlias(doc Doc, key string) (interface{}, string, bool) {
	spellings, ok := aliasGroups[key]
	if !ok {
		spellings = []string{key}
	}
	for _, s := range spellings {
		if v, present := doc[s]; present {
			return v, s, true
		}
	}
	return nil, "", false
}

// canonicalize populates canonical keys from the first alias present,
// preserving the document's original fields (and thus its original
// spellings) rather than deleting them; original source additionally
// parks every non-canonical leftover under x-extra once kind-specific
// whitelisting runs (see applyFieldWhitelist). Returns the number of
// alias substitutions actually made, for batch-level telemetry.
func canonicalize(doc Doc) (Doc, int) {
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	hits := 0
	for canonicalKey := range aliasGroups {
		if _, present := out[canonicalKey]; present {
			continue
		}
		if v, used, ok := pickAlias(doc, canonicalKey); ok {
			out[canonicalKey] = v
			hits++
			_ = used
		}
	}
	return out, hits
}

// inferKind implements §4.14's alias-aware kind inference. An explicit
// "kind" field wins; otherwise a document is a transition if from, to and
// relation are all present, a decision if option is present, and an event
// if summary or description is present. A document matching none of these
// gets no kind (ok=false) and Run rejects it; it is not treated as an event.
func inferKind(doc Doc) (Kind, bool) {
	if explicit, ok := doc["kind"].(string); ok {
		switch Kind(explicit) {
		case KindDecision, KindEvent, KindTransition:
			return Kind(explicit), true
		}
	}
	_, hasFrom := doc["from"]
	_, hasTo := doc["to"]
	_, hasRelation := doc["relation"]
	if hasFrom && hasTo && hasRelation {
		return KindTransition, true
	}
	if _, ok := doc["option"]; ok {
		return KindDecision, true
	}
	_, hasSummary := doc["summary"]
	_, hasDescription := doc["description"]
	if hasSummary || hasDescription {
		return KindEvent, true
	}
	return "", false
}

// coreFieldsByKind is the per-kind whitelist; unknown keys move to x-extra
// (§4.14).
var coreFieldsByKind = map[Kind]map[string]bool{
	KindDecision: setOf("id", "type", "option", "rationale", "timestamp", "decision_maker",
		"domain", "sensitivity", "tags", "supported_by", "based_on", "transitions", "snippet", "x-extra"),
	KindEvent: setOf("id", "type", "summary", "description", "timestamp", "domain",
		"sensitivity", "tags", "led_to", "snippet", "x-extra"),
	KindTransition: setOf("id", "type", "from", "to", "relation", "reason", "timestamp",
		"domain", "sensitivity", "tags", "x-extra"),
}

func setOf(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// applyFieldWhitelist moves every key not in kind's whitelist into
// doc["x-extra"], preserving its original value.
func applyFieldWhitelist(doc Doc, kind Kind) Doc {
	allowed := coreFieldsByKind[kind]
	out := make(Doc, len(doc))
	extra, _ := doc["x-extra"].(map[string]interface{})
	if extra == nil {
		extra = make(map[string]interface{})
	} else {
		clone := make(map[string]interface{}, len(extra))
		for k, v := range extra {
			clone[k] = v
		}
		extra = clone
	}
	for k, v := range doc {
		if k == "x-extra" {
			continue
		}
		if allowed[k] {
			out[k] = v
		} else {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		out["x-extra"] = extra
	}
	return out
}
