package ingestpipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/batvault/batvault/internal/domainid"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// timestampLayouts are tried in order; original_source leans on
// dateutil.parser's lenient parsing, which Go's time package has no single
// equivalent for, so a fixed list of the formats fixtures actually use
// covers the same ground deterministically.
var timestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// normTimestamp parses ts in any of timestampLayouts and renders it as
// YYYY-MM-DDTHH:MM:SSZ (§4.14). A bare date or timezone-less timestamp is
// treated as UTC.
func normTimestamp(ts string) (string, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05Z"), nil
		}
	}
	return "", fmt.Errorf("ingestpipeline: unrecognised timestamp %q", ts)
}

// normText collapses internal whitespace, trims, and optionally clamps to
// maxLen runes (0 means unbounded).
func normText(s string, maxLen int) string {
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	if r := []rune(s); maxLen > 0 && len(r) > maxLen {
		s = strings.TrimRight(string(r[:maxLen]), " ")
	}
	return s
}

func strOf(doc Doc, key string) string {
	s, _ := doc[key].(string)
	return s
}

// normTags lower-cases and slugifies every tag, dropping any that don't
// survive slugification, sorted for determinism.
func normTags(raw interface{}) []string {
	items, _ := raw.([]interface{})
	set := make(map[string]bool, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		slug, err := domainid.SlugifyTag(s)
		if err != nil {
			continue
		}
		set[slug] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// normStringList coerces raw into a []string, dropping non-string items.
func normStringList(raw interface{}) []string {
	items, _ := raw.([]interface{})
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// normalizeID returns id unchanged if it already satisfies the ingest id
// grammar, else slugifies it.
func normalizeID(id string) (string, error) {
	if domainid.IsSlug(id) {
		return id, nil
	}
	return domainid.SlugifyID(id)
}

// defaultDomain is used when a fixture omits its domain field.
const defaultDomain = "general"

// normalizeDomain defaults raw to defaultDomain when empty, then applies
// domainid's domain normalisation (§3).
func normalizeDomain(raw string) (string, error) {
	if raw == "" {
		raw = defaultDomain
	}
	return domainid.NormalizeDomain(raw)
}

// NormalizeDecision applies §4.14's decision normalisation, ported from
// original_source's normalize_decision.
func NormalizeDecision(d Doc) (Doc, error) {
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	id, err := normalizeID(strOf(d, "id"))
	if err != nil {
		return nil, fmt.Errorf("decision id: %w", err)
	}
	out["id"] = id
	domain, err := normalizeDomain(strOf(d, "domain"))
	if err != nil {
		return nil, fmt.Errorf("decision %s domain: %w", id, err)
	}
	out["domain"] = domain
	out["option"] = normText(strOf(d, "option"), 300)
	out["rationale"] = normText(strOf(d, "rationale"), 600)
	ts, err := normTimestamp(strOf(d, "timestamp"))
	if err != nil {
		return nil, fmt.Errorf("decision %s timestamp: %w", id, err)
	}
	out["timestamp"] = ts
	out["decision_maker"] = normText(strOf(d, "decision_maker"), 120)
	out["tags"] = toInterfaceSlice(normTags(d["tags"]))
	for _, k := range []string{"supported_by", "based_on", "transitions"} {
		out[k] = toInterfaceSlice(normStringList(d[k]))
	}
	return out, nil
}

// NormalizeEvent applies §4.14's event normalisation, including the
// summary-repair and snippet-fallback rules of original_source's
// normalize_event.
func NormalizeEvent(e Doc) (Doc, error) {
	out := make(Doc, len(e))
	for k, v := range e {
		out[k] = v
	}
	id, err := normalizeID(strOf(e, "id"))
	if err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}
	out["id"] = id
	domain, err := normalizeDomain(strOf(e, "domain"))
	if err != nil {
		return nil, fmt.Errorf("event %s domain: %w", id, err)
	}
	out["domain"] = domain
	ts, err := normTimestamp(strOf(e, "timestamp"))
	if err != nil {
		return nil, fmt.Errorf("event %s timestamp: %w", id, err)
	}
	out["timestamp"] = ts
	description := normText(strOf(e, "description"), 0)
	out["description"] = description
	summary := normText(strOf(e, "summary"), 120)
	if summary == "" || summary == id {
		repaired := description
		if len(repaired) > 96 {
			repaired = repaired[:96]
		}
		summary = normText(repaired, 96)
		if summary == "" {
			summary = "(no-summary)"
		}
	}
	out["summary"] = summary
	if strOf(e, "snippet") == "" {
		first := description
		if idx := strings.Index(first, "."); idx >= 0 {
			first = first[:idx]
		}
		if len(first) > 160 {
			first = first[:160]
		}
		out["snippet"] = normText(first, 160)
	}
	out["tags"] = toInterfaceSlice(normTags(e["tags"]))
	out["led_to"] = toInterfaceSlice(normStringList(e["led_to"]))
	return out, nil
}

// NormalizeTransition applies §4.14's transition normalisation, ported
// from original_source's normalize_transition.
func NormalizeTransition(t Doc) (Doc, error) {
	out := make(Doc, len(t))
	for k, v := range t {
		out[k] = v
	}
	id, err := normalizeID(strOf(t, "id"))
	if err != nil {
		return nil, fmt.Errorf("transition id: %w", err)
	}
	out["id"] = id
	domain, err := normalizeDomain(strOf(t, "domain"))
	if err != nil {
		return nil, fmt.Errorf("transition %s domain: %w", id, err)
	}
	out["domain"] = domain
	out["from"] = strOf(t, "from")
	out["to"] = strOf(t, "to")
	relation := strOf(t, "relation")
	if relation == "" {
		relation = "causal"
	}
	out["relation"] = relation
	out["reason"] = normText(strOf(t, "reason"), 280)
	ts, err := normTimestamp(strOf(t, "timestamp"))
	if err != nil {
		return nil, fmt.Errorf("transition %s timestamp: %w", id, err)
	}
	out["timestamp"] = ts
	out["tags"] = toInterfaceSlice(normTags(t["tags"]))
	return out, nil
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
