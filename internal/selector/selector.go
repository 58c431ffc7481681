// Package selector implements the deterministic event ranker and score
// computation of spec §4.9: similarity (Jaccard over whitespace tokens,
// Open Question (a)) desc, timestamp desc, id asc — via three stable sorts
// on precomputed keys so the output is identical across runtimes.
package selector

import (
	"sort"
	"strings"
	"time"
)

// PolicyID is the deterministic ordering identifier emitted in meta (§4.9).
const PolicyID = "sim_desc__ts_iso_desc__id_asc"

// Event is the minimal shape the ranker needs from an evidence event.
type Event struct {
	ID          string
	Timestamp   string
	Summary     string
	Description string
}

// Scores holds per-id explainability scores (§4.9).
type Scores struct {
	Similarity   float64
	RecencyDays  float64
	Importance   float64
}

func tokenize(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// jaccard returns |a ∩ b| / |a ∪ b| over token sets, 0 when both are empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func eventText(e Event) string {
	if e.Summary != "" {
		return e.Summary
	}
	return e.Description
}

// Jaccard is the Open-Question-(a) similarity function: deterministic
// Jaccard over lower-cased whitespace tokens of anchorText vs eventText.
func Jaccard(anchorText, eventText string) float64 {
	return jaccard(tokenize(anchorText), tokenize(eventText))
}

type rankKey struct {
	event Event
	sim   float64
}

// RankEvents orders events by similarity desc -> timestamp desc -> id asc
// (§4.9), using anchorTitle+anchorDescription as the comparison text.
// Implemented as three stable sorts (id asc, ts desc, sim desc) applied in
// that reverse-priority order, guaranteeing identical output regardless of
// sort implementation details.
func RankEvents(anchorTitle, anchorDescription string, events []Event) []Event {
	anchorText := anchorTitle + " " + anchorDescription
	keys := make([]rankKey, len(events))
	for i, e := range events {
		keys[i] = rankKey{event: e, sim: Jaccard(anchorText, eventText(e))}
	}

	sort.SliceStable(keys, func(i, j int) bool { return keys[i].event.ID < keys[j].event.ID })
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].event.Timestamp > keys[j].event.Timestamp })
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].sim > keys[j].sim })

	out := make([]Event, len(keys))
	for i, k := range keys {
		out[i] = k.event
	}
	return out
}

// ComputeScores returns per-event {sim, recency_days, importance} for
// explainability (§4.9). anchorTimestamp must be RFC-3339; events whose
// timestamp fails to parse get recency_days=0.
func ComputeScores(anchorTitle, anchorDescription, anchorTimestamp string, events []Event) map[string]Scores {
	anchorText := anchorTitle + " " + anchorDescription
	anchorTS, _ := time.Parse(time.RFC3339, anchorTimestamp)

	out := make(map[string]Scores, len(events))
	for _, e := range events {
		sim := Jaccard(anchorText, eventText(e))
		recency := 0.0
		if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil && !anchorTS.IsZero() {
			d := ts.Sub(anchorTS)
			if d < 0 {
				d = -d
			}
			recency = d.Hours() / 24
		}
		out[e.ID] = Scores{Similarity: sim, RecencyDays: recency, Importance: sim}
	}
	return out
}

// Reranker is the optional cross-encoder rerank hook (Open Question (b)).
// NoopReranker is the default; a real implementation would call an external
// cross-encoder endpoint.
type Reranker interface {
	Rerank(anchorText string, events []Event) []Event
}

// RerankPairMax bounds the candidate pool a Reranker is applied to; outside
// [2, RerankPairMax] the rerank step is bypassed entirely.
var RerankPairMax = 50

// NoopReranker returns candidates unchanged; the default Reranker.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ string, events []Event) []Event { return events }

// MaybeRerank applies r to events only when len(events) is within
// [2, RerankPairMax]; otherwise it is bypassed (Open Question (b)).
func MaybeRerank(r Reranker, anchorText string, events []Event) []Event {
	if r == nil || len(events) < 2 || len(events) > RerankPairMax {
		return events
	}
	return r.Rerank(anchorText, events)
}
