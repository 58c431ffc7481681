package validator

import (
	"fmt"
	"strings"

	"github.com/batvault/batvault/internal/evidence"
)

const fallbackMaxChars = 320

// ComposeFallback builds the deterministic, template-based answer of §4.12
// used whenever the LLM path is unavailable or its output fails validation.
// It never invents content: every clause is drawn directly from the
// evidence bundle's anchor, top-ranked events and first succeeding
// transition, never from raw ids.
func ComposeFallback(ev *evidence.WhyDecisionEvidence, rankedEventIDs []string) string {
	if ev == nil {
		return ""
	}
	var sentences []string

	if lead := leadSentence(ev.Anchor); lead != "" {
		sentences = append(sentences, lead)
	}
	if because := becauseSentence(ev, rankedEventIDs); because != "" {
		sentences = append(sentences, because)
	}
	if len(sentences) < 2 {
		if next := nextSentence(ev); next != "" {
			sentences = append(sentences, next)
		}
	}

	text := strings.Join(sentences, " ")
	if len(text) > fallbackMaxChars {
		text = text[:fallbackMaxChars]
	}
	return text
}

func leadSentence(anchor map[string]interface{}) string {
	maker := strField(anchor, "maker")
	date := strField(anchor, "timestamp")
	if len(date) >= 10 {
		date = date[:10]
	}
	title := strField(anchor, "title")
	if title == "" {
		title = strField(anchor, "option")
	}
	if maker == "" && date == "" {
		if title == "" {
			return ""
		}
		return fmt.Sprintf("%s.", title)
	}
	switch {
	case maker != "" && date != "":
		return fmt.Sprintf("%s on %s: %s.", maker, date, title)
	case maker != "":
		return fmt.Sprintf("%s: %s.", maker, title)
	default:
		return fmt.Sprintf("On %s: %s.", date, title)
	}
}

// becauseSentence cites up to two top-ranked events' titles, in
// rankedEventIDs order, never raw ids (§4.12).
func becauseSentence(ev *evidence.WhyDecisionEvidence, rankedEventIDs []string) string {
	byID := make(map[string]map[string]interface{}, len(ev.Events))
	for _, e := range ev.Events {
		if id, _ := e["id"].(string); id != "" {
			byID[id] = e
		}
	}
	var drivers []string
	for _, id := range rankedEventIDs {
		e, ok := byID[id]
		if !ok {
			continue
		}
		title := strField(e, "title")
		if title == "" {
			title = strField(e, "summary")
		}
		if title == "" {
			continue
		}
		drivers = append(drivers, title)
		if len(drivers) == 2 {
			break
		}
	}
	if len(drivers) == 0 {
		return ""
	}
	if len(drivers) == 1 {
		return fmt.Sprintf("Because %s.", drivers[0])
	}
	return fmt.Sprintf("Because %s (and %s).", drivers[0], drivers[1])
}

func nextSentence(ev *evidence.WhyDecisionEvidence) string {
	if len(ev.Transitions.Succeeding) == 0 {
		return ""
	}
	title := strField(ev.Transitions.Succeeding[0], "title")
	if title == "" {
		title = strField(ev.Transitions.Succeeding[0], "option")
	}
	if title == "" {
		return ""
	}
	return fmt.Sprintf("Next: %s.", title)
}

func strField(n map[string]interface{}, key string) string {
	if n == nil {
		return ""
	}
	s, _ := n[key].(string)
	return s
}
