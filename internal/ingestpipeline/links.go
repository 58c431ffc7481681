package ingestpipeline

import "sort"

// deriveBacklinks implements §4.14's reciprocal link derivation: ported
// from original_source's derive_backlinks. event.led_to populates the
// pointed-to decision's supported_by, and each transition's id is appended
// to both of its endpoint decisions' transitions lists. Only enforced when
// the source array is present and non-empty, mirroring the original's
// "only enforce referential integrity when arrays are non-empty" note.
func deriveBacklinks(decisions, events, transitions map[string]Doc) {
	for eid, e := range events {
		for _, did := range normStringList(e["led_to"]) {
			dec, ok := decisions[did]
			if !ok {
				continue
			}
			supportedBy := stringSetFrom(dec["supported_by"])
			if !supportedBy[eid] {
				supportedBy[eid] = true
				dec["supported_by"] = toInterfaceSlice(sortedKeys(supportedBy))
			}
		}
	}

	for tid, t := range transitions {
		from := strOf(t, "from")
		to := strOf(t, "to")
		if dec, ok := decisions[from]; ok {
			addTransitionRef(dec, tid)
		}
		if dec, ok := decisions[to]; ok {
			addTransitionRef(dec, tid)
		}
	}
}

func addTransitionRef(dec Doc, tid string) {
	set := stringSetFrom(dec["transitions"])
	if !set[tid] {
		set[tid] = true
		dec["transitions"] = toInterfaceSlice(sortedKeys(set))
	}
}

func stringSetFrom(raw interface{}) map[string]bool {
	set := make(map[string]bool)
	for _, s := range normStringList(raw) {
		set[s] = true
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// referentialIntegrityErrors implements §4.14's "Referential integrity
// fails the batch with explicit messages": every event.led_to and
// transition endpoint must resolve to a known decision.
func referentialIntegrityErrors(decisions, events, transitions map[string]Doc) []ValidationError {
	var errs []ValidationError
	for eid, e := range events {
		for _, did := range normStringList(e["led_to"]) {
			if _, ok := decisions[did]; !ok {
				errs = append(errs, ValidationError{Path: eid, Message: "led_to references missing decision '" + did + "'"})
			}
		}
	}
	for tid, t := range transitions {
		from, to := strOf(t, "from"), strOf(t, "to")
		if _, ok := decisions[from]; !ok {
			errs = append(errs, ValidationError{Path: tid, Message: "from references missing decision '" + from + "'"})
		}
		if _, ok := decisions[to]; !ok {
			errs = append(errs, ValidationError{Path: tid, Message: "to references missing decision '" + to + "'"})
		}
	}
	return errs
}
