// Package catalog builds the ingest field and relation catalogs of spec
// §4.14: a self-learning alias map of canonical field names to observed
// spellings, and the fixed relation-type list. Adapted from the teacher's
// registry-style ToolCatalog (sync.RWMutex-guarded map, Register/Get/List),
// repurposed here to hold catalog snapshots instead of tool definitions.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/batvault/batvault/internal/obslog"
)

// baselineAliases seeds the field catalog with BatVault's known alias
// groups (§4.14: "canonicalise aliases (title↔option, ts↔timestamp,
// etc.)"), ported from original_source's ingest.catalog.field_catalog.
var baselineAliases = map[string][]string{
	"option":    {"title", "option", "decision", "choice"},
	"rationale": {"rationale", "why", "reasoning"},
	"summary":   {"summary", "headline"},
	"reason":    {"reason", "explanation"},
	"timestamp": {"timestamp", "ts"},
}

// coreFields are always present in the field catalog even if never
// observed in a batch.
var coreFields = []string{
	"id", "type", "timestamp", "domain", "sensitivity", "tags",
	"from", "to", "snippet", "description", "decision_maker",
}

// RelationTypes is the canonical, deterministically ordered edge-type list
// surfaced to ingest/UI callers (§4.14). The legacy CAUSAL_PRECEDES alias
// must never appear here.
var RelationTypes = []string{"ALIAS_OF", "CAUSAL", "LED_TO"}

// FieldCatalog maps a canonical field name to every spelling observed for
// it across the current batch, plus baseline synonyms.
type FieldCatalog map[string][]string

// BuildFieldCatalog builds the catalog for one ingest batch: baseline
// aliases unioned with observed key spellings, core fields guaranteed
// present, deterministic (case-insensitive then lexical) ordering within
// each entry.
func BuildFieldCatalog(docs []map[string]interface{}) FieldCatalog {
	observed := make(map[string]map[string]bool)
	observe := func(k string) {
		lower := strings.ToLower(k)
		if observed[lower] == nil {
			observed[lower] = make(map[string]bool)
		}
		observed[lower][k] = true
	}
	for _, doc := range docs {
		for k := range doc {
			observe(k)
		}
	}

	result := make(FieldCatalog)
	for canonical, syns := range baselineAliases {
		union := make(map[string]bool)
		for _, s := range syns {
			union[s] = true
			for o := range observed[s] {
				union[o] = true
			}
		}
		result[canonical] = sortedSpellings(union)
	}
	for canonical, spellings := range observed {
		if _, ok := result[canonical]; ok {
			continue
		}
		result[canonical] = sortedSpellings(spellings)
	}
	for _, k := range coreFields {
		if _, ok := result[k]; !ok {
			result[k] = []string{k}
		}
	}

	obslog.Event(obslog.StageIngest, "field_catalog_built", "canonical_count", len(result), "observed_keys", len(observed))
	return result
}

func sortedSpellings(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i]), strings.ToLower(out[j])
		if li != lj {
			return li < lj
		}
		return out[i] < out[j]
	})
	return out
}

// Store holds the latest published field and relation catalogs, guarded by
// a single RWMutex (adapted from the teacher's ToolCatalog mutex pattern).
type Store struct {
	mu       sync.RWMutex
	fields   FieldCatalog
	relations []string
}

// NewStore returns an empty Store; Publish must be called after the first
// ingest run before Current returns anything useful.
func NewStore() *Store {
	return &Store{relations: RelationTypes}
}

// Publish replaces the current field catalog with fields, computed from
// the batch just ingested.
func (s *Store) Publish(fields FieldCatalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
}

// Current returns the latest published field catalog and the fixed
// relation catalog.
func (s *Store) Current() (FieldCatalog, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields, s.relations
}
