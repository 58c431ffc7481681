package memory

import (
	"sync"
	"time"

	"github.com/batvault/batvault/internal/canon"
)

// SchemaCache loads the Graph View / Bundle View JSON schema documents once
// and caches their fingerprints with a TTL (SPEC_FULL §SF.4 item 8,
// ported from original_source's schema_cache.py). Schemas are small and
// static per deployment, so a process-local cache (no Redis round trip) is
// sufficient; the fingerprint is surfaced as X-BV-Schema-FP.
type SchemaCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]schemaEntry
}

type schemaEntry struct {
	fp        string
	expiresAt time.Time
}

// NewSchemaCache builds a SchemaCache with the given TTL (default 600s,
// TTL_SCHEMA_CACHE_SEC).
func NewSchemaCache(ttl time.Duration) *SchemaCache {
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &SchemaCache{ttl: ttl, entries: make(map[string]schemaEntry)}
}

// Fingerprint returns the cached fingerprint for name's schema, computing
// it with canon.MustFingerprint and caching it if absent or expired.
func (c *SchemaCache) Fingerprint(name string, schema interface{}) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok && time.Now().Before(e.expiresAt) {
		return e.fp
	}
	fp := canon.MustFingerprint(schema)
	c.entries[name] = schemaEntry{fp: fp, expiresAt: time.Now().Add(c.ttl)}
	return fp
}

// GraphViewSchema is the minimal JSON-schema-shaped document describing
// expand_candidates' outbound wire shape, validated against before return
// (§4.5: "fail-closed on schema violation").
var GraphViewSchema = map[string]interface{}{
	"title": "GraphView",
	"type":  "object",
	"required": []string{"anchor", "graph", "meta"},
	"properties": map[string]interface{}{
		"anchor": map[string]interface{}{"type": "object"},
		"graph": map[string]interface{}{
			"type":     "object",
			"required": []string{"edges"},
		},
		"meta": map[string]interface{}{"type": "object"},
	},
}

// BundleViewSchema is the minimal JSON-schema-shaped document describing
// WhyDecisionEvidence (§3). Only its fingerprint is used, served as
// X-BV-Schema-FP on /api/enrich responses; nothing validates against it.
var BundleViewSchema = map[string]interface{}{
	"title": "BundleView",
	"type":  "object",
	"required": []string{"anchor", "events", "transitions", "allowed_ids"},
	"properties": map[string]interface{}{
		"anchor":      map[string]interface{}{"type": "object"},
		"events":      map[string]interface{}{"type": "array"},
		"transitions": map[string]interface{}{"type": "object"},
		"allowed_ids": map[string]interface{}{"type": "array"},
	},
}

// ValidateGraphView runs a structural (not full JSON-Schema-library) check
// of resp against GraphViewSchema's required-field contract: every expand
// response must carry a non-nil anchor and a well-formed edges list.
func ValidateGraphView(resp *ExpandResponse) bool {
	if resp == nil || resp.Anchor == nil {
		return false
	}
	for _, e := range resp.Graph.Edges {
		if e.Type == "" || e.From == "" || e.To == "" {
			return false
		}
	}
	return true
}
