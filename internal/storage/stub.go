package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/batvault/batvault/internal/domainid"
	"github.com/batvault/batvault/internal/policy"
	"github.com/batvault/batvault/internal/snapshot"
)

// StubAdapter is the in-memory, dev-mode fallback used when ArangoDB is
// unreachable and BV_ENV=dev (§4.3); it also backs hermetic tests. All
// reads/writes are guarded by a single mutex, mirroring the teacher's
// single-lock-per-operation convention for process-local state (§5).
type StubAdapter struct {
	mu    sync.RWMutex
	nodes map[string]policy.Node // storage key -> node
	edges []Edge
	etag  string
}

// NewStubAdapter returns an empty stub store.
func NewStubAdapter() *StubAdapter {
	return &StubAdapter{nodes: make(map[string]policy.Node), etag: snapshot.Unknown}
}

func cloneNode(n policy.Node) policy.Node {
	out := make(policy.Node, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}

func (s *StubAdapter) GetNode(ctx context.Context, storageKey string) (policy.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[storageKey]
	if !ok {
		return nil, nil
	}
	return cloneNode(n), nil
}

// excludedEnrichKeys are raw storage fields folded out of the canonical
// enriched view and, when present, carried under x-extra instead (mirrors
// original_source's get_enriched_decision/get_enriched_event _exclude set).
var excludedEnrichKeys = map[string]bool{
	"_key": true, "_id": true, "_rev": true, "id": true, "x-extra": true,
	"snapshot_etag": true, "meta": true, "type": true, "title": true,
	"description": true, "timestamp": true, "decision_maker": true,
	"supported_by": true, "based_on": true, "domain": true, "led_to": true,
}

func (s *StubAdapter) GetEnrichedNode(ctx context.Context, storageKey string) (policy.Node, error) {
	n, err := s.GetNode(ctx, storageKey)
	if err != nil || n == nil {
		return nil, err
	}
	anchor, err := domainid.StorageKeyToAnchor(storageKey)
	if err != nil {
		anchor = storageKey
	}
	out := policy.Node{
		"id":          anchor,
		"type":        n["type"],
		"title":       n["title"],
		"description": n["description"],
		"timestamp":   n["timestamp"],
		"domain":      n["domain"],
	}
	if dm, ok := n["decision_maker"]; ok {
		out["decision_maker"] = dm
	}
	if tags, ok := n["tags"]; ok {
		out["tags"] = tags
	}
	if sens, ok := n["sensitivity"]; ok {
		out["sensitivity"] = sens
	}
	if ns, ok := n["namespaces"]; ok {
		out["namespaces"] = ns
	}
	if ra, ok := n["roles_allowed"]; ok {
		out["roles_allowed"] = ra
	}

	extra := map[string]interface{}{}
	if existing, ok := n["x-extra"].(map[string]interface{}); ok {
		for k, v := range existing {
			extra[k] = v
		}
	}
	for k, v := range n {
		if excludedEnrichKeys[k] || k == "tags" || k == "sensitivity" || k == "namespaces" || k == "roles_allowed" {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		out["x-extra"] = extra
	}
	return out, nil
}

func (s *StubAdapter) GetEdgesAdjacent(ctx context.Context, storageKey string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, e := range s.edges {
		if e.From == storageKey || e.To == storageKey {
			out = append(out, e)
		}
	}
	return dedupEdges(out), nil
}

func dedupEdges(edges []Edge) []Edge {
	seen := make(map[Edge]bool, len(edges))
	var out []Edge
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func (s *StubAdapter) NextDecisionsFromEvent(ctx context.Context, eventID string, limit int) ([]NextDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.nodes[eventID]
	if !ok {
		return nil, nil
	}
	eventDomain, _ := event["domain"].(string)

	var rows []NextDecision
	for _, e := range s.edges {
		if e.From != eventID || (e.Type != "LED_TO" && e.Type != "CAUSAL") {
			continue
		}
		dec, ok := s.nodes[e.To]
		if !ok {
			continue
		}
		if dt, _ := dec["type"].(string); dt != "DECISION" {
			continue
		}
		if dd, _ := dec["domain"].(string); dd != eventDomain {
			continue
		}
		rows = append(rows, NextDecision{
			ID:        e.To,
			Title:     strString(dec["title"]),
			Domain:    eventDomain,
			Timestamp: strString(dec["timestamp"]),
			EdgeType:  e.Type,
			EdgeTS:    e.Timestamp,
		})
	}
	sortEdgesForNextDecisions(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func strString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// ResolveText performs case-insensitive substring matching over title and
// description, deterministically ordered (score desc, id asc); this is the
// stub-mode stand-in for BM25 (§4.3's LIKE fallback).
func (s *StubAdapter) ResolveText(ctx context.Context, q string, limit int, useVector bool, queryVector []float64) ([]Match, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ql := strings.ToLower(q)
	var matches []Match
	for key, n := range s.nodes {
		title := strings.ToLower(strString(n["title"]))
		desc := strings.ToLower(strString(n["description"]))
		score := 0.0
		if ql != "" && strings.Contains(title, ql) {
			score = 2.0
		} else if ql != "" && strings.Contains(desc, ql) {
			score = 1.0
		} else {
			continue
		}
		matches = append(matches, Match{ID: key, Score: score, Title: strString(n["title"]), Type: strString(n["type"])})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, false, nil
}

func (s *StubAdapter) GetSnapshotETag(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.etag, nil
}

func (s *StubAdapter) SetSnapshotETag(ctx context.Context, etag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etag = etag
	return nil
}

func (s *StubAdapter) PruneStale(ctx context.Context, etag string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodesRemoved, edgesRemoved := 0, 0
	for k, n := range s.nodes {
		if strString(n["snapshot_etag"]) != etag {
			delete(s.nodes, k)
			nodesRemoved++
		}
	}
	var survivors []Edge
	for _, e := range s.edges {
		if _, fromOK := s.nodes[e.From]; !fromOK {
			edgesRemoved++
			continue
		}
		survivors = append(survivors, e)
	}
	s.edges = survivors
	return nodesRemoved, edgesRemoved, nil
}

func (s *StubAdapter) UpsertNodes(ctx context.Context, nodes []policy.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		key := strString(n["_key"])
		if key == "" {
			key = strString(n["id"])
		}
		s.nodes[key] = cloneNode(n)
	}
	return nil
}

func (s *StubAdapter) UpsertEdges(ctx context.Context, edges []Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[string]Edge, len(s.edges))
	for _, e := range s.edges {
		byID[domainid.EdgeID(strings.ToLower(e.Type), e.From, e.To)] = e
	}
	for _, e := range edges {
		byID[domainid.EdgeID(strings.ToLower(e.Type), e.From, e.To)] = e
	}
	out := make([]Edge, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	s.edges = out
	return nil
}
