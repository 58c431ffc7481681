package memory

import (
	"context"
	"sort"
	"time"

	"github.com/batvault/batvault/internal/allowedids"
	"github.com/batvault/batvault/internal/bverr"
	"github.com/batvault/batvault/internal/cache"
	"github.com/batvault/batvault/internal/canon"
	"github.com/batvault/batvault/internal/domainid"
	"github.com/batvault/batvault/internal/obslog"
	"github.com/batvault/batvault/internal/policy"
	"github.com/batvault/batvault/internal/storage"
)

func strField(n policy.Node, key string) string {
	s, _ := n[key].(string)
	return s
}

// Service implements the four Memory endpoint operations of §4.5 over a
// storage.Adapter and the effective policy derived by the caller. One
// Service is shared across requests; all state it touches (storage, redis)
// is itself safe for concurrent use.
type Service struct {
	Storage          storage.Adapter
	Redis            *cache.Redis
	SensitivityOrder []string
	ResolverTTL      time.Duration
}

// NewService builds a Memory Service. resolverTTL is config.RedisConfig's
// TTLResolverSec (default 300s, §6).
func NewService(adapter storage.Adapter, r *cache.Redis, sensitivityOrder []string, resolverTTL time.Duration) *Service {
	if resolverTTL <= 0 {
		resolverTTL = 300 * time.Second
	}
	return &Service{Storage: adapter, Redis: r, SensitivityOrder: sensitivityOrder, ResolverTTL: resolverTTL}
}

// CheckSnapshotPrecondition enforces I6: the caller-presented etag must
// equal the server's current snapshot, which itself must be known.
func (s *Service) CheckSnapshotPrecondition(ctx context.Context, presented string) (current string, err error) {
	current, getErr := s.Storage.GetSnapshotETag(ctx)
	if getErr != nil {
		return "", bverr.Wrap(bverr.KindStorageUnavailable, getErr, "read snapshot etag")
	}
	if current == "" || current == "unknown" {
		return current, bverr.New(bverr.KindPreconditionFailed, "no snapshot available").WithSubkind("no_snapshot")
	}
	if presented == "" {
		return current, bverr.New(bverr.KindPreconditionFailed, "missing X-Snapshot-ETag").WithSubkind("missing")
	}
	if presented != current {
		return current, bverr.New(bverr.KindPreconditionFailed, "snapshot_etag mismatch").WithSubkind("mismatch")
	}
	return current, nil
}

// Enrich implements enrich(anchor) (§4.5): single-node read, domain match,
// ACL, field mask.
func (s *Service) Enrich(ctx context.Context, anchorID string, p *policy.Policy) (policy.Node, policy.MaskSummary, error) {
	domain, _, ok := domainid.ParseAnchor(anchorID)
	if !ok {
		return nil, policy.MaskSummary{}, bverr.New(bverr.KindValidationFailed, "invalid anchor %q", anchorID)
	}
	key, err := domainid.AnchorToStorageKey(anchorID)
	if err != nil {
		return nil, policy.MaskSummary{}, bverr.Wrap(bverr.KindValidationFailed, err, "anchor to storage key")
	}
	node, err := s.Storage.GetEnrichedNode(ctx, key)
	if err != nil {
		return nil, policy.MaskSummary{}, bverr.Wrap(bverr.KindStorageUnavailable, err, "get enriched node")
	}
	if node == nil {
		return nil, policy.MaskSummary{}, bverr.New(bverr.KindNotFound, "anchor %q not found", anchorID)
	}
	if nodeDomain, _ := node["domain"].(string); nodeDomain != "" && nodeDomain != domain {
		return nil, policy.MaskSummary{}, bverr.New(bverr.KindDomainMismatch, "anchor domain %q does not match stored node domain %q", domain, nodeDomain)
	}
	res := policy.ACLCheck(node, p, s.SensitivityOrder)
	if !res.Allowed {
		return nil, policy.MaskSummary{}, policy.DeniedError(res, p)
	}
	masked, summary := policy.FieldMaskWithSummary(node, p)
	return masked, summary, nil
}

// EnrichBatch implements enrich/batch (§4.5): recompute the scoped
// allowed_ids from the anchor and deny the whole call if requested ids are
// not a subset.
func (s *Service) EnrichBatch(ctx context.Context, req EnrichBatchRequest, p *policy.Policy) (*EnrichBatchResponse, error) {
	expand, err := s.ExpandCandidates(ctx, req.AnchorID, p, req.SnapshotETag)
	if err != nil {
		return nil, err
	}
	anchorAnchorID, _ := expand.Anchor["id"].(string)

	eventIDs, precedingIDs, succeedingIDs := ClassifyEdgeEndpoints(expand.Graph.Edges, anchorAnchorID)
	allowed := allowedids.Derive(anchorAnchorID, eventIDs, precedingIDs, succeedingIDs)

	allowedSet := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = true
	}
	for _, id := range req.IDs {
		if !allowedSet[id] {
			return nil, bverr.New(bverr.KindACLDenied, "requested id %q is out of scope", id).
				WithSubkind("requested_ids_out_of_scope").WithStatus(p.DeniedStatus)
		}
	}

	items := make(map[string]map[string]interface{}, len(req.IDs))
	for _, id := range req.IDs {
		node, _, err := s.Enrich(ctx, id, p)
		if err != nil {
			continue // ACL/not-found on an allowed id degrades to omission, not a hard failure
		}
		items[id] = node
	}

	allowedFP := canon.MustFingerprint(allowed)
	return &EnrichBatchResponse{
		Items: items,
		Meta: EnrichBatchMeta{
			ReturnedCount: len(items),
			AllowedIDs:    allowed,
			AllowedIDsFP:  allowedFP,
			PolicyFP:      p.PolicyFP,
			SnapshotETag:  req.SnapshotETag,
		},
	}, nil
}

// ResolveText implements resolve/text (§4.5): an anchor short-circuit when
// q matches the wire-anchor grammar, otherwise BM25/LIKE with an optional
// vector pass, cached by (q, policy_fp, snapshot_etag).
func (s *Service) ResolveText(ctx context.Context, req ResolveRequest, p *policy.Policy, snapshotETag string) (*ResolveResponse, error) {
	if domainid.IsAnchor(req.Q) {
		key, err := domainid.AnchorToStorageKey(req.Q)
		if err == nil {
			if node, _ := s.Storage.GetNode(ctx, key); node != nil {
				return &ResolveResponse{
					Query:      req.Q,
					Matches:    []ResolveMatch{{ID: req.Q, Score: 1.0, Title: strField(node, "title"), Type: strField(node, "type")}},
					VectorUsed: false,
					ResolvedID: req.Q,
				}, nil
			}
		}
	}

	cacheKey := cache.ResolveKey(snapshotETag, p.PolicyFP, req.Q)
	if s.Redis != nil {
		var cached ResolveResponse
		if err := s.Redis.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	matches, vectorUsed, err := s.Storage.ResolveText(ctx, req.Q, limit, req.UseVector, req.QueryVector)
	if err != nil {
		return nil, bverr.Wrap(bverr.KindStorageUnavailable, err, "resolve_text")
	}

	out := &ResolveResponse{Query: req.Q, VectorUsed: vectorUsed}
	for _, m := range matches {
		anchor, err := domainid.StorageKeyToAnchor(m.ID)
		if err != nil {
			continue
		}
		out.Matches = append(out.Matches, ResolveMatch{ID: anchor, Score: m.Score, Title: m.Title, Type: m.Type})
	}
	if len(out.Matches) == 1 {
		out.ResolvedID = out.Matches[0].ID
	}

	if s.Redis != nil {
		if len(out.Matches) == 0 {
			_ = s.Redis.SetNegative(ctx, cacheKey, s.ResolverTTL)
		} else {
			_ = s.Redis.SetEX(ctx, cacheKey, out, s.ResolverTTL)
		}
	}
	return out, nil
}

// ExpandCandidates implements expand_candidates (§4.5): k=1 edges-only view
// plus the bounded alias tail (§4.7), edge allowlist and per-neighbour ACL.
func (s *Service) ExpandCandidates(ctx context.Context, anchorID string, p *policy.Policy, snapshotETag string) (*ExpandResponse, error) {
	anchorNode, _, err := s.Enrich(ctx, anchorID, p)
	if err != nil {
		return nil, err
	}
	domain, _, _ := domainid.ParseAnchor(anchorID)
	key, err := domainid.AnchorToStorageKey(anchorID)
	if err != nil {
		return nil, bverr.Wrap(bverr.KindValidationFailed, err, "anchor to storage key")
	}

	rawEdges, err := s.Storage.GetEdgesAdjacent(ctx, key)
	if err != nil {
		return nil, bverr.Wrap(bverr.KindStorageUnavailable, err, "get adjacent edges")
	}

	var wireEdges []WireEdge
	var aliasReturned []string
	allowSet := make(map[string]bool, len(p.EdgeAllowlist))
	for _, t := range p.EdgeAllowlist {
		allowSet[t] = true
	}

	for _, e := range rawEdges {
		if len(allowSet) > 0 && !allowSet[e.Type] {
			continue
		}
		switch e.Type {
		case "LED_TO", "CAUSAL":
			otherKey := e.To
			if e.To == key {
				otherKey = e.From
			}
			otherNode, err := s.Storage.GetNode(ctx, otherKey)
			if err != nil || otherNode == nil {
				continue
			}
			if e.Type == "CAUSAL" {
				otherDomain, _ := otherNode["domain"].(string)
				if otherDomain != "" && otherDomain != domain {
					continue
				}
			}
			res := policy.ACLCheck(otherNode, p, s.SensitivityOrder)
			if !res.Allowed {
				continue
			}
			fromAnchor, _ := domainid.StorageKeyToAnchor(e.From)
			toAnchor, _ := domainid.StorageKeyToAnchor(e.To)
			wireEdges = append(wireEdges, WireEdge{Type: e.Type, From: fromAnchor, To: toAnchor, Timestamp: e.Timestamp})
		case "ALIAS_OF":
			eventKey := e.From
			eventNode, err := s.Storage.GetNode(ctx, eventKey)
			if err != nil || eventNode == nil {
				continue
			}
			if res := policy.ACLCheck(eventNode, p, s.SensitivityOrder); !res.Allowed {
				continue
			}
			eventAnchor, _ := domainid.StorageKeyToAnchor(eventKey)
			tail, returned := s.aliasTail(ctx, eventKey, eventAnchor, p)
			wireEdges = append(wireEdges, tail...)
			aliasReturned = append(aliasReturned, returned...)
		}
	}

	anchorAnchor, _ := anchorNode["id"].(string)
	eventIDs, precedingIDs, succeedingIDs := ClassifyEdgeEndpoints(wireEdges, anchorAnchor)
	allowed := allowedids.Derive(anchorAnchor, eventIDs, precedingIDs, succeedingIDs)
	allowedFP := canon.MustFingerprint(allowed)
	graphFP := canon.MustFingerprint(map[string]interface{}{"anchor_id": anchorAnchor, "edges": sortedWireEdges(wireEdges)})

	sort.Strings(aliasReturned)
	obslog.Event(obslog.StageMemory, "expand_candidates", "anchor_id", anchorAnchor, "edges", len(wireEdges))

	return &ExpandResponse{
		Anchor: anchorNode,
		Graph:  ExpandGraph{Edges: wireEdges},
		Meta: ExpandMeta{
			SnapshotETag: snapshotETag,
			PolicyFP:     p.PolicyFP,
			AllowedIDs:   allowed,
			AllowedIDsFP: allowedFP,
			Fingerprints: ExpandFingerprints{GraphFP: graphFP},
			Alias:        AliasInfo{Returned: aliasReturned},
		},
	}, nil
}

// aliasTail implements the bounded alias expansion of §4.7: from an ACL'd
// alias event, traverse outbound {LED_TO,CAUSAL} up to 3 decisions in the
// event's domain, ordered by (edge.ts desc, decision.ts desc, decision.id
// asc), ACL-checking each target and appending as CAUSAL-kind wire edges.
func (s *Service) aliasTail(ctx context.Context, eventKey, eventAnchor string, p *policy.Policy) ([]WireEdge, []string) {
	rows, err := s.Storage.NextDecisionsFromEvent(ctx, eventKey, 3)
	if err != nil {
		return nil, nil
	}
	var edges []WireEdge
	var returned []string
	for _, row := range rows {
		decisionKey, kerr := domainid.AnchorToStorageKey(row.ID)
		if kerr != nil {
			decisionKey = row.ID
		}
		decisionNode, err := s.Storage.GetNode(ctx, decisionKey)
		if err != nil || decisionNode == nil {
			continue
		}
		if res := policy.ACLCheck(decisionNode, p, s.SensitivityOrder); !res.Allowed {
			continue
		}
		decisionAnchor, err := domainid.StorageKeyToAnchor(decisionKey)
		if err != nil {
			decisionAnchor = row.ID
		}
		edges = append(edges, WireEdge{Type: "CAUSAL", From: eventAnchor, To: decisionAnchor, Timestamp: row.EdgeTS})
		returned = append(returned, decisionAnchor)
		if len(edges) == 3 {
			break
		}
	}
	return edges, returned
}

// ClassifyEdgeEndpoints splits wire edges into event ids (LED_TO from-side
// events and ALIAS_OF-derived CAUSAL from-side alias events), preceding
// transition ids (to==anchor), and succeeding transition ids (from==anchor).
// Exported so the Gateway evidence builder classifies identically to Memory
// (§4.8: "the builder and the Memory batch endpoint compute this
// identically; any divergence is a bug").
func ClassifyEdgeEndpoints(edges []WireEdge, anchorID string) (eventIDs, precedingIDs, succeedingIDs []string) {
	for _, e := range edges {
		switch {
		case e.Type == "LED_TO" && e.To == anchorID:
			eventIDs = append(eventIDs, e.From)
		case e.To == anchorID:
			precedingIDs = append(precedingIDs, e.From)
		case e.From == anchorID:
			succeedingIDs = append(succeedingIDs, e.To)
		}
	}
	return
}

func sortedWireEdges(edges []WireEdge) []WireEdge {
	out := append([]WireEdge(nil), edges...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].Type < out[j].Type
	})
	return out
}
