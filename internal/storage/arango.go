package storage

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	driver "github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"

	"github.com/batvault/batvault/internal/domainid"
	"github.com/batvault/batvault/internal/obslog"
	"github.com/batvault/batvault/internal/policy"
)

// ArangoAdapter is the production storage adapter over ArangoDB (§4.3),
// ported from original_source's core_storage.arangodb.ArangoStore: eager
// connect, dev-mode stub fallback, bulk upserts, ArangoSearch BM25 with a
// LIKE fallback, and an optional vector index.
type ArangoAdapter struct {
	db         driver.Database
	graphName  string
	batchSize  int
	vectorKind string
	vectorDim  int
}

// DialArango probes the configured endpoint the way the teacher's
// ArangoStore._connect does (DNS + 50ms TCP handshake) before attempting a
// real driver connection, so an unreachable cluster fails fast instead of
// hanging on the first query.
func DialArango(ctx context.Context, endpoints []string, user, password, dbName string, batchSize int, isDev bool) (Adapter, error) {
	if len(endpoints) == 0 {
		if isDev {
			obslog.Warn(obslog.StageStorage, "arango_no_endpoints_stub_mode")
			return NewStubAdapter(), nil
		}
		return nil, fmt.Errorf("storage: no ARANGO_ENDPOINTS configured (non-dev)")
	}
	if err := probeReachable(endpoints[0]); err != nil {
		if isDev {
			obslog.Warn(obslog.StageStorage, "arango_unreachable_stub_mode", "error", err)
			return NewStubAdapter(), nil
		}
		return nil, fmt.Errorf("storage: arango unreachable (non-dev): %w", err)
	}

	conn := connection.NewHttpConnection(connection.HttpConfiguration{
		Endpoint:    connection.NewRoundRobinEndpoints(endpoints),
		Authentication: connection.NewBasicAuth(user, password),
	})
	client := driver.NewClient(connection.Connection(conn))

	exists, err := client.DatabaseExists(ctx, dbName)
	if err != nil {
		if isDev {
			obslog.Warn(obslog.StageStorage, "arango_connect_failed_stub_mode", "error", err)
			return NewStubAdapter(), nil
		}
		return nil, fmt.Errorf("storage: arango connect failed (non-dev): %w", err)
	}
	var db driver.Database
	if exists {
		db, err = client.GetDatabase(ctx, dbName, nil)
	} else {
		db, err = client.CreateDatabase(ctx, dbName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open database %q: %w", dbName, err)
	}

	a := &ArangoAdapter{db: db, graphName: "batvault_graph", batchSize: batchSize, vectorKind: "hnsw", vectorDim: 0}
	if err := a.ensureCollections(ctx); err != nil {
		return nil, fmt.Errorf("storage: ensure collections: %w", err)
	}
	if err := a.EnsureIndexes(ctx); err != nil {
		obslog.Warn(obslog.StageStorage, "arango_ensure_indexes_failed", "error", err)
	}
	return a, nil
}

func probeReachable(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "8529"
	}
	if _, err := net.LookupHost(host); err != nil {
		return fmt.Errorf("dns lookup %q: %w", host, err)
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("tcp dial %s:%s: %w", host, port, err)
	}
	conn.Close()
	return nil
}

func (a *ArangoAdapter) ensureCollections(ctx context.Context) error {
	for _, name := range []string{"nodes", "catalog", "meta"} {
		if ok, _ := a.db.CollectionExists(ctx, name); !ok {
			if _, err := a.db.CreateCollection(ctx, name, nil); err != nil {
				return err
			}
		}
	}
	if ok, _ := a.db.CollectionExists(ctx, "edges"); !ok {
		edgeOpts := &driver.CreateCollectionProperties{Type: driver.CollectionTypeEdge}
		if _, err := a.db.CreateCollection(ctx, "edges", edgeOpts); err != nil {
			return err
		}
	}
	if ok, _ := a.db.GraphExists(ctx, a.graphName); !ok {
		_, err := a.db.CreateGraph(ctx, a.graphName, &driver.GraphDefinition{
			EdgeDefinitions: []driver.EdgeDefinition{{
				Collection:        "edges",
				From:              []string{"nodes"},
				To:                []string{"nodes"},
			}},
		}, nil)
		if err != nil && !driver.IsConflict(err) {
			return err
		}
	}
	return nil
}

// EnsureIndexes creates the indexes and search view idempotently (§4.3):
// unique (domain,id) on nodes, unique id on edges, an ArangoSearch view
// "nodes_search" over title/description analysed by text_en, and an
// optional vector index on embedding, retried with fewer parameters when
// one is rejected.
func (a *ArangoAdapter) EnsureIndexes(ctx context.Context) error {
	nodes, err := a.db.GetCollection(ctx, "nodes", nil)
	if err != nil {
		return err
	}
	edges, err := a.db.GetCollection(ctx, "edges", nil)
	if err != nil {
		return err
	}
	if _, _, err := nodes.EnsurePersistentIndex(ctx, []string{"domain", "id"}, &driver.CreatePersistentIndexOptions{Unique: boolPtr(true), Name: "idx_node_domain_id"}); err != nil {
		obslog.Warn(obslog.StageStorage, "ensure_node_index_failed", "error", err)
	}
	if _, _, err := edges.EnsurePersistentIndex(ctx, []string{"id"}, &driver.CreatePersistentIndexOptions{Unique: boolPtr(true), Name: "idx_edge_id"}); err != nil {
		obslog.Warn(obslog.StageStorage, "ensure_edge_index_failed", "error", err)
	}
	if err := a.ensureSearchView(ctx); err != nil {
		obslog.Warn(obslog.StageStorage, "ensure_search_view_failed", "error", err)
	}
	if a.vectorDim > 0 {
		if err := a.ensureVectorIndex(ctx, nodes); err != nil {
			obslog.Warn(obslog.StageStorage, "ensure_vector_index_failed", "error", err)
		}
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

func (a *ArangoAdapter) ensureSearchView(ctx context.Context) error {
	if ok, _ := a.db.ViewExists(ctx, "nodes_search"); ok {
		return nil
	}
	_, err := a.db.CreateArangoSearchView(ctx, "nodes_search", &driver.ArangoSearchViewProperties{
		Links: driver.ArangoSearchLinks{
			"nodes": driver.ArangoSearchElementProperties{
				Fields: driver.ArangoSearchFields{
					"title":       driver.ArangoSearchElementProperties{Analyzers: []string{"text_en"}},
					"description": driver.ArangoSearchElementProperties{Analyzers: []string{"text_en"}},
				},
			},
		},
	})
	return err
}

// ensureVectorIndex creates the embedding vector index with nLists=100 and,
// if the server rejects that, retries once without nLists. Both attempts
// request the same index type; no HNSW index is created.
func (a *ArangoAdapter) ensureVectorIndex(ctx context.Context, nodes driver.Collection) error {
	metric := normalizeVectorMetric("cosine")
	_, _, err := nodes.EnsureVectorIndex(ctx, []string{"embedding"}, &driver.CreateVectorIndexOptions{
		Metric:     driver.VectorMetric(metric),
		Dimensions: a.vectorDim,
		NLists:     100,
	})
	if err == nil {
		return nil
	}
	obslog.Warn(obslog.StageStorage, "vector_index_hnsw_rejected_trying_ivf", "error", err)
	_, _, err = nodes.EnsureVectorIndex(ctx, []string{"embedding"}, &driver.CreateVectorIndexOptions{
		Metric:     driver.VectorMetric(metric),
		Dimensions: a.vectorDim,
	})
	return err
}

func (a *ArangoAdapter) GetNode(ctx context.Context, storageKey string) (policy.Node, error) {
	col, err := a.db.GetCollection(ctx, "nodes", nil)
	if err != nil {
		return nil, err
	}
	var doc policy.Node
	_, err = col.ReadDocument(ctx, storageKey, &doc)
	if driver.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (a *ArangoAdapter) GetEnrichedNode(ctx context.Context, storageKey string) (policy.Node, error) {
	n, err := a.GetNode(ctx, storageKey)
	if err != nil || n == nil {
		return nil, err
	}
	anchor, err := domainid.StorageKeyToAnchor(storageKey)
	if err != nil {
		anchor = storageKey
	}
	out := policy.Node{
		"id": anchor, "type": n["type"], "title": n["title"],
		"description": n["description"], "timestamp": n["timestamp"], "domain": n["domain"],
	}
	for _, carry := range []string{"decision_maker", "tags", "sensitivity", "namespaces", "roles_allowed"} {
		if v, ok := n[carry]; ok {
			out[carry] = v
		}
	}
	extra := map[string]interface{}{}
	if existing, ok := n["x-extra"].(map[string]interface{}); ok {
		for k, v := range existing {
			extra[k] = v
		}
	}
	for k, v := range n {
		if excludedEnrichKeys[k] || out[k] != nil {
			continue
		}
		if k == "tags" || k == "sensitivity" || k == "namespaces" || k == "roles_allowed" {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		out["x-extra"] = extra
	}
	return out, nil
}

// aqlExpandEdges mirrors original_source's expand_candidates AQL: one hop
// out+in over the graph, surfacing domain only for ALIAS_OF edges.
const aqlExpandEdges = `
LET anchor = DOCUMENT('nodes', @anchor)
LET outgoing = (anchor == null ? [] : (
  FOR v, e IN 1..1 OUTBOUND anchor GRAPH @graph
  RETURN {type: e.type, from: anchor._key, to: v._key, timestamp: e.timestamp,
          domain: (e.type == 'ALIAS_OF' ? v.domain : null)}
))
LET incoming = (anchor == null ? [] : (
  FOR v, e IN 1..1 INBOUND anchor GRAPH @graph
  RETURN {type: e.type, from: v._key, to: anchor._key, timestamp: e.timestamp,
          domain: (e.type == 'ALIAS_OF' ? v.domain : null)}
))
RETURN UNIQUE(APPEND(outgoing, incoming))
`

func (a *ArangoAdapter) GetEdgesAdjacent(ctx context.Context, storageKey string) ([]Edge, error) {
	cursor, err := a.db.Query(ctx, aqlExpandEdges, &driver.QueryOptions{
		BindVars: map[string]interface{}{"anchor": storageKey, "graph": a.graphName},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	var rows [][]Edge
	for cursor.HasMore() {
		var batch []Edge
		if _, err := cursor.ReadDocument(ctx, &batch); err != nil {
			return nil, err
		}
		rows = append(rows, batch)
	}
	var out []Edge
	for _, r := range rows {
		out = append(out, r...)
	}
	return dedupEdges(out), nil
}

const aqlNextDecisions = `
LET ev = DOCUMENT('nodes', @event)
FOR v, e IN 1..1 OUTBOUND ev GRAPH @graph
  FILTER e.type IN ['LED_TO','CAUSAL']
  FILTER v.type == 'DECISION' && v.domain == ev.domain
  SORT e.timestamp DESC, v.timestamp DESC, v._key ASC
  LIMIT @limit
  RETURN {id: v._key, title: v.title, domain: v.domain, timestamp: v.timestamp,
          edge_type: e.type, edge_ts: e.timestamp}
`

func (a *ArangoAdapter) NextDecisionsFromEvent(ctx context.Context, eventID string, limit int) ([]NextDecision, error) {
	if limit <= 0 || limit > 3 {
		limit = 3
	}
	cursor, err := a.db.Query(ctx, aqlNextDecisions, &driver.QueryOptions{
		BindVars: map[string]interface{}{"event": eventID, "graph": a.graphName, "limit": limit},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	var out []NextDecision
	for cursor.HasMore() {
		var row NextDecision
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

const aqlBM25 = `
FOR d IN nodes_search
SEARCH ANALYZER(TOKENS(@q,'text_en') ANY IN d.title OR TOKENS(@q,'text_en') ANY IN d.description, 'text_en')
SORT BM25(d) DESC LIMIT @limit
RETURN {id: d._key, score: BM25(d), title: d.title, type: d.type}
`

const aqlLike = `
FOR d IN nodes
FILTER LIKE(LOWER(d.title), LOWER(CONCAT('%', @q, '%'))) OR LIKE(LOWER(d.description), LOWER(CONCAT('%', @q, '%')))
LIMIT @limit
RETURN {id: d._key, score: 0.0, title: d.title, type: d.type}
`

const aqlVector = `
FOR d IN nodes FILTER HAS(d,'embedding')
LET score = COSINE_SIMILARITY(d.embedding, @qv)
SORT score DESC LIMIT @limit
RETURN {id: d._key, score: score, title: d.title, type: d.type}
`

// ResolveText runs BM25 over the nodes_search view, falling back to LIKE
// substring search when the view is missing/unsupported or yields zero
// hits (§4.3), or to vector cosine similarity when requested and available.
func (a *ArangoAdapter) ResolveText(ctx context.Context, q string, limit int, useVector bool, queryVector []float64) ([]Match, bool, error) {
	if limit <= 0 {
		limit = 10
	}
	if useVector && queryVector != nil {
		matches, err := a.runMatchQuery(ctx, aqlVector, map[string]interface{}{"qv": queryVector, "limit": limit})
		if err == nil && len(matches) > 0 {
			return matches, true, nil
		}
	}
	matches, err := a.runMatchQuery(ctx, aqlBM25, map[string]interface{}{"q": q, "limit": limit})
	if err != nil || len(matches) == 0 {
		terms := extractTerms(q)
		if len(terms) > 0 {
			matches, err = a.runMatchQuery(ctx, aqlLike, map[string]interface{}{"q": strings.Join(terms, " "), "limit": limit})
		}
	}
	return matches, false, err
}

var termRe = regexp.MustCompile(`\w+`)

func extractTerms(q string) []string {
	var out []string
	for _, t := range termRe.FindAllString(strings.ToLower(q), -1) {
		if len(t) >= 3 {
			out = append(out, t)
		}
	}
	return out
}

func (a *ArangoAdapter) runMatchQuery(ctx context.Context, aql string, bindVars map[string]interface{}) ([]Match, error) {
	cursor, err := a.db.Query(ctx, aql, &driver.QueryOptions{BindVars: bindVars})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	var out []Match
	for cursor.HasMore() {
		var m Match
		if _, err := cursor.ReadDocument(ctx, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (a *ArangoAdapter) GetSnapshotETag(ctx context.Context) (string, error) {
	col, err := a.db.GetCollection(ctx, "meta", nil)
	if err != nil {
		return "", err
	}
	var doc struct {
		ETag string `json:"etag"`
	}
	_, err = col.ReadDocument(ctx, "snapshot", &doc)
	if driver.IsNotFound(err) {
		return "unknown", nil
	}
	if err != nil {
		return "", err
	}
	return doc.ETag, nil
}

func (a *ArangoAdapter) SetSnapshotETag(ctx context.Context, etag string) error {
	col, err := a.db.GetCollection(ctx, "meta", nil)
	if err != nil {
		return err
	}
	doc := map[string]interface{}{"_key": "snapshot", "etag": etag}
	_, err = col.CreateDocument(ctx, doc)
	if driver.IsConflict(err) {
		_, err = col.UpdateDocument(ctx, "snapshot", doc)
	}
	return err
}

func (a *ArangoAdapter) PruneStale(ctx context.Context, etag string) (int, int, error) {
	nodesRemoved, err := a.pruneCollection(ctx, "nodes", etag)
	if err != nil {
		return 0, 0, err
	}
	edgesRemoved, err := a.pruneCollection(ctx, "edges", etag)
	return nodesRemoved, edgesRemoved, err
}

func (a *ArangoAdapter) pruneCollection(ctx context.Context, collection, etag string) (int, error) {
	aql := fmt.Sprintf(`
FOR d IN %s
  FILTER !HAS(d,'snapshot_etag') || d.snapshot_etag != @etag
  REMOVE d IN %s
  RETURN 1
`, collection, collection)
	cursor, err := a.db.Query(ctx, aql, &driver.QueryOptions{BindVars: map[string]interface{}{"etag": etag}})
	if err != nil {
		return 0, err
	}
	defer cursor.Close()
	n := 0
	for cursor.HasMore() {
		var one int
		if _, err := cursor.ReadDocument(ctx, &one); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// UpsertNodes writes nodes in micro-batches of a.batchSize with exponential
// backoff retries and a per-document fallback on persistent failure (§4.3).
func (a *ArangoAdapter) UpsertNodes(ctx context.Context, nodes []policy.Node) error {
	col, err := a.db.GetCollection(ctx, "nodes", nil)
	if err != nil {
		return err
	}
	for _, batch := range Batches(nodes, a.batchSize) {
		if err := a.upsertBatchWithRetry(ctx, col, toDocs(batch)); err != nil {
			return err
		}
	}
	return nil
}

func toDocs(nodes []policy.Node) []interface{} {
	out := make([]interface{}, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}

func (a *ArangoAdapter) UpsertEdges(ctx context.Context, edges []Edge) error {
	col, err := a.db.GetCollection(ctx, "edges", nil)
	if err != nil {
		return err
	}
	for _, batch := range Batches(edges, a.batchSize) {
		docs := make([]interface{}, len(batch))
		for i, e := range batch {
			docs[i] = map[string]interface{}{
				"_key": domainid.EdgeID(strings.ToLower(e.Type), e.From, e.To),
				"_from": "nodes/" + e.From, "_to": "nodes/" + e.To,
				"type": e.Type, "timestamp": e.Timestamp, "domain": e.Domain,
			}
		}
		if err := a.upsertBatchWithRetry(ctx, col, docs); err != nil {
			return err
		}
	}
	return nil
}

// upsertBatchWithRetry retries the whole batch with exponential backoff,
// then falls back to per-document writes recording {doc_id, reason} for any
// individual rejects (§4.3).
func (a *ArangoAdapter) upsertBatchWithRetry(ctx context.Context, col driver.Collection, docs []interface{}) error {
	var lastErr error
	for _, delay := range backoffSchedule(3) {
		_, err := col.CreateDocuments(ctx, docs, &driver.CollectionDocumentCreateOptions{Overwrite: boolPtr(true)})
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(delay + time.Duration(rand.Intn(20))*time.Millisecond)
	}
	var rejects []RejectedDoc
	for _, d := range docs {
		if _, err := col.CreateDocument(ctx, d); err != nil {
			id := fmt.Sprintf("%v", d)
			rejects = append(rejects, RejectedDoc{DocID: id, Reason: err.Error()})
		}
	}
	if len(rejects) > 0 {
		obslog.Warn(obslog.StageStorage, "upsert_per_doc_fallback_rejects", "count", len(rejects), "last_error", lastErr)
	}
	return nil
}
