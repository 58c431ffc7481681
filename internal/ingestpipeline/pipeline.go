package ingestpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/batvault/batvault/internal/catalog"
	"github.com/batvault/batvault/internal/obslog"
	"github.com/batvault/batvault/internal/policy"
	"github.com/batvault/batvault/internal/snapshot"
	"github.com/batvault/batvault/internal/storage"
)

// fixtureFile pairs a collected path with its raw bytes, for ordered
// snapshot-ETag hashing (§4.14, §3).
type fixtureFile struct {
	Path    string
	Content []byte
}

// Collect recursively gathers every *.json fixture under dir, in
// deterministic (sorted path) order.
func Collect(dir string) ([]fixtureFile, error) {
	var files []fixtureFile
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		files = append(files, fixtureFile{Path: path, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Pipeline runs one ingest batch against a storage.Adapter and publishes
// the resulting field catalog (catalog.Store keeps a fixed relation catalog).
type Pipeline struct {
	Store        storage.Adapter
	CatalogStore *catalog.Store
	VersionStore *catalog.VersionStore
}

// NewPipeline builds a Pipeline.
func NewPipeline(store storage.Adapter, catalogStore *catalog.Store, versionStore *catalog.VersionStore) *Pipeline {
	return &Pipeline{Store: store, CatalogStore: catalogStore, VersionStore: versionStore}
}

// Run executes the full §4.14 flow against dir: collect, parse, canonicalise
// aliases, infer kind, validate schema, normalise, enrich snippets, derive
// backlinks, check referential integrity, apply field whitelists, compute
// the snapshot ETag, upsert nodes then edges, prune stale documents, and
// publish the field catalog. Any parse, schema, or referential
// error fails the whole batch (no partial writes) and is returned in
// BatchReport.Errors with OK=false.
func (p *Pipeline) Run(ctx context.Context, dir string) (BatchReport, error) {
	files, err := Collect(dir)
	if err != nil {
		return BatchReport{}, fmt.Errorf("ingestpipeline: collect %s: %w", dir, err)
	}
	if len(files) == 0 {
		obslog.Warn(obslog.StageIngest, "fixture_scan_empty", "dir", dir)
		return BatchReport{OK: false, Errors: []ValidationError{{Path: dir, Message: "no fixture files found"}}}, nil
	}

	decisions := make(map[string]Doc)
	events := make(map[string]Doc)
	transitions := make(map[string]Doc)

	var errs []ValidationError
	aliasHits := 0

	for _, f := range files {
		var raw Doc
		if err := json.Unmarshal(f.Content, &raw); err != nil {
			errs = append(errs, ValidationError{Path: f.Path, Message: "json parse error: " + err.Error()})
			continue
		}
		canon, hits := canonicalize(raw)
		aliasHits += hits

		kind, ok := inferKind(canon)
		if !ok {
			errs = append(errs, ValidationError{Path: f.Path, Message: "cannot infer kind (expected decision/event/transition)"})
			continue
		}
		for _, verr := range validateSchema(f.Path, canon, kind) {
			errs = append(errs, verr)
		}

		id := strOf(canon, "id")
		switch kind {
		case KindDecision:
			decisions[id] = canon
		case KindEvent:
			events[id] = canon
		case KindTransition:
			transitions[id] = canon
		}
	}
	if len(errs) > 0 {
		for _, e := range errs {
			obslog.Warn(obslog.StageIngest, "validation_error", "path", e.Path, "message", e.Message)
		}
		return BatchReport{OK: false, Files: len(files), Errors: errs}, nil
	}

	normDecisions := make(map[string]Doc, len(decisions))
	normEvents := make(map[string]Doc, len(events))
	normTransitions := make(map[string]Doc, len(transitions))

	for id, d := range decisions {
		nd, err := NormalizeDecision(d)
		if err != nil {
			errs = append(errs, ValidationError{Path: id, Message: err.Error()})
			continue
		}
		normDecisions[nd["id"].(string)] = nd
	}
	for id, e := range events {
		ne, err := NormalizeEvent(e)
		if err != nil {
			errs = append(errs, ValidationError{Path: id, Message: err.Error()})
			continue
		}
		normEvents[ne["id"].(string)] = ne
	}
	for id, t := range transitions {
		nt, err := NormalizeTransition(t)
		if err != nil {
			errs = append(errs, ValidationError{Path: id, Message: err.Error()})
			continue
		}
		normTransitions[nt["id"].(string)] = nt
	}
	if len(errs) > 0 {
		for _, e := range errs {
			obslog.Warn(obslog.StageIngest, "normalization_error", "path", e.Path, "message", e.Message)
		}
		return BatchReport{OK: false, Files: len(files), Errors: errs}, nil
	}

	for _, d := range normDecisions {
		enrichSnippet(d, KindDecision)
	}
	for _, e := range normEvents {
		enrichSnippet(e, KindEvent)
	}

	deriveBacklinks(normDecisions, normEvents, normTransitions)

	riErrors := referentialIntegrityErrors(normDecisions, normEvents, normTransitions)
	if len(riErrors) > 0 {
		for _, e := range riErrors {
			obslog.Warn(obslog.StageIngest, "ri_error", "path", e.Path, "message", e.Message)
		}
		return BatchReport{OK: false, Files: len(files), Errors: riErrors}, nil
	}

	for id, d := range normDecisions {
		normDecisions[id] = applyFieldWhitelist(d, KindDecision)
	}
	for id, e := range normEvents {
		normEvents[id] = applyFieldWhitelist(e, KindEvent)
	}
	for id, t := range normTransitions {
		normTransitions[id] = applyFieldWhitelist(t, KindTransition)
	}

	snapshotFiles := make([]snapshot.FileContent, len(files))
	for i, f := range files {
		snapshotFiles[i] = snapshot.FileContent{Path: f.Path, Content: f.Content}
	}
	now := time.Now()
	etag := snapshot.Compute(snapshotFiles, now)

	nodeDocs, edgeDocs := buildGraphDocs(normDecisions, normEvents, normTransitions, etag)

	if err := p.Store.UpsertNodes(ctx, nodeDocs); err != nil {
		return BatchReport{}, fmt.Errorf("ingestpipeline: upsert nodes: %w", err)
	}
	if err := p.Store.UpsertEdges(ctx, edgeDocs); err != nil {
		return BatchReport{}, fmt.Errorf("ingestpipeline: upsert edges: %w", err)
	}
	if err := p.Store.SetSnapshotETag(ctx, etag); err != nil {
		return BatchReport{}, fmt.Errorf("ingestpipeline: set snapshot etag: %w", err)
	}

	nodesRemoved, edgesRemoved, err := p.Store.PruneStale(ctx, etag)
	if err != nil {
		return BatchReport{}, fmt.Errorf("ingestpipeline: prune stale: %w", err)
	}

	allDocs := make([]map[string]interface{}, 0, len(normDecisions)+len(normEvents))
	for _, d := range normDecisions {
		allDocs = append(allDocs, d)
	}
	for _, e := range normEvents {
		allDocs = append(allDocs, e)
	}
	fields := catalog.BuildFieldCatalog(allDocs)
	if p.CatalogStore != nil {
		p.CatalogStore.Publish(fields)
	}
	if p.VersionStore != nil {
		p.VersionStore.Push(etag, fields, now)
	}

	obslog.Event(obslog.StageIngest, "batch_completed",
		"snapshot_etag", etag, "files", len(files),
		"decisions", len(normDecisions), "events", len(normEvents), "transitions", len(normTransitions),
		"alias_hits", aliasHits, "removed_nodes", nodesRemoved, "removed_edges", edgesRemoved)

	return BatchReport{
		OK:            true,
		Files:         len(files),
		Decisions:     len(normDecisions),
		Events:        len(normEvents),
		Transitions:   len(normTransitions),
		AliasHits:     aliasHits,
		SnapshotETag:  etag,
		NodesUpserted: len(nodeDocs),
		EdgesUpserted: len(edgeDocs),
		NodesRemoved:  nodesRemoved,
		EdgesRemoved:  edgesRemoved,
	}, nil
}

// storageKeyFor builds the domain_id storage key for a normalised doc
// carrying both "domain" and "id" (§3).
func storageKeyFor(doc Doc) string {
	return strOf(doc, "domain") + "_" + strOf(doc, "id")
}

// buildGraphDocs renders the normalised decision/event/transition maps into
// storage node and edge documents: LED_TO (event→decision), CAUSAL
// (transition, both endpoint decisions), matching original_source's
// graph_upsert.upsert_all edge construction.
func buildGraphDocs(decisions, events, transitions map[string]Doc, etag string) ([]policy.Node, []storage.Edge) {
	var nodes []policy.Node
	for _, d := range decisions {
		nodes = append(nodes, nodeDoc(d, "decision", etag))
	}
	for _, e := range events {
		nodes = append(nodes, nodeDoc(e, "event", etag))
	}
	for _, t := range transitions {
		nodes = append(nodes, nodeDoc(t, "transition", etag))
	}

	var edges []storage.Edge
	for _, e := range events {
		eKey := storageKeyFor(e)
		for _, did := range normStringList(e["led_to"]) {
			dec, ok := decisions[did]
			if !ok {
				continue
			}
			edges = append(edges, storage.Edge{
				Type:      "LED_TO",
				From:      eKey,
				To:        storageKeyFor(dec),
				Timestamp: strOf(e, "timestamp"),
				Domain:    strOf(e, "domain"),
			})
		}
	}
	for _, t := range transitions {
		from, ok1 := decisions[strOf(t, "from")]
		to, ok2 := decisions[strOf(t, "to")]
		if !ok1 || !ok2 {
			continue
		}
		edges = append(edges, storage.Edge{
			Type:      "CAUSAL",
			From:      storageKeyFor(from),
			To:        storageKeyFor(to),
			Timestamp: strOf(t, "timestamp"),
			Domain:    strOf(t, "domain"),
		})
	}
	return nodes, edges
}

// nodeDoc renders a normalised decision/event/transition into the storage
// schema's node shape (spec §3: every node carries a "title", not the
// ingest-side "option" alias a decision fixture is authored with).
func nodeDoc(d Doc, docType, etag string) policy.Node {
	out := make(policy.Node, len(d)+3)
	for k, v := range d {
		out[k] = v
	}
	if docType == "decision" {
		if option, ok := out["option"]; ok {
			out["title"] = option
			delete(out, "option")
		}
		if _, hasDescription := out["description"]; !hasDescription {
			if rationale, ok := out["rationale"]; ok {
				out["description"] = rationale
			}
		}
	}
	out["_key"] = storageKeyFor(d)
	out["type"] = docType
	out["snapshot_etag"] = etag
	return out
}
