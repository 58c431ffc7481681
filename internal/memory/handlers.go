package memory

import (
	"encoding/json"
	"net/http"

	"github.com/batvault/batvault/internal/bverr"
	"github.com/batvault/batvault/internal/obslog"
	"github.com/batvault/batvault/internal/policy"
)

// Handlers wires Service to net/http, the way the teacher's internal/api
// handlers wrap a service struct per gorilla/mux route (§4.5's "HTTP
// framing is external" — this is that framing, at the Memory service's own
// edge, not the spec'd Gateway/Memory boundary).
type Handlers struct {
	Svc         *Service
	Roles       *policy.RoleLoader
	SensOrder   []string
	SchemaCache *SchemaCache
}

// NewHandlers builds Handlers.
func NewHandlers(svc *Service, roles *policy.RoleLoader, sensOrder []string, schemas *SchemaCache) *Handlers {
	return &Handlers{Svc: svc, Roles: roles, SensOrder: sensOrder, SchemaCache: schemas}
}

func writeError(w http.ResponseWriter, err error) {
	if be, ok := err.(*bverr.Error); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(be.Status)
		json.NewEncoder(w).Encode(be.ToEnvelope())
		return
	}
	be := bverr.Wrap(bverr.KindInternal, err, "internal error")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(be.Status)
	json.NewEncoder(w).Encode(be.ToEnvelope())
}

func (h *Handlers) derivePolicy(r *http.Request) (*policy.Policy, error) {
	return policy.ComputeEffectivePolicy(r.Header, h.Roles, h.SensOrder)
}

func mirrorCommonHeaders(w http.ResponseWriter, snapshotETag, policyFP string) {
	w.Header().Set("x-snapshot-etag", snapshotETag)
	w.Header().Set("X-BV-Policy-Fingerprint", policyFP)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// snapshotFromRequest reads X-Snapshot-ETag, falling back to a body field
// already parsed by the caller (bodyETag), per §4.5's "body snapshot_etag
// or header X-Snapshot-ETag".
func snapshotFromRequest(r *http.Request, bodyETag string) string {
	if h := r.Header.Get("X-Snapshot-ETag"); h != "" {
		return h
	}
	return bodyETag
}

// HandleEnrich serves GET/POST /api/enrich.
func (h *Handlers) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	p, err := h.derivePolicy(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req EnrichRequest
	if r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&req)
	} else {
		req.AnchorID = r.URL.Query().Get("anchor")
		req.SnapshotETag = r.URL.Query().Get("snapshot_etag")
	}

	current, err := h.Svc.CheckSnapshotPrecondition(r.Context(), snapshotFromRequest(r, req.SnapshotETag))
	if err != nil {
		mirrorCommonHeaders(w, current, p.PolicyFP)
		writeError(w, err)
		return
	}

	node, summary, err := h.Svc.Enrich(r.Context(), req.AnchorID, p)
	mirrorCommonHeaders(w, current, p.PolicyFP)
	if err != nil {
		writeError(w, err)
		return
	}

	body := map[string]interface{}{"mask_summary": summary}
	for k, v := range node {
		body[k] = v
	}
	w.Header().Set("X-BV-Schema-FP", h.SchemaCache.Fingerprint("bundle_view", BundleViewSchema))
	writeJSON(w, http.StatusOK, body)
}

// HandleEnrichBatch serves POST /api/enrich/batch.
func (h *Handlers) HandleEnrichBatch(w http.ResponseWriter, r *http.Request) {
	p, err := h.derivePolicy(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req EnrichBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bverr.Wrap(bverr.KindValidationFailed, err, "decode body"))
		return
	}

	current, err := h.Svc.CheckSnapshotPrecondition(r.Context(), snapshotFromRequest(r, req.SnapshotETag))
	if err != nil {
		mirrorCommonHeaders(w, current, p.PolicyFP)
		writeError(w, err)
		return
	}
	req.SnapshotETag = current

	resp, err := h.Svc.EnrichBatch(r.Context(), req, p)
	mirrorCommonHeaders(w, current, p.PolicyFP)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-BV-Allowed-Ids-FP", resp.Meta.AllowedIDsFP)
	writeJSON(w, http.StatusOK, resp)
}

// HandleResolveText serves POST /api/resolve/text.
func (h *Handlers) HandleResolveText(w http.ResponseWriter, r *http.Request) {
	p, err := h.derivePolicy(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bverr.Wrap(bverr.KindValidationFailed, err, "decode body"))
		return
	}

	current, err := h.Svc.CheckSnapshotPrecondition(r.Context(), snapshotFromRequest(r, req.SnapshotETag))
	if err != nil {
		mirrorCommonHeaders(w, current, p.PolicyFP)
		writeError(w, err)
		return
	}

	resp, err := h.Svc.ResolveText(r.Context(), req, p, current)
	mirrorCommonHeaders(w, current, p.PolicyFP)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleExpandCandidates serves POST /api/graph/expand_candidates.
func (h *Handlers) HandleExpandCandidates(w http.ResponseWriter, r *http.Request) {
	p, err := h.derivePolicy(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ExpandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bverr.Wrap(bverr.KindValidationFailed, err, "decode body"))
		return
	}

	current, err := h.Svc.CheckSnapshotPrecondition(r.Context(), snapshotFromRequest(r, req.SnapshotETag))
	if err != nil {
		mirrorCommonHeaders(w, current, p.PolicyFP)
		writeError(w, err)
		return
	}

	resp, err := h.Svc.ExpandCandidates(r.Context(), req.AnchorID, p, current)
	mirrorCommonHeaders(w, current, p.PolicyFP)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ValidateGraphView(resp) {
		obslog.Error(obslog.StageMemory, "graph_view_schema_violation", nil, "anchor_id", req.AnchorID)
		writeError(w, bverr.New(bverr.KindValidationFailed, "graph view failed schema validation"))
		return
	}
	w.Header().Set("X-BV-Graph-FP", resp.Meta.Fingerprints.GraphFP)
	w.Header().Set("X-BV-Allowed-Ids-FP", resp.Meta.AllowedIDsFP)
	w.Header().Set("X-BV-Schema-FP", h.SchemaCache.Fingerprint("graph_view", GraphViewSchema))
	writeJSON(w, http.StatusOK, resp)
}
