package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/batvault/batvault/internal/allowedids"
	"github.com/batvault/batvault/internal/budget"
	"github.com/batvault/batvault/internal/bverr"
	"github.com/batvault/batvault/internal/cache"
	"github.com/batvault/batvault/internal/config"
	"github.com/batvault/batvault/internal/evidence"
	"github.com/batvault/batvault/internal/idem"
	"github.com/batvault/batvault/internal/llmrouter"
	"github.com/batvault/batvault/internal/loadshed"
	"github.com/batvault/batvault/internal/meta"
	"github.com/batvault/batvault/internal/metrics"
	"github.com/batvault/batvault/internal/obslog"
	"github.com/batvault/batvault/internal/policy"
	"github.com/batvault/batvault/internal/selector"
	"github.com/batvault/batvault/internal/snapshot"
	"github.com/batvault/batvault/internal/validator"
	"github.com/google/uuid"
)

// Handler wires the evidence builder, budget gate, LLM router and
// validator into the /v2/ask HTTP edge, the way the teacher's APIServer
// wraps its services with a thin net/http layer.
type Handler struct {
	Cfg       *config.Config
	Roles     *policy.RoleLoader
	Builder   *evidence.Builder
	Router    *llmrouter.Router
	Idem      *idem.Guard
	LoadShed  *loadshed.Sampler
	SensOrder []string
}

// NewHandler builds a Handler.
func NewHandler(cfg *config.Config, roles *policy.RoleLoader, builder *evidence.Builder, router *llmrouter.Router, idemGuard *idem.Guard, shed *loadshed.Sampler) *Handler {
	return &Handler{
		Cfg: cfg, Roles: roles, Builder: builder, Router: router,
		Idem: idemGuard, LoadShed: shed, SensOrder: cfg.SensitivityOrderList(),
	}
}

func writeError(w http.ResponseWriter, err error, requestID string) {
	be, ok := err.(*bverr.Error)
	if !ok {
		be = bverr.Wrap(bverr.KindInternal, err, "internal error")
	}
	if be.RequestID == "" && requestID != "" {
		be = be.WithRequestID(requestID)
	}
	metrics.IncAskRequests("error")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(be.Status)
	json.NewEncoder(w).Encode(be.ToEnvelope())
}

// ServeAsk implements POST /v2/ask (§4.12): header policy resolution,
// load-shed and idempotency gating, evidence collection, the budget gate,
// LLM invocation with deterministic fallback, validation, and response
// assembly with mirrored fingerprint headers. SSE framing is applied when
// ?stream=true is present.
func (h *Handler) ServeAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get(meta.HeaderRequestID)
	spanID := uuid.NewString()
	start := time.Now()
	defer func() { metrics.ObserveAskLatency(time.Since(start)) }()

	if err := policy.RequireHeaders(r.Header); err != nil {
		writeError(w, bverr.Wrap(bverr.KindPolicyError, err, "missing required headers"), requestID)
		return
	}
	pol, err := policy.ComputeEffectivePolicy(r.Header, h.Roles, h.SensOrder)
	if err != nil {
		writeError(w, bverr.Wrap(bverr.KindPolicyError, err, "cannot compute effective policy"), requestID)
		return
	}

	// Sampled once and threaded through: §4.12/P11 require meta.load_shed
	// and the forced LLM-off fallback to agree within a single request,
	// and re-sampling per call triples load on the signals loadshed exists
	// to protect.
	shed := h.LoadShed != nil && h.LoadShed.ShouldLoadShed(ctx)
	if shed {
		obslog.Warn(obslog.StageGateway, "load_shed_forces_fallback", "request_id", requestID)
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bverr.Wrap(bverr.KindValidationFailed, err, "malformed request body"), requestID)
		return
	}
	if req.Intent != "why_decision" {
		writeError(w, bverr.New(bverr.KindValidationFailed, "unsupported intent %q", req.Intent), requestID)
		return
	}

	scopeFP, err := idem.ScopeFP(idem.ScopeBasis{
		Method: r.Method, PathTemplate: "/v2/ask", Body: req,
		SnapshotETag: r.Header.Get(meta.HeaderSnapshotETag), PolicyFP: pol.PolicyFP,
	})
	if err != nil {
		writeError(w, bverr.Wrap(bverr.KindInternal, err, "idempotency scoping failed"), requestID)
		return
	}
	if h.Idem != nil && requestID != "" {
		outcome, cached, cerr := h.Idem.Check(ctx, requestID, "gateway", scopeFP)
		if cerr == nil && outcome == idem.OutcomeMerged {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(cached)
			return
		}
		if cerr == nil && outcome == idem.OutcomeRejected {
			writeError(w, bverr.New(bverr.KindValidationFailed, "idempotency key %q already used for a different request", requestID), requestID)
			return
		}
	}

	ev := req.Evidence
	if ev == nil {
		if req.AnchorID == "" {
			writeError(w, bverr.New(bverr.KindValidationFailed, "anchor_id or evidence required"), requestID)
			return
		}
		collected, cerr := h.Builder.Collect(ctx, req.AnchorID, r.Header, r.Header.Get(meta.HeaderSnapshotETag))
		if cerr != nil {
			writeError(w, cerr, requestID)
			return
		}
		ev = collected
	}

	trimmed, plan := budget.Run(ev, h.Cfg.Budget, pol.EdgeAllowlist)

	rankedIDs := rankEventIDs(trimmed)

	var result llmrouter.Result
	if shed {
		result = llmrouter.Result{FallbackUsed: true, FallbackReason: "llm_off"}
	} else {
		messages := RenderMessages(trimmed)
		result = h.Router.Invoke(ctx, requestID, r.Header.Get("X-BV-Canary") == "true", messages, h.Cfg.LLM.CompletionTokens, trimmed.AllowedIDs)
	}

	var answerText string
	var citedIDs []string
	if result.FallbackUsed || result.Answer == nil {
		answerText = validator.ComposeFallback(trimmed, rankedIDs)
		citedIDs = allowedids.Derive(fieldStr(trimmed.Anchor, "id"), rankedIDs, nodeIDs(trimmed.Transitions.Preceding), nodeIDs(trimmed.Transitions.Succeeding))
		if len(citedIDs) > h.Cfg.Budget.MaxCitedIDs && h.Cfg.Budget.MaxCitedIDs > 0 {
			citedIDs = citedIDs[:h.Cfg.Budget.MaxCitedIDs]
		}
	} else {
		answerText = result.Answer.ShortAnswer
		citedIDs = result.Answer.SupportingIDs
	}

	report := validator.Validate(validator.Input{
		Evidence: trimmed,
		PolicyFP: pol.PolicyFP,
		CitedIDs: citedIDs,
	})
	if !report.Pass {
		answerText = validator.ComposeFallback(trimmed, rankedIDs)
		citedIDs = allowedids.Derive(fieldStr(trimmed.Anchor, "id"), rankedIDs, nil, nil)
		result.FallbackUsed = true
		if result.FallbackReason == "" {
			result.FallbackReason = "style_violation"
		}
	}

	bundleFP := trimmed.BundleFP()
	m := meta.Meta{
		RequestID:           requestID,
		TraceID:             r.Header.Get(meta.HeaderTraceID),
		SpanID:              spanID,
		PolicyID:            req.PolicyID,
		PolicyFingerprint:   pol.PolicyFP,
		PromptID:            req.PromptID,
		PromptFingerprint:   plan.PromptFP,
		BundleFingerprint:   bundleFP,
		SnapshotETag:        trimmed.SnapshotETag,
		GatewayVersion:      meta.GatewayVersion,
		SelectorModelID:     selector.PolicyID,
		FallbackUsed:        result.FallbackUsed,
		FallbackReason:      result.FallbackReason,
		Retries:             result.Retries,
		LatencyMs:           time.Since(start).Milliseconds(),
		ValidatorErrorCount: len(report.Errors),
		EventsTotal:         len(ev.Events),
		EventsTruncated:     plan.Truncated,
		SnapshotAvailable:   snapshot.IsKnown(trimmed.SnapshotETag),
		LoadShed:            shed,
		ResolverPath:        "evidence_builder",
	}
	meta.MirrorHeaders(w.Header(), m, cache.FP(trimmed.AllowedIDs))

	envelope := meta.Envelope{
		Answer:    llmrouter.Answer{ShortAnswer: answerText, SupportingIDs: citedIDs},
		Evidence:  trimmed,
		CitedIDs:  citedIDs,
		Meta:      m,
	}

	if h.Idem != nil && requestID != "" {
		_ = h.Idem.Commit(ctx, requestID, "gateway", scopeFP, envelope)
	}

	if result.FallbackUsed {
		metrics.IncAskRequests("fallback")
	} else {
		metrics.IncAskRequests("ok")
	}

	if r.URL.Query().Get("stream") == "true" {
		writeSSE(w, answerText, envelope)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope)
}

// writeSSE frames answerText as one-or-more token events per §4.12's SSE
// contract, followed by the full envelope and the terminal [DONE] sentinel.
func writeSSE(w http.ResponseWriter, answerText string, envelope meta.Envelope) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, canFlush := w.(http.Flusher)
	bw := bufio.NewWriter(w)
	for _, tok := range strings.Fields(answerText) {
		fmt.Fprintf(bw, "data: %s\n\n", mustJSON(map[string]string{"token": tok + " "}))
		bw.Flush()
		if canFlush {
			flusher.Flush()
		}
	}
	fmt.Fprintf(bw, "data: %s\n\n", mustJSON(envelope))
	bw.Flush()
	fmt.Fprint(bw, "data: [DONE]\n\n")
	bw.Flush()
	if canFlush {
		flusher.Flush()
	}
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func rankEventIDs(ev *evidence.WhyDecisionEvidence) []string {
	anchorTitle := fieldStr(ev.Anchor, "title")
	anchorDesc := fieldStr(ev.Anchor, "description")
	events := make([]selector.Event, 0, len(ev.Events))
	for _, e := range ev.Events {
		events = append(events, selector.Event{
			ID:          fieldStr(e, "id"),
			Description: fieldStr(e, "description"), Summary: fieldStr(e, "summary"),
			Timestamp: fieldStr(e, "timestamp"),
		})
	}
	ranked := selector.RankEvents(anchorTitle, anchorDesc, events)
	ids := make([]string, 0, len(ranked))
	for _, e := range ranked {
		ids = append(ids, e.ID)
	}
	return ids
}

func nodeIDs(nodes []policy.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, fieldStr(n, "id"))
	}
	return ids
}

func fieldStr(n map[string]interface{}, key string) string {
	s, _ := n[key].(string)
	return s
}
