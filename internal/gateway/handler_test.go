package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/batvault/batvault/internal/config"
	"github.com/batvault/batvault/internal/evidence"
	"github.com/batvault/batvault/internal/llmrouter"
	"github.com/batvault/batvault/internal/memory"
	"github.com/batvault/batvault/internal/meta"
	"github.com/batvault/batvault/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMemoryClient serves Enrich/ExpandCandidates from an in-memory node set,
// standing in for an HTTPMemoryClient talking to a real Memory service.
type fakeMemoryClient struct {
	nodes map[string]policy.Node
	edges []memory.WireEdge
}

func (f *fakeMemoryClient) Enrich(ctx context.Context, anchorID, snapshotETag string, headers http.Header) (policy.Node, error) {
	n, ok := f.nodes[anchorID]
	if !ok {
		return nil, os.ErrNotExist
	}
	return n, nil
}

func (f *fakeMemoryClient) ExpandCandidates(ctx context.Context, anchorID, snapshotETag string, headers http.Header) (*memory.ExpandResponse, error) {
	return &memory.ExpandResponse{
		Anchor: f.nodes[anchorID],
		Graph:  memory.ExpandGraph{Edges: f.edges},
	}, nil
}

func (f *fakeMemoryClient) ResolveText(ctx context.Context, req memory.ResolveRequest, headers http.Header) (*memory.ResolveResponse, error) {
	var matches []memory.ResolveMatch
	for id, n := range f.nodes {
		title, _ := n["title"].(string)
		if title == "" {
			continue
		}
		matches = append(matches, memory.ResolveMatch{ID: id, Score: 1.0, Title: title, Type: fieldStr(n, "type")})
	}
	return &memory.ResolveResponse{Query: req.Q, Matches: matches}, nil
}

// fakeAdapter is a deterministic llmrouter.Adapter stub.
type fakeAdapter struct {
	answer *llmrouter.Answer
	err    error
}

func (a *fakeAdapter) Call(ctx context.Context, endpoint string, messages []llmrouter.Message, maxTokens int) (string, *llmrouter.Answer, error) {
	if a.err != nil {
		return "", nil, a.err
	}
	return `{}`, a.answer, nil
}

func writeRoleProfile(t *testing.T, dir string) {
	t.Helper()
	profile := policy.RoleProfile{
		Role:               "engineer",
		Namespaces:         []string{"eng"},
		DomainScopes:       []string{"eng"},
		EdgeAllowlist:      []string{"LED_TO", "CAUSAL"},
		SensitivityCeiling: "high",
		AliasMaxHops:       1,
	}
	b, err := json.Marshal(profile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "role-engineer.json"), b, 0o644))
}

func baseHeaders() http.Header {
	h := http.Header{}
	h.Set("X-User-Id", "u1")
	h.Set("X-User-Roles", "engineer")
	h.Set("X-Policy-Version", "v1")
	h.Set("X-Policy-Key", "k1")
	h.Set("X-Request-Id", "req-1")
	h.Set("X-Trace-Id", "trace-1")
	return h
}

func newTestHandler(t *testing.T, adapter llmrouter.Adapter) *Handler {
	t.Helper()
	dir := t.TempDir()
	writeRoleProfile(t, dir)
	roles := policy.NewRoleLoader(dir)

	mc := &fakeMemoryClient{
		nodes: map[string]policy.Node{
			"d-anchor": {"id": "d-anchor", "title": "Adopt gRPC", "description": "Lower latency.", "timestamp": "2024-01-01T00:00:00Z"},
			"e-1":      {"id": "e-1", "summary": "Latency spike", "description": "Latency spikes under load.", "timestamp": "2023-12-15T00:00:00Z"},
		},
		edges: []memory.WireEdge{
			{Type: "LED_TO", From: "e-1", To: "d-anchor", Timestamp: "2023-12-15T00:00:00Z"},
		},
	}
	builder := evidence.NewBuilder(mc, nil)

	cfg := &config.Config{}
	cfg.Policy.SensitivityOrder = "low,medium,high"
	cfg.Budget.MaxCitedIDs = 8
	cfg.LLM.Mode = "auto"
	cfg.LLM.ContextWindow = 2048
	cfg.LLM.CompletionTokens = 256
	cfg.LLM.ShortAnswerMaxChar = 320

	router := llmrouter.NewRouter(cfg.LLM, adapter, adapter)

	return NewHandler(cfg, roles, builder, router, nil, nil)
}

// envelopeView decodes the wire envelope with a typed Answer, since
// meta.Envelope.Answer is an interface{} on the wire.
type envelopeView struct {
	Answer   llmrouter.Answer `json:"answer"`
	CitedIDs []string         `json:"cited_ids"`
	Meta     meta.Meta        `json:"meta"`
}

func TestServeAsk_HappyPath(t *testing.T) {
	adapter := &fakeAdapter{answer: &llmrouter.Answer{ShortAnswer: "Adopted gRPC for lower latency.", SupportingIDs: []string{"d-anchor", "e-1"}}}
	h := newTestHandler(t, adapter)

	body, _ := json.Marshal(AskRequest{Intent: "why_decision", AnchorID: "d-anchor"})
	req := httptest.NewRequest(http.MethodPost, "/v2/ask", jsonReader(body))
	req.Header = baseHeaders()

	rr := httptest.NewRecorder()
	h.ServeAsk(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var env envelopeView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.False(t, env.Meta.FallbackUsed)
	assert.NotEmpty(t, env.Meta.BundleFingerprint)
	assert.NotEmpty(t, rr.Header().Get(meta.HeaderPolicyFP))
	assert.Equal(t, "req-1", rr.Header().Get(meta.HeaderRequestID))
}

func TestServeAsk_MissingHeadersRejected(t *testing.T) {
	h := newTestHandler(t, &fakeAdapter{})
	body, _ := json.Marshal(AskRequest{Intent: "why_decision", AnchorID: "d-anchor"})
	req := httptest.NewRequest(http.MethodPost, "/v2/ask", jsonReader(body))

	rr := httptest.NewRecorder()
	h.ServeAsk(rr, req)

	assert.NotEqual(t, http.StatusOK, rr.Code)
}

func TestServeAsk_LLMFailureFallsBack(t *testing.T) {
	adapter := &fakeAdapter{err: assertErr{"endpoint unreachable"}}
	h := newTestHandler(t, adapter)

	body, _ := json.Marshal(AskRequest{Intent: "why_decision", AnchorID: "d-anchor"})
	req := httptest.NewRequest(http.MethodPost, "/v2/ask", jsonReader(body))
	req.Header = baseHeaders()

	rr := httptest.NewRecorder()
	h.ServeAsk(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var env envelopeView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.True(t, env.Meta.FallbackUsed)
	assert.NotEmpty(t, env.Answer.ShortAnswer)
}

func TestServeAsk_RejectsUnsupportedIntent(t *testing.T) {
	h := newTestHandler(t, &fakeAdapter{})
	body, _ := json.Marshal(AskRequest{Intent: "summarize", AnchorID: "d-anchor"})
	req := httptest.NewRequest(http.MethodPost, "/v2/ask", jsonReader(body))
	req.Header = baseHeaders()

	rr := httptest.NewRecorder()
	h.ServeAsk(rr, req)

	assert.NotEqual(t, http.StatusOK, rr.Code)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func jsonReader(b []byte) io.Reader { return bytes.NewReader(b) }
