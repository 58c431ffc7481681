package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/batvault/batvault/internal/bverr"
	"github.com/batvault/batvault/internal/memory"
	"github.com/batvault/batvault/internal/policy"
)

// MemoryClient is the builder's view of the Memory service: enrich and
// expand_candidates, the only two calls §4.6's Collect makes upstream.
// Implemented over HTTP so Gateway and Memory can run as separate
// processes (§2); a direct in-process implementation could wrap
// *memory.Service for single-binary deployments.
type MemoryClient interface {
	Enrich(ctx context.Context, anchorID, snapshotETag string, headers http.Header) (policy.Node, error)
	ExpandCandidates(ctx context.Context, anchorID, snapshotETag string, headers http.Header) (*memory.ExpandResponse, error)
	ResolveText(ctx context.Context, req memory.ResolveRequest, headers http.Header) (*memory.ResolveResponse, error)
}

// HTTPMemoryClient calls a Memory service instance over HTTP, mirroring the
// policy/snapshot headers the caller received (§4.2, §6).
type HTTPMemoryClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPMemoryClient builds an HTTPMemoryClient against baseURL (e.g.
// http://memory:8081). A shared *http.Client is reused across calls (§5:
// "one shared async client per process").
func NewHTTPMemoryClient(baseURL string, httpClient *http.Client) *HTTPMemoryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPMemoryClient{BaseURL: baseURL, HTTP: httpClient}
}

func cloneHeaders(dst http.Header, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func (c *HTTPMemoryClient) do(ctx context.Context, method, path string, body interface{}, headers http.Header, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return bverr.Wrap(bverr.KindInternal, err, "marshal memory request")
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return bverr.Wrap(bverr.KindInternal, err, "build memory request")
	}
	cloneHeaders(req.Header, headers)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return bverr.Wrap(bverr.KindUpstreamTimeout, err, "memory request %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusPreconditionFailed {
		return bverr.New(bverr.KindPreconditionFailed, "memory snapshot precondition failed").WithStatus(resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return bverr.New(bverr.KindStorageUnavailable, "memory %s returned %d", path, resp.StatusCode).WithStatus(resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Enrich calls GET /api/enrich?anchor=... against the Memory service.
func (c *HTTPMemoryClient) Enrich(ctx context.Context, anchorID, snapshotETag string, headers http.Header) (policy.Node, error) {
	path := fmt.Sprintf("/api/enrich?anchor=%s&snapshot_etag=%s", anchorID, snapshotETag)
	var node policy.Node
	if err := c.do(ctx, http.MethodGet, path, nil, headers, &node); err != nil {
		return nil, err
	}
	return node, nil
}

// ExpandCandidates calls POST /api/graph/expand_candidates against the
// Memory service.
func (c *HTTPMemoryClient) ExpandCandidates(ctx context.Context, anchorID, snapshotETag string, headers http.Header) (*memory.ExpandResponse, error) {
	body := memory.ExpandRequest{AnchorID: anchorID, SnapshotETag: snapshotETag}
	var resp memory.ExpandResponse
	if err := c.do(ctx, http.MethodPost, "/api/graph/expand_candidates", body, headers, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveText calls POST /api/resolve/text against the Memory service, the
// thin NL-query proxy /v2/query sits in front of (§4.5).
func (c *HTTPMemoryClient) ResolveText(ctx context.Context, req memory.ResolveRequest, headers http.Header) (*memory.ResolveResponse, error) {
	var resp memory.ResolveResponse
	if err := c.do(ctx, http.MethodPost, "/api/resolve/text", req, headers, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// withRetry implements §4.6's "upstream fetch with at most one retry and
// ≤300ms jittered backoff".
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(rand.Intn(300)) * time.Millisecond):
	}
	return fn()
}
