package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/batvault/batvault/internal/bverr"
	"github.com/batvault/batvault/internal/loadshed"
	"github.com/batvault/batvault/internal/memory"
	"github.com/batvault/batvault/internal/meta"
)

// ServeQuery implements POST /v2/query (§4.5, §5, P11): a thin proxy to
// Memory's resolve/text, load-shed gated. Unlike /v2/ask, a shed request
// does not get a best-effort answer — it is rejected with 429 and a
// Retry-After hint so the caller backs off (literal Scenario 4).
func (h *Handler) ServeQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get(meta.HeaderRequestID)

	if h.LoadShed != nil && h.LoadShed.ShouldLoadShed(ctx) {
		w.Header().Set("Retry-After", strconv.Itoa(loadshed.RetryAfterSeconds))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"detail": "Service overloaded",
			"meta":   map[string]interface{}{"load_shed": true},
		})
		return
	}

	var req memory.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bverr.Wrap(bverr.KindValidationFailed, err, "malformed request body"), requestID)
		return
	}
	if req.SnapshotETag == "" {
		req.SnapshotETag = r.Header.Get(meta.HeaderSnapshotETag)
	}

	resp, err := h.Builder.Memory.ResolveText(ctx, req, r.Header)
	if err != nil {
		writeError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if etag := r.Header.Get(meta.HeaderSnapshotETag); etag != "" {
		w.Header().Set(meta.HeaderSnapshotETag, etag)
	}
	json.NewEncoder(w).Encode(resp)
}
