package obslog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureHandler records the attributes of the single most recent record
// logged through it, so tests can assert on stage/event wiring without
// parsing formatted log output.
type captureHandler struct {
	level slog.Level
	rec   *slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	cp := r.Clone()
	h.rec = &cp
	h.level = r.Level
	return nil
}
func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(name string) slog.Handler      { return h }

func attrsOf(r *slog.Record) map[string]interface{} {
	out := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})
	return out
}

func withCapture(t *testing.T) *captureHandler {
	t.Helper()
	prev := slog.Default()
	h := &captureHandler{}
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return h
}

func TestEvent_LogsStageAndArgs(t *testing.T) {
	h := withCapture(t)
	Event(StageGateway, "ask_received", "request_id", "req-1")

	require.NotNil(t, h.rec)
	assert.Equal(t, slog.LevelInfo, h.level)
	assert.Equal(t, "ask_received", h.rec.Message)
	attrs := attrsOf(h.rec)
	assert.Equal(t, "gateway", attrs["stage"])
	assert.Equal(t, "req-1", attrs["request_id"])
}

func TestWarn_UsesWarnLevel(t *testing.T) {
	h := withCapture(t)
	Warn(StageMemory, "resolver_miss", "query", "what happened")

	require.NotNil(t, h.rec)
	assert.Equal(t, slog.LevelWarn, h.level)
	assert.Equal(t, "memory", attrsOf(h.rec)["stage"])
}

func TestError_IncludesErrorAttr(t *testing.T) {
	h := withCapture(t)
	cause := assertErr("storage unavailable")
	Error(StageStorage, "dial_failed", cause)

	require.NotNil(t, h.rec)
	assert.Equal(t, slog.LevelError, h.level)
	attrs := attrsOf(h.rec)
	assert.Equal(t, "storage", attrs["stage"])
	assert.Equal(t, cause, attrs["error"])
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
