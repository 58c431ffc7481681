package llmrouter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batvault/batvault/internal/config"
)

type fakeAdapter struct {
	calls   int
	answers []*Answer
	errs    []error
}

func (f *fakeAdapter) Call(ctx context.Context, endpoint string, messages []Message, maxTokens int) (string, *Answer, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", nil, f.errs[i]
	}
	if i < len(f.answers) {
		return "{}", f.answers[i], nil
	}
	return "", nil, errors.New("no more canned responses")
}

func TestInvoke_LLMOffReturnsFallback(t *testing.T) {
	r := NewRouter(config.LLMConfig{Mode: "off"}, nil, nil)
	res := r.Invoke(context.Background(), "req-1", false, nil, 100, nil)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, ErrLLMOff, res.FallbackReason)
}

func TestInvoke_SuccessClampsSupportingIDs(t *testing.T) {
	control := &fakeAdapter{answers: []*Answer{{ShortAnswer: "ok", SupportingIDs: []string{"eng#d-anchor", "not-allowed"}}}}
	r := NewRouter(config.LLMConfig{Mode: "on", ContextWindow: 2048, ShortAnswerMaxChar: 320}, control, control)
	res := r.Invoke(context.Background(), "req-1", false, []Message{{Role: "user", Content: "why"}}, 100, []string{"eng#d-anchor"})
	require.False(t, res.FallbackUsed)
	require.NotNil(t, res.Answer)
	assert.Equal(t, []string{"eng#d-anchor"}, res.Answer.SupportingIDs)
}

func TestInvoke_ShortAnswerTruncatedTo320(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	control := &fakeAdapter{answers: []*Answer{{ShortAnswer: string(long)}}}
	r := NewRouter(config.LLMConfig{Mode: "on", ContextWindow: 2048, ShortAnswerMaxChar: 320}, control, control)
	res := r.Invoke(context.Background(), "req-1", false, nil, 100, nil)
	require.NotNil(t, res.Answer)
	assert.Len(t, res.Answer.ShortAnswer, 320)
}

func TestInvoke_RetriesExhaustedFallsBack(t *testing.T) {
	control := &fakeAdapter{errs: []error{errors.New("http_error 500"), errors.New("http_error 500"), errors.New("http_error 500")}}
	r := NewRouter(config.LLMConfig{Mode: "on", ContextWindow: 2048, Retries: 2}, control, control)
	res := r.Invoke(context.Background(), "req-1", false, nil, 100, nil)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, ErrHTTPError, res.FallbackReason)
	assert.Equal(t, 2, res.Retries)
}

func TestInvoke_RetriesCapAtTwoRegardlessOfConfig(t *testing.T) {
	r := NewRouter(config.LLMConfig{Mode: "on", ContextWindow: 2048, Retries: 10}, nil, nil)
	r.ControlAdapter = &fakeAdapter{errs: []error{errors.New("x"), errors.New("x"), errors.New("x")}}
	res := r.Invoke(context.Background(), "req-1", false, nil, 100, nil)
	assert.LessOrEqual(t, res.Retries, 2)
}

func TestClampMaxTokens_NeverExceedsContextBudget(t *testing.T) {
	assert.Equal(t, 100, clampMaxTokens(500, 1000, 700, 200))
	assert.Equal(t, 50, clampMaxTokens(50, 1000, 700, 200))
}

func TestStableHashPct_Deterministic(t *testing.T) {
	assert.Equal(t, stableHashPct("req-1"), stableHashPct("req-1"))
}
