// Package gateway implements the Gateway's /v2/ask HTTP edge of spec §4.12:
// collecting evidence, running the budget gate, invoking the LLM router,
// validating the result, composing the deterministic fallback when needed,
// and assembling the final response envelope and mirrored headers. Wired
// the way the teacher's internal/api wraps its services over gorilla/mux
// (NewXServer + RegisterRoutes + Start), generalised to BatVault's request
// shape.
package gateway

import (
	"github.com/batvault/batvault/internal/evidence"
	"github.com/batvault/batvault/internal/llmrouter"
)

// AskRequest is the /v2/ask POST body (§4.12).
type AskRequest struct {
	Intent    string                        `json:"intent"`
	AnchorID  string                        `json:"anchor_id,omitempty"`
	Evidence  *evidence.WhyDecisionEvidence `json:"evidence,omitempty"`
	Answer    *llmrouter.Answer             `json:"answer,omitempty"`
	PolicyID  string                        `json:"policy_id,omitempty"`
	PromptID  string                        `json:"prompt_id,omitempty"`
	RequestID string                        `json:"request_id,omitempty"`
}
