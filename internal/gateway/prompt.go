package gateway

import (
	"fmt"

	"github.com/batvault/batvault/internal/canon"
	"github.com/batvault/batvault/internal/evidence"
	"github.com/batvault/batvault/internal/llmrouter"
)

// systemPrompt instructs the selector-adapter contract of §4.11: reply with
// the fixed {short_answer, supporting_ids} JSON shape only.
const systemPrompt = `You answer "why was this decision made" questions using only the evidence bundle provided. Reply with JSON exactly shaped {"short_answer": string, "supporting_ids": [string]}. Every id in supporting_ids must come from the bundle's allowed_ids. Never invent ids or facts outside the bundle.`

// RenderMessages renders ev into the two-message chat payload an Adapter
// expects, grounding the model's reply in the canonical evidence bytes.
func RenderMessages(ev *evidence.WhyDecisionEvidence) []llmrouter.Message {
	body := canon.MustBytes(ev)
	user := fmt.Sprintf("Evidence bundle:\n%s\n\nWhy was this decision made? Cite only ids present in allowed_ids.", string(body))
	return []llmrouter.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}
