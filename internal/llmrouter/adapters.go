package llmrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VLLMAdapter calls an OpenAI-compatible chat completions endpoint.
type VLLMAdapter struct {
	Model string
	HTTP  *http.Client
}

// NewVLLMAdapter builds a VLLMAdapter against model, reusing httpClient
// (nil builds a process-default client, §5: "one shared async client").
func NewVLLMAdapter(model string, httpClient *http.Client) *VLLMAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &VLLMAdapter{Model: model, HTTP: httpClient}
}

type vllmChatRequest struct {
	Model     string        `json:"model"`
	Messages  []vllmMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type vllmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type vllmChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *VLLMAdapter) Call(ctx context.Context, endpoint string, messages []Message, maxTokens int) (string, *Answer, error) {
	reqMessages := make([]vllmMessage, len(messages))
	for i, m := range messages {
		reqMessages[i] = vllmMessage{Role: m.Role, Content: m.Content}
	}
	body, err := json.Marshal(vllmChatRequest{Model: a.Model, Messages: reqMessages, MaxTokens: maxTokens})
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("vllm endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(raw), "token") {
		return string(raw), nil, fmt.Errorf("vllm token overflow: %s", raw)
	}
	if resp.StatusCode >= 300 {
		return string(raw), nil, fmt.Errorf("vllm http_error %d", resp.StatusCode)
	}

	var chat vllmChatResponse
	if err := json.Unmarshal(raw, &chat); err != nil || len(chat.Choices) == 0 {
		return string(raw), nil, fmt.Errorf("vllm parse_error: %w", err)
	}

	var answer Answer
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &answer); err != nil {
		return string(raw), nil, fmt.Errorf("vllm parse_error: %w", err)
	}
	return string(raw), &answer, nil
}

// TGIAdapter calls a text-generation-inference prompt-string endpoint.
type TGIAdapter struct {
	HTTP *http.Client
}

// NewTGIAdapter builds a TGIAdapter.
func NewTGIAdapter(httpClient *http.Client) *TGIAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TGIAdapter{HTTP: httpClient}
}

type tgiRequest struct {
	Inputs     string            `json:"inputs"`
	Parameters tgiRequestParams  `json:"parameters"`
}

type tgiRequestParams struct {
	MaxNewTokens int `json:"max_new_tokens"`
}

type tgiResponse struct {
	GeneratedText string `json:"generated_text"`
}

// renderPrompt flattens a chat message list to the single prompt string TGI
// expects.
func renderPrompt(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func (a *TGIAdapter) Call(ctx context.Context, endpoint string, messages []Message, maxTokens int) (string, *Answer, error) {
	body, err := json.Marshal(tgiRequest{Inputs: renderPrompt(messages), Parameters: tgiRequestParams{MaxNewTokens: maxTokens}})
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("tgi endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(raw), "token") {
		return string(raw), nil, fmt.Errorf("tgi token overflow: %s", raw)
	}
	if resp.StatusCode >= 300 {
		return string(raw), nil, fmt.Errorf("tgi http_error %d", resp.StatusCode)
	}

	var tgi tgiResponse
	if err := json.Unmarshal(raw, &tgi); err != nil {
		return string(raw), nil, fmt.Errorf("tgi parse_error: %w", err)
	}

	var answer Answer
	if err := json.Unmarshal([]byte(tgi.GeneratedText), &answer); err != nil {
		return string(raw), nil, fmt.Errorf("tgi parse_error: %w", err)
	}
	return string(raw), &answer, nil
}

// PickAdapter implements §4.11's "picked by endpoint heuristic": TGI
// endpoints conventionally expose /generate, everything else is treated as
// an OpenAI-compatible vLLM chat endpoint.
func PickAdapter(endpoint string, vllm *VLLMAdapter, tgi *TGIAdapter) Adapter {
	if strings.Contains(endpoint, "/generate") {
		return tgi
	}
	return vllm
}
