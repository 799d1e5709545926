// Package collab holds the clients for the external collaborators the
// core depends on: the language-model provider, the retrieval engine,
// the repository fetcher and the audit sink. Each contract ships with
// an HTTP client and a deterministic stub used when no endpoint is
// configured.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

// CompletionRequest is the request sent to the language-model provider.
type CompletionRequest struct {
	Content        string `json:"content"`
	PromptTemplate string `json:"prompt_template,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
	Model          string `json:"model,omitempty"`
}

// CompletionResponse is the provider's reply. FallbackUsed is true when
// the provider served the request from a fallback model; callers must
// tolerate it.
type CompletionResponse struct {
	Summary          string `json:"summary"`
	ModelUsed        string `json:"model_used"`
	Provider         string `json:"provider"`
	TokenCount       int    `json:"token_count"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	FallbackUsed     bool   `json:"fallback_used"`
}

// LanguageModel is the opaque language-model provider contract.
type LanguageModel interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// HTTPLanguageModel talks to a provider over HTTP.
type HTTPLanguageModel struct {
	endpoint string
	client   *http.Client
}

// NewHTTPLanguageModel creates an HTTP-backed language model client.
func NewHTTPLanguageModel(endpoint string) *HTTPLanguageModel {
	return &HTTPLanguageModel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete posts the request to the provider's /complete route.
func (m *HTTPLanguageModel) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/complete", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, core.ErrUnavailable(core.CodeCollaboratorDown, "language model unreachable").WithCause(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, core.ErrUnavailable(core.CodeCollaboratorDown, fmt.Sprintf("language model returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ErrValidation("LLM_REJECTED", fmt.Sprintf("language model returned %d", resp.StatusCode))
	}

	var out CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}
	return &out, nil
}

// StubLanguageModel returns deterministic completions for tests and
// for running without a configured provider.
type StubLanguageModel struct {
	// Responses, when non-empty, are returned in order then recycled.
	Responses []string

	calls int
}

// Complete returns a canned summary derived from the request.
func (s *StubLanguageModel) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	summary := "summary: " + truncate(req.Content, 120)
	if len(s.Responses) > 0 {
		summary = s.Responses[s.calls%len(s.Responses)]
		s.calls++
	}
	return &CompletionResponse{
		Summary:    summary,
		ModelUsed:  "stub",
		Provider:   "stub",
		TokenCount: len(req.Content) / 4,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
