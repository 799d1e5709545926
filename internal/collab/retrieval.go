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

// RetrievalRequest asks the retrieval engine for similar prior work.
type RetrievalRequest struct {
	Query        string                 `json:"query"`
	ContextTypes []string               `json:"context_types,omitempty"`
	Strategy     string                 `json:"strategy,omitempty"`
	MaxResults   int                    `json:"max_results,omitempty"`
	Filters      map[string]interface{} `json:"filters,omitempty"`
}

// RetrievedChunk is one retrieved context fragment.
type RetrievedChunk struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// RetrievalResult is the retrieval engine's reply.
type RetrievalResult struct {
	Chunks           []RetrievedChunk `json:"chunks"`
	AugmentedContext string           `json:"augmented_context,omitempty"`
	Sources          []string         `json:"sources,omitempty"`
	Confidence       float64          `json:"confidence"`
}

// Retriever is the retrieval-augmented-generation engine contract.
type Retriever interface {
	Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResult, error)
}

// HTTPRetriever talks to a retrieval engine over HTTP.
type HTTPRetriever struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRetriever creates an HTTP-backed retriever.
func NewHTTPRetriever(endpoint string) *HTTPRetriever {
	return &HTTPRetriever{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Retrieve posts the query to the engine's /retrieve route.
func (r *HTTPRetriever) Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling retrieval request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/retrieve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building retrieval request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, core.ErrUnavailable(core.CodeCollaboratorDown, "retrieval engine unreachable").WithCause(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, core.ErrUnavailable(core.CodeCollaboratorDown, fmt.Sprintf("retrieval engine returned %d", resp.StatusCode))
	}

	var out RetrievalResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding retrieval response: %w", err)
	}
	return &out, nil
}

// StubRetriever returns an empty, low-confidence result. Planners treat
// that as "no prior work found".
type StubRetriever struct{}

// Retrieve returns an empty result.
func (StubRetriever) Retrieve(_ context.Context, _ RetrievalRequest) (*RetrievalResult, error) {
	return &RetrievalResult{Confidence: 0}, nil
}
