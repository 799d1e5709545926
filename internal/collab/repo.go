package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

// FileEntry is one entry of a repository tree listing.
type FileEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// Repository is the repository-fetch collaborator contract.
type Repository interface {
	// Tree lists entries under path at the given ref.
	Tree(ctx context.Context, path, ref string) ([]FileEntry, error)
	// File returns the content of a single file.
	File(ctx context.Context, path string) (string, error)
}

// HTTPRepository talks to a repository service over HTTP.
type HTTPRepository struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRepository creates an HTTP-backed repository client.
func NewHTTPRepository(endpoint string) *HTTPRepository {
	return &HTTPRepository{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Tree fetches GET /repo/tree?path=&ref=.
func (r *HTTPRepository) Tree(ctx context.Context, path, ref string) ([]FileEntry, error) {
	u := fmt.Sprintf("%s/repo/tree?path=%s&ref=%s", r.endpoint, url.QueryEscape(path), url.QueryEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building tree request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, core.ErrUnavailable(core.CodeCollaboratorDown, "repository service unreachable").WithCause(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, core.ErrUnavailable(core.CodeCollaboratorDown, fmt.Sprintf("repository service returned %d", resp.StatusCode))
	}

	var out []FileEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding tree response: %w", err)
	}
	return out, nil
}

// File fetches GET /repo/file?path=.
func (r *HTTPRepository) File(ctx context.Context, path string) (string, error) {
	u := fmt.Sprintf("%s/repo/file?path=%s", r.endpoint, url.QueryEscape(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("building file request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", core.ErrUnavailable(core.CodeCollaboratorDown, "repository service unreachable").WithCause(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", core.ErrNotFound("file", path)
	}
	if resp.StatusCode != http.StatusOK {
		return "", core.ErrUnavailable(core.CodeCollaboratorDown, fmt.Sprintf("repository service returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading file response: %w", err)
	}
	return string(body), nil
}

// MemoryRepository serves an in-memory file set. Used in tests and as
// the stub when no repository endpoint is configured.
type MemoryRepository struct {
	Files map[string]string // path -> content
}

// Tree lists the stored files, sorted by path.
func (r *MemoryRepository) Tree(_ context.Context, _, _ string) ([]FileEntry, error) {
	paths := make([]string, 0, len(r.Files))
	for p := range r.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		out = append(out, FileEntry{Path: p, Size: int64(len(r.Files[p]))})
	}
	return out, nil
}

// File returns the stored content for a path.
func (r *MemoryRepository) File(_ context.Context, path string) (string, error) {
	content, ok := r.Files[path]
	if !ok {
		return "", core.ErrNotFound("file", path)
	}
	return content, nil
}
