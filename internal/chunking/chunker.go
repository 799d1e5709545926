// Package chunking splits repository files into stable, hash-addressed
// chunks for analysis. File-level chunks always exist; structured
// languages additionally get class- and function-level chunks, SQL is
// split per statement, markdown per header section, and everything
// else falls back to fixed-size line windows.
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultWindowLines is the fallback window size in lines.
const DefaultWindowLines = 500

// Kind labels the granularity of a chunk.
type Kind string

const (
	KindFile      Kind = "file"
	KindClass     Kind = "class"
	KindFunction  Kind = "function"
	KindStatement Kind = "statement"
	KindSection   Kind = "section"
	KindWindow    Kind = "window"
)

// Chunk is one addressable slice of a source file. Identifiers are
// derived from content so re-ingesting unchanged files yields the
// same IDs.
type Chunk struct {
	ID          string                 `json:"id"`
	Kind        Kind                   `json:"kind"`
	File        string                 `json:"file"`
	StartLine   int                    `json:"start_line"`
	EndLine     int                    `json:"end_line"`
	ParentID    string                 `json:"parent_id,omitempty"`
	ChildIDs    []string               `json:"child_ids,omitempty"`
	Language    string                 `json:"language,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ContentHash string                 `json:"content_hash"`
	Content     string                 `json:"content"`
}

// languageByExt maps file extensions to structured languages.
var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
}

// Chunker splits file content into chunks.
type Chunker struct {
	WindowLines int
}

// New creates a chunker with default settings.
func New() *Chunker {
	return &Chunker{WindowLines: DefaultWindowLines}
}

// ChunkFile splits one file into chunks. The first chunk is always the
// file-level chunk; any finer chunks reference it as parent.
func (c *Chunker) ChunkFile(path, content string) []*Chunk {
	ext := strings.ToLower(filepath.Ext(path))
	lines := strings.Split(content, "\n")

	fileChunk := newChunk(KindFile, path, content, 1, len(lines), "")
	fileChunk.Language = languageByExt[ext]

	var children []*Chunk
	switch {
	case languageByExt[ext] != "":
		children = c.chunkStructured(path, lines, languageByExt[ext], fileChunk.ID)
	case ext == ".sql":
		children = c.chunkSQL(path, content, fileChunk.ID)
	case ext == ".md" || ext == ".markdown":
		children = c.chunkMarkdown(path, lines, fileChunk.ID)
	default:
		children = c.chunkWindows(path, lines, fileChunk.ID)
	}

	for _, child := range children {
		fileChunk.ChildIDs = append(fileChunk.ChildIDs, child.ID)
	}

	out := make([]*Chunk, 0, len(children)+1)
	out = append(out, fileChunk)
	out = append(out, children...)
	return out
}

// declKind classifies a source line as a class or function declaration.
func declKind(line, language string) (Kind, string, bool) {
	trimmed := strings.TrimSpace(line)
	switch language {
	case "go":
		if strings.HasPrefix(trimmed, "func ") {
			return KindFunction, declName(trimmed, "func "), true
		}
		if strings.HasPrefix(trimmed, "type ") && strings.Contains(trimmed, "struct") {
			return KindClass, declName(trimmed, "type "), true
		}
	case "python":
		if strings.HasPrefix(trimmed, "def ") || strings.HasPrefix(trimmed, "async def ") {
			name := declName(strings.TrimPrefix(trimmed, "async "), "def ")
			return KindFunction, name, true
		}
		if strings.HasPrefix(trimmed, "class ") {
			return KindClass, declName(trimmed, "class "), true
		}
	default:
		if strings.HasPrefix(trimmed, "function ") {
			return KindFunction, declName(trimmed, "function "), true
		}
		if strings.HasPrefix(trimmed, "class ") {
			return KindClass, declName(trimmed, "class "), true
		}
	}
	return "", "", false
}

// declName extracts the declared identifier following a keyword.
func declName(line, keyword string) string {
	rest := strings.TrimPrefix(line, keyword)
	for i, r := range rest {
		if r == '(' || r == ' ' || r == ':' || r == '{' {
			return strings.TrimSpace(rest[:i])
		}
	}
	return strings.TrimSpace(rest)
}

// chunkStructured emits one chunk per top-level class/function
// declaration, spanning up to the next declaration.
func (c *Chunker) chunkStructured(path string, lines []string, language, parentID string) []*Chunk {
	type decl struct {
		kind  Kind
		name  string
		start int // 0-based line index
	}

	var decls []decl
	for i, line := range lines {
		if kind, name, ok := declKind(line, language); ok {
			decls = append(decls, decl{kind: kind, name: name, start: i})
		}
	}

	var out []*Chunk
	for i, d := range decls {
		end := len(lines)
		if i+1 < len(decls) {
			end = decls[i+1].start
		}
		body := strings.Join(lines[d.start:end], "\n")
		chunk := newChunk(d.kind, path, body, d.start+1, end, parentID)
		chunk.Language = language
		chunk.Metadata = map[string]interface{}{
			"name": d.name,
		}
		if language == "python" {
			chunk.Metadata["is_async"] = strings.HasPrefix(strings.TrimSpace(lines[d.start]), "async ")
			chunk.Metadata["decorators"] = decoratorsAbove(lines, d.start)
		}
		out = append(out, chunk)
	}
	return out
}

// decoratorsAbove collects contiguous decorator lines above a declaration.
func decoratorsAbove(lines []string, declLine int) []string {
	var decorators []string
	for i := declLine - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "@") {
			break
		}
		decorators = append([]string{trimmed}, decorators...)
	}
	return decorators
}

// chunkSQL emits one chunk per top-level statement ending at ';'.
func (c *Chunker) chunkSQL(path, content, parentID string) []*Chunk {
	var out []*Chunk
	line := 1
	start := 1
	var b strings.Builder

	flush := func(endLine int) {
		stmt := strings.TrimSpace(b.String())
		b.Reset()
		if stmt == "" {
			return
		}
		chunk := newChunk(KindStatement, path, stmt, start, endLine, parentID)
		chunk.Language = "sql"
		out = append(out, chunk)
	}

	for _, r := range content {
		b.WriteRune(r)
		if r == '\n' {
			line++
		}
		if r == ';' {
			flush(line)
			start = line
		}
	}
	flush(line)
	return out
}

// chunkMarkdown emits one chunk per header section.
func (c *Chunker) chunkMarkdown(path string, lines []string, parentID string) []*Chunk {
	var out []*Chunk
	sectionStart := 0
	title := ""

	flush := func(end int) {
		if end <= sectionStart {
			return
		}
		body := strings.Join(lines[sectionStart:end], "\n")
		if strings.TrimSpace(body) == "" {
			return
		}
		chunk := newChunk(KindSection, path, body, sectionStart+1, end, parentID)
		chunk.Language = "markdown"
		if title != "" {
			chunk.Metadata = map[string]interface{}{"title": title}
		}
		out = append(out, chunk)
	}

	for i, line := range lines {
		if strings.HasPrefix(line, "#") {
			flush(i)
			sectionStart = i
			title = strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	flush(len(lines))
	return out
}

// chunkWindows emits fixed-size line windows with the file chunk as parent.
func (c *Chunker) chunkWindows(path string, lines []string, parentID string) []*Chunk {
	window := c.WindowLines
	if window <= 0 {
		window = DefaultWindowLines
	}
	if len(lines) <= window {
		return nil // file chunk already covers it
	}

	var out []*Chunk
	for start := 0; start < len(lines); start += window {
		end := start + window
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		out = append(out, newChunk(KindWindow, path, body, start+1, end, parentID))
	}
	return out
}

// newChunk builds a chunk with its content hash and content-derived ID.
func newChunk(kind Kind, path, content string, startLine, endLine int, parentID string) *Chunk {
	contentHash := hashHex(content)
	id := hashHex(fmt.Sprintf("%s:%s:%s", path, kind, contentHash))[:16]
	return &Chunk{
		ID:          id,
		Kind:        kind,
		File:        path,
		StartLine:   startLine,
		EndLine:     endLine,
		ParentID:    parentID,
		ContentHash: contentHash,
		Content:     content,
	}
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
