package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hivemind-labs/hiveflow/internal/chunking"
	"github.com/hivemind-labs/hiveflow/internal/collab"
	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/logging"
)

// maxAnalyzedFiles caps the number of files fetched per analysis run.
const maxAnalyzedFiles = 50

// AnalystDeps are the collaborators of the repository analyst.
type AnalystDeps struct {
	Repository collab.Repository
	Model      collab.LanguageModel
	Logger     *logging.Logger
}

func (d *AnalystDeps) defaults() {
	if d.Repository == nil {
		d.Repository = &collab.MemoryRepository{}
	}
	if d.Model == nil {
		d.Model = &collab.StubLanguageModel{}
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
}

// NewAnalyst builds the repository analyst. It fetches a bounded file
// set, chunks it, and derives structure, patterns, quality insights
// and recommendations.
func NewAnalyst(deps AnalystDeps) *Base {
	deps.defaults()
	chunker := chunking.New()

	return New(Options{
		Role: core.RoleAnalyst,
		Name: "Repository Analyst",
		Capabilities: []string{
			core.CapabilityFor(core.TaskTypeRepositoryAnalysis),
			core.CapabilityFor(core.TaskTypeCodeAnalysis),
		},
		Logger: deps.Logger,
		Execute: func(ctx context.Context, a *Base, task *core.Task) (map[string]interface{}, error) {
			path, _ := task.Context["repository_path"].(string)
			ref, _ := task.Context["repository_ref"].(string)

			entries, err := deps.Repository.Tree(ctx, path, ref)
			if err != nil {
				return nil, core.ErrExecution(core.CodeAgentFailed, "listing repository tree").WithCause(err)
			}

			var chunks []*chunking.Chunk
			byExt := make(map[string]int)
			byDir := make(map[string]int)
			analyzed := 0

			for _, entry := range entries {
				if entry.IsDir {
					continue
				}
				if analyzed >= maxAnalyzedFiles {
					break
				}
				content, err := deps.Repository.File(ctx, entry.Path)
				if err != nil {
					a.logger.Debug("skipping unreadable file", "path", entry.Path, "error", err)
					continue
				}
				analyzed++
				byExt[strings.ToLower(filepath.Ext(entry.Path))]++
				byDir[topDir(entry.Path)]++
				chunks = append(chunks, chunker.ChunkFile(entry.Path, content)...)
			}

			patterns := detectPatterns(chunks)
			insights := qualityInsights(chunks, byExt)
			recommendations := recommend(patterns, insights)

			// The model summary enriches the insights but its absence
			// never fails the analysis.
			if resp, err := deps.Model.Complete(ctx, collab.CompletionRequest{
				Content:        strings.Join(patterns, "; "),
				PromptTemplate: "repository_analysis",
			}); err != nil {
				a.logger.Debug("model summary unavailable", "error", err)
			} else if resp.Summary != "" {
				insights = append(insights, resp.Summary)
			}

			report := &core.AnalysisReport{
				Structure: map[string]interface{}{
					"files_by_extension": byExt,
					"files_by_directory": byDir,
					"chunk_count":        len(chunks),
				},
				Patterns:        patterns,
				QualityInsights: insights,
				Recommendations: recommendations,
				FilesAnalyzed:   analyzed,
			}
			a.Memory.StoreLong("analyses", string(task.ID), report)

			return map[string]interface{}{
				"analysis":         report,
				"structure":        report.Structure,
				"patterns":         report.Patterns,
				"quality_insights": report.QualityInsights,
				"recommendations":  report.Recommendations,
				"files_analyzed":   analyzed,
			}, nil
		},
	})
}

func topDir(path string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == "/" {
		return "."
	}
	parts := strings.Split(filepath.ToSlash(dir), "/")
	return parts[0]
}

// detectPatterns derives structural patterns from the chunk set.
func detectPatterns(chunks []*chunking.Chunk) []string {
	kindCount := make(map[chunking.Kind]int)
	langCount := make(map[string]int)
	for _, c := range chunks {
		kindCount[c.Kind]++
		if c.Language != "" {
			langCount[c.Language]++
		}
	}

	var patterns []string
	if n := kindCount[chunking.KindFunction]; n > 0 {
		patterns = append(patterns, fmt.Sprintf("%d function-level units", n))
	}
	if n := kindCount[chunking.KindClass]; n > 0 {
		patterns = append(patterns, fmt.Sprintf("%d class-level units", n))
	}
	if n := kindCount[chunking.KindStatement]; n > 0 {
		patterns = append(patterns, fmt.Sprintf("schema-driven: %d SQL statements", n))
	}

	langs := make([]string, 0, len(langCount))
	for l := range langCount {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	if len(langs) > 0 {
		patterns = append(patterns, "languages: "+strings.Join(langs, ", "))
	}
	return patterns
}

// qualityInsights flags oversized files and monoculture risks.
func qualityInsights(chunks []*chunking.Chunk, byExt map[string]int) []string {
	var insights []string
	for _, c := range chunks {
		if c.Kind == chunking.KindFile && c.EndLine-c.StartLine > 800 {
			insights = append(insights, fmt.Sprintf("%s exceeds 800 lines, consider splitting", c.File))
		}
	}
	if len(byExt) == 1 {
		insights = append(insights, "single-language repository")
	}
	if len(insights) == 0 {
		insights = append(insights, "no structural quality issues detected")
	}
	return insights
}

// recommend turns patterns and insights into actionable recommendations.
func recommend(patterns, insights []string) []string {
	var recs []string
	for _, ins := range insights {
		if strings.Contains(ins, "exceeds") {
			recs = append(recs, "split oversized files before generating new code")
			break
		}
	}
	if len(patterns) == 0 {
		recs = append(recs, "repository is empty or unreadable, verify the repository endpoint")
	}
	if len(recs) == 0 {
		recs = append(recs, "structure is sound, proceed with planning")
	}
	return recs
}
