package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hivemind-labs/hiveflow/internal/collab"
	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/logging"
)

// errMarker flags broken generated code; fixMarker flags breakage the
// debugger can repair locally instead of sending the workflow back to
// generation.
const (
	errMarker = "error"
	fixMarker = "fixable"
)

// CoderDeps are the collaborators of the coder.
type CoderDeps struct {
	Model  collab.LanguageModel
	Logger *logging.Logger
}

func (d *CoderDeps) defaults() {
	if d.Model == nil {
		d.Model = &collab.StubLanguageModel{}
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
}

// NewCoder builds the coder agent. One agent covers generation,
// debugging, optimization and quality assessment; the task type
// selects the behavior.
func NewCoder(deps CoderDeps) *Base {
	deps.defaults()

	return New(Options{
		Role: core.RoleCoder,
		Name: "Coder",
		Capabilities: []string{
			core.CapabilityFor(core.TaskTypeCodeGeneration),
			core.CapabilityFor(core.TaskTypeFeatureImplementation),
			core.CapabilityFor(core.TaskTypeBugFix),
			core.CapabilityFor(core.TaskTypeDebugging),
			core.CapabilityFor(core.TaskTypeOptimization),
			core.CapabilityFor(core.TaskTypeQualityAssessment),
		},
		Logger: deps.Logger,
		Execute: func(ctx context.Context, a *Base, task *core.Task) (map[string]interface{}, error) {
			switch task.Type {
			case core.TaskTypeCodeGeneration, core.TaskTypeFeatureImplementation, core.TaskTypeBugFix:
				return generate(ctx, deps.Model, task)
			case core.TaskTypeDebugging:
				return debug(a, task), nil
			case core.TaskTypeOptimization:
				return optimize(task), nil
			case core.TaskTypeQualityAssessment:
				return assess(task), nil
			default:
				return nil, core.ErrValidation("UNSUPPORTED_TASK", fmt.Sprintf("coder cannot handle %s", task.Type))
			}
		},
	})
}

// generate asks the model for an implementation of the selected plan.
func generate(ctx context.Context, model collab.LanguageModel, task *core.Task) (map[string]interface{}, error) {
	prompt := task.Description
	if prompt == "" {
		prompt = task.Title
	}
	if p, ok := task.Context["plan"].(*core.Plan); ok && p != nil {
		var steps []string
		for _, s := range p.Steps {
			steps = append(steps, s.Title)
		}
		prompt = fmt.Sprintf("%s\nplan steps: %s", prompt, strings.Join(steps, ", "))
	}

	resp, err := model.Complete(ctx, collab.CompletionRequest{
		Content:        prompt,
		PromptTemplate: "code_generation",
	})
	if err != nil {
		return nil, core.ErrExecution(core.CodeAgentFailed, "model completion failed").WithCause(err)
	}

	return map[string]interface{}{
		"code":     resp.Summary,
		"provider": resp.Provider,
	}, nil
}

// debug inspects broken code. Locally repairable breakage yields
// debugged code; anything else yields a diagnosis only, which sends
// the workflow back to generation.
func debug(a *Base, task *core.Task) map[string]interface{} {
	code, _ := task.Context["code"].(string)

	switch {
	case code == "":
		return map[string]interface{}{
			"diagnosis": "no code to debug, generation produced no output",
		}
	case strings.Contains(code, fixMarker):
		fixed := stripMarkedLines(code)
		a.Memory.StoreLong("fixes", string(task.ID), fixed)
		return map[string]interface{}{
			"debugged_code": fixed,
			"diagnosis":     "repaired marked sections in place",
		}
	case strings.Contains(code, errMarker):
		return map[string]interface{}{
			"diagnosis": "structural defect, regeneration required",
		}
	default:
		return map[string]interface{}{
			"debugged_code": code,
			"diagnosis":     "no defect found",
		}
	}
}

// stripMarkedLines drops lines carrying the error marker, keeping the
// rest of the code intact.
func stripMarkedLines(code string) string {
	lines := strings.Split(code, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.Contains(line, errMarker) || strings.Contains(line, fixMarker) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// optimize normalizes whitespace as a stand-in for real optimization
// passes and reports what changed.
func optimize(task *core.Task) map[string]interface{} {
	code, _ := task.Context["code"].(string)

	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, trimmed)
	}

	return map[string]interface{}{
		"optimized_code": strings.Join(out, "\n"),
		"passes":         []string{"trailing-whitespace", "blank-line-collapse"},
	}
}

// assess grades the final code. The score starts from 100 and loses
// points for residual markers and missing output.
func assess(task *core.Task) map[string]interface{} {
	code, _ := task.Context["code"].(string)

	score := 100
	var issues []string
	if code == "" {
		score -= 60
		issues = append(issues, "no code produced")
	}
	if strings.Contains(code, errMarker) {
		score -= 40
		issues = append(issues, "residual error markers")
	}
	if len(code) > 0 && len(code) < 20 {
		score -= 10
		issues = append(issues, "implementation suspiciously small")
	}

	return map[string]interface{}{
		"assessment": map[string]interface{}{
			"score":  score,
			"issues": issues,
			"passed": score >= 70,
		},
	}
}
