package swarm

import (
	"strings"
	"unicode"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

// ParseRequest infers a task type and priority from free-form request
// text. The keyword heuristic is deliberately isolated here so it can
// be replaced by a classifier without touching the manager.
func ParseRequest(text string) (core.TaskType, core.Priority) {
	lower := strings.ToLower(text)

	taskType := core.TaskTypeRepositoryAnalysis
	switch {
	case containsAny(lower, "fix", "bug", "broken", "crash", "regression"):
		taskType = core.TaskTypeBugFix
	case containsAny(lower, "implement", "build", "create", "generate", "add feature", "write code"):
		taskType = core.TaskTypeCodeGeneration
	case containsAny(lower, "architecture", "design"):
		taskType = core.TaskTypeArchitectureDesign
	case containsAny(lower, "plan", "roadmap", "estimate"):
		taskType = core.TaskTypePlanning
	case containsAny(lower, "optimize", "performance", "speed up"):
		taskType = core.TaskTypeOptimization
	case containsAny(lower, "quality", "assess", "review code"):
		taskType = core.TaskTypeQualityAssessment
	case containsAny(lower, "analyze", "analyse", "understand", "explore"):
		taskType = core.TaskTypeRepositoryAnalysis
	}

	priority := core.PriorityMedium
	switch {
	case hasKeyword(lower, "urgent", "critical", "asap"):
		priority = core.PriorityHigh
	case hasKeyword(lower, "low", "minor", "small"):
		priority = core.PriorityLow
	}

	return taskType, priority
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// hasKeyword matches whole words, so "low" does not fire on
// "workflow" or "slow".
func hasKeyword(s string, words ...string) bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, field := range fields {
		for _, w := range words {
			if field == w {
				return true
			}
		}
	}
	return false
}
