package core

// RiskLevel grades the overall risk of a plan.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// Complexity grades a single implementation step.
type Complexity string

const (
	ComplexityTrivial     Complexity = "trivial"
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

// TechMaturity grades how battle-tested a technology choice is.
type TechMaturity string

const (
	MaturityExperimental TechMaturity = "experimental"
	MaturityAlpha        TechMaturity = "alpha"
	MaturityBeta         TechMaturity = "beta"
	MaturityStable       TechMaturity = "stable"
)

// TechChoice is one technology selected by a planner for a category.
type TechChoice struct {
	Category      string       `json:"category"`
	Name          string       `json:"name"`
	Maturity      TechMaturity `json:"maturity"`
	Justification string       `json:"justification,omitempty"`
}

// PlanStep is a single implementation step within a plan.
type PlanStep struct {
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	EstimatedHours     float64    `json:"estimated_hours"`
	Complexity         Complexity `json:"complexity"`
	Risks              []string   `json:"risks,omitempty"`
	Deliverables       []string   `json:"deliverables,omitempty"`
	ValidationCriteria []string   `json:"validation_criteria,omitempty"`
}

// Plan is the typed output of a planner variant.
type Plan struct {
	Variant          string       `json:"variant"`
	Objective        string       `json:"objective,omitempty"`
	Technologies     []TechChoice `json:"technologies"`
	Steps            []PlanStep   `json:"steps"`
	TotalEffortHours float64      `json:"total_effort_hours"`
	ComplexityScore  float64      `json:"complexity_score"`
	OverallRisk      RiskLevel    `json:"overall_risk"`

	// PlansUsed counts the input plans consumed by a synthesis plan.
	// Zero for the primary variants.
	PlansUsed int `json:"plans_used,omitempty"`
}

// AnalysisReport is the typed output of the repository analyst.
type AnalysisReport struct {
	Structure       map[string]interface{} `json:"structure"`
	Patterns        []string               `json:"patterns"`
	QualityInsights []string               `json:"quality_insights"`
	Recommendations []string               `json:"recommendations"`
	FilesAnalyzed   int                    `json:"files_analyzed"`
}
