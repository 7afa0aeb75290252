package reasoning

import (
	"context"
	"time"

	"github.com/dataguard/agent/internal/compliance"
)

// Reasoner analyzes a retrieved record in the context of the original query.
// Implementations must succeed on any non-empty record.
type Reasoner interface {
	Analyze(ctx context.Context, record compliance.Record, query string) (*Analysis, error)
}

// Analysis is the full chain-of-thought output. Downstream consumers read
// only the structured insights plus the chain/hypothesis lengths; the rest is
// carried opaquely into the response.
type Analysis struct {
	StructuredInsights  StructuredInsights `json:"structured_insights"`
	ReasoningChain      []Step             `json:"reasoning_chain"`
	GeneratedHypotheses []string           `json:"generated_hypotheses"`
	IdentifiedPatterns  Patterns           `json:"identified_patterns"`
	ContextAnalysis     Context            `json:"context_analysis"`
	Timestamp           time.Time          `json:"timestamp"`
}

type Step struct {
	Number      int    `json:"step"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

type Patterns struct {
	NumericRanges     map[string]float64  `json:"numeric_ranges"`
	CategoricalValues map[string][]string `json:"categorical_values"`
	Correlations      []string            `json:"correlations"`
	Anomalies         []string            `json:"anomalies"`
	Trends            []string            `json:"trends"`
}

type Context struct {
	QueryIntent        string   `json:"query_intent"`
	DataRelevance      float64  `json:"data_relevance"`
	ActionableInsights []string `json:"actionable_insights"`
	Limitations        []string `json:"limitations"`
}

type StructuredInsights struct {
	QueryResponse         string            `json:"query_response"`
	DataQualityAssessment QualityAssessment `json:"data_quality_assessment"`
	Recommendations       []string          `json:"recommendations"`
	ConfidenceScore       float64           `json:"confidence_score"`
	KeyFindings           []string          `json:"key_findings"`
}

type QualityAssessment struct {
	Completeness  string `json:"completeness"`
	FieldVariety  string `json:"field_variety"`
	Assessment    string `json:"assessment"`
	NumericFields int    `json:"numeric_fields"`
	TextFields    int    `json:"text_fields"`
}

const (
	CompletenessExcellent = "excellent"
	CompletenessGood      = "good"
	CompletenessFair      = "fair"
	CompletenessPoor      = "poor"
)
