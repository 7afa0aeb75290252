package pipeline

import (
	"time"

	"github.com/dataguard/agent/internal/compliance"
	"github.com/dataguard/agent/internal/reasoning"
	"github.com/dataguard/agent/internal/retrieval"
	"github.com/dataguard/agent/internal/storage/models"
)

// Stage names the states of the per-request pipeline. A request walks the
// stages in order or drops into StageFailed from any non-done state.
type Stage string

const (
	StageStarted   Stage = "STARTED"
	StageRetrieved Stage = "RETRIEVED"
	StageReasoned  Stage = "REASONED"
	StageValidated Stage = "VALIDATED"
	StageLogged    Stage = "LOGGED"
	StageDone      Stage = "DONE"
	StageFailed    Stage = "FAILED"
)

// Error categories surfaced on failed results.
const (
	CategoryNoData       = "no_data"
	CategoryStageFailure = "stage_failure"
)

// Request is one unit of work. OnStage, when set, observes every state
// transition (used by the streaming front-end).
type Request struct {
	Query       string
	Regulations []string
	OnStage     func(Stage)
}

// Result is the aggregate response. Failed results carry Error/ErrorCategory
// and minimal performance metrics; the pipeline-dependent fields stay empty.
type Result struct {
	Success               bool                `json:"success"`
	Query                 string              `json:"query"`
	RetrievedData         compliance.Record   `json:"retrieved_data,omitempty"`
	Insights              *reasoning.Analysis `json:"insights,omitempty"`
	ComplianceCheck       *compliance.Report  `json:"compliance_check,omitempty"`
	PerformanceMetrics    PerformanceMetrics  `json:"performance_metrics"`
	SystemRecommendations []string            `json:"system_recommendations,omitempty"`
	Error                 string              `json:"error,omitempty"`
	ErrorCategory         string              `json:"error_category,omitempty"`
	Timestamp             time.Time           `json:"timestamp"`
}

type PerformanceMetrics struct {
	TotalProcessingTime   float64            `json:"total_processing_time"`
	HistoricalSuccessRate float64            `json:"historical_success_rate,omitempty"`
	ComponentTimes        map[string]float64 `json:"component_times,omitempty"`
	EfficiencyScore       float64            `json:"efficiency_score,omitempty"`
	ErrorOccurred         bool               `json:"error_occurred,omitempty"`
}

// BatchResult aggregates a sequential batch run. AverageProcessingTime is
// computed over the successful subset only and is 0 when nothing succeeded.
type BatchResult struct {
	TotalQueries          int       `json:"total_queries"`
	SuccessfulQueries     int       `json:"successful_queries"`
	SuccessRate           float64   `json:"success_rate"`
	AverageProcessingTime float64   `json:"average_processing_time"`
	Results               []*Result `json:"results"`
}

// HealthStatus blends ledger success rate with the engine's compliance rate.
type HealthStatus struct {
	Score          float64 `json:"score"`
	Status         string  `json:"status"`
	SuccessRate    float64 `json:"success_rate"`
	ComplianceRate float64 `json:"compliance_rate"`
}

// Analytics is the on-demand system-health view.
type Analytics struct {
	MemorySystem    *models.SystemSnapshot `json:"memory_system"`
	ComplianceAgent compliance.Stats       `json:"compliance_agent"`
	RetrievalAgent  *retrieval.Stats       `json:"retrieval_agent,omitempty"`
	SystemHealth    HealthStatus           `json:"system_health"`
	Recommendations []string               `json:"recommendations"`
}
