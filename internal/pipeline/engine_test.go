package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataguard/agent/internal/compliance"
	"github.com/dataguard/agent/internal/reasoning"
	"github.com/dataguard/agent/internal/storage/models"
	"github.com/dataguard/agent/internal/storage/sqlite"
	"github.com/dataguard/agent/pkg/utils"
)

type stubRetriever struct {
	record compliance.Record
	err    error
}

func (s *stubRetriever) Fetch(context.Context, string) (compliance.Record, error) {
	return s.record, s.err
}

type stubReasoner struct {
	analysis *reasoning.Analysis
	err      error
}

func (s *stubReasoner) Analyze(context.Context, compliance.Record, string) (*reasoning.Analysis, error) {
	return s.analysis, s.err
}

func confidentAnalysis() *reasoning.Analysis {
	return &reasoning.Analysis{
		StructuredInsights: reasoning.StructuredInsights{
			QueryResponse:   "looks fine",
			ConfidenceScore: 0.85,
			DataQualityAssessment: reasoning.QualityAssessment{
				Completeness: reasoning.CompletenessGood,
			},
		},
		ReasoningChain:      []reasoning.Step{{Number: 1, Type: "DATA_UNDERSTANDING"}},
		GeneratedHypotheses: []string{"h1", "h2"},
	}
}

func newTestStore(t *testing.T) *sqlite.Client {
	t.Helper()

	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "ledger.db"), 5.0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func newTestEngine(t *testing.T, retriever Retriever, reasoner reasoning.Reasoner) (*Engine, *sqlite.Client) {
	t.Helper()

	store := newTestStore(t)
	engine := NewEngine(store, retriever, reasoner,
		compliance.NewEngine(2000, 1000, 30), []string{"hipaa", "gdpr"}, true)
	return engine, store
}

func TestProcessSuccessWalksAllStages(t *testing.T) {
	retriever := &stubRetriever{record: compliance.Record{"city": "Boston", "value": 42.0}}
	engine, store := newTestEngine(t, retriever, &stubReasoner{analysis: confidentAnalysis()})

	var stages []Stage
	result := engine.Process(context.Background(), Request{
		Query:   "general data",
		OnStage: func(s Stage) { stages = append(stages, s) },
	})

	require.True(t, result.Success)
	assert.Equal(t, []Stage{
		StageStarted, StageRetrieved, StageReasoned, StageValidated, StageLogged, StageDone,
	}, stages)

	assert.Equal(t, "general data", result.Query)
	assert.True(t, result.ComplianceCheck.OverallCompliant)
	assert.Empty(t, result.ErrorCategory)
	assert.InDelta(t, 0.5, result.PerformanceMetrics.HistoricalSuccessRate, 1e-9)
	assert.Contains(t, result.PerformanceMetrics.ComponentTimes, "retrieval")
	assert.Contains(t, result.PerformanceMetrics.ComponentTimes, "reasoning")
	assert.Contains(t, result.PerformanceMetrics.ComponentTimes, "compliance")
	assert.Greater(t, result.PerformanceMetrics.EfficiencyScore, 0.0)

	rate, err := store.QuerySuccessRate(utils.Fingerprint("general data"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)

	stat, err := store.GetAgentPerformance("retrieval_agent", "data_fetch")
	require.NoError(t, err)
	assert.Equal(t, 1, stat.SuccessCount)
}

func TestProcessNoDataFailureIsLogged(t *testing.T) {
	engine, store := newTestEngine(t, &stubRetriever{record: compliance.Record{}},
		&stubReasoner{analysis: confidentAnalysis()})

	var stages []Stage
	result := engine.Process(context.Background(), Request{
		Query:   "anything",
		OnStage: func(s Stage) { stages = append(stages, s) },
	})

	require.False(t, result.Success)
	assert.Equal(t, CategoryNoData, result.ErrorCategory)
	assert.Equal(t, "No data retrieved from source", result.Error)
	assert.True(t, result.PerformanceMetrics.ErrorOccurred)
	assert.Equal(t, []Stage{StageStarted, StageFailed}, stages)

	// The failure must reach the ledger.
	rate, err := store.QuerySuccessRate(utils.Fingerprint("anything"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}

func TestProcessRetrieverErrorIsNoData(t *testing.T) {
	engine, _ := newTestEngine(t, &stubRetriever{err: errors.New("upstream down")},
		&stubReasoner{analysis: confidentAnalysis()})

	result := engine.Process(context.Background(), Request{Query: "anything"})

	require.False(t, result.Success)
	assert.Equal(t, CategoryNoData, result.ErrorCategory)
}

func TestProcessReasoningFailure(t *testing.T) {
	engine, store := newTestEngine(t,
		&stubRetriever{record: compliance.Record{"city": "Boston"}},
		&stubReasoner{err: errors.New("model exploded")})

	var stages []Stage
	result := engine.Process(context.Background(), Request{
		Query:   "anything",
		OnStage: func(s Stage) { stages = append(stages, s) },
	})

	require.False(t, result.Success)
	assert.Equal(t, CategoryStageFailure, result.ErrorCategory)
	assert.Contains(t, result.Error, "model exploded")
	assert.Equal(t, []Stage{StageStarted, StageRetrieved, StageFailed}, stages)

	stat, err := store.GetAgentPerformance("reasoning_agent", "data_analysis")
	require.NoError(t, err)
	assert.Equal(t, 0, stat.SuccessCount)
	assert.Equal(t, 1, stat.TotalCount)
}

func TestProcessNonCompliantRecordLogsViolations(t *testing.T) {
	retriever := &stubRetriever{record: compliance.Record{
		"notes":   "SSN 123-45-6789",
		"contact": "user@example.com",
	}}
	engine, store := newTestEngine(t, retriever, &stubReasoner{analysis: confidentAnalysis()})

	result := engine.Process(context.Background(), Request{Query: "patient export"})

	require.True(t, result.Success)
	assert.False(t, result.ComplianceCheck.OverallCompliant)
	assert.Contains(t, result.SystemRecommendations,
		"Address compliance violations before production deployment")

	violations, err := store.CommonViolations(7)
	require.NoError(t, err)
	require.NotEmpty(t, violations)
	for _, v := range violations {
		assert.Equal(t, models.SeverityHigh, v.Severity)
	}

	insights, err := store.RecentInsights(models.InsightCompliancePattern, 10)
	require.NoError(t, err)
	assert.Len(t, insights, 1)
}

func TestProcessStoresLearningInsights(t *testing.T) {
	engine, store := newTestEngine(t,
		&stubRetriever{record: compliance.Record{"city": "Boston"}},
		&stubReasoner{analysis: confidentAnalysis()})

	engine.Process(context.Background(), Request{Query: "general data"})

	queryInsights, err := store.RecentInsights(models.InsightQueryPattern, 10)
	require.NoError(t, err)
	assert.Len(t, queryInsights, 1)

	perfInsights, err := store.RecentInsights(models.InsightPerformancePattern, 10)
	require.NoError(t, err)
	assert.Len(t, perfInsights, 1)

	// Compliant runs produce no compliance-pattern insight.
	complianceInsights, err := store.RecentInsights(models.InsightCompliancePattern, 10)
	require.NoError(t, err)
	assert.Empty(t, complianceInsights)
}

func TestProcessLearningDisabled(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store,
		&stubRetriever{record: compliance.Record{"city": "Boston"}},
		&stubReasoner{analysis: confidentAnalysis()},
		compliance.NewEngine(2000, 1000, 30), nil, false)

	engine.Process(context.Background(), Request{Query: "general data"})

	insights, err := store.RecentInsights("", 10)
	require.NoError(t, err)
	assert.Empty(t, insights)
}

func TestProcessLowConfidenceRecommendation(t *testing.T) {
	analysis := confidentAnalysis()
	analysis.StructuredInsights.ConfidenceScore = 0.4
	analysis.StructuredInsights.DataQualityAssessment.Completeness = reasoning.CompletenessPoor

	engine, _ := newTestEngine(t,
		&stubRetriever{record: compliance.Record{"city": "Boston"}},
		&stubReasoner{analysis: analysis})

	result := engine.Process(context.Background(), Request{Query: "general data"})

	require.True(t, result.Success)
	assert.Contains(t, result.SystemRecommendations,
		"Consider improving data quality for more accurate insights")
	assert.Contains(t, result.SystemRecommendations,
		"Low confidence in analysis - consider additional data sources")
	assert.LessOrEqual(t, len(result.SystemRecommendations), 5)
}

func TestProcessBatchAggregates(t *testing.T) {
	calls := 0
	retriever := &flakyRetriever{failOn: map[int]bool{2: true}, calls: &calls}
	engine, _ := newTestEngine(t, retriever, &stubReasoner{analysis: confidentAnalysis()})

	batch := engine.ProcessBatch(context.Background(), []string{"q1", "q2", "q3"})

	assert.Equal(t, 3, batch.TotalQueries)
	assert.Equal(t, 2, batch.SuccessfulQueries)
	assert.InDelta(t, 2.0/3.0, batch.SuccessRate, 1e-9)
	assert.Greater(t, batch.AverageProcessingTime, 0.0)
	require.Len(t, batch.Results, 3)
	assert.True(t, batch.Results[0].Success)
	assert.False(t, batch.Results[1].Success)
	assert.True(t, batch.Results[2].Success)
}

func TestProcessBatchAllFailures(t *testing.T) {
	engine, _ := newTestEngine(t, &stubRetriever{err: errors.New("down")},
		&stubReasoner{analysis: confidentAnalysis()})

	batch := engine.ProcessBatch(context.Background(), []string{"q1", "q2"})

	assert.Equal(t, 0, batch.SuccessfulQueries)
	assert.Equal(t, 0.0, batch.SuccessRate)
	assert.Equal(t, 0.0, batch.AverageProcessingTime)
}

type flakyRetriever struct {
	failOn map[int]bool
	calls  *int
}

func (f *flakyRetriever) Fetch(context.Context, string) (compliance.Record, error) {
	*f.calls++
	if f.failOn[*f.calls] {
		return nil, errors.New("transient failure")
	}
	return compliance.Record{"city": "Boston"}, nil
}

func TestSystemAnalytics(t *testing.T) {
	engine, _ := newTestEngine(t,
		&stubRetriever{record: compliance.Record{"city": "Boston"}},
		&stubReasoner{analysis: confidentAnalysis()})

	engine.Process(context.Background(), Request{Query: "general data"})

	analytics, err := engine.SystemAnalytics()
	require.NoError(t, err)

	require.NotNil(t, analytics.MemorySystem)
	assert.Equal(t, 1, analytics.MemorySystem.TotalQueries)
	assert.Equal(t, 1, analytics.ComplianceAgent.TotalChecks)
	assert.Equal(t, 1.0, analytics.ComplianceAgent.ComplianceRate)
	assert.Equal(t, "healthy", analytics.SystemHealth.Status)
	// Stub retriever carries no request stats.
	assert.Nil(t, analytics.RetrievalAgent)
}

func TestDeriveSeverity(t *testing.T) {
	tests := []struct {
		violation string
		severity  string
	}{
		{"Potential SSN found in notes", models.SeverityHigh},
		{"Potential EMAIL found in data", models.SeverityHigh},
		{"Potential PHONE found in data", models.SeverityHigh},
		{"Potential IP_ADDRESS found in data", models.SeverityHigh},
		{"Data size exceeds minimization principles", models.SeverityMedium},
		{"Missing consent in field: user_consent", models.SeverityMedium},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.severity, deriveSeverity(tt.violation), tt.violation)
	}
}

func TestEfficiencyScore(t *testing.T) {
	assert.Equal(t, 1.0, efficiencyScore(0, 0))
	assert.InDelta(t, 0.5, efficiencyScore(1.0, 1000), 1e-9)
	assert.Greater(t, efficiencyScore(0.1, 100), efficiencyScore(10.0, 100))
}

func TestBlendHealth(t *testing.T) {
	tests := []struct {
		success    float64
		compliance float64
		status     string
	}{
		{1.0, 1.0, "healthy"},
		{0.9, 0.7, "healthy"},
		{0.6, 0.7, "degraded"},
		{0.2, 0.3, "unhealthy"},
	}

	for _, tt := range tests {
		health := blendHealth(tt.success, tt.compliance)
		assert.Equal(t, tt.status, health.Status, "success=%v compliance=%v", tt.success, tt.compliance)
	}
}
