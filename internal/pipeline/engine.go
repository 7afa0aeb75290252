package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/agent/internal/compliance"
	"github.com/dataguard/agent/internal/metrics"
	"github.com/dataguard/agent/internal/reasoning"
	"github.com/dataguard/agent/internal/retrieval"
	"github.com/dataguard/agent/internal/storage/models"
	"github.com/dataguard/agent/internal/storage/sqlite"
	"github.com/dataguard/agent/pkg/logger"
	"github.com/dataguard/agent/pkg/utils"
)

const (
	agentRetrieval  = "retrieval_agent"
	agentReasoning  = "reasoning_agent"
	agentCompliance = "compliance_agent"

	taskDataFetch       = "data_fetch"
	taskDataAnalysis    = "data_analysis"
	taskComplianceCheck = "compliance_check"
)

// Retriever is the data-retrieval collaborator. An empty record is treated
// identically to an error.
type Retriever interface {
	Fetch(ctx context.Context, query string) (compliance.Record, error)
}

// Engine sequences retrieval, reasoning, and compliance evaluation under a
// uniform timing envelope and feeds every stage outcome into the ledger.
// Ledger write failures degrade observability only; they never fail a request.
type Engine struct {
	store      *sqlite.Client
	retriever  Retriever
	reasoner   reasoning.Reasoner
	compliance *compliance.Engine

	defaultRegulations []string
	enableLearning     bool
}

func NewEngine(
	store *sqlite.Client,
	retriever Retriever,
	reasoner reasoning.Reasoner,
	complianceEngine *compliance.Engine,
	defaultRegulations []string,
	enableLearning bool,
) *Engine {
	if len(defaultRegulations) == 0 {
		defaultRegulations = []string{"hipaa", "gdpr"}
	}
	return &Engine{
		store:              store,
		retriever:          retriever,
		reasoner:           reasoner,
		compliance:         complianceEngine,
		defaultRegulations: defaultRegulations,
		enableLearning:     enableLearning,
	}
}

// Process runs one request through the stage machine. The returned result is
// always non-nil; failures are encoded, not raised. The query outcome is
// logged to the ledger on every path so failures stay visible to learning.
func (e *Engine) Process(ctx context.Context, req Request) *Result {
	start := time.Now()
	fingerprint := utils.Fingerprint(req.Query)

	regulations := req.Regulations
	if len(regulations) == 0 {
		regulations = e.defaultRegulations
	}

	transition := func(stage Stage) {
		if req.OnStage != nil {
			req.OnStage(stage)
		}
	}

	transition(StageStarted)

	historicalRate, err := e.store.QuerySuccessRate(fingerprint)
	if err != nil {
		logger.Warn("Failed to read historical success rate", zap.Error(err))
		historicalRate = 0.5
	}

	componentTimes := make(map[string]float64)

	// Stage: retrieval.
	retrievalStart := time.Now()
	record, fetchErr := e.retriever.Fetch(ctx, req.Query)
	retrievalTime := time.Since(retrievalStart).Seconds()
	componentTimes["retrieval"] = retrievalTime
	metrics.StageDuration.WithLabelValues("retrieval").Observe(retrievalTime)

	retrieved := fetchErr == nil && len(record) > 0
	e.recordAgentOutcome(agentRetrieval, taskDataFetch, retrieved, retrievalTime)

	if !retrieved {
		transition(StageFailed)
		return e.failResult(req.Query, fingerprint, CategoryNoData,
			"No data retrieved from source", start)
	}
	transition(StageRetrieved)

	// Stage: reasoning.
	reasoningStart := time.Now()
	analysis, reasonErr := e.reasoner.Analyze(ctx, record, req.Query)
	reasoningTime := time.Since(reasoningStart).Seconds()
	componentTimes["reasoning"] = reasoningTime
	metrics.StageDuration.WithLabelValues("reasoning").Observe(reasoningTime)

	e.recordAgentOutcome(agentReasoning, taskDataAnalysis, reasonErr == nil, reasoningTime)

	if reasonErr != nil {
		transition(StageFailed)
		return e.failResult(req.Query, fingerprint, CategoryStageFailure,
			fmt.Sprintf("Processing failed: %v", reasonErr), start)
	}
	transition(StageReasoned)

	// Stage: compliance. Evaluation itself never fails; "success" for the
	// performance ledger means the record came back compliant.
	complianceStart := time.Now()
	report := e.compliance.Evaluate(record, regulations)
	complianceTime := time.Since(complianceStart).Seconds()
	componentTimes["compliance"] = complianceTime
	metrics.StageDuration.WithLabelValues("compliance").Observe(complianceTime)

	e.recordAgentOutcome(agentCompliance, taskComplianceCheck, report.OverallCompliant, complianceTime)
	e.logViolations(report)

	if report.OverallCompliant {
		metrics.ComplianceChecks.WithLabelValues("compliant").Inc()
	} else {
		metrics.ComplianceChecks.WithLabelValues("non_compliant").Inc()
	}
	transition(StageValidated)

	// Stage: learning insights plus the query outcome itself.
	if e.enableLearning {
		e.storeLearningInsights(req.Query, record, analysis, report)
	}

	totalTime := time.Since(start).Seconds()
	if err := e.store.LogQuery(fingerprint, req.Query, true, totalTime); err != nil {
		logger.Warn("Failed to log query outcome", zap.Error(err))
	}
	transition(StageLogged)

	metrics.PipelineDuration.Observe(totalTime)
	metrics.QueriesTotal.WithLabelValues("success").Inc()
	metrics.ReasoningConfidence.Observe(analysis.StructuredInsights.ConfidenceScore)

	result := &Result{
		Success:         true,
		Query:           req.Query,
		RetrievedData:   record,
		Insights:        analysis,
		ComplianceCheck: report,
		PerformanceMetrics: PerformanceMetrics{
			TotalProcessingTime:   totalTime,
			HistoricalSuccessRate: historicalRate,
			ComponentTimes:        componentTimes,
			EfficiencyScore:       efficiencyScore(totalTime, recordSize(record)),
		},
		SystemRecommendations: e.buildRecommendations(analysis, report),
		Timestamp:             time.Now(),
	}

	transition(StageDone)

	logger.Info("Request processed",
		zap.String("fingerprint", fingerprint),
		zap.Bool("compliant", report.OverallCompliant),
		zap.Float64("total_time", totalTime),
	)

	return result
}

// ProcessBatch runs requests sequentially and independently; the ledger is
// the only shared state between them.
func (e *Engine) ProcessBatch(ctx context.Context, queries []string) *BatchResult {
	batch := &BatchResult{
		TotalQueries: len(queries),
		Results:      make([]*Result, 0, len(queries)),
	}

	var successTime float64
	for _, query := range queries {
		result := e.Process(ctx, Request{Query: query})
		batch.Results = append(batch.Results, result)

		if result.Success {
			batch.SuccessfulQueries++
			successTime += result.PerformanceMetrics.TotalProcessingTime
		}
	}

	if batch.TotalQueries > 0 {
		batch.SuccessRate = float64(batch.SuccessfulQueries) / float64(batch.TotalQueries)
	}
	if batch.SuccessfulQueries > 0 {
		batch.AverageProcessingTime = successTime / float64(batch.SuccessfulQueries)
	}

	return batch
}

// SystemAnalytics assembles the on-demand health view from the ledger, the
// compliance engine, and the retrieval client.
func (e *Engine) SystemAnalytics() (*Analytics, error) {
	snapshot, err := e.store.SystemSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to read system snapshot: %w", err)
	}

	recommendations, err := e.store.Recommendations()
	if err != nil {
		return nil, fmt.Errorf("failed to derive recommendations: %w", err)
	}

	complianceStats := e.compliance.Stats()

	analytics := &Analytics{
		MemorySystem:    snapshot,
		ComplianceAgent: complianceStats,
		SystemHealth:    blendHealth(snapshot.AvgSuccessRate, complianceStats.ComplianceRate),
		Recommendations: recommendations,
	}

	if reporter, ok := e.retriever.(interface{ RequestStats() retrieval.Stats }); ok {
		stats := reporter.RequestStats()
		analytics.RetrievalAgent = &stats
	}

	return analytics, nil
}

func (e *Engine) failResult(query, fingerprint, category, message string, start time.Time) *Result {
	totalTime := time.Since(start).Seconds()

	// Failures must stay visible to the learning signal.
	if err := e.store.LogQuery(fingerprint, query, false, totalTime); err != nil {
		logger.Warn("Failed to log query outcome", zap.Error(err))
	}

	metrics.PipelineDuration.Observe(totalTime)
	metrics.QueriesTotal.WithLabelValues("error").Inc()

	logger.Warn("Request failed",
		zap.String("fingerprint", fingerprint),
		zap.String("category", category),
		zap.String("error", message),
	)

	return &Result{
		Success:       false,
		Query:         query,
		Error:         message,
		ErrorCategory: category,
		PerformanceMetrics: PerformanceMetrics{
			TotalProcessingTime: totalTime,
			ErrorOccurred:       true,
		},
		Timestamp: time.Now(),
	}
}

func (e *Engine) recordAgentOutcome(agent, task string, success bool, elapsed float64) {
	if err := e.store.UpdateAgentPerformance(agent, task, success, elapsed); err != nil {
		logger.Warn("Failed to record agent outcome",
			zap.String("agent", agent),
			zap.String("task", task),
			zap.Error(err),
		)
	}
}

func (e *Engine) logViolations(report *compliance.Report) {
	regulations := make([]string, 0, len(report.RegulationResults))
	for name := range report.RegulationResults {
		regulations = append(regulations, name)
	}
	sort.Strings(regulations)

	for _, regulation := range regulations {
		for _, violation := range report.RegulationResults[regulation].Violations {
			severity := deriveSeverity(violation)
			if err := e.store.LogViolation(regulation, violation, severity); err != nil {
				logger.Warn("Failed to log violation", zap.Error(err))
				continue
			}
			metrics.ViolationsTotal.WithLabelValues(regulation, severity).Inc()
		}
	}
}

// deriveSeverity classifies a violation by its text: identifier or
// contact-detail matches are high, everything else medium.
func deriveSeverity(violation string) string {
	lower := strings.ToLower(violation)
	if strings.Contains(lower, "ssn") ||
		strings.Contains(lower, "email") ||
		strings.Contains(lower, "phone") ||
		strings.Contains(lower, "ip_address") {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

func (e *Engine) storeLearningInsights(query string, record compliance.Record, analysis *reasoning.Analysis, report *compliance.Report) {
	queryInsight := models.QueryPatternInsight{
		QueryLength:         len(query),
		DataFieldsRetrieved: len(record),
		ComplianceStatus:    report.OverallCompliant,
		ReasoningConfidence: analysis.StructuredInsights.ConfidenceScore,
	}
	if err := e.store.StoreInsight(models.InsightQueryPattern, queryInsight, 0.7); err != nil {
		logger.Warn("Failed to store query insight", zap.Error(err))
	}

	if !report.OverallCompliant {
		regulations := make([]string, 0, len(report.RegulationResults))
		for name := range report.RegulationResults {
			regulations = append(regulations, name)
		}
		sort.Strings(regulations)

		complianceInsight := models.CompliancePatternInsight{
			ViolationCount:       report.Summary.TotalViolations,
			RegulationViolations: regulations,
			DataFieldCount:       len(record),
		}
		if err := e.store.StoreInsight(models.InsightCompliancePattern, complianceInsight, 0.8); err != nil {
			logger.Warn("Failed to store compliance insight", zap.Error(err))
		}
	}

	performanceInsight := models.PerformancePatternInsight{
		DataComplexity:      recordSize(record),
		HypothesesGenerated: len(analysis.GeneratedHypotheses),
		ReasoningSteps:      len(analysis.ReasoningChain),
	}
	if err := e.store.StoreInsight(models.InsightPerformancePattern, performanceInsight, 0.6); err != nil {
		logger.Warn("Failed to store performance insight", zap.Error(err))
	}
}

// buildRecommendations merges request-local observations with the ledger's
// global guidance, deduplicated in arrival order and capped at 5.
func (e *Engine) buildRecommendations(analysis *reasoning.Analysis, report *compliance.Report) []string {
	var recommendations []string

	completeness := analysis.StructuredInsights.DataQualityAssessment.Completeness
	if completeness == reasoning.CompletenessFair || completeness == reasoning.CompletenessPoor {
		recommendations = append(recommendations,
			"Consider improving data quality for more accurate insights")
	}

	if !report.OverallCompliant {
		recommendations = append(recommendations,
			"Address compliance violations before production deployment")
	}

	if analysis.StructuredInsights.ConfidenceScore < 0.6 {
		recommendations = append(recommendations,
			"Low confidence in analysis - consider additional data sources")
	}

	global, err := e.store.Recommendations()
	if err != nil {
		logger.Warn("Failed to read global recommendations", zap.Error(err))
	} else {
		recommendations = append(recommendations, global...)
	}

	seen := make(map[string]bool, len(recommendations))
	deduped := recommendations[:0]
	for _, rec := range recommendations {
		if !seen[rec] {
			seen[rec] = true
			deduped = append(deduped, rec)
		}
	}

	if len(deduped) > 5 {
		deduped = deduped[:5]
	}
	return deduped
}

// efficiencyScore blends inverse latency with inverse payload size, both
// mapped into (0,1], then averages and caps the result.
func efficiencyScore(processingTime float64, dataSize int) float64 {
	baseEfficiency := 1.0 / (processingTime + 1)
	sizeFactor := 1.0 / (float64(dataSize)/1000 + 1)
	return math.Min((baseEfficiency+sizeFactor)/2, 1.0)
}

func recordSize(record compliance.Record) int {
	data, err := json.Marshal(record)
	if err != nil {
		return 0
	}
	return len(data)
}

func blendHealth(successRate, complianceRate float64) HealthStatus {
	score := (successRate*0.6 + complianceRate*0.4) * 100

	var status string
	switch {
	case score >= 80:
		status = "healthy"
	case score >= 60:
		status = "degraded"
	default:
		status = "unhealthy"
	}

	return HealthStatus{
		Score:          math.Round(score*10) / 10,
		Status:         status,
		SuccessRate:    math.Round(successRate*1000) / 10,
		ComplianceRate: math.Round(complianceRate*1000) / 10,
	}
}
