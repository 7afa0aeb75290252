package models

import "time"

// QueryStat is the per-fingerprint ledger row. SuccessRate and
// AvgProcessingTime are exact running means over ExecutionCount observations.
type QueryStat struct {
	Fingerprint       string
	QueryText         string
	ExecutionCount    int
	SuccessRate       float64
	AvgProcessingTime float64
	LastSeen          time.Time
}

// ViolationRecord is append-only. Resolved is flipped by an external
// remediation process, never by this system.
type ViolationRecord struct {
	ID          int
	Regulation  string
	Description string
	Severity    string
	Timestamp   time.Time
	Resolved    bool
}

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// AgentPerformanceStat is keyed by (AgentName, TaskType).
type AgentPerformanceStat struct {
	AgentName       string
	TaskType        string
	SuccessCount    int
	TotalCount      int
	AvgResponseTime float64
	LastUpdated     time.Time
}

func (s AgentPerformanceStat) SuccessRate() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalCount)
}

// Insight is an append-only free-form observation with a confidence weight.
// Payloads are one of the typed insight structs below, serialized as JSON.
type Insight struct {
	ID         int
	Type       string
	Payload    []byte
	Confidence float64
	Timestamp  time.Time
}

const (
	InsightQueryPattern       = "query_pattern"
	InsightCompliancePattern  = "compliance_pattern"
	InsightPerformancePattern = "performance_pattern"
)

type QueryPatternInsight struct {
	QueryLength         int     `json:"query_length"`
	DataFieldsRetrieved int     `json:"data_fields_retrieved"`
	ComplianceStatus    bool    `json:"compliance_status"`
	ReasoningConfidence float64 `json:"reasoning_confidence"`
}

type CompliancePatternInsight struct {
	ViolationCount       int      `json:"violation_count"`
	RegulationViolations []string `json:"regulation_violations"`
	DataFieldCount       int      `json:"data_field_count"`
}

type PerformancePatternInsight struct {
	DataComplexity      int `json:"data_complexity"`
	HypothesesGenerated int `json:"hypotheses_generated"`
	ReasoningSteps      int `json:"reasoning_steps"`
}

// ViolationSummary is a grouped view over unresolved violations in a
// trailing window, ranked by count.
type ViolationSummary struct {
	Type     string `json:"type"`
	Count    int    `json:"count"`
	Severity string `json:"severity"`
}

// AgentSummary is the per-agent aggregate exposed by SystemSnapshot.
type AgentSummary struct {
	SuccessRate     float64 `json:"success_rate"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// SystemSnapshot is a read-only view over the ledger.
type SystemSnapshot struct {
	TotalQueries      int                     `json:"total_queries_processed"`
	AvgSuccessRate    float64                 `json:"average_success_rate"`
	CommonViolations  []ViolationSummary      `json:"common_compliance_issues"`
	AgentPerformance  map[string]AgentSummary `json:"agent_performance"`
	SystemHealth      string                  `json:"system_health"`
	PerformanceTrend  string                  `json:"performance_trend"`
}

const (
	HealthExcellent = "excellent"
	HealthGood      = "good"
	HealthFair      = "fair"
	HealthPoor      = "poor"
)

const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)
