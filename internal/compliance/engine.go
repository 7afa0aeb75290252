package compliance

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataguard/agent/pkg/logger"
)

const summaryCap = 5

// Engine applies named regulation rules to records. Rules are registered in a
// registry so new regulations slot in without touching callers. Evaluation is
// deterministic for a given record snapshot; the engine's only internal state
// is a check counter feeding Stats, which never influences a report.
type Engine struct {
	rules map[string]Rule
	order []string

	mu         sync.Mutex
	checkCount int
	compliant  int
	violations []string
}

type Option func(*Engine)

// WithRule registers an additional regulation.
func WithRule(rule Rule) Option {
	return func(e *Engine) {
		e.register(rule)
	}
}

// NewEngine builds an engine with the built-in regulations registered.
func NewEngine(sizeViolationBytes, sizeWarningBytes, retentionDays int, opts ...Option) *Engine {
	e := &Engine{rules: make(map[string]Rule)}
	e.register(NewHIPAARule())
	e.register(NewGDPRRule(sizeViolationBytes, sizeWarningBytes))
	e.register(NewRetentionRule(retentionDays))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) register(rule Rule) {
	if _, exists := e.rules[rule.Name()]; !exists {
		e.order = append(e.order, rule.Name())
	}
	e.rules[rule.Name()] = rule
}

// KnownRegulations returns the registered regulation names in registration order.
func (e *Engine) KnownRegulations() []string {
	names := make([]string, len(e.order))
	copy(names, e.order)
	return names
}

// Evaluate applies the selected regulations to a record. Unknown regulation
// names are skipped silently so callers can request a superset safely.
func (e *Engine) Evaluate(record Record, regulations []string) *Report {
	report := &Report{
		ID:                newReportID(),
		OverallCompliant:  true,
		RegulationResults: make(map[string]CheckResult),
	}

	var allViolations, allWarnings []string

	for _, name := range regulations {
		rule, ok := e.rules[name]
		if !ok {
			continue
		}

		violations, warnings := rule.Scan(record)
		result := CheckResult{
			IsCompliant: len(violations) == 0,
			Violations:  violations,
			Warnings:    warnings,
			RuleApplied: name,
		}
		report.RegulationResults[name] = result

		if !result.IsCompliant {
			report.OverallCompliant = false
		}
		allViolations = append(allViolations, violations...)
		allWarnings = append(allWarnings, warnings...)
	}

	report.Summary = Summary{
		TotalViolations: len(allViolations),
		TotalWarnings:   len(allWarnings),
		Violations:      capList(allViolations, summaryCap),
		Warnings:        capList(allWarnings, summaryCap),
	}

	e.recordCheck(report.OverallCompliant, allViolations)

	logger.Debug("Compliance evaluation completed",
		zap.String("report_id", report.ID),
		zap.Bool("overall_compliant", report.OverallCompliant),
		zap.Int("violations", len(allViolations)),
		zap.Int("warnings", len(allWarnings)),
	)

	return report
}

// Stats reports the engine's in-process check totals.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.checkCount == 0 {
		return Stats{TotalChecks: 0, ComplianceRate: 1.0, MostCommonViolation: "none"}
	}

	return Stats{
		TotalChecks:         e.checkCount,
		ComplianceRate:      float64(e.compliant) / float64(e.checkCount),
		MostCommonViolation: mostCommonViolationType(e.violations),
	}
}

func (e *Engine) recordCheck(compliant bool, violations []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkCount++
	if compliant {
		e.compliant++
	}
	e.violations = append(e.violations, violations...)
}

// newReportID is time-derived for audit correlation with a random suffix so
// reports issued within the same second never collide.
func newReportID() string {
	return fmt.Sprintf("COMP_%s_%s",
		time.Now().UTC().Format("20060102_150405"),
		uuid.New().String()[:8],
	)
}

func mostCommonViolationType(violations []string) string {
	if len(violations) == 0 {
		return "none"
	}

	counts := make(map[string]int)
	for _, v := range violations {
		vType := strings.SplitN(v, " ", 2)[0]
		counts[vType]++
	}

	best, bestCount := "none", 0
	for vType, count := range counts {
		if count > bestCount {
			best, bestCount = vType, count
		}
	}
	return best
}

func capList(items []string, max int) []string {
	if len(items) <= max {
		return items
	}
	return items[:max]
}
