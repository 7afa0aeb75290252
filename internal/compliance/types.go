package compliance

// Record is the field-to-value mapping under evaluation. Values are scalars
// or nested mappings. The engine never mutates a record.
type Record = map[string]interface{}

// Rule is a single named regulation. Scans are independent classifiers:
// a rule never sees another rule's output.
type Rule interface {
	Name() string
	Scan(record Record) (violations, warnings []string)
}

// CheckResult is the outcome of one regulation scan.
type CheckResult struct {
	IsCompliant bool     `json:"is_compliant"`
	Violations  []string `json:"violations"`
	Warnings    []string `json:"warnings"`
	RuleApplied string   `json:"rule_applied"`
}

// Report aggregates every applied regulation for one record.
type Report struct {
	ID                string                 `json:"compliance_id"`
	OverallCompliant  bool                   `json:"overall_compliant"`
	RegulationResults map[string]CheckResult `json:"regulation_results"`
	Summary           Summary                `json:"summary"`
}

// Summary caps the violation and warning lists for response payloads; the
// counts always reflect the full totals.
type Summary struct {
	TotalViolations int      `json:"total_violations"`
	TotalWarnings   int      `json:"total_warnings"`
	Violations      []string `json:"violations"`
	Warnings        []string `json:"warnings"`
}

// Stats summarizes the engine's in-process check log.
type Stats struct {
	TotalChecks         int     `json:"total_checks"`
	ComplianceRate      float64 `json:"compliance_rate"`
	MostCommonViolation string  `json:"most_common_violation"`
}
