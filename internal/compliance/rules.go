package compliance

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Pattern sets and thresholds below are policy configuration. Deployments may
// swap the vocabularies or windows; the scan shapes stay fixed.
var (
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	medicalTerms      = regexp.MustCompile(`(?i)\b(cancer|diabetes|HIV|AIDS|treatment|diagnosis|hypertension)\b`)
	healthFacilities  = regexp.MustCompile(`(?i)\b(hospital|clinic|medical center|physician|doctor)\b`)
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern      = regexp.MustCompile(`\b(\+?(\d{1,3})?[\s-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)
	ipAddressPattern  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	patientFieldTerms = []string{"patient", "medical", "health"}
	vitalSignFields   = map[string]bool{"temperature": true, "heart_rate": true}
	temporalTerms     = []string{"date", "timestamp", "time", "created", "last"}
)

// HIPAARule screens for protected-health-information shapes. Identifier
// matches are violations; vocabulary matches alone are only warnings since
// terminology is not conclusive.
type HIPAARule struct{}

func NewHIPAARule() *HIPAARule { return &HIPAARule{} }

func (r *HIPAARule) Name() string { return "hipaa" }

func (r *HIPAARule) Scan(record Record) ([]string, []string) {
	var violations, warnings []string

	for _, field := range sortedFields(record) {
		value := record[field]

		if s, ok := value.(string); ok {
			if ssnPattern.MatchString(s) {
				violations = append(violations, fmt.Sprintf("Potential SSN found in %s", field))
			}
			if medicalTerms.MatchString(s) {
				warnings = append(warnings, fmt.Sprintf("Medical terminology found in %s", field))
			}
			if healthFacilities.MatchString(s) {
				warnings = append(warnings, fmt.Sprintf("Healthcare facility mention in %s", field))
			}
		}

		lowerField := strings.ToLower(field)
		for _, term := range patientFieldTerms {
			if strings.Contains(lowerField, term) && isTruthy(value) && !vitalSignFields[field] {
				warnings = append(warnings, fmt.Sprintf("Potential patient identifier in field: %s", field))
				break
			}
		}
	}

	return violations, warnings
}

// GDPRRule screens the serialized record for personal-data shapes, enforces
// the data-minimization size thresholds, and requires consent-marked fields
// to hold truthy values.
type GDPRRule struct {
	sizeViolationBytes int
	sizeWarningBytes   int
}

func NewGDPRRule(sizeViolationBytes, sizeWarningBytes int) *GDPRRule {
	if sizeViolationBytes <= 0 {
		sizeViolationBytes = 2000
	}
	if sizeWarningBytes <= 0 {
		sizeWarningBytes = 1000
	}
	return &GDPRRule{sizeViolationBytes: sizeViolationBytes, sizeWarningBytes: sizeWarningBytes}
}

func (r *GDPRRule) Name() string { return "gdpr" }

func (r *GDPRRule) Scan(record Record) ([]string, []string) {
	var violations, warnings []string

	serialized := serializeRecord(record)

	personalDataShapes := []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"EMAIL", emailPattern},
		{"PHONE", phonePattern},
		{"IP_ADDRESS", ipAddressPattern},
	}

	for _, shape := range personalDataShapes {
		if shape.pattern.MatchString(serialized) {
			violations = append(violations, fmt.Sprintf("Potential %s found in data", shape.name))
		}
	}

	size := len(serialized)
	if size > r.sizeViolationBytes {
		violations = append(violations, "Data size exceeds minimization principles")
	} else if size > r.sizeWarningBytes {
		warnings = append(warnings, "Large data payload - consider minimization")
	}

	for _, field := range sortedFields(record) {
		if strings.Contains(strings.ToLower(field), "consent") && !isTruthy(record[field]) {
			violations = append(violations, fmt.Sprintf("Missing consent in field: %s", field))
		}
	}

	return violations, warnings
}

// RetentionRule flags date-suggestive fields whose parsed age exceeds the
// retention window, warning at 70% of the window. Field-name matching is
// heuristic, so unparsable values are skipped silently.
type RetentionRule struct {
	retentionDays int
	now           func() time.Time
}

func NewRetentionRule(retentionDays int) *RetentionRule {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &RetentionRule{retentionDays: retentionDays, now: time.Now}
}

func (r *RetentionRule) Name() string { return "data_retention" }

func (r *RetentionRule) Scan(record Record) ([]string, []string) {
	var violations, warnings []string

	for _, field := range sortedFields(record) {
		lowerField := strings.ToLower(field)

		temporal := false
		for _, term := range temporalTerms {
			if strings.Contains(lowerField, term) {
				temporal = true
				break
			}
		}
		if !temporal {
			continue
		}

		s, ok := record[field].(string)
		if !ok {
			continue
		}

		parsed, ok := parseTimestamp(s)
		if !ok {
			continue
		}

		ageDays := int(r.now().Sub(parsed).Hours() / 24)
		if ageDays > r.retentionDays {
			violations = append(violations,
				fmt.Sprintf("Data in %s exceeds retention period (%d days old)", field, ageDays))
		} else if float64(ageDays) > float64(r.retentionDays)*0.7 {
			warnings = append(warnings,
				fmt.Sprintf("Data in %s approaching retention limit (%d days old)", field, ageDays))
		}
	}

	return violations, warnings
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	// Drop fractional seconds the way the source data sometimes carries them.
	if idx := strings.Index(s, "."); idx > 0 {
		s = s[:idx]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func serializeRecord(record Record) string {
	data, err := json.Marshal(record)
	if err != nil {
		// Malformed input degrades to an empty scan target, never an error.
		return ""
	}
	return string(data)
}

func sortedFields(record Record) []string {
	fields := make([]string, 0, len(record))
	for field := range record {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func isTruthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case map[string]interface{}:
		return len(v) > 0
	case []interface{}:
		return len(v) > 0
	default:
		return true
	}
}
