package compliance

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHIPAARuleSSNViolation(t *testing.T) {
	rule := NewHIPAARule()

	violations, _ := rule.Scan(Record{
		"notes": "SSN on file: 123-45-6789",
	})

	require.Len(t, violations, 1)
	assert.Equal(t, "Potential SSN found in notes", violations[0])
}

func TestHIPAARuleVocabularyIsWarningOnly(t *testing.T) {
	rule := NewHIPAARule()

	violations, warnings := rule.Scan(Record{
		"summary": "Treated for diabetes at General Hospital",
	})

	assert.Empty(t, violations)
	assert.Contains(t, warnings, "Medical terminology found in summary")
	assert.Contains(t, warnings, "Healthcare facility mention in summary")
}

func TestHIPAARulePatientFieldWarning(t *testing.T) {
	rule := NewHIPAARule()

	tests := []struct {
		name     string
		record   Record
		expected bool
	}{
		{"populated patient field", Record{"patient_id": "P-100"}, true},
		{"empty patient field", Record{"patient_id": ""}, false},
		{"vital sign exemption", Record{"temperature": 98.6}, false},
		{"health substring", Record{"health_score": 42}, true},
		{"unrelated field", Record{"city": "Boston"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, warnings := rule.Scan(tt.record)
			if tt.expected {
				require.Len(t, warnings, 1)
				assert.Contains(t, warnings[0], "Potential patient identifier")
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}

func TestGDPRRulePersonalDataShapes(t *testing.T) {
	rule := NewGDPRRule(2000, 1000)

	violations, _ := rule.Scan(Record{
		"email": "user@example.com",
		"phone": "555-123-4567",
		"ip":    "192.168.1.10",
	})

	assert.Contains(t, violations, "Potential EMAIL found in data")
	assert.Contains(t, violations, "Potential PHONE found in data")
	assert.Contains(t, violations, "Potential IP_ADDRESS found in data")
}

func TestGDPRRuleSizeThresholds(t *testing.T) {
	rule := NewGDPRRule(2000, 1000)

	small := Record{"data": "ok"}
	violations, warnings := rule.Scan(small)
	assert.Empty(t, violations)
	assert.Empty(t, warnings)

	medium := Record{"data": strings.Repeat("x", 1500)}
	violations, warnings = rule.Scan(medium)
	assert.Empty(t, violations)
	assert.Contains(t, warnings, "Large data payload - consider minimization")

	large := Record{"data": strings.Repeat("x", 2500)}
	violations, _ = rule.Scan(large)
	assert.Contains(t, violations, "Data size exceeds minimization principles")
}

func TestGDPRRuleConsentFields(t *testing.T) {
	rule := NewGDPRRule(2000, 1000)

	tests := []struct {
		name      string
		record    Record
		violation bool
	}{
		{"consent true", Record{"user_consent": true}, false},
		{"consent false", Record{"user_consent": false}, true},
		{"consent empty string", Record{"consent_status": ""}, true},
		{"consent nil", Record{"consent": nil}, true},
		{"consent nonempty string", Record{"consent": "granted"}, false},
		{"no consent field", Record{"name": "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations, _ := rule.Scan(tt.record)
			found := false
			for _, v := range violations {
				if strings.HasPrefix(v, "Missing consent in field:") {
					found = true
				}
			}
			assert.Equal(t, tt.violation, found)
		})
	}
}

func TestRetentionRuleWindows(t *testing.T) {
	rule := NewRetentionRule(30)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rule.now = func() time.Time { return now }

	tests := []struct {
		name      string
		ageDays   int
		violation bool
		warning   bool
	}{
		{"fresh", 5, false, false},
		{"approaching limit", 25, false, true},
		{"expired", 45, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamp := now.AddDate(0, 0, -tt.ageDays).Format(time.RFC3339)
			violations, warnings := rule.Scan(Record{"created_at": stamp})

			if tt.violation {
				require.Len(t, violations, 1)
				assert.Equal(t,
					fmt.Sprintf("Data in created_at exceeds retention period (%d days old)", tt.ageDays),
					violations[0])
			} else {
				assert.Empty(t, violations)
			}

			if tt.warning {
				require.Len(t, warnings, 1)
				assert.Contains(t, warnings[0], "approaching retention limit")
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}

func TestRetentionRuleSkipsUnparsableAndNonTemporal(t *testing.T) {
	rule := NewRetentionRule(30)

	violations, warnings := rule.Scan(Record{
		"created_at": "not a date",
		"timestamp":  12345,
		"city":       "2020-01-01",
	})

	assert.Empty(t, violations)
	assert.Empty(t, warnings)
}

func TestParseTimestampLayouts(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"2026-01-15T10:30:00Z", true},
		{"2026-01-15T10:30:00", true},
		{"2026-01-15 10:30:00", true},
		{"2026-01-15", true},
		{"2026-01-15T10:30:00.123456", true},
		{"January 15, 2026", false},
		{"", false},
	}

	for _, tt := range tests {
		_, ok := parseTimestamp(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
	}
}
