package reasoning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	prose "github.com/jdkato/prose/v2"

	"github.com/dataguard/agent/internal/compliance"
)

// Agent is the heuristic chain-of-thought reasoner. Each call runs five fixed
// steps: data understanding, hypothesis generation, pattern recognition,
// context analysis, insight synthesis. It holds no cross-request state.
type Agent struct{}

func NewAgent() *Agent { return &Agent{} }

func (a *Agent) Analyze(_ context.Context, record compliance.Record, query string) (*Analysis, error) {
	var chain []Step
	addStep := func(stepType, description string) {
		chain = append(chain, Step{
			Number:      len(chain) + 1,
			Type:        stepType,
			Description: description,
			Timestamp:   time.Now().Format("15:04:05"),
		})
	}

	addStep("DATA_UNDERSTANDING", "Analyzing data structure and content")
	structure := understandStructure(record)

	addStep("HYPOTHESIS_GENERATION", "Generating potential insights based on data patterns")
	hypotheses := generateHypotheses(record, query)

	addStep("PATTERN_RECOGNITION", "Identifying patterns and correlations in the data")
	patterns := identifyPatterns(record)

	addStep("CONTEXT_ANALYSIS", "Analyzing data in the context of the query")
	contextAnalysis := analyzeContext(record, query)

	addStep("INSIGHT_SYNTHESIS", "Synthesizing final insights from all analysis steps")
	insights := synthesizeInsights(structure, hypotheses, patterns, contextAnalysis)

	return &Analysis{
		StructuredInsights:  insights,
		ReasoningChain:      chain,
		GeneratedHypotheses: hypotheses,
		IdentifiedPatterns:  patterns,
		ContextAnalysis:     contextAnalysis,
		Timestamp:           time.Now(),
	}, nil
}

type structureInsights struct {
	fieldCount    int
	numericFields int
	textFields    int
	nullFields    int
	completeness  float64
}

func understandStructure(record compliance.Record) structureInsights {
	s := structureInsights{fieldCount: len(record), completeness: 1.0}

	for _, value := range record {
		switch value.(type) {
		case int, int64, float64:
			s.numericFields++
		case string:
			s.textFields++
		case nil:
			s.nullFields++
		}
	}

	if s.fieldCount > 0 {
		s.completeness = 1 - float64(s.nullFields)/float64(s.fieldCount)
	}
	return s
}

func generateHypotheses(record compliance.Record, query string) []string {
	var hypotheses []string
	lower := strings.ToLower(query)

	if containsAny(lower, "weather", "temperature", "forecast") {
		if temp, ok := numericField(record, "temperature"); ok {
			switch {
			case temp > 30:
				hypotheses = append(hypotheses, "High temperature conditions detected - potential heat wave impact")
			case temp < 0:
				hypotheses = append(hypotheses, "Freezing temperatures - risk of ice and winter conditions")
			case temp >= 20 && temp <= 26:
				hypotheses = append(hypotheses, "Comfortable temperature range - ideal for outdoor activities")
			}
		}

		if humidity, ok := numericField(record, "humidity"); ok {
			if humidity > 80 {
				hypotheses = append(hypotheses, "High humidity may affect comfort and equipment")
			} else if humidity < 30 {
				hypotheses = append(hypotheses, "Low humidity conditions - potential dehydration risk")
			}
		}

		if condition, ok := record["weather_condition"].(string); ok {
			if strings.Contains(strings.ToLower(condition), "rain") {
				hypotheses = append(hypotheses, "Precipitation expected - consider indoor alternatives")
			} else if strings.Contains(strings.ToLower(condition), "snow") {
				hypotheses = append(hypotheses, "Snow conditions - transportation and safety considerations")
			}
		}
	}

	if containsAny(lower, "patient", "medical", "health") {
		if _, ok := record["blood_pressure"]; ok {
			hypotheses = append(hypotheses, "Blood pressure data available for health monitoring")
		}
		if _, ok := record["heart_rate"]; ok {
			hypotheses = append(hypotheses, "Heart rate monitoring provides vital health insights")
		}
	}

	if containsAny(lower, "sales", "business", "customer") {
		if _, ok := record["sales_volume"]; ok {
			hypotheses = append(hypotheses, "Sales volume trends can inform business strategy")
		}
		if _, ok := record["customer_count"]; ok {
			hypotheses = append(hypotheses, "Customer behavior patterns may reveal opportunities")
		}
	}

	for _, value := range record {
		if value == nil {
			hypotheses = append(hypotheses, "Data completeness issues detected - may affect analysis accuracy")
			break
		}
	}

	if len(record) < 3 {
		hypotheses = append(hypotheses, "Limited data fields available - consider additional data sources")
	}

	return hypotheses
}

func identifyPatterns(record compliance.Record) Patterns {
	patterns := Patterns{
		NumericRanges:     make(map[string]float64),
		CategoricalValues: make(map[string][]string),
	}

	fields := make([]string, 0, len(record))
	for field := range record {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var numericFields []string
	for _, field := range fields {
		switch v := record[field].(type) {
		case int:
			patterns.NumericRanges[field] = float64(v)
			numericFields = append(numericFields, field)
		case int64:
			patterns.NumericRanges[field] = float64(v)
			numericFields = append(numericFields, field)
		case float64:
			patterns.NumericRanges[field] = v
			numericFields = append(numericFields, field)
		case string:
			patterns.CategoricalValues[field] = append(patterns.CategoricalValues[field], v)
		}
	}

	if len(numericFields) >= 2 {
		patterns.Correlations = append(patterns.Correlations,
			fmt.Sprintf("Potential relationship between %s and %s", numericFields[0], numericFields[1]))
	}

	if temp, ok := patterns.NumericRanges["temperature"]; ok && (temp > 50 || temp < -50) {
		patterns.Anomalies = append(patterns.Anomalies,
			fmt.Sprintf("Extreme temperature value: %v", temp))
	}
	if humidity, ok := patterns.NumericRanges["humidity"]; ok && (humidity > 100 || humidity < 0) {
		patterns.Anomalies = append(patterns.Anomalies,
			fmt.Sprintf("Invalid humidity value: %v", humidity))
	}

	if _, ok := record["timestamp"]; ok {
		patterns.Trends = append(patterns.Trends, "Temporal data available for trend analysis")
	}

	return patterns
}

func analyzeContext(record compliance.Record, query string) Context {
	ctx := Context{
		QueryIntent:   inferIntent(query),
		DataRelevance: assessRelevance(record, query),
	}

	if strings.Contains(strings.ToLower(query), "weather") {
		if temp, ok := numericField(record, "temperature"); ok {
			if temp < 10 {
				ctx.ActionableInsights = append(ctx.ActionableInsights, "Recommend warm clothing")
			} else if temp > 25 {
				ctx.ActionableInsights = append(ctx.ActionableInsights, "Recommend light clothing and hydration")
			}
		}
	}

	if len(record) < 5 {
		ctx.Limitations = append(ctx.Limitations, "Limited data fields may restrict comprehensive analysis")
	}
	for _, value := range record {
		if value == nil {
			ctx.Limitations = append(ctx.Limitations, "Missing values in dataset")
			break
		}
	}

	return ctx
}

func inferIntent(query string) string {
	lower := strings.ToLower(query)
	switch {
	case containsAny(lower, "weather", "temperature", "forecast"):
		return "weather_inquiry"
	case containsAny(lower, "patient", "medical", "health"):
		return "health_analysis"
	case containsAny(lower, "sales", "business", "customer"):
		return "business_intelligence"
	case containsAny(lower, "analyze", "insight", "pattern"):
		return "data_analysis"
	default:
		return "general_inquiry"
	}
}

// assessRelevance scores query/data term overlap. Tokenization goes through
// prose; a tokenizer failure degrades to whitespace splitting.
func assessRelevance(record compliance.Record, query string) float64 {
	relevance := 0.5

	dataTerms := strings.ToLower(fmt.Sprintf("%v", record))

	matching := 0
	for _, term := range tokenize(strings.ToLower(query)) {
		if strings.Contains(dataTerms, term) {
			matching++
		}
	}
	boost := float64(matching) * 0.1
	if boost > 0.3 {
		boost = 0.3
	}
	relevance += boost

	if strings.Contains(strings.ToLower(query), "weather") {
		if _, hasTemp := record["temperature"]; hasTemp {
			relevance += 0.2
		} else if _, hasHumidity := record["humidity"]; hasHumidity {
			relevance += 0.2
		}
	}

	if relevance > 1.0 {
		relevance = 1.0
	}
	return relevance
}

func tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return strings.Fields(text)
	}

	var terms []string
	for _, tok := range doc.Tokens() {
		terms = append(terms, tok.Text)
	}
	return terms
}

func synthesizeInsights(structure structureInsights, hypotheses []string, patterns Patterns, ctx Context) StructuredInsights {
	return StructuredInsights{
		QueryResponse:         buildQueryResponse(structure, hypotheses, ctx),
		DataQualityAssessment: assessQuality(structure),
		Recommendations:       buildRecommendations(hypotheses, patterns, ctx),
		ConfidenceScore:       calculateConfidence(structure, hypotheses, ctx),
		KeyFindings:           extractKeyFindings(hypotheses, patterns),
	}
}

func buildQueryResponse(structure structureInsights, hypotheses []string, ctx Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on analysis of %d data fields, ", structure.fieldCount)

	if len(hypotheses) > 0 {
		fmt.Fprintf(&b, "the primary insight is: %s. ", hypotheses[0])
	} else {
		b.WriteString("the data appears consistent with expected patterns. ")
	}

	if len(ctx.ActionableInsights) > 0 {
		fmt.Fprintf(&b, "Recommendation: %s. ", ctx.ActionableInsights[0])
	}

	if structure.completeness < 0.8 {
		b.WriteString("Note: Data quality considerations identified. ")
	}

	return strings.TrimSpace(b.String())
}

func assessQuality(structure structureInsights) QualityAssessment {
	var level string
	switch {
	case structure.completeness > 0.9:
		level = CompletenessExcellent
	case structure.completeness > 0.7:
		level = CompletenessGood
	case structure.completeness > 0.5:
		level = CompletenessFair
	default:
		level = CompletenessPoor
	}

	variety := "limited"
	if structure.fieldCount > 3 {
		variety = "good"
	}

	return QualityAssessment{
		Completeness:  level,
		FieldVariety:  variety,
		Assessment:    fmt.Sprintf("Data quality is %s with %.0f%% completeness", level, structure.completeness*100),
		NumericFields: structure.numericFields,
		TextFields:    structure.textFields,
	}
}

func buildRecommendations(hypotheses []string, patterns Patterns, ctx Context) []string {
	var recommendations []string

	recommendations = append(recommendations, ctx.ActionableInsights...)

	if len(hypotheses) > 0 {
		recommendations = append(recommendations, "Consider validating the generated hypotheses with additional data")
	}
	if len(patterns.Correlations) > 0 {
		recommendations = append(recommendations, "Further analysis recommended for identified correlations")
	}
	if len(patterns.Anomalies) > 0 {
		recommendations = append(recommendations, "Review data anomalies for potential data quality issues")
	}

	recommendations = append(recommendations, "Regular data quality validation recommended")

	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}
	return recommendations
}

func extractKeyFindings(hypotheses []string, patterns Patterns) []string {
	var findings []string

	if len(hypotheses) > 0 {
		limit := 2
		if len(hypotheses) < limit {
			limit = len(hypotheses)
		}
		findings = append(findings, hypotheses[:limit]...)
	}

	if len(patterns.Anomalies) > 0 {
		findings = append(findings, "Data anomalies detected requiring review")
	}
	if len(patterns.Correlations) > 0 {
		findings = append(findings, "Potential correlations identified in the data")
	}

	if len(findings) > 3 {
		findings = findings[:3]
	}
	return findings
}

func calculateConfidence(structure structureInsights, hypotheses []string, ctx Context) float64 {
	confidence := 0.5

	if structure.fieldCount > 3 {
		confidence += 0.2
	}
	if len(hypotheses) > 0 {
		confidence += 0.2
	}
	confidence += (ctx.DataRelevance - 0.5) * 0.3
	confidence += (structure.completeness - 0.5) * 0.3

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.1 {
		confidence = 0.1
	}
	return confidence
}

func numericField(record compliance.Record, field string) (float64, bool) {
	switch v := record[field].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func containsAny(s string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
