package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataguard_pipeline_duration_seconds",
			Help:    "End-to-end request processing duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataguard_stage_duration_seconds",
			Help:    "Per-stage processing duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"stage"},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataguard_queries_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	ViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataguard_compliance_violations_total",
			Help: "Total compliance violations recorded",
		},
		[]string{"regulation", "severity"},
	)

	ComplianceChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataguard_compliance_checks_total",
			Help: "Total compliance evaluations by result",
		},
		[]string{"result"},
	)

	ReasoningConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataguard_reasoning_confidence_score",
			Help:    "Reasoning confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
)

func Init() {
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(ViolationsTotal)
	prometheus.MustRegister(ComplianceChecks)
	prometheus.MustRegister(ReasoningConfidence)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
