package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Interaction metrics
	interactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mentor_interactions_total",
		Help: "Total number of interactions by terminal outcome",
	}, []string{"persona", "outcome"})

	interactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mentor_interaction_duration_seconds",
		Help:    "End-to-end duration of interaction requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"persona"})

	// Generation metrics
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mentor_generation_duration_seconds",
		Help:    "Duration of generation backend calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	generationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mentor_generation_retries_total",
		Help: "Total number of generation retry attempts",
	})

	// Moderation metrics
	moderationRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mentor_moderation_rejections_total",
		Help: "Total number of moderation rejections by concern category",
	}, []string{"category"})

	// Budget metrics
	budgetDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mentor_budget_denials_total",
		Help: "Total number of admissions denied by the budget guard",
	})

	budgetAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mentor_budget_alerts_total",
		Help: "Total number of budget alerts emitted",
	}, []string{"type"})

	// Fallback metrics
	fallbacksServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mentor_fallbacks_served_total",
		Help: "Total number of fallback replies by reason",
	}, []string{"reason"})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mentor_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	// Spend distribution across users; buckets in GBP around the default
	// £0.08 daily limit
	dailySpend = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mentor_user_daily_spend_gbp",
		Help:    "User daily spend observed after each billed call",
		Buckets: []float64{0.01, 0.02, 0.04, 0.06, 0.08, 0.12, 0.16},
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordInteraction records one finished interaction
func (m *Metrics) RecordInteraction(persona, outcome string, duration time.Duration) {
	interactionsTotal.WithLabelValues(persona, outcome).Inc()
	interactionDuration.WithLabelValues(persona).Observe(duration.Seconds())
}

// RecordGeneration records a generation backend call
func (m *Metrics) RecordGeneration(status string, duration time.Duration) {
	generationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordGenerationRetry records one retry attempt
func (m *Metrics) RecordGenerationRetry() {
	generationRetries.Inc()
}

// RecordModerationRejection records a rejection per concern category
func (m *Metrics) RecordModerationRejection(category string) {
	moderationRejections.WithLabelValues(category).Inc()
}

// RecordBudgetDenial records an admission denial
func (m *Metrics) RecordBudgetDenial() {
	budgetDenials.Inc()
}

// RecordBudgetAlert records an emitted alert
func (m *Metrics) RecordBudgetAlert(alertType string) {
	budgetAlerts.WithLabelValues(alertType).Inc()
}

// RecordFallback records a served fallback reply
func (m *Metrics) RecordFallback(reason string) {
	fallbacksServed.WithLabelValues(reason).Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// RecordDailySpend observes a user's running daily total in GBP
func (m *Metrics) RecordDailySpend(gbp float64) {
	dailySpend.Observe(gbp)
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
