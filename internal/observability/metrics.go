package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the voice gateway and backend.
//
// It tracks:
//   - Turns by outcome path (direct, function, fallback) and their latency
//   - Completion requests by model and status
//   - Function calls and backend lookups
//   - Live call sessions and relay events
//   - HTTP and database traffic on the lookup backend
//
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// TurnCounter counts turns. Labels: path (direct|function|fallback)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	TurnDuration prometheus.Histogram

	// LLMRequestCounter counts completion requests. Labels: model, status
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures completion latency. Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption. Labels: model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// FunctionCallCounter counts function invocations. Labels: function, status
	FunctionCallCounter *prometheus.CounterVec

	// LookupCounter counts backend lookups. Labels: endpoint, status
	LookupCounter *prometheus.CounterVec

	// LookupDuration measures lookup latency. Labels: endpoint
	LookupDuration *prometheus.HistogramVec

	// ActiveSessions is the number of live call sessions.
	ActiveSessions prometheus.Gauge

	// RelayEventCounter counts inbound relay events. Labels: type
	RelayEventCounter *prometheus.CounterVec

	// HTTPRequestCounter counts HTTP requests. Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP latency. Labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts queries. Labels: operation, status
	DatabaseQueryCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures query latency. Labels: operation
	DatabaseQueryDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// registers with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontdesk_turns_total",
				Help: "Total number of caller turns by outcome path",
			},
			[]string{"path"},
		),
		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "frontdesk_turn_duration_seconds",
				Help:    "Duration of caller turns in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
			},
		),
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontdesk_llm_requests_total",
				Help: "Total number of completion requests by model and status",
			},
			[]string{"model", "status"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frontdesk_llm_request_duration_seconds",
				Help:    "Duration of completion requests in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"model"},
		),
		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontdesk_llm_tokens_total",
				Help: "Total number of tokens used by model and type",
			},
			[]string{"model", "type"},
		),
		FunctionCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontdesk_function_calls_total",
				Help: "Total number of model function calls by function and status",
			},
			[]string{"function", "status"},
		),
		LookupCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontdesk_lookup_requests_total",
				Help: "Total number of backend lookups by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		LookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frontdesk_lookup_duration_seconds",
				Help:    "Duration of backend lookups in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"endpoint"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "frontdesk_active_sessions",
				Help: "Number of live call sessions",
			},
		),
		RelayEventCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontdesk_relay_events_total",
				Help: "Total number of inbound relay events by type",
			},
			[]string{"type"},
		),
		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frontdesk_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path"},
		),
		DatabaseQueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontdesk_db_queries_total",
				Help: "Total number of database queries by operation and status",
			},
			[]string{"operation", "status"},
		),
		DatabaseQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frontdesk_db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
	}
}

// RecordTurn records a completed turn and the path it took.
func (m *Metrics) RecordTurn(path string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(path).Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// RecordLLMRequest records a completion request.
func (m *Metrics) RecordLLMRequest(model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordFunctionCall records a model function invocation.
func (m *Metrics) RecordFunctionCall(function, status string) {
	if m == nil {
		return
	}
	m.FunctionCallCounter.WithLabelValues(function, status).Inc()
}

// RecordLookup records a backend lookup.
func (m *Metrics) RecordLookup(endpoint, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LookupCounter.WithLabelValues(endpoint, status).Inc()
	m.LookupDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// RecordRelayEvent counts an inbound relay event.
func (m *Metrics) RecordRelayEvent(eventType string) {
	if m == nil {
		return
	}
	m.RelayEventCounter.WithLabelValues(eventType).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// RecordDatabaseQuery records a database query.
func (m *Metrics) RecordDatabaseQuery(operation, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.DatabaseQueryCounter.WithLabelValues(operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation).Observe(durationSeconds)
}
