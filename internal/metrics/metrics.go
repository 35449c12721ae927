package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interview_practice"

// Metrics holds the service collectors on a private registry.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	QuestionsGenerated prometheus.Counter
	AnswersGraded      prometheus.Counter
	ScoreMismatches    prometheus.Counter
	SchemaErrors       *prometheus.CounterVec
	ModelCalls         *prometheus.CounterVec
	ModelLatency       *prometheus.HistogramVec
	Tokens             *prometheus.CounterVec
	CostUSD            *prometheus.CounterVec
	ActiveSessions     *prometheus.GaugeVec
	RequestCounter     *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		QuestionsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_generated_total",
			Help:      "Total number of interview questions generated",
		}),
		AnswersGraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_graded_total",
			Help:      "Total number of answers graded",
		}),
		ScoreMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_mismatches_total",
			Help:      "Reports whose overall score differs from the weighted rubric score",
		}),
		SchemaErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_errors_total",
				Help:      "Model replies rejected by schema validation",
			},
			[]string{"kind"},
		),
		ModelCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_calls_total",
				Help:      "Total number of language model calls",
			},
			[]string{"operation", "outcome"},
		),
		ModelLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_call_duration_seconds",
				Help:      "Duration of language model calls",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"operation"},
		),
		Tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens consumed by language model calls",
			},
			[]string{"operation", "kind"},
		),
		CostUSD: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "estimated_cost_usd_total",
				Help:      "Estimated spend on language model calls",
			},
			[]string{"model"},
		),
		ActiveSessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Practice sessions currently held in memory",
			},
			[]string{"frontend"},
		),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "endpoint"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.QuestionsGenerated,
		m.AnswersGraded,
		m.ScoreMismatches,
		m.SchemaErrors,
		m.ModelCalls,
		m.ModelLatency,
		m.Tokens,
		m.CostUSD,
		m.ActiveSessions,
		m.RequestCounter,
		m.RequestDuration,
	)

	return m
}

func (m *Metrics) IncrementQuestionsGenerated() {
	if m == nil {
		return
	}
	m.QuestionsGenerated.Inc()
}

func (m *Metrics) IncrementAnswersGraded() {
	if m == nil {
		return
	}
	m.AnswersGraded.Inc()
}

func (m *Metrics) IncrementScoreMismatch() {
	if m == nil {
		return
	}
	m.ScoreMismatches.Inc()
}

func (m *Metrics) IncrementSchemaError(kind string) {
	if m == nil {
		return
	}
	m.SchemaErrors.WithLabelValues(kind).Inc()
}

// ObserveModelCall records one call and its outcome.
func (m *Metrics) ObserveModelCall(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ModelCalls.WithLabelValues(operation, outcome).Inc()
	m.ModelLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// AddUsage records token usage and the estimated cost of one call.
func (m *Metrics) AddUsage(operation, model string, promptTokens, completionTokens int, cost float64) {
	if m == nil {
		return
	}
	m.Tokens.WithLabelValues(operation, "prompt").Add(float64(promptTokens))
	m.Tokens.WithLabelValues(operation, "completion").Add(float64(completionTokens))
	if cost > 0 {
		m.CostUSD.WithLabelValues(model).Add(cost)
	}
}

func (m *Metrics) SetActiveSessions(frontend string, n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(frontend).Set(float64(n))
}

// Middleware counts HTTP requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
