package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := NewMetrics()

	m.IncrementQuestionsGenerated()
	m.IncrementQuestionsGenerated()
	m.IncrementAnswersGraded()
	m.IncrementScoreMismatch()
	m.IncrementSchemaError("question")
	m.ObserveModelCall("generate", time.Second, nil)
	m.ObserveModelCall("grade", time.Second, errors.New("boom"))
	m.AddUsage("grade", "gpt-4.1", 100, 20, 0.0005)

	if got := testutil.ToFloat64(m.QuestionsGenerated); got != 2 {
		t.Errorf("questions generated = %v", got)
	}
	if got := testutil.ToFloat64(m.AnswersGraded); got != 1 {
		t.Errorf("answers graded = %v", got)
	}
	if got := testutil.ToFloat64(m.ScoreMismatches); got != 1 {
		t.Errorf("score mismatches = %v", got)
	}
	if got := testutil.ToFloat64(m.SchemaErrors.WithLabelValues("question")); got != 1 {
		t.Errorf("schema errors = %v", got)
	}
	if got := testutil.ToFloat64(m.ModelCalls.WithLabelValues("grade", "error")); got != 1 {
		t.Errorf("failed grade calls = %v", got)
	}
	if got := testutil.ToFloat64(m.Tokens.WithLabelValues("grade", "prompt")); got != 100 {
		t.Errorf("prompt tokens = %v", got)
	}
	if got := testutil.ToFloat64(m.CostUSD.WithLabelValues("gpt-4.1")); got != 0.0005 {
		t.Errorf("cost = %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	m.IncrementQuestionsGenerated()
	m.ObserveModelCall("generate", time.Second, nil)
	m.AddUsage("generate", "gpt-4.1", 1, 1, 1)
	m.SetActiveSessions("http", 1)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected pass-through, got %d", rec.Code)
	}
}

func TestMiddleware_RoutePattern(t *testing.T) {
	m := NewMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil))

	if got := testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/api/sessions/{id}", "404")); got != 1 {
		t.Errorf("expected request counted by pattern, got %v", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "http_requests_total") {
		t.Error("expected exposition to include http_requests_total")
	}
}
