package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"interview-practice/internal/config"
	"interview-practice/internal/interview"
	"interview-practice/internal/metrics"
	"interview-practice/internal/pricing"
	"interview-practice/internal/server"
	"interview-practice/internal/session"
)

type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) Generate(_ context.Context, req interview.QuestionRequest) (*interview.Question, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &interview.Question{
		Question:  "Explain ARC",
		Followups: []string{"Q1", "Q2"},
		Rubric:    []interview.RubricItem{{Competency: "Memory Mgmt", Weight: 1, Score1: "a", Score3: "b", Score5: "c"}},
	}, nil
}

type fakeGrader struct {
	calls int
}

func (f *fakeGrader) Grade(_ context.Context, q *interview.Question, answer string) (*interview.Report, error) {
	f.calls++
	return &interview.Report{
		OverallScore:       3,
		ScoresByCompetency: []interview.CompetencyScore{{Competency: "Memory Mgmt", Score: 3, Rationale: "ok"}},
		FinalFeedback:      "Go deeper on weak references.",
		ComputedScore:      3,
	}, nil
}

type fakeSpeech struct{}

func (fakeSpeech) Synthesize(context.Context, string) ([]byte, error) { return []byte("ID3"), nil }
func (fakeSpeech) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	return "spoken: " + string(audio), nil
}

type testEnv struct {
	srv    *httptest.Server
	gen    *fakeGenerator
	grader *fakeGrader
}

func newTestEnv(t *testing.T, opts ...session.Option) *testEnv {
	t.Helper()
	env := &testEnv{gen: &fakeGenerator{}, grader: &fakeGrader{}}
	registry := session.NewRegistry(func(id string) *session.Session {
		all := append([]session.Option{session.WithID(id)}, opts...)
		return session.New(env.gen, env.grader, session.ParamsFromConfig(config.Default()), all...)
	})
	s := server.New(config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		registry, pricing.NewEstimator(nil), metrics.NewMetrics(), zap.NewNop())
	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeState(t *testing.T, resp *http.Response) session.State {
	t.Helper()
	var st session.State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func decodeError(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return body
}

func (e *testEnv) create(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	return decodeState(t, resp).ID
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t)
	base := "/api/sessions/" + id

	resp := env.do(t, http.MethodPut, base+"/level", map[string]string{"level": "medium"})
	if st := decodeState(t, resp); st.Level != interview.LevelMedium {
		t.Errorf("expected Medium, got %s", st.Level)
	}

	resp = env.do(t, http.MethodPost, base+"/next", nil)
	st := decodeState(t, resp)
	if resp.StatusCode != http.StatusOK || st.Stage != session.StageQuestionReady {
		t.Fatalf("unexpected next response %d %+v", resp.StatusCode, st)
	}
	if st.Question.Question != "Explain ARC" || !st.Controls.AnswerEditable {
		t.Errorf("unexpected state %+v", st)
	}

	resp = env.do(t, http.MethodPut, base+"/answer", map[string]string{"answer": "I don't know"})
	if st := decodeState(t, resp); !st.Controls.CanFinish {
		t.Errorf("finish should be available: %+v", st.Controls)
	}

	resp = env.do(t, http.MethodPost, base+"/finish", nil)
	st = decodeState(t, resp)
	if st.Stage != session.StageGraded || st.Report.OverallScore != 3 {
		t.Errorf("unexpected graded state %+v", st)
	}
	if len(st.Report.ScoresByCompetency) != 1 || st.Report.ScoresByCompetency[0].Competency != "Memory Mgmt" {
		t.Errorf("unexpected scores %+v", st.Report.ScoresByCompetency)
	}

	resp = env.do(t, http.MethodGet, base, nil)
	if st := decodeState(t, resp); st.ID != id || len(st.AskedQuestions) != 1 {
		t.Errorf("unexpected snapshot %+v", st)
	}

	resp = env.do(t, http.MethodDelete, base, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, base, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestCreateSession_WithLevel(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"level": "hard"})
	if st := decodeState(t, resp); st.Level != interview.LevelHard {
		t.Errorf("expected Hard, got %s", st.Level)
	}

	resp = env.do(t, http.MethodPost, "/api/sessions", map[string]string{"level": "extreme"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestFinish_Guards(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/sessions/" + env.create(t)

	resp := env.do(t, http.MethodPost, base+"/finish", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 without a question, got %d", resp.StatusCode)
	}

	env.do(t, http.MethodPost, base+"/next", nil)
	env.do(t, http.MethodPut, base+"/answer", map[string]string{"answer": "   "})
	resp = env.do(t, http.MethodPost, base+"/finish", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for a blank answer, got %d", resp.StatusCode)
	}
	if body := decodeError(t, resp); body["kind"] != "conflict" {
		t.Errorf("unexpected error body %v", body)
	}
	if env.grader.calls != 0 {
		t.Errorf("grader must not be called, got %d", env.grader.calls)
	}
}

func TestNext_SchemaError(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/sessions/" + env.create(t)
	env.gen.err = &interview.SchemaError{Kind: "question", Reason: "unparsable JSON"}

	resp := env.do(t, http.MethodPost, base+"/next", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	body := decodeError(t, resp)
	if body["kind"] != "schema" {
		t.Errorf("expected schema kind, got %v", body)
	}
	state := body["state"].(map[string]interface{})
	if state["stage"] != string(session.StageFailed) {
		t.Errorf("expected failed stage, got %v", state["stage"])
	}
}

func TestNext_UpstreamError(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/sessions/" + env.create(t)
	env.gen.err = errors.New("connection reset")

	resp := env.do(t, http.MethodPost, base+"/next", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if body := decodeError(t, resp); body["kind"] != "upstream" {
		t.Errorf("expected upstream kind, got %v", body)
	}
}

func TestInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/sessions/" + env.create(t)

	resp := env.do(t, http.MethodPut, base+"/level", []byte("{not json"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPut, base+"/level", map[string]string{"level": "extreme"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/sessions/missing/next", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRecordingAndSpeech(t *testing.T) {
	env := newTestEnv(t, session.WithSpeech(fakeSpeech{}, fakeSpeech{}))
	base := "/api/sessions/" + env.create(t)
	env.do(t, http.MethodPost, base+"/next", nil)

	resp := env.do(t, http.MethodPut, base+"/recording/audio", []byte("webm"))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 with the recorder closed, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, base+"/recording", nil)
	if st := decodeState(t, resp); !st.RecordingVisible {
		t.Error("recorder should be open")
	}

	resp = env.do(t, http.MethodPut, base+"/recording/audio?filename=a.webm", []byte("webm"))
	if st := decodeState(t, resp); st.AnswerText != "spoken: webm" || !st.HasRecording {
		t.Errorf("expected transcript as answer, got %+v", st)
	}

	resp = env.do(t, http.MethodGet, base+"/speech", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("unexpected speech response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	audio, _ := io.ReadAll(resp.Body)
	if string(audio) != "ID3" {
		t.Errorf("unexpected audio %q", audio)
	}
}

func TestSpeech_NoAudio(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/sessions/" + env.create(t)
	env.do(t, http.MethodPost, base+"/next", nil)

	resp := env.do(t, http.MethodGet, base+"/speech", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
}

func TestEstimate(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/estimate", map[string]interface{}{
		"text":          "hello world",
		"model":         "gpt-4.1",
		"output_tokens": 1000,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		InputTokens int     `json:"input_tokens"`
		CostUSD     float64 `json:"cost_usd"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	want := (2*3.00 + 1000*12.00) / 1_000_000
	if body.InputTokens != 2 || body.CostUSD < want-1e-12 || body.CostUSD > want+1e-12 {
		t.Errorf("unexpected estimate %+v", body)
	}

	resp = env.do(t, http.MethodPost, "/api/estimate", map[string]interface{}{"text": "x", "model": "unknown"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown model, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/healthz", nil)

	resp := env.do(t, http.MethodGet, "/metrics", nil)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `endpoint="/healthz"`) {
		t.Errorf("expected healthz to be counted, got:\n%s", body)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("expected allowed origin header, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}
