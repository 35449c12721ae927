package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview-practice/internal/interview"
	"interview-practice/internal/pricing"
	"interview-practice/internal/session"
)

type errorResponse struct {
	Error string         `json:"error"`
	Kind  string         `json:"kind"`
	State *session.State `json:"state,omitempty"`
}

type levelRequest struct {
	Level string `json:"level"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type estimateRequest struct {
	Text              string `json:"text"`
	Model             string `json:"model"`
	OutputTokens      int    `json:"output_tokens"`
	CachedInputTokens int    `json:"cached_input_tokens"`
}

type estimateResponse struct {
	Model             string  `json:"model"`
	InputTokens       int     `json:"input_tokens"`
	OutputTokens      int     `json:"output_tokens"`
	CachedInputTokens int     `json:"cached_input_tokens"`
	CostUSD           float64 `json:"cost_usd"`
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			respondJSON(w, http.StatusNotFound, errorResponse{Error: "session not found", Kind: "not_found"})
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}
	if req.Model == "" || req.OutputTokens < 0 || req.CachedInputTokens < 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "model is required and token counts must not be negative", Kind: "bad_request"})
		return
	}

	inputTokens, err := s.estimator.CountTokens(req.Text, req.Model)
	if err != nil {
		s.logger.Error("token counting failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "internal"})
		return
	}

	cost, err := s.estimator.EstimateCost(req.Model, inputTokens, req.OutputTokens, req.CachedInputTokens)
	if errors.Is(err, pricing.ErrUnknownModel) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "unknown_model"})
		return
	}
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "internal"})
		return
	}

	respondJSON(w, http.StatusOK, estimateResponse{
		Model:             req.Model,
		InputTokens:       inputTokens,
		OutputTokens:      req.OutputTokens,
		CachedInputTokens: req.CachedInputTokens,
		CostUSD:           cost,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
			return
		}
	}

	var level interview.Level
	if req.Level != "" {
		var err error
		if level, err = interview.ParseLevel(req.Level); err != nil {
			s.respondError(w, err, nil)
			return
		}
	}

	sess := s.sessions.GetOrCreate(uuid.NewString())
	state := sess.Snapshot()
	if level != "" {
		state, _ = sess.SetLevel(level)
	}
	respondJSON(w, http.StatusCreated, state)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if sess, ok := s.sessions.Get(id); ok && sess.Busy() {
		s.respondError(w, session.ErrBusy, nil)
		return
	}
	if !s.sessions.Delete(id) {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "session not found", Kind: "not_found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req levelRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}
	level, err := interview.ParseLevel(req.Level)
	if err != nil {
		s.respondError(w, err, nil)
		return
	}
	state, err := sess.SetLevel(level)
	s.respondState(w, state, err)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	state, err := sess.NextQuestion(r.Context())
	s.respondState(w, state, err)
}

func (s *Server) handleSetAnswer(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}
	state, err := sess.SetAnswer(req.Answer)
	s.respondState(w, state, err)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	state, err := sess.Finish(r.Context())
	s.respondState(w, state, err)
}

func (s *Server) handleToggleRecording(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	state, err := sess.ToggleRecording()
	s.respondState(w, state, err)
}

func (s *Server) handleAttachRecording(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioSize))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}
	if len(audio) == 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "recording is empty", Kind: "bad_request"})
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "answer.webm"
	}
	state, err := sess.AttachRecording(r.Context(), audio, filename)
	s.respondState(w, state, err)
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	state, audio, err := sess.Listen(r.Context())
	if err != nil {
		s.respondError(w, err, &state)
		return
	}
	if len(audio) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func (s *Server) respondState(w http.ResponseWriter, state session.State, err error) {
	if err != nil {
		s.respondError(w, err, &state)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) respondError(w http.ResponseWriter, err error, state *session.State) {
	var schemaErr *interview.SchemaError

	switch {
	case errors.Is(err, interview.ErrInvalidLevel):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "invalid_level", State: state})
	case errors.Is(err, session.ErrNoQuestion),
		errors.Is(err, session.ErrEmptyAnswer),
		errors.Is(err, session.ErrRecorderClosed),
		errors.Is(err, session.ErrBusy):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "conflict", State: state})
	case errors.As(err, &schemaErr):
		s.logger.Warn("unusable model reply", zap.String("kind", schemaErr.Kind), zap.String("reason", schemaErr.Reason))
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "schema", State: state})
	default:
		s.logger.Error("upstream call failed", zap.Error(err))
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "upstream", State: state})
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
