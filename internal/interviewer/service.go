package interviewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview-practice/internal/api"
	"interview-practice/internal/config"
	"interview-practice/internal/interview"
	"interview-practice/internal/metrics"
	"interview-practice/internal/prompts"
)

// Completer sends a single prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, req api.CompletionRequest) (*api.Completion, error)
}

// TokenEstimator counts and prices tokens for the usage audit.
type TokenEstimator interface {
	CountTokens(text, model string) (int, error)
	EstimateCost(model string, inputTokens, outputTokens, cachedInputTokens int) (float64, error)
}

// Service generates interview questions and grades answers.
type Service struct {
	client     Completer
	generation config.ModelSettings
	grading    config.ModelSettings
	estimator  TokenEstimator
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

type Option func(*Service)

func WithEstimator(e TokenEstimator) Option {
	return func(s *Service) { s.estimator = e }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates the interviewer with separate settings for generation and grading calls.
func New(client Completer, generation, grading config.ModelSettings, opts ...Option) *Service {
	s := &Service{
		client:     client,
		generation: generation,
		grading:    grading,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate asks the model for one question with follow-ups and a rubric.
// An empty req.Nonce is replaced by a fresh UUID.
func (s *Service) Generate(ctx context.Context, req interview.QuestionRequest) (*interview.Question, error) {
	if !req.Difficulty.Valid() {
		return nil, fmt.Errorf("generating question: %w", interview.ErrInvalidLevel)
	}
	if req.Nonce == "" {
		req.Nonce = uuid.NewString()
	}

	s.logger.Debug("generating question",
		zap.String("role", req.Role),
		zap.String("subject", req.Subject),
		zap.String("difficulty", string(req.Difficulty)),
		zap.String("persona", req.Persona),
		zap.Int("followups", req.Followups),
		zap.Int("clarifications", req.Clarifications),
		zap.Int("avoid", len(req.Avoid)),
		zap.String("nonce", req.Nonce),
	)

	var question *interview.Question
	err := s.completeJSON(ctx, "generate", s.generation, prompts.GenerateQuestionPrompt(req), func(raw string) error {
		q, err := interview.DecodeQuestion(raw, req.Followups)
		question = q
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("generating question: %w", err)
	}

	s.metrics.IncrementQuestionsGenerated()
	return question, nil
}

// Grade scores the answer against the question's rubric.
func (s *Service) Grade(ctx context.Context, q *interview.Question, answer string) (*interview.Report, error) {
	if q == nil {
		return nil, errors.New("grading answer: no question")
	}

	var report *interview.Report
	err := s.completeJSON(ctx, "grade", s.grading, prompts.GradeAnswerPrompt(q, answer), func(raw string) error {
		r, err := interview.DecodeReport(raw, q.Rubric)
		report = r
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("grading answer: %w", err)
	}

	if report.ScoreMismatch {
		s.logger.Warn("overall score differs from weighted rubric score",
			zap.Int("overall_score", report.OverallScore),
			zap.Int("computed_score", report.ComputedScore),
		)
		s.metrics.IncrementScoreMismatch()
	}

	s.metrics.IncrementAnswersGraded()
	return report, nil
}
