package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview-practice/internal/interview"
	"interview-practice/internal/speech"
)

// Session is one user's practice state. All methods are safe for concurrent
// use; at most one model or speech call runs per session at a time.
type Session struct {
	id          string
	generator   QuestionGenerator
	grader      AnswerGrader
	synthesizer speech.Synthesizer
	transcriber speech.Transcriber
	params      Params
	newNonce    func() string
	logger      *zap.Logger
	now         func() time.Time

	mu               sync.Mutex
	busy             bool
	level            interview.Level
	stage            Stage
	question         *interview.Question
	displayText      string
	answer           string
	report           *interview.Report
	feedback         string
	asked            []string
	recordingVisible bool
	recorded         []byte
	audio            []byte
	lastErr          string
	lastActivity     time.Time
}

type Option func(*Session)

// WithSpeech sets the read-aloud and transcription capabilities.
func WithSpeech(synth speech.Synthesizer, trans speech.Transcriber) Option {
	return func(s *Session) {
		if synth != nil {
			s.synthesizer = synth
		}
		if trans != nil {
			s.transcriber = trans
		}
	}
}

// WithNonce replaces the per-call nonce source.
func WithNonce(f func() string) Option {
	return func(s *Session) { s.newNonce = f }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func New(generator QuestionGenerator, grader AnswerGrader, params Params, opts ...Option) *Session {
	level := params.Level
	if !level.Valid() {
		level = interview.LevelMedium
	}
	s := &Session{
		id:          uuid.NewString(),
		generator:   generator,
		grader:      grader,
		synthesizer: speech.Nop{},
		transcriber: speech.Nop{},
		params:      params,
		newNonce:    uuid.NewString,
		logger:      zap.NewNop(),
		now:         time.Now,
		level:       level,
		stage:       StageNoQuestion,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastActivity = s.now()
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s
}

func (s *Session) ID() string {
	return s.id
}

// SetLevel changes the difficulty of the next question. It is allowed at any
// time and leaves the current question and answer untouched.
func (s *Session) SetLevel(level interview.Level) (State, error) {
	if !level.Valid() {
		return s.Snapshot(), fmt.Errorf("%w: got %q", interview.ErrInvalidLevel, level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
	s.touch()
	return s.snapshot(), nil
}

// NextQuestion clears the answer, feedback and audio state and asks the
// generator for a new question. On failure the previous question is kept and
// the session enters StageFailed.
func (s *Session) NextQuestion(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.busy {
		defer s.mu.Unlock()
		return s.snapshot(), ErrBusy
	}
	s.busy = true
	s.answer = ""
	s.report = nil
	s.feedback = ""
	s.audio = nil
	s.recordingVisible = false
	s.recorded = nil
	s.lastErr = ""
	req := interview.QuestionRequest{
		Role:           s.params.Role,
		Subject:        s.params.Subject,
		Difficulty:     s.level,
		Persona:        s.params.Persona,
		Followups:      s.params.Followups,
		Clarifications: s.params.Clarifications,
		Avoid:          append([]string(nil), s.asked...),
		Subtopics:      s.params.Subtopics,
		Nonce:          s.newNonce(),
	}
	s.touch()
	s.mu.Unlock()

	q, err := s.generator.Generate(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.touch()

	if err != nil {
		s.fail(err)
		return s.snapshot(), err
	}

	s.question = q
	s.displayText = q.DisplayText()
	s.asked = append(s.asked, q.Question)
	s.stage = StageQuestionReady
	s.logger.Debug("question ready", zap.Int("asked", len(s.asked)))
	return s.snapshot(), nil
}

// SetAnswer replaces the answer text.
func (s *Session) SetAnswer(text string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.question == nil {
		return s.snapshot(), ErrNoQuestion
	}
	if s.busy {
		return s.snapshot(), ErrBusy
	}

	s.setAnswer(text)
	s.touch()
	return s.snapshot(), nil
}

func (s *Session) setAnswer(text string) {
	s.answer = text
	if strings.TrimSpace(text) == "" {
		s.stage = StageQuestionReady
	} else {
		s.stage = StageAnswerEntered
	}
}

// Finish grades the current answer against the question it was given for.
func (s *Session) Finish(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.question == nil {
		defer s.mu.Unlock()
		return s.snapshot(), ErrNoQuestion
	}
	if strings.TrimSpace(s.answer) == "" {
		defer s.mu.Unlock()
		return s.snapshot(), ErrEmptyAnswer
	}
	if s.busy {
		defer s.mu.Unlock()
		return s.snapshot(), ErrBusy
	}
	s.busy = true
	s.lastErr = ""
	question, answer := s.question, s.answer
	s.touch()
	s.mu.Unlock()

	report, err := s.grader.Grade(ctx, question, answer)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.touch()

	if err != nil {
		s.report = nil
		s.feedback = ""
		s.fail(err)
		return s.snapshot(), err
	}

	feedback, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		s.fail(err)
		return s.snapshot(), fmt.Errorf("formatting report: %w", err)
	}

	s.report = report
	s.feedback = string(feedback)
	s.stage = StageGraded
	return s.snapshot(), nil
}

// ToggleRecording shows or hides the recorder.
func (s *Session) ToggleRecording() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.question == nil {
		return s.snapshot(), ErrNoQuestion
	}
	if s.busy {
		return s.snapshot(), ErrBusy
	}

	s.recordingVisible = !s.recordingVisible
	s.touch()
	return s.snapshot(), nil
}

// AttachRecording stores recorded audio. When the transcriber returns text it
// becomes the answer.
func (s *Session) AttachRecording(ctx context.Context, audio []byte, filename string) (State, error) {
	s.mu.Lock()
	if s.question == nil {
		defer s.mu.Unlock()
		return s.snapshot(), ErrNoQuestion
	}
	if !s.recordingVisible {
		defer s.mu.Unlock()
		return s.snapshot(), ErrRecorderClosed
	}
	if s.busy {
		defer s.mu.Unlock()
		return s.snapshot(), ErrBusy
	}
	s.busy = true
	s.recorded = append([]byte(nil), audio...)
	s.touch()
	s.mu.Unlock()

	text, err := s.transcriber.Transcribe(ctx, audio, filename)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.touch()

	if err != nil {
		s.lastErr = err.Error()
		s.logger.Warn("transcription failed", zap.Error(err))
		return s.snapshot(), err
	}
	if text = strings.TrimSpace(text); text != "" {
		s.setAnswer(text)
	}
	return s.snapshot(), nil
}

// Listen reads the current question aloud. The audio is kept until the next question.
func (s *Session) Listen(ctx context.Context) (State, []byte, error) {
	s.mu.Lock()
	if s.question == nil {
		defer s.mu.Unlock()
		return s.snapshot(), nil, ErrNoQuestion
	}
	if s.busy {
		defer s.mu.Unlock()
		return s.snapshot(), nil, ErrBusy
	}
	if s.audio != nil {
		defer s.mu.Unlock()
		return s.snapshot(), append([]byte(nil), s.audio...), nil
	}
	s.busy = true
	text := s.question.Question
	s.touch()
	s.mu.Unlock()

	audio, err := s.synthesizer.Synthesize(ctx, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.touch()

	if err != nil {
		s.lastErr = err.Error()
		s.logger.Warn("speech synthesis failed", zap.Error(err))
		return s.snapshot(), nil, err
	}
	if len(audio) > 0 {
		s.audio = audio
	}
	return s.snapshot(), append([]byte(nil), s.audio...), nil
}

// Audio returns the read-aloud audio of the current question, if any.
func (s *Session) Audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.audio...)
}

// Recording returns the raw bytes of the last attached recording.
func (s *Session) Recording() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.recorded...)
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Session) fail(err error) {
	s.stage = StageFailed
	s.lastErr = err.Error()
	s.logger.Warn("model call failed", zap.Error(err))
}

func (s *Session) touch() {
	s.lastActivity = s.now()
}

// snapshot must be called with s.mu held. It returns copies of the question
// and report.
func (s *Session) snapshot() State {
	hasQuestion := s.question != nil
	return State{
		ID:                  s.id,
		Level:               s.level,
		Stage:               s.stage,
		Question:            s.question.Clone(),
		QuestionDisplayText: s.displayText,
		AnswerText:          s.answer,
		Report:              s.report.Clone(),
		FeedbackText:        s.feedback,
		AskedQuestions:      append([]string{}, s.asked...),
		RecordingVisible:    s.recordingVisible,
		HasRecording:        len(s.recorded) > 0,
		HasAudio:            len(s.audio) > 0,
		Busy:                s.busy,
		LastError:           s.lastErr,
		Controls: Controls{
			AnswerEditable: hasQuestion && !s.busy,
			CanFinish:      hasQuestion && !s.busy && strings.TrimSpace(s.answer) != "",
			CanListen:      hasQuestion && !s.busy,
			CanRecord:      hasQuestion && !s.busy,
			CanNext:        !s.busy,
		},
	}
}
