package session

import (
	"context"
	"errors"

	"interview-practice/internal/config"
	"interview-practice/internal/interview"
)

// Stage is where a session is in the question/answer/grade cycle.
type Stage string

const (
	StageNoQuestion    Stage = "no_question"
	StageQuestionReady Stage = "question_ready"
	StageAnswerEntered Stage = "answer_entered"
	StageGraded        Stage = "graded"
	StageFailed        Stage = "failed"
)

var (
	ErrNoQuestion     = errors.New("no question has been generated yet")
	ErrEmptyAnswer    = errors.New("answer is empty")
	ErrRecorderClosed = errors.New("recorder is not open")
	ErrBusy           = errors.New("another request for this session is in progress")
)

// QuestionGenerator produces a new question for the session.
type QuestionGenerator interface {
	Generate(ctx context.Context, req interview.QuestionRequest) (*interview.Question, error)
}

// AnswerGrader scores an answer against the question it was given for.
type AnswerGrader interface {
	Grade(ctx context.Context, q *interview.Question, answer string) (*interview.Report, error)
}

// Params are the fixed generation parameters of a session.
type Params struct {
	Role           string
	Subject        string
	Persona        string
	Followups      int
	Clarifications int
	Subtopics      []string
	Level          interview.Level
}

// ParamsFromConfig takes the interview section of the practice configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Role:           cfg.Interview.Role,
		Subject:        cfg.Interview.Subject,
		Persona:        cfg.Interview.Persona,
		Followups:      cfg.Interview.Followups,
		Clarifications: cfg.Interview.Clarifications,
		Subtopics:      cfg.Interview.Subtopics,
		Level:          cfg.Level(),
	}
}

// Controls tells a front end which actions are currently available.
type Controls struct {
	AnswerEditable bool `json:"answer_editable"`
	CanFinish      bool `json:"can_finish"`
	CanListen      bool `json:"can_listen"`
	CanRecord      bool `json:"can_record"`
	CanNext        bool `json:"can_next"`
}

// State is a point-in-time copy of a session.
type State struct {
	ID                  string              `json:"id"`
	Level               interview.Level     `json:"level"`
	Stage               Stage               `json:"stage"`
	Question            *interview.Question `json:"question,omitempty"`
	QuestionDisplayText string              `json:"question_display_text"`
	AnswerText          string              `json:"answer_text"`
	Report              *interview.Report   `json:"report,omitempty"`
	FeedbackText        string              `json:"feedback_text"`
	AskedQuestions      []string            `json:"asked_questions"`
	RecordingVisible    bool                `json:"recording_visible"`
	HasRecording        bool                `json:"has_recording"`
	HasAudio            bool                `json:"has_audio"`
	Busy                bool                `json:"busy"`
	LastError           string              `json:"last_error,omitempty"`
	Controls            Controls            `json:"controls"`
}
