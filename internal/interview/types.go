package interview

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Level is the difficulty of a generated question.
type Level string

const (
	LevelEasy   Level = "Easy"
	LevelMedium Level = "Medium"
	LevelHard   Level = "Hard"
)

var ErrInvalidLevel = errors.New("level must be one of Easy, Medium, Hard")

// Levels lists the supported difficulties in display order.
func Levels() []Level {
	return []Level{LevelEasy, LevelMedium, LevelHard}
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels() {
		if strings.EqualFold(strings.TrimSpace(s), string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidLevel, s)
}

func (l Level) Valid() bool {
	switch l {
	case LevelEasy, LevelMedium, LevelHard:
		return true
	}
	return false
}

// RubricItem is one weighted competency with anchors at scores 1, 3 and 5.
type RubricItem struct {
	Competency string  `json:"competency"`
	Weight     float64 `json:"weight"`
	Score1     string  `json:"score_1"`
	Score3     string  `json:"score_3"`
	Score5     string  `json:"score_5"`
}

// Question is a generated interview question together with its grading rubric.
type Question struct {
	Question  string       `json:"question"`
	Followups []string     `json:"followups"`
	Rubric    []RubricItem `json:"rubric"`
}

// DisplayText renders the question and its numbered follow-ups.
func (q *Question) DisplayText() string {
	if q == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(q.Question)
	if len(q.Followups) > 0 {
		b.WriteString("\n\nFollow-ups:")
		for i, f := range q.Followups {
			b.WriteString(fmt.Sprintf("\n%d. %s", i+1, f))
		}
	}
	return b.String()
}

// Clone returns a deep copy of q.
func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	c := *q
	c.Followups = append([]string(nil), q.Followups...)
	c.Rubric = append([]RubricItem(nil), q.Rubric...)
	return &c
}

// CompetencyScore is the grade given to one rubric competency.
type CompetencyScore struct {
	Competency string `json:"competency"`
	Score      int    `json:"score"`
	Rationale  string `json:"rationale"`
}

// UnmarshalJSON accepts whole-number scores written as floats, such as 3.0.
func (c *CompetencyScore) UnmarshalJSON(data []byte) error {
	type plain CompetencyScore
	aux := struct {
		*plain
		Score json.Number `json:"score"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	score, err := wholeScore("score", aux.Score)
	if err != nil {
		return err
	}
	c.Score = score
	return nil
}

// Report is the grading result for one answer.
//
// OverallScore is the model's own aggregate. ComputedScore and ScoreMismatch
// are filled locally from the rubric weights and never requested from the model.
type Report struct {
	OverallScore       int               `json:"overall_score"`
	ScoresByCompetency []CompetencyScore `json:"scores_by_competency"`
	FinalFeedback      string            `json:"final_feedback"`
	ComputedScore      int               `json:"computed_score,omitempty"`
	ScoreMismatch      bool              `json:"score_mismatch,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	c.ScoresByCompetency = append([]CompetencyScore(nil), r.ScoresByCompetency...)
	return &c
}

// UnmarshalJSON accepts a whole-number overall_score written as a float.
func (r *Report) UnmarshalJSON(data []byte) error {
	type plain Report
	aux := struct {
		*plain
		OverallScore json.Number `json:"overall_score"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	score, err := wholeScore("overall_score", aux.OverallScore)
	if err != nil {
		return err
	}
	r.OverallScore = score
	return nil
}

// wholeScore converts n to an int. An absent number is 0 and is rejected later
// by the range check.
func wholeScore(field string, n json.Number) (int, error) {
	if n == "" {
		return 0, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if f != math.Trunc(f) || math.Abs(f) > 1000 {
		return 0, fmt.Errorf("%s %s is not a whole score", field, n)
	}
	return int(f), nil
}

// QuestionRequest holds every parameter of a generation call.
type QuestionRequest struct {
	Role           string
	Subject        string
	Difficulty     Level
	Persona        string
	Followups      int
	Clarifications int
	Avoid          []string
	Subtopics      []string
	Nonce          string
}
