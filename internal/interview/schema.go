package interview

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const weightTolerance = 0.01

// SchemaError is returned when a model reply is not valid JSON or does not
// match the expected shape. Callers tell it apart from transport failures
// with errors.As.
type SchemaError struct {
	Kind    string // "question" or "report"
	Reason  string
	Raw     string
	Wrapped error
}

func (e *SchemaError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("invalid %s from model: %s: %v", e.Kind, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("invalid %s from model: %s", e.Kind, e.Reason)
}

func (e *SchemaError) Unwrap() error {
	return e.Wrapped
}

// DecodeQuestion parses a model reply into a Question and checks it against
// the requested follow-up count.
func DecodeQuestion(raw string, followups int) (*Question, error) {
	var q Question
	if err := decode(raw, &q); err != nil {
		return nil, &SchemaError{Kind: "question", Reason: "unparsable JSON", Raw: raw, Wrapped: err}
	}
	if reason := validateQuestion(&q, followups); reason != "" {
		return nil, &SchemaError{Kind: "question", Reason: reason, Raw: raw}
	}
	return &q, nil
}

// DecodeReport parses a model reply into a Report, checks that it covers the
// rubric exactly once per competency and fills ComputedScore/ScoreMismatch.
func DecodeReport(raw string, rubric []RubricItem) (*Report, error) {
	var r Report
	if err := decode(raw, &r); err != nil {
		return nil, &SchemaError{Kind: "report", Reason: "unparsable JSON", Raw: raw, Wrapped: err}
	}
	// the model must not set the locally computed fields
	r.ComputedScore, r.ScoreMismatch = 0, false
	if reason := validateReport(&r, rubric); reason != "" {
		return nil, &SchemaError{Kind: "report", Reason: reason, Raw: raw}
	}
	r.ComputedScore = AggregateScore(rubric, r.ScoresByCompetency)
	r.ScoreMismatch = r.ComputedScore != r.OverallScore
	return &r, nil
}

func decode(raw string, v interface{}) error {
	body := ExtractJSON(raw)
	if body == "" || !json.Valid([]byte(body)) {
		body = ExtractJSON(CleanJSONResponse(raw))
	}
	if body == "" {
		return fmt.Errorf("no JSON object found in reply")
	}
	return json.Unmarshal([]byte(body), v)
}

func validateQuestion(q *Question, followups int) string {
	if strings.TrimSpace(q.Question) == "" {
		return "question is empty"
	}
	if len(q.Followups) != followups {
		return fmt.Sprintf("expected %d followups, got %d", followups, len(q.Followups))
	}
	for i, f := range q.Followups {
		if strings.TrimSpace(f) == "" {
			return fmt.Sprintf("followup %d is empty", i+1)
		}
	}
	if len(q.Rubric) == 0 {
		return "rubric is empty"
	}

	seen := make(map[string]bool, len(q.Rubric))
	total := 0.0
	for i, item := range q.Rubric {
		key := competencyKey(item.Competency)
		if key == "" {
			return fmt.Sprintf("rubric item %d has no competency", i+1)
		}
		if seen[key] {
			return fmt.Sprintf("competency %q appears more than once", item.Competency)
		}
		seen[key] = true

		if item.Weight < 0 || item.Weight > 1 || math.IsNaN(item.Weight) {
			return fmt.Sprintf("competency %q has weight %v outside [0,1]", item.Competency, item.Weight)
		}
		total += item.Weight

		if strings.TrimSpace(item.Score1) == "" || strings.TrimSpace(item.Score3) == "" || strings.TrimSpace(item.Score5) == "" {
			return fmt.Sprintf("competency %q is missing a score anchor", item.Competency)
		}
	}
	if math.Abs(total-1.0) > weightTolerance {
		return fmt.Sprintf("rubric weights sum to %.3f, expected 1.0", total)
	}
	return ""
}

func validateReport(r *Report, rubric []RubricItem) string {
	if r.OverallScore < 1 || r.OverallScore > 5 {
		return fmt.Sprintf("overall_score %d outside [1,5]", r.OverallScore)
	}
	if strings.TrimSpace(r.FinalFeedback) == "" {
		return "final_feedback is empty"
	}

	expected := make(map[string]bool, len(rubric))
	for _, item := range rubric {
		expected[competencyKey(item.Competency)] = true
	}

	seen := make(map[string]bool, len(r.ScoresByCompetency))
	for _, s := range r.ScoresByCompetency {
		key := competencyKey(s.Competency)
		if !expected[key] {
			return fmt.Sprintf("competency %q is not in the rubric", s.Competency)
		}
		if seen[key] {
			return fmt.Sprintf("competency %q scored more than once", s.Competency)
		}
		seen[key] = true
		if s.Score < 1 || s.Score > 5 {
			return fmt.Sprintf("competency %q has score %d outside [1,5]", s.Competency, s.Score)
		}
	}
	for _, item := range rubric {
		if !seen[competencyKey(item.Competency)] {
			return fmt.Sprintf("competency %q was not scored", item.Competency)
		}
	}
	return ""
}

// AggregateScore is the weighted mean of the competency scores rounded to
// the nearest integer and clamped to [1,5]. Scores are matched to rubric
// weights by competency name; weights are normalised by their sum.
func AggregateScore(rubric []RubricItem, scores []CompetencyScore) int {
	byName := make(map[string]int, len(scores))
	for _, s := range scores {
		byName[competencyKey(s.Competency)] = s.Score
	}

	sum, weights := 0.0, 0.0
	for _, item := range rubric {
		score, ok := byName[competencyKey(item.Competency)]
		if !ok {
			continue
		}
		sum += item.Weight * float64(score)
		weights += item.Weight
	}
	if weights == 0 {
		return 1
	}

	agg := int(math.Round(sum / weights))
	if agg < 1 {
		return 1
	}
	if agg > 5 {
		return 5
	}
	return agg
}

func competencyKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CleanJSONResponse strips a Markdown code fence wrapping the whole reply.
// Fences inside the reply are left alone.
func CleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		if nl := strings.IndexByte(response, '\n'); nl >= 0 {
			response = response[nl+1:]
		} else {
			response = strings.TrimPrefix(strings.TrimPrefix(response, "```"), "json")
		}
		response = strings.TrimSuffix(strings.TrimSpace(response), "```")
	}
	return strings.TrimSpace(response)
}

// ExtractJSON returns the outermost JSON object in s, or "" if there is none.
func ExtractJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
