package interview_test

import (
	"errors"
	"strings"
	"testing"

	"interview-practice/internal/interview"
)

const arcQuestion = `{
  "question": "Explain ARC",
  "followups": ["Q1", "Q2"],
  "rubric": [
    {"competency": "Memory Mgmt", "weight": 1.0, "score_1": "vague", "score_3": "basics", "score_5": "deep"}
  ]
}`

func twoCompetencyRubric() []interview.RubricItem {
	return []interview.RubricItem{
		{Competency: "Memory Mgmt", Weight: 0.6, Score1: "a", Score3: "b", Score5: "c"},
		{Competency: "Communication", Weight: 0.4, Score1: "a", Score3: "b", Score5: "c"},
	}
}

func TestDecodeQuestion_Valid(t *testing.T) {
	q, err := interview.DecodeQuestion(arcQuestion, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Question != "Explain ARC" {
		t.Errorf("expected question text, got %q", q.Question)
	}
	if len(q.Followups) != 2 {
		t.Errorf("expected 2 followups, got %d", len(q.Followups))
	}
	if len(q.Rubric) != 1 || q.Rubric[0].Weight != 1.0 {
		t.Errorf("unexpected rubric: %+v", q.Rubric)
	}
}

func TestDecodeQuestion_FencedReply(t *testing.T) {
	raw := "Here you go:\n```json\n" + arcQuestion + "\n```"
	if _, err := interview.DecodeQuestion(raw, 2); err != nil {
		t.Fatalf("expected fenced JSON to decode, got %v", err)
	}
}

func TestDecodeQuestion_SchemaErrors(t *testing.T) {
	cases := map[string]struct {
		raw       string
		followups int
	}{
		"not json":          {raw: "I cannot help with that", followups: 2},
		"broken json":       {raw: `{"question": "x", "followups": [`, followups: 0},
		"empty question":    {raw: `{"question": " ", "followups": [], "rubric": [{"competency":"a","weight":1,"score_1":"x","score_3":"y","score_5":"z"}]}`, followups: 0},
		"followup mismatch": {raw: arcQuestion, followups: 3},
		"no rubric":         {raw: `{"question": "x", "followups": []}`, followups: 0},
		"weights off": {raw: `{"question": "x", "followups": [], "rubric": [
			{"competency":"a","weight":0.5,"score_1":"x","score_3":"y","score_5":"z"},
			{"competency":"b","weight":0.3,"score_1":"x","score_3":"y","score_5":"z"}]}`, followups: 0},
		"weight out of range": {raw: `{"question": "x", "followups": [], "rubric": [
			{"competency":"a","weight":1.5,"score_1":"x","score_3":"y","score_5":"z"},
			{"competency":"b","weight":-0.5,"score_1":"x","score_3":"y","score_5":"z"}]}`, followups: 0},
		"duplicate competency": {raw: `{"question": "x", "followups": [], "rubric": [
			{"competency":"Swift","weight":0.5,"score_1":"x","score_3":"y","score_5":"z"},
			{"competency":"swift ","weight":0.5,"score_1":"x","score_3":"y","score_5":"z"}]}`, followups: 0},
		"missing anchor": {raw: `{"question": "x", "followups": [], "rubric": [
			{"competency":"a","weight":1,"score_1":"x","score_3":"","score_5":"z"}]}`, followups: 0},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			q, err := interview.DecodeQuestion(tc.raw, tc.followups)
			if q != nil {
				t.Errorf("expected no question, got %+v", q)
			}
			var schemaErr *interview.SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if schemaErr.Kind != "question" {
				t.Errorf("expected kind question, got %q", schemaErr.Kind)
			}
		})
	}
}

func TestDecodeReport_ComputesAggregate(t *testing.T) {
	raw := `{
	  "overall_score": 4,
	  "scores_by_competency": [
	    {"competency": "memory mgmt", "score": 5, "rationale": "solid"},
	    {"competency": "Communication", "score": 2, "rationale": "rambling"}
	  ],
	  "final_feedback": "Tighten the explanation."
	}`

	r, err := interview.DecodeReport(raw, twoCompetencyRubric())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0.6*5 + 0.4*2 = 3.8 -> 4
	if r.ComputedScore != 4 {
		t.Errorf("expected computed score 4, got %d", r.ComputedScore)
	}
	if r.ScoreMismatch {
		t.Error("expected no mismatch")
	}
}

func TestDecodeReport_FlagsMismatch(t *testing.T) {
	raw := `{
	  "overall_score": 5,
	  "scores_by_competency": [
	    {"competency": "Memory Mgmt", "score": 1, "rationale": "wrong"},
	    {"competency": "Communication", "score": 2, "rationale": "unclear"}
	  ],
	  "final_feedback": "Study ARC.",
	  "computed_score": 5
	}`

	r, err := interview.DecodeReport(raw, twoCompetencyRubric())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.OverallScore != 5 {
		t.Errorf("expected model score to be kept, got %d", r.OverallScore)
	}
	if r.ComputedScore != 1 || !r.ScoreMismatch {
		t.Errorf("expected computed 1 with mismatch, got %d/%v", r.ComputedScore, r.ScoreMismatch)
	}
}

func TestDecodeReport_CoverageErrors(t *testing.T) {
	cases := map[string]string{
		"missing competency": `{"overall_score": 3, "scores_by_competency": [
			{"competency": "Memory Mgmt", "score": 3, "rationale": "ok"}], "final_feedback": "x"}`,
		"unknown competency": `{"overall_score": 3, "scores_by_competency": [
			{"competency": "Memory Mgmt", "score": 3, "rationale": "ok"},
			{"competency": "Communication", "score": 3, "rationale": "ok"},
			{"competency": "Testing", "score": 3, "rationale": "ok"}], "final_feedback": "x"}`,
		"duplicate competency": `{"overall_score": 3, "scores_by_competency": [
			{"competency": "Memory Mgmt", "score": 3, "rationale": "ok"},
			{"competency": "Memory Mgmt", "score": 4, "rationale": "ok"}], "final_feedback": "x"}`,
		"score out of range": `{"overall_score": 3, "scores_by_competency": [
			{"competency": "Memory Mgmt", "score": 6, "rationale": "ok"},
			{"competency": "Communication", "score": 3, "rationale": "ok"}], "final_feedback": "x"}`,
		"overall out of range": `{"overall_score": 0, "scores_by_competency": [
			{"competency": "Memory Mgmt", "score": 3, "rationale": "ok"},
			{"competency": "Communication", "score": 3, "rationale": "ok"}], "final_feedback": "x"}`,
		"fractional overall": `{"overall_score": 3.5, "scores_by_competency": [], "final_feedback": "x"}`,
		"no feedback": `{"overall_score": 3, "scores_by_competency": [
			{"competency": "Memory Mgmt", "score": 3, "rationale": "ok"},
			{"competency": "Communication", "score": 3, "rationale": "ok"}], "final_feedback": ""}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := interview.DecodeReport(raw, twoCompetencyRubric())
			var schemaErr *interview.SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if schemaErr.Kind != "report" {
				t.Errorf("expected kind report, got %q", schemaErr.Kind)
			}
		})
	}
}

func TestAggregateScore(t *testing.T) {
	rubric := twoCompetencyRubric()

	cases := []struct {
		name   string
		scores []interview.CompetencyScore
		want   int
	}{
		{"all fives", []interview.CompetencyScore{{Competency: "Memory Mgmt", Score: 5}, {Competency: "Communication", Score: 5}}, 5},
		{"rounds down", []interview.CompetencyScore{{Competency: "Memory Mgmt", Score: 3}, {Competency: "Communication", Score: 4}}, 3},
		{"weighted", []interview.CompetencyScore{{Competency: "Memory Mgmt", Score: 4}, {Competency: "Communication", Score: 1}}, 3},
		{"no match", []interview.CompetencyScore{{Competency: "Other", Score: 5}}, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := interview.AggregateScore(rubric, tc.scores); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestAggregateScore_HalfRoundsUp(t *testing.T) {
	rubric := []interview.RubricItem{
		{Competency: "A", Weight: 0.5},
		{Competency: "B", Weight: 0.5},
	}
	scores := []interview.CompetencyScore{{Competency: "A", Score: 3}, {Competency: "B", Score: 4}}
	if got := interview.AggregateScore(rubric, scores); got != 4 {
		t.Errorf("expected 3.5 to round to 4, got %d", got)
	}
}

func TestExtractJSON(t *testing.T) {
	got := interview.ExtractJSON(`noise {"a": "}{", "b": {"c": 1}} trailing }`)
	if got != `{"a": "}{", "b": {"c": 1}}` {
		t.Errorf("unexpected extraction: %q", got)
	}
	if interview.ExtractJSON("no braces here") != "" {
		t.Error("expected empty extraction")
	}
}

func TestParseLevel(t *testing.T) {
	l, err := interview.ParseLevel(" hard ")
	if err != nil || l != interview.LevelHard {
		t.Errorf("expected Hard, got %q (%v)", l, err)
	}
	if _, err := interview.ParseLevel("impossible"); !errors.Is(err, interview.ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel, got %v", err)
	}
}

func TestQuestionDisplayText(t *testing.T) {
	q := &interview.Question{Question: "Explain ARC", Followups: []string{"Q1", "Q2"}}
	text := q.DisplayText()
	if !strings.HasPrefix(text, "Explain ARC") {
		t.Errorf("expected question first, got %q", text)
	}
	if !strings.Contains(text, "1. Q1") || !strings.Contains(text, "2. Q2") {
		t.Errorf("expected numbered followups, got %q", text)
	}
}

func TestDecodeQuestion_KeepsCodeFencesInValues(t *testing.T) {
	const body = `{
  "question": "What does this print?\n` + "```swift" + `\nprint(1)\n` + "```" + `",
  "followups": ["Q1", "Q2"],
  "rubric": [
    {"competency": "Swift basics", "weight": 1.0, "score_1": "guess", "score_3": "right", "score_5": "explains"}
  ]
}`
	want := "What does this print?\n```swift\nprint(1)\n```"

	for name, raw := range map[string]string{
		"bare":    body,
		"fenced":  "```json\n" + body + "\n```",
		"preface": "Sure:\n" + body,
	} {
		t.Run(name, func(t *testing.T) {
			q, err := interview.DecodeQuestion(raw, 2)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Question != want {
				t.Errorf("question was altered: %q", q.Question)
			}
		})
	}
}

func TestCleanJSONResponse(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\": 1}\n```": `{"a": 1}`,
		"```\n{\"a\": 1}\n```":     `{"a": 1}`,
		"```json{\"a\": 1}```":     `{"a": 1}`,
		"{\"a\": \"```x```\"}":     "{\"a\": \"```x```\"}",
	}
	for in, want := range cases {
		if got := interview.CleanJSONResponse(in); got != want {
			t.Errorf("CleanJSONResponse(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeReport_WholeFloatScores(t *testing.T) {
	raw := `{
	  "overall_score": 3.0,
	  "scores_by_competency": [
	    {"competency": "Memory Mgmt", "score": 4.0, "rationale": "solid"},
	    {"competency": "Communication", "score": 2, "rationale": "rambling"}
	  ],
	  "final_feedback": "Tighten the explanation."
	}`

	r, err := interview.DecodeReport(raw, twoCompetencyRubric())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.OverallScore != 3 || r.ScoresByCompetency[0].Score != 4 {
		t.Errorf("unexpected scores %d/%d", r.OverallScore, r.ScoresByCompetency[0].Score)
	}
}

func TestDecodeReport_FractionalScore(t *testing.T) {
	raw := `{
	  "overall_score": 3.5,
	  "scores_by_competency": [
	    {"competency": "Memory Mgmt", "score": 4, "rationale": "solid"},
	    {"competency": "Communication", "score": 3, "rationale": "ok"}
	  ],
	  "final_feedback": "Tighten the explanation."
	}`

	_, err := interview.DecodeReport(raw, twoCompetencyRubric())
	var schemaErr *interview.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected a schema error, got %v", err)
	}
}
