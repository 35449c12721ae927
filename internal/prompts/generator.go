package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"interview-practice/internal/interview"
)

const questionShape = `{
  "question": "string",
  "followups": ["string", "string"],
  "rubric": [
    {"competency": "string", "weight": 0.0, "score_1": "string", "score_3": "string", "score_5": "string"}
  ]
}`

const reportShape = `{
  "overall_score": 1,
  "scores_by_competency": [
    {"competency": "string", "score": 1, "rationale": "string"}
  ],
  "final_feedback": "string"
}`

// GenerateQuestionPrompt builds the instruction for one new interview question.
// The output depends only on req, so equal requests (same Nonce) give equal prompts.
func GenerateQuestionPrompt(req interview.QuestionRequest) string {
	var prompt strings.Builder

	prompt.WriteString("Create ONE interview question.\n\n")

	prompt.WriteString("Parameters:\n")
	prompt.WriteString(fmt.Sprintf("- Position: %s\n", req.Role))
	prompt.WriteString(fmt.Sprintf("- Subject: %s\n", req.Subject))
	prompt.WriteString(fmt.Sprintf("- Difficulty: %s\n", req.Difficulty))
	prompt.WriteString(fmt.Sprintf("- Interviewer persona: %s\n", req.Persona))
	prompt.WriteString(fmt.Sprintf("- Number of follow-ups: %d\n", req.Followups))
	prompt.WriteString(fmt.Sprintf("- Clarification allowance: %d\n\n", req.Clarifications))

	prompt.WriteString("Do NOT repeat or closely paraphrase any of these previous questions:\n")
	prompt.WriteString(jsonList(req.Avoid))
	prompt.WriteString("\n\n")

	prompt.WriteString("Diversity rule:\n")
	if len(req.Subtopics) > 0 {
		prompt.WriteString(fmt.Sprintf("- Pick a different subtopic than the previous questions (e.g., %s).\n", strings.Join(req.Subtopics, ", ")))
	} else {
		prompt.WriteString("- Pick a different subtopic than the previous questions.\n")
	}
	prompt.WriteString(fmt.Sprintf("- Use this request_id ONLY as a randomness source; do not output it: %s\n\n", req.Nonce))

	prompt.WriteString("Return ONLY valid JSON with this exact shape:\n")
	prompt.WriteString(questionShape)
	prompt.WriteString("\n\n")

	prompt.WriteString("Rules:\n")
	prompt.WriteString("- Keep it concise.\n")
	prompt.WriteString(fmt.Sprintf("- followups must contain exactly %d items.\n", req.Followups))
	prompt.WriteString("- rubric competencies must be unique.\n")
	prompt.WriteString("- rubric weights must sum to 1.0\n")

	return prompt.String()
}

// GradeAnswerPrompt builds the grading instruction for answer against q's rubric.
func GradeAnswerPrompt(q *interview.Question, answer string) string {
	var prompt strings.Builder

	prompt.WriteString("You are grading an interview answer using the provided rubric.\n\n")

	prompt.WriteString("QUESTION:\n")
	prompt.WriteString(q.Question)
	prompt.WriteString("\n\n")

	prompt.WriteString("RUBRIC (JSON):\n")
	prompt.WriteString(marshalText(q.Rubric, ""))
	prompt.WriteString("\n\n")

	prompt.WriteString("CANDIDATE ANSWER:\n")
	prompt.WriteString(answer)
	prompt.WriteString("\n\n")

	prompt.WriteString("Return ONLY valid JSON with this exact shape:\n")
	prompt.WriteString(reportShape)
	prompt.WriteString("\n\n")

	prompt.WriteString("Rules:\n")
	prompt.WriteString("- Score each competency 1-5.\n")
	prompt.WriteString("- Score every rubric competency exactly once, using its exact name.\n")
	prompt.WriteString("- Compute overall_score as a weighted summary (round to nearest int).\n")
	prompt.WriteString("- Be specific and actionable.\n")

	return prompt.String()
}

// RepairPrompt re-issues prompt after a reply that could not be used.
func RepairPrompt(prompt, reason string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\nYour previous reply could not be used: ")
	b.WriteString(reason)
	b.WriteString(".\nReturn valid JSON only, with the exact shape above and no other text.\n")
	return b.String()
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	return marshalText(items, "  ")
}

// marshalText encodes v as JSON without HTML escaping, so <, > and & reach the
// model as written.
func marshalText(v interface{}, indent string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return "[]"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
