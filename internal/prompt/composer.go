package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	analyticsdomain "github.com/pulseform/pulseform/internal/analytics/domain"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
)

// insightsSchema is the exact reply shape demanded for analytics insights.
const insightsSchema = `{
  "executive_summary": ["..."],
  "question_insights": [
    {
      "question_id": "...",
      "question_text": "...",
      "headline": "...",
      "summary": "...",
      "sample_size": 0,
      "statistics": {"primary_metric": "...", "trend_direction": "...", "confidence_level": "..."},
      "insights": ["..."],
      "chart_data": {"type": "...", "data": [], "title": "..."}
    }
  ],
  "statistics": {"total_responses": 0, "confidence_level": "...", "data_quality_score": 0},
  "insights": ["..."]
}`

// QuickGenerate builds the prompt for one-shot survey generation.
func QuickGenerate(userPrompt string) string {
	var b strings.Builder
	b.WriteString("Create a survey for the following request.\n\nRequest: ")
	b.WriteString(userPrompt)
	b.WriteString("\n\nRules:\n")
	b.WriteString(GenerationRules)
	b.WriteString("\n\nReturn a JSON object of the shape {\"title\": \"...\", \"description\": \"...\", \"questions\": [...]}.")
	return b.String()
}

// GuidedGenerate builds the prompt for tailored generation. Rules 8 and 10
// are rewritten with the guided context and the tone-derived count range.
func GuidedGenerate(industry, goal, description, toneLength string) string {
	count := CountRangeForTone(toneLength)
	var b strings.Builder
	b.WriteString("Create a survey.\n\n")
	fmt.Fprintf(&b, "Industry: %s\nGoal: %s\nFocus: %s\nTone and length: %s\n", industry, goal, description, toneLength)
	b.WriteString("\nRules:\n")
	b.WriteString(tailoredRules(industry, goal, description, toneLength, count))
	b.WriteString("\n\nReturn a JSON object of the shape {\"title\": \"...\", \"description\": \"...\", \"questions\": [...]}.")
	return b.String()
}

// EditQuestion builds the prompt for a single-question rewrite. The reply
// must be the complete updated question, not a diff.
func EditQuestion(originalQuestion json.RawMessage, instructions string) string {
	var b strings.Builder
	b.WriteString("Edit the following survey question.\n\nCurrent question:\n")
	b.Write(originalQuestion)
	b.WriteString("\n\nInstructions: ")
	b.WriteString(instructions)
	b.WriteString("\n\nRules:\n")
	b.WriteString(GenerationRules)
	b.WriteString("\n\nReturn ONLY the complete updated question as a single JSON object. Include every field the updated type requires and omit every field it forbids.")
	return b.String()
}

// SurveyEdit builds the prompt for a full-survey rewrite, used by both the
// edit and regenerate operations.
func SurveyEdit(currentSurvey json.RawMessage, instructions string) string {
	var b strings.Builder
	b.WriteString("Revise the following survey.\n\nCurrent survey:\n")
	b.Write(currentSurvey)
	b.WriteString("\n\nInstructions: ")
	b.WriteString(instructions)
	b.WriteString("\n\nRules:\n")
	b.WriteString(GenerationRules)
	b.WriteString("\n\nReturn ONLY the complete new survey as a JSON object of the shape {\"title\": \"...\", \"description\": \"...\", \"questions\": [...]}. Keep questions the instructions do not touch.")
	return b.String()
}

// SurveyContext is the seed message posted when a per-survey thread is
// created, so later turns can refer to the survey without restating it.
func SurveyContext(survey json.RawMessage) string {
	var b strings.Builder
	b.WriteString("You are helping with the following survey. Later messages refer to it.\n\n")
	b.Write(survey)
	return b.String()
}

// Conversation builds the prompt for a conversational turn. The reply is
// prose plus an optional bounded update object.
func Conversation(userPrompt string, currentSurvey json.RawMessage) string {
	var b strings.Builder
	b.WriteString("Continue the survey conversation.\n\n")
	if len(currentSurvey) > 0 {
		b.WriteString("Current survey:\n")
		b.Write(currentSurvey)
		b.WriteString("\n\n")
	}
	b.WriteString("User: ")
	b.WriteString(userPrompt)
	b.WriteString("\n\nRules:\n")
	b.WriteString(GenerationRules)
	b.WriteString(`

Return ONLY a JSON object of the shape {"response_text": "...", "survey_updates": {...}}.
"response_text" is your conversational reply. Include "survey_updates" only when the user asked for a concrete change; its shape is {"title": "...", "description": "...", "question_updates": [{"index": 0, "updated_question": {...}}], "new_questions": [...]}, with every key optional.`)
	return b.String()
}

// Insights builds the analytics prompt. The preprocessed payload is embedded
// verbatim so the model reasons over exactly what the backend computed.
func Insights(payload analyticsdomain.Result) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Analyze the following survey response data and produce insights.\n\nData:\n")
	b.Write(encoded)
	b.WriteString("\n\nFor every question with status Success or Caution_SampleSize, produce one question_insights entry; mention the limited sample when the status is Caution_SampleSize. Do not invent numbers that are not in the data.\n\nReturn ONLY a JSON object of this exact shape:\n")
	b.WriteString(insightsSchema)
	return b.String(), nil
}

// RespondentProfile asks for one synthetic respondent persona.
func RespondentProfile(surveyTitle string, seq int) string {
	return fmt.Sprintf(`Invent respondent #%d for a survey titled %q.

Return ONLY a JSON object of the shape {"age_group": "...", "gender": "...", "location": "...", "occupation": "...", "email": "..."}. The email must look like a plausible personal address.`, seq, surveyTitle)
}

// SyntheticAnswer builds the small per-type prompt for one synthetic answer.
// The reply is always {"value": ...} with a type-appropriate value.
func SyntheticAnswer(def surveydomain.QuestionDef, persona string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are this survey respondent: %s\n\nAnswer the question below in character.\n\nQuestion: %s\n", persona, def.QuestionText)

	switch def.QuestionType {
	case surveydomain.TypeSingleChoice, surveydomain.TypeDropdown:
		fmt.Fprintf(&b, "Pick exactly one of these options: %s\n", strings.Join(def.Options, " | "))
		b.WriteString(`Return ONLY {"value": "<chosen option, verbatim>"}.`)
	case surveydomain.TypeMultipleChoice:
		fmt.Fprintf(&b, "Pick one or more of these options: %s\n", strings.Join(def.Options, " | "))
		b.WriteString(`Return ONLY {"value": ["<chosen options, verbatim>"]}.`)
	case surveydomain.TypeRating:
		start, end := 1, 5
		if def.RatingStart != nil {
			start = *def.RatingStart
		}
		if def.RatingEnd != nil {
			end = *def.RatingEnd
		}
		fmt.Fprintf(&b, "Rate on a scale from %d (%s) to %d (%s).\n", start, def.LeftLabel, end, def.RightLabel)
		fmt.Fprintf(&b, `Return ONLY {"value": <integer between %d and %d>}.`, start, end)
	case surveydomain.TypeNPS:
		b.WriteString("How likely are you to recommend, from 0 to 10?\n")
		b.WriteString(`Return ONLY {"value": <integer between 0 and 10>}.`)
	case surveydomain.TypeScale:
		fmt.Fprintf(&b, "Pick exactly one of these scale points: %s\n", strings.Join(def.ScalePoints, " | "))
		b.WriteString(`Return ONLY {"value": "<chosen point, verbatim>"}.`)
	case surveydomain.TypeRanking:
		fmt.Fprintf(&b, "Rank all of these items from most to least preferred: %s\n", strings.Join(def.RankingItems, " | "))
		b.WriteString(`Return ONLY {"value": ["<every item exactly once, in your order>"]}.`)
	case surveydomain.TypeStarRatingGrid:
		fmt.Fprintf(&b, "Rate each row from 1 to %d stars. Rows: %s\n", len(def.GridColumns), strings.Join(def.GridRows, " | "))
		b.WriteString(`Return ONLY {"value": {"<row>": <stars>}} covering every row.`)
	case surveydomain.TypeRadioGrid:
		fmt.Fprintf(&b, "Pick one column per row. Rows: %s. Columns: %s\n", strings.Join(def.GridRows, " | "), strings.Join(def.GridColumns, " | "))
		b.WriteString(`Return ONLY {"value": {"<row>": "<column, verbatim>"}} covering every row.`)
	default:
		b.WriteString("Answer in one or two natural sentences.\n")
		b.WriteString(`Return ONLY {"value": "<your answer>"}.`)
	}
	return b.String()
}
