package domain

import "encoding/json"

// QuestionDef is the wire shape of a question as generated or edited by the
// assistant. Field presence follows the per-type discipline enforced by the
// generation rules.
type QuestionDef struct {
	QuestionType string   `json:"question_type"`
	QuestionText string   `json:"question_text"`
	Required     bool     `json:"required,omitempty"`
	Options      []string `json:"options,omitempty"`
	ScalePoints  []string `json:"scale_points,omitempty"`
	RatingStart  *int     `json:"rating_start,omitempty"`
	RatingEnd    *int     `json:"rating_end,omitempty"`
	RatingStep   *int     `json:"rating_step,omitempty"`
	LeftLabel    string   `json:"left_label,omitempty"`
	RightLabel   string   `json:"right_label,omitempty"`
	GridRows     []string `json:"grid_rows,omitempty"`
	GridColumns  []string `json:"grid_columns,omitempty"`
	RankingItems []string `json:"ranking_items,omitempty"`
}

// SurveyDef is the wire shape of a full generated survey.
type SurveyDef struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Questions   []QuestionDef `json:"questions"`
}

// SurveyUpdates is the bounded update object a conversational turn may emit.
type SurveyUpdates struct {
	Title           *string          `json:"title,omitempty"`
	Description     *string          `json:"description,omitempty"`
	QuestionUpdates []QuestionUpdate `json:"question_updates,omitempty"`
	NewQuestions    []QuestionDef    `json:"new_questions,omitempty"`
}

type QuestionUpdate struct {
	Index           int         `json:"index"`
	UpdatedQuestion QuestionDef `json:"updated_question"`
}

// DefFromQuestion converts a stored question to its wire shape.
func DefFromQuestion(q Question) QuestionDef {
	def := QuestionDef{
		QuestionType: q.Type,
		QuestionText: q.Text,
		Required:     q.Required,
		RatingStart:  q.RatingStart,
		RatingEnd:    q.RatingEnd,
		RatingStep:   q.RatingStep,
		LeftLabel:    q.LeftLabel,
		RightLabel:   q.RightLabel,
	}
	decodeList(q.Options, &def.Options)
	decodeList(q.ScalePoints, &def.ScalePoints)
	decodeList(q.GridRows, &def.GridRows)
	decodeList(q.GridColumns, &def.GridColumns)
	decodeList(q.RankingItems, &def.RankingItems)
	return def
}

// QuestionFromDef converts a wire question to its stored shape. IDs and the
// sequence are assigned by the repository.
func QuestionFromDef(def QuestionDef) Question {
	return Question{
		Type:         def.QuestionType,
		Text:         def.QuestionText,
		Required:     def.Required,
		Options:      encodeList(def.Options),
		ScalePoints:  encodeList(def.ScalePoints),
		RatingStart:  def.RatingStart,
		RatingEnd:    def.RatingEnd,
		RatingStep:   def.RatingStep,
		LeftLabel:    def.LeftLabel,
		RightLabel:   def.RightLabel,
		GridRows:     encodeList(def.GridRows),
		GridColumns:  encodeList(def.GridColumns),
		RankingItems: encodeList(def.RankingItems),
	}
}

func decodeList(raw []byte, out *[]string) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, out)
}

func encodeList(values []string) []byte {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return data
}
