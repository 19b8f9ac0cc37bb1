package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Repository is the narrow survey-store contract the AI core consumes.
type Repository interface {
	Get(ctx context.Context, id snowflake.ID) (*Survey, error)
	ListQuestions(ctx context.Context, surveyID snowflake.ID) ([]Question, error)

	// Replace swaps the survey's definition wholesale and returns the stored
	// state. Used after the assistant emits a full new survey.
	Replace(ctx context.Context, id snowflake.ID, def SurveyDef) (*Survey, []Question, error)

	Create(ctx context.Context, tenantID snowflake.ID, def SurveyDef) (*Survey, []Question, error)
}

// QuestionAnalytics is the raw per-question response aggregate the analytics
// preprocessor reshapes.
type QuestionAnalytics struct {
	QuestionID               snowflake.ID             `json:"question_id"`
	CountValid               int                      `json:"count_valid"`
	TotalResponsesConsidered int                      `json:"total_responses_considered"`
	Distribution             map[string]int64         `json:"distribution,omitempty"`
	TextResponses            []string                 `json:"text_responses,omitempty"`
	RankPositions            map[string]map[int]int64 `json:"rank_positions,omitempty"`
	GridCounts               map[string]map[string]int64 `json:"grid_counts,omitempty"`
}

// ReportSummary carries survey-level response statistics.
type ReportSummary struct {
	TotalSubmissions int64      `json:"total_submissions"`
	CompletionRate   float64    `json:"completion_rate"`
	FirstResponseAt  *time.Time `json:"first_response_at,omitempty"`
	LastResponseAt   *time.Time `json:"last_response_at,omitempty"`
}

// AnswerInput is one answer of a submission being recorded.
type AnswerInput struct {
	QuestionID snowflake.ID `json:"question_id"`
	Value      any          `json:"value"`
}

// SubmissionInput is a full submission being recorded.
type SubmissionInput struct {
	SurveyID     snowflake.ID   `json:"survey_id"`
	Synthetic    bool           `json:"synthetic"`
	Demographics map[string]any `json:"demographics,omitempty"`
	Answers      []AnswerInput  `json:"answers"`
}

// ResponseRepository is the narrow response-store contract.
type ResponseRepository interface {
	// FilteredQuestionAnalytics aggregates one question's responses under
	// demographic equality filters.
	FilteredQuestionAnalytics(ctx context.Context, surveyID, questionID snowflake.ID, filters map[string]any) (QuestionAnalytics, error)

	// MultiDemographicAnalytics aggregates the given questions per value of
	// the segmentBy demographic key.
	MultiDemographicAnalytics(ctx context.Context, surveyID snowflake.ID, questionIDs []snowflake.ID, filters map[string]any, segmentBy string) (map[string]map[snowflake.ID]QuestionAnalytics, error)

	ReportSummary(ctx context.Context, surveyID snowflake.ID) (ReportSummary, error)

	Submit(ctx context.Context, input SubmissionInput) error
}

var (
	ErrSurveyNotFound   = errors.New("survey_not_found")
	ErrQuestionNotFound = errors.New("question_not_found")
	ErrInvalidDef       = errors.New("invalid_survey_definition")
)
