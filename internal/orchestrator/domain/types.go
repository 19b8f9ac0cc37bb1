// Package domain defines the public AI operation surface: every entry point
// the web layer calls, the task handle contract, and the error taxonomy.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/pulseform/pulseform/internal/analytics/domain"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
)

// TaskHandle is returned by every asynchronous operation.
type TaskHandle struct {
	TaskID snowflake.ID `json:"task_id"`
	LogID  snowflake.ID `json:"log_id"`
	Status string       `json:"status"`
}

// TaskStatus answers a status poll.
type TaskStatus struct {
	State      string          `json:"state"`
	Ready      bool            `json:"ready"`
	Successful *bool           `json:"successful,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type QuickGenerateRequest struct {
	TenantID snowflake.ID `json:"tenant_id"`
	UserID   snowflake.ID `json:"user_id"`
	Prompt   string       `json:"prompt"`
}

type GuidedGenerateRequest struct {
	TenantID    snowflake.ID `json:"tenant_id"`
	UserID      snowflake.ID `json:"user_id"`
	Industry    string       `json:"industry"`
	Goal        string       `json:"goal"`
	Description string       `json:"description"`
	ToneLength  string       `json:"tone_length"`
}

type EditQuestionRequest struct {
	TenantID snowflake.ID    `json:"tenant_id"`
	UserID   snowflake.ID    `json:"user_id"`
	Original json.RawMessage `json:"original"`
	Prompt   string          `json:"prompt"`
	SurveyID *snowflake.ID   `json:"survey_id,omitempty"`
}

type EditSurveyRequest struct {
	TenantID     snowflake.ID `json:"tenant_id"`
	UserID       snowflake.ID `json:"user_id"`
	SurveyID     snowflake.ID `json:"survey_id"`
	Instructions string       `json:"instructions"`
}

type RegenerateRequest struct {
	TenantID      snowflake.ID    `json:"tenant_id"`
	UserID        snowflake.ID    `json:"user_id"`
	SurveyID      snowflake.ID    `json:"survey_id"`
	CurrentSurvey json.RawMessage `json:"current_survey"`
	Instructions  string          `json:"instructions"`
}

type ConversationRequest struct {
	TenantID      snowflake.ID    `json:"tenant_id"`
	UserID        snowflake.ID    `json:"user_id"`
	Prompt        string          `json:"prompt"`
	CurrentSurvey json.RawMessage `json:"current_survey,omitempty"`
	SurveyID      *snowflake.ID   `json:"survey_id,omitempty"`
}

// ConversationResult is prose plus an optional bounded update object.
type ConversationResult struct {
	ResponseText  string                      `json:"response"`
	SurveyUpdates *surveydomain.SurveyUpdates `json:"survey_updates,omitempty"`
}

type InsightsRequest struct {
	TenantID    snowflake.ID   `json:"tenant_id"`
	UserID      snowflake.ID   `json:"user_id"`
	SurveyID    snowflake.ID   `json:"survey_id"`
	QuestionIDs []snowflake.ID `json:"question_ids"`
	Filters     map[string]any `json:"filters,omitempty"`
	Comparison  string         `json:"comparison,omitempty"`
}

type SyntheticRequest struct {
	TenantID     snowflake.ID `json:"tenant_id"`
	UserID       snowflake.ID `json:"user_id"`
	SurveyID     snowflake.ID `json:"survey_id"`
	NumResponses int          `json:"num_responses"`
}

// GeneratedSurvey is the stored outcome of a generation operation.
type GeneratedSurvey struct {
	SurveyID    snowflake.ID               `json:"survey_id"`
	Title       string                     `json:"title"`
	Description string                     `json:"description"`
	Questions   []surveydomain.QuestionDef `json:"questions"`
}

// InsightStatistics is the per-question statistics block of a report.
type InsightStatistics struct {
	PrimaryMetric   string `json:"primary_metric"`
	TrendDirection  string `json:"trend_direction"`
	ConfidenceLevel string `json:"confidence_level"`
}

// QuestionInsight is one analyzed question in an insights report.
type QuestionInsight struct {
	QuestionID   string                 `json:"question_id"`
	QuestionText string                 `json:"question_text"`
	Headline     string                 `json:"headline"`
	Summary      string                 `json:"summary"`
	SampleSize   int                    `json:"sample_size"`
	Statistics   InsightStatistics      `json:"statistics"`
	Insights     []string               `json:"insights"`
	ChartData    *analyticsdomain.Chart `json:"chart_data,omitempty"`
}

// ReportStatistics is the report-level statistics block.
type ReportStatistics struct {
	TotalResponses   int64   `json:"total_responses"`
	ConfidenceLevel  string  `json:"confidence_level"`
	DataQualityScore float64 `json:"data_quality_score"`
}

// InsightsReport is the full analytics deliverable. Every expected question
// appears in QuestionInsights even when the model omitted it.
type InsightsReport struct {
	ExecutiveSummary []string          `json:"executive_summary"`
	QuestionInsights []QuestionInsight `json:"question_insights"`
	Statistics       ReportStatistics  `json:"statistics"`
	Insights         []string          `json:"insights"`
}

// SyntheticDetail describes one simulated respondent's outcome.
type SyntheticDetail struct {
	Respondent int    `json:"respondent"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

// SyntheticSummary is the result of a synthetic generation job.
type SyntheticSummary struct {
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Details    []SyntheticDetail `json:"details"`
}

// Service is the orchestration surface. Operations that talk to the model
// run asynchronously and return a TaskHandle; EditQuestion and Continue are
// the conversational exceptions and run synchronously.
type Service interface {
	QuickGenerate(ctx context.Context, req QuickGenerateRequest) (TaskHandle, error)
	GuidedGenerate(ctx context.Context, req GuidedGenerateRequest) (TaskHandle, error)
	EditQuestion(ctx context.Context, req EditQuestionRequest) (json.RawMessage, error)
	EditSurvey(ctx context.Context, req EditSurveyRequest) (TaskHandle, error)
	RegenerateSurvey(ctx context.Context, req RegenerateRequest) (TaskHandle, error)
	Continue(ctx context.Context, req ConversationRequest) (ConversationResult, error)

	// ResetConversation discards the shared free-form chat thread; the next
	// conversational turn starts from a blank context.
	ResetConversation(ctx context.Context) error
	GenerateInsights(ctx context.Context, req InsightsRequest) (TaskHandle, error)
	GenerateSynthetic(ctx context.Context, req SyntheticRequest) (TaskHandle, error)

	TaskStatus(ctx context.Context, taskID snowflake.ID) (TaskStatus, error)
	CancelTask(ctx context.Context, taskID snowflake.ID) error
}

// ParseError carries a short excerpt of non-JSON assistant prose so failures
// are diagnosable without leaking the full raw reply.
type ParseError struct {
	Excerpt string
}

func (e *ParseError) Error() string {
	if e.Excerpt == "" {
		return "parse_failure"
	}
	return fmt.Sprintf("parse_failure: %s", e.Excerpt)
}

// Is makes errors.Is(err, ErrParseFailure) hold for every ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrParseFailure }

var (
	ErrInvalidInput    = errors.New("invalid_input")
	ErrParseFailure    = errors.New("parse_failure")
	ErrSchemaViolation = errors.New("schema_violation")
)
