// Package domain defines the analytics payloads handed to the model: one
// compact per-question structure with sample-size gating, trend placeholders,
// and a backend-synthesized chart.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Status is the sample-size gate decision for one question.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusCaution Status = "Caution_SampleSize"
	StatusSkipped Status = "Skipped_SampleSize"
)

// ChartPoint is one category of a synthesized chart.
type ChartPoint struct {
	Category   string   `json:"category"`
	Value      float64  `json:"value"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// Chart is the render-ready fallback chart for a question. The orchestrator
// uses it whenever the model reply omits chart data.
type Chart struct {
	Type       string       `json:"type"`
	Data       []ChartPoint `json:"data"`
	Title      string       `json:"title"`
	XAxisLabel string       `json:"x_axis_label"`
	YAxisLabel string       `json:"y_axis_label"`
}

// TrendMetrics are deterministic placeholders. Without historical baselines
// the fixed indicators keep the output schema stable.
type TrendMetrics struct {
	ResponseTrend      string  `json:"response_trend"`
	ResponseRateChange string  `json:"response_rate_change"`
	CompletionRate     float64 `json:"completion_rate"`
	TimePeriod         string  `json:"time_period"`
}

// WordFrequency is one entry of an open-ended word histogram.
type WordFrequency struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
}

// QuestionPayload is the per-question unit of the preprocessed bundle.
// Payload holds the per-type structure, or {"segments": {key: payload}} when
// a comparison was requested.
type QuestionPayload struct {
	QuestionID   snowflake.ID   `json:"question_id"`
	QuestionText string         `json:"question_text"`
	QuestionType string         `json:"question_type"`
	Status       Status         `json:"status"`
	SampleSize   int            `json:"sample_size"`
	Payload      map[string]any `json:"payload,omitempty"`
	Trend        TrendMetrics   `json:"trend"`
	Chart        *Chart         `json:"chart,omitempty"`
}

// Result is the full preprocessed bundle for one insights request.
type Result struct {
	SurveyID       snowflake.ID      `json:"survey_id"`
	SurveyTitle    string            `json:"survey_title"`
	TotalResponses int64             `json:"total_responses"`
	CompletionRate float64           `json:"completion_rate"`
	Comparison     bool              `json:"comparison"`
	SegmentBy      string            `json:"segment_by,omitempty"`
	Questions      []QuestionPayload `json:"questions"`
}

// Input selects what to preprocess. A non-empty SegmentBy enables segment
// comparison.
type Input struct {
	SurveyID    snowflake.ID
	QuestionIDs []snowflake.ID
	Filters     map[string]any
	SegmentBy   string
}

type Preprocessor interface {
	Preprocess(ctx context.Context, in Input) (Result, error)
}

var ErrNoQuestions = errors.New("no_questions_selected")
