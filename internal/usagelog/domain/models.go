// Package domain contains the append-only record of every AI operation,
// used for billing reconciliation, latency analysis and cost accounting.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Outcome of a finished operation.
const (
	OutcomeProcessing = "processing"
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
)

// Operation types, one per orchestrator entry point.
const (
	OpQuickGenerate      = "survey.quick_generate"
	OpGuidedGenerate     = "survey.guided_generate"
	OpEditQuestion       = "survey.edit_question"
	OpEditSurvey         = "survey.edit_survey"
	OpRegenerateSurvey   = "survey.regenerate"
	OpConversation       = "survey.conversation"
	OpGenerateInsights   = "analytics.insights"
	OpSyntheticResponses = "responses.synthetic"
)

// UsageLog is one AI operation. Rows are append-only: Finalize fills the
// completion fields once and later calls are no-ops.
type UsageLog struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	TenantID         snowflake.ID      `gorm:"index"`
	UserID           *snowflake.ID     `gorm:"index"`
	AdminID          *snowflake.ID     `gorm:""`
	OperationType    string            `gorm:"type:text;not null;index"`
	OperationSubtype string            `gorm:"type:text"`
	SurveyID         *snowflake.ID     `gorm:"index"`
	CreditsCost      int64             `gorm:"not null;default:0"`
	EstInputTokens   *int64            `gorm:""`
	EstOutputTokens  *int64            `gorm:""`
	ModelName        string            `gorm:"type:text"`
	CostUSD          *float64          `gorm:""`
	StartedAt        time.Time         `gorm:"not null"`
	CompletedAt      *time.Time        `gorm:""`
	DurationS        *float64          `gorm:""`
	Outcome          string            `gorm:"type:text;not null;default:'processing'"`
	ErrorMsg         string            `gorm:"type:text"`
	Extra            datatypes.JSONMap `gorm:"type:jsonb"`
}

// TableName sets the database table name.
func (UsageLog) TableName() string { return "ai_usage_logs" }

// Generation modes for survey generation records.
const (
	ModeQuick      = "quick"
	ModeGuided     = "guided"
	ModeRegenerate = "regenerate"
	ModeEdit       = "edit"
)

// SurveyGenerationRecord is the one-to-one child of a UsageLog for survey
// generation operations.
type SurveyGenerationRecord struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	UsageLogID         snowflake.ID `gorm:"not null;uniqueIndex"`
	Mode               string       `gorm:"type:text;not null"`
	Prompt             string       `gorm:"type:text"`
	Industry           string       `gorm:"type:text"`
	Goal               string       `gorm:"type:text"`
	ToneLength         string       `gorm:"type:text"`
	QuestionsGenerated int          `gorm:"not null;default:0"`
	SurveyTitle        string       `gorm:"type:text"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SurveyGenerationRecord) TableName() string { return "survey_generation_records" }

// AnalyticsGenerationRecord is the one-to-one child of a UsageLog for
// insight generation.
type AnalyticsGenerationRecord struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	UsageLogID        snowflake.ID      `gorm:"not null;uniqueIndex"`
	SurveyID          snowflake.ID      `gorm:"not null;index"`
	QuestionsAnalyzed int               `gorm:"not null;default:0"`
	Filters           datatypes.JSONMap `gorm:"type:jsonb"`
	Compare           bool              `gorm:"not null;default:false"`
	InsightsGenerated int               `gorm:"not null;default:0"`
	ChartsGenerated   int               `gorm:"not null;default:0"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AnalyticsGenerationRecord) TableName() string { return "analytics_generation_records" }
