package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// BeginParams opens a usage log row in the processing state. Exactly one of
// UserID/AdminID is set unless the operation is system-initiated.
type BeginParams struct {
	TenantID         snowflake.ID
	UserID           *snowflake.ID
	AdminID          *snowflake.ID
	OperationType    string
	OperationSubtype string
	SurveyID         *snowflake.ID
	CreditsCost      int64
	Extra            map[string]any
}

// FinalizeParams completes a usage log row.
type FinalizeParams struct {
	Outcome         string
	ErrorMsg        string
	ModelName       string
	EstInputTokens  *int64
	EstOutputTokens *int64
	CostUSD         *float64
	Extra           map[string]any
}

// DailyUsage is one day of per-tenant aggregate spend.
type DailyUsage struct {
	Day         time.Time `json:"day"`
	Operations  int64     `json:"operations"`
	CreditsCost int64     `json:"credits_cost"`
	CostUSD     float64   `json:"cost_usd"`
}

// TypeUsage is the per-operation-type distribution.
type TypeUsage struct {
	OperationType string  `json:"operation_type"`
	Operations    int64   `json:"operations"`
	CreditsCost   int64   `json:"credits_cost"`
	CostUSD       float64 `json:"cost_usd"`
}

type Service interface {
	Begin(ctx context.Context, p BeginParams) (snowflake.ID, error)

	// Finalize completes the row, computing duration from StartedAt. A second
	// finalize for the same row is a no-op.
	Finalize(ctx context.Context, logID snowflake.ID, p FinalizeParams) error

	Get(ctx context.Context, logID snowflake.ID) (*UsageLog, error)

	RecordGeneration(ctx context.Context, rec SurveyGenerationRecord) error
	RecordAnalytics(ctx context.Context, rec AnalyticsGenerationRecord) error

	DailyUsage(ctx context.Context, tenantID snowflake.ID, days int) ([]DailyUsage, error)
	TypeDistribution(ctx context.Context, tenantID snowflake.ID) ([]TypeUsage, error)
	TopOperations(ctx context.Context, tenantID snowflake.ID, limit int) ([]UsageLog, error)
}

var (
	ErrLogNotFound      = errors.New("usage_log_not_found")
	ErrInvalidOperation = errors.New("invalid_operation_type")
	ErrAmbiguousActor   = errors.New("ambiguous_actor")
)
