package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pulseform/pulseform/internal/clock"
	usagelogdomain "github.com/pulseform/pulseform/internal/usagelog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) usagelogdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usagelog.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Begin(ctx context.Context, p usagelogdomain.BeginParams) (snowflake.ID, error) {
	if strings.TrimSpace(p.OperationType) == "" {
		return 0, usagelogdomain.ErrInvalidOperation
	}
	if p.UserID != nil && p.AdminID != nil {
		return 0, usagelogdomain.ErrAmbiguousActor
	}

	row := usagelogdomain.UsageLog{
		ID:               s.genID.Generate(),
		TenantID:         p.TenantID,
		UserID:           p.UserID,
		AdminID:          p.AdminID,
		OperationType:    p.OperationType,
		OperationSubtype: p.OperationSubtype,
		SurveyID:         p.SurveyID,
		CreditsCost:      p.CreditsCost,
		StartedAt:        s.clock.Now(),
		Outcome:          usagelogdomain.OutcomeProcessing,
		Extra:            datatypes.JSONMap(p.Extra),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *Service) Finalize(ctx context.Context, logID snowflake.ID, p usagelogdomain.FinalizeParams) error {
	var row usagelogdomain.UsageLog
	err := s.db.WithContext(ctx).First(&row, "id = ?", logID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return usagelogdomain.ErrLogNotFound
	}
	if err != nil {
		return err
	}
	if row.CompletedAt != nil {
		// Already finalized; Finalize is idempotent.
		return nil
	}

	now := s.clock.Now()
	duration := now.Sub(row.StartedAt).Seconds()
	extra := row.Extra
	if len(p.Extra) > 0 {
		if extra == nil {
			extra = datatypes.JSONMap{}
		}
		for k, v := range p.Extra {
			extra[k] = v
		}
	}

	updates := map[string]any{
		"completed_at":      now,
		"duration_s":        duration,
		"outcome":           p.Outcome,
		"error_msg":         p.ErrorMsg,
		"model_name":        p.ModelName,
		"est_input_tokens":  p.EstInputTokens,
		"est_output_tokens": p.EstOutputTokens,
		"cost_usd":          p.CostUSD,
		"extra":             extra,
	}

	// The completed_at guard keeps concurrent finalizes from overwriting the
	// first result.
	result := s.db.WithContext(ctx).
		Model(&usagelogdomain.UsageLog{}).
		Where("id = ? AND completed_at IS NULL", logID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return nil
	}

	s.log.Info("ai operation finalized",
		zap.String("log_id", logID.String()),
		zap.String("operation", row.OperationType),
		zap.String("outcome", p.Outcome),
		zap.Float64("duration_s", duration),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, logID snowflake.ID) (*usagelogdomain.UsageLog, error) {
	var row usagelogdomain.UsageLog
	err := s.db.WithContext(ctx).First(&row, "id = ?", logID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usagelogdomain.ErrLogNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) RecordGeneration(ctx context.Context, rec usagelogdomain.SurveyGenerationRecord) error {
	if rec.ID == 0 {
		rec.ID = s.genID.Generate()
	}
	rec.CreatedAt = s.clock.Now()
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *Service) RecordAnalytics(ctx context.Context, rec usagelogdomain.AnalyticsGenerationRecord) error {
	if rec.ID == 0 {
		rec.ID = s.genID.Generate()
	}
	rec.CreatedAt = s.clock.Now()
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *Service) DailyUsage(ctx context.Context, tenantID snowflake.ID, days int) ([]usagelogdomain.DailyUsage, error) {
	if days <= 0 || days > 90 {
		days = 30
	}
	since := s.clock.Now().AddDate(0, 0, -days)

	var rows []usagelogdomain.DailyUsage
	err := s.db.WithContext(ctx).
		Model(&usagelogdomain.UsageLog{}).
		Select("DATE(started_at) AS day, COUNT(*) AS operations, SUM(credits_cost) AS credits_cost, COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("tenant_id = ? AND started_at >= ?", tenantID, since).
		Group("DATE(started_at)").
		Order("day DESC").
		Scan(&rows).Error
	return rows, err
}

func (s *Service) TypeDistribution(ctx context.Context, tenantID snowflake.ID) ([]usagelogdomain.TypeUsage, error) {
	var rows []usagelogdomain.TypeUsage
	err := s.db.WithContext(ctx).
		Model(&usagelogdomain.UsageLog{}).
		Select("operation_type, COUNT(*) AS operations, SUM(credits_cost) AS credits_cost, COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("tenant_id = ?", tenantID).
		Group("operation_type").
		Order("operations DESC").
		Scan(&rows).Error
	return rows, err
}

func (s *Service) TopOperations(ctx context.Context, tenantID snowflake.ID, limit int) ([]usagelogdomain.UsageLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var rows []usagelogdomain.UsageLog
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND cost_usd IS NOT NULL", tenantID).
		Order("cost_usd DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
