package service

import (
	"context"

	"github.com/pulseform/pulseform/internal/clock"
	tierdomain "github.com/pulseform/pulseform/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) tierdomain.Service {
	return &service{db: p.DB, log: p.Log.Named("tier"), clock: p.Clock}
}

func (s *service) Get(ctx context.Context, code string) (tierdomain.Tier, error) {
	var tier tierdomain.Tier
	err := s.db.WithContext(ctx).First(&tier, "code = ?", code).Error
	if err == gorm.ErrRecordNotFound {
		return tierdomain.Tier{}, tierdomain.ErrTierNotFound
	}
	if err != nil {
		return tierdomain.Tier{}, err
	}
	return tier, nil
}

func (s *service) List(ctx context.Context) ([]tierdomain.Tier, error) {
	var tiers []tierdomain.Tier
	if err := s.db.WithContext(ctx).Order("price_cents_monthly").Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}

func (s *service) Upsert(ctx context.Context, tier tierdomain.Tier) error {
	now := s.clock.Now()
	if tier.CreatedAt.IsZero() {
		tier.CreatedAt = now
	}
	tier.UpdatedAt = now
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "quota_monthly", "price_cents_monthly", "updated_at"}),
		}).
		Create(&tier).Error
}
