package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pulseform/pulseform/internal/clock"
	"github.com/pulseform/pulseform/internal/config"
	creditsdomain "github.com/pulseform/pulseform/internal/credits/domain"
	"github.com/pulseform/pulseform/internal/redislock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	debitLockTTL = 10 * time.Second
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Cfg    config.Config
	Locker *redislock.Locker `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cycleMonths int
	locker      *redislock.Locker
}

func NewService(p Params) creditsdomain.Service {
	months := p.Cfg.Credits.CycleMonths
	if months <= 0 {
		months = 1
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("credits.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cycleMonths: months,
		locker:      p.Locker,
	}
}

func (s *Service) Ensure(ctx context.Context, tenantID snowflake.ID, tierCode string, quotaMonthly int64) error {
	if tenantID == 0 {
		return creditsdomain.ErrTenantNotFound
	}
	now := s.clock.Now()
	row := creditsdomain.TenantCredits{
		TenantID:       tenantID,
		TierCode:       tierCode,
		CreditsMonthly: quotaMonthly,
		QuotaMonthly:   quotaMonthly,
		CycleStart:     now,
		CycleEnd:       now.AddDate(0, s.cycleMonths, 0),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID) (*creditsdomain.TenantCredits, error) {
	var row creditsdomain.TenantCredits
	err := s.db.WithContext(ctx).First(&row, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, creditsdomain.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) Available(ctx context.Context, tenantID snowflake.ID) (int64, error) {
	var total int64
	err := s.withTenantRow(ctx, tenantID, func(tx *gorm.DB, row *creditsdomain.TenantCredits) error {
		s.rolloverLocked(row)
		total = row.Total()
		return tx.Save(row).Error
	})
	return total, err
}

func (s *Service) Check(ctx context.Context, tenantID snowflake.ID, amount int64) (creditsdomain.CheckResult, error) {
	if amount <= 0 {
		return creditsdomain.CheckResult{}, creditsdomain.ErrInvalidAmount
	}
	available, err := s.Available(ctx, tenantID)
	if err != nil {
		return creditsdomain.CheckResult{}, err
	}
	if available < amount {
		return creditsdomain.CheckResult{
			OK:        false,
			Available: available,
			Message:   fmt.Sprintf("requires %d AI credits, %d available", amount, available),
		}, nil
	}
	return creditsdomain.CheckResult{OK: true, Available: available}, nil
}

func (s *Service) Debit(ctx context.Context, tenantID snowflake.ID, amount int64, reason, actor string) (creditsdomain.DebitResult, error) {
	if amount <= 0 {
		return creditsdomain.DebitResult{}, creditsdomain.ErrInvalidAmount
	}

	unlock, err := s.acquireTenantLock(ctx, tenantID)
	if err != nil {
		return creditsdomain.DebitResult{}, err
	}
	defer unlock()

	var result creditsdomain.DebitResult
	err = s.withTenantRow(ctx, tenantID, func(tx *gorm.DB, row *creditsdomain.TenantCredits) error {
		s.rolloverLocked(row)

		if row.Total() < amount {
			result = creditsdomain.DebitResult{
				OK:        false,
				Remaining: row.Total(),
				Message:   fmt.Sprintf("requires %d AI credits, %d available", amount, row.Total()),
			}
			return nil
		}

		fromMonthly := amount
		if fromMonthly > row.CreditsMonthly {
			fromMonthly = row.CreditsMonthly
		}
		fromPurchased := amount - fromMonthly
		row.CreditsMonthly -= fromMonthly
		row.CreditsPurchased -= fromPurchased
		row.UpdatedAt = s.clock.Now()

		if err := tx.Save(row).Error; err != nil {
			return err
		}
		if err := s.writeEntry(tx, tenantID, actor, reason, -amount, -fromMonthly, -fromPurchased); err != nil {
			return err
		}

		result = creditsdomain.DebitResult{OK: true, Remaining: row.Total()}
		return nil
	})
	return result, err
}

func (s *Service) Credit(ctx context.Context, tenantID snowflake.ID, amount int64, reason string, bucket creditsdomain.Bucket, actor string) error {
	if amount <= 0 {
		return creditsdomain.ErrInvalidAmount
	}
	if bucket != creditsdomain.BucketMonthly && bucket != creditsdomain.BucketPurchased {
		return creditsdomain.ErrInvalidBucket
	}

	return s.withTenantRow(ctx, tenantID, func(tx *gorm.DB, row *creditsdomain.TenantCredits) error {
		s.rolloverLocked(row)

		var monthlyDelta, purchasedDelta int64
		if bucket == creditsdomain.BucketMonthly {
			row.CreditsMonthly += amount
			monthlyDelta = amount
		} else {
			row.CreditsPurchased += amount
			purchasedDelta = amount
		}
		row.UpdatedAt = s.clock.Now()

		if err := tx.Save(row).Error; err != nil {
			return err
		}
		return s.writeEntry(tx, tenantID, actor, reason, amount, monthlyDelta, purchasedDelta)
	})
}

// RefundDebit mirrors a prior debit's bucket split: what was taken from the
// purchased bucket comes back as purchased, so paid credits survive the next
// rollover. The refund entry under refundReason doubles as the idempotency
// marker.
func (s *Service) RefundDebit(ctx context.Context, tenantID snowflake.ID, debitReason, refundReason, actor string) (int64, error) {
	var refunded int64
	err := s.withTenantRow(ctx, tenantID, func(tx *gorm.DB, row *creditsdomain.TenantCredits) error {
		var prior int64
		if err := tx.Model(&creditsdomain.LedgerEntry{}).
			Where("tenant_id = ? AND reason = ?", tenantID, refundReason).
			Count(&prior).Error; err != nil {
			return err
		}
		if prior > 0 {
			return nil
		}

		var debit creditsdomain.LedgerEntry
		err := tx.Where("tenant_id = ? AND reason = ? AND amount < 0", tenantID, debitReason).
			Order("id DESC").
			First(&debit).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return creditsdomain.ErrDebitNotFound
		}
		if err != nil {
			return err
		}

		s.rolloverLocked(row)
		monthlyBack := -debit.MonthlyDelta
		purchasedBack := -debit.PurchasedDelta
		row.CreditsMonthly += monthlyBack
		row.CreditsPurchased += purchasedBack
		row.UpdatedAt = s.clock.Now()

		if err := tx.Save(row).Error; err != nil {
			return err
		}
		if err := s.writeEntry(tx, tenantID, actor, refundReason, -debit.Amount, monthlyBack, purchasedBack); err != nil {
			return err
		}
		refunded = -debit.Amount
		return nil
	})
	return refunded, err
}

func (s *Service) ListLedger(ctx context.Context, tenantID snowflake.ID, limit int) ([]creditsdomain.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []creditsdomain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// withTenantRow runs fn inside a transaction holding the tenant's row lock.
func (s *Service) withTenantRow(ctx context.Context, tenantID snowflake.ID, fn func(tx *gorm.DB, row *creditsdomain.TenantCredits) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row creditsdomain.TenantCredits
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "tenant_id = ?", tenantID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return creditsdomain.ErrTenantNotFound
		}
		if err != nil {
			return err
		}
		return fn(tx, &row)
	})
}

// rolloverLocked resets the monthly bucket when the billing cycle has lapsed.
// Idempotent within a cycle; loops to absorb multi-cycle gaps.
func (s *Service) rolloverLocked(row *creditsdomain.TenantCredits) {
	now := s.clock.Now()
	rolled := false
	for !now.Before(row.CycleEnd) {
		row.CycleStart = row.CycleEnd
		row.CycleEnd = row.CycleEnd.AddDate(0, s.cycleMonths, 0)
		rolled = true
	}
	if rolled {
		row.CreditsMonthly = row.QuotaMonthly
		row.UpdatedAt = now
		s.log.Info("monthly credits reset",
			zap.String("tenant_id", row.TenantID.String()),
			zap.Int64("quota", row.QuotaMonthly),
			zap.Time("cycle_end", row.CycleEnd),
		)
	}
}

func (s *Service) writeEntry(tx *gorm.DB, tenantID snowflake.ID, actor, reason string, amount, monthlyDelta, purchasedDelta int64) error {
	entry := creditsdomain.LedgerEntry{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		Actor:          actor,
		Reason:         reason,
		Amount:         amount,
		MonthlyDelta:   monthlyDelta,
		PurchasedDelta: purchasedDelta,
		CreatedAt:      s.clock.Now(),
	}
	return tx.Create(&entry).Error
}

// acquireTenantLock serializes debits across processes when redis is
// configured. The row lock inside the transaction remains the correctness
// guarantee; this shortens lock-wait convoys under load.
func (s *Service) acquireTenantLock(ctx context.Context, tenantID snowflake.ID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("credits:debit:%s", tenantID.String())
	deadline := time.Now().Add(debitLockTTL)
	for {
		token, ok, err := s.locker.TryLock(ctx, key, debitLockTTL)
		if err != nil {
			// Redis being unreachable must not block spend; fall through to
			// the row lock.
			s.log.Warn("debit lock unavailable", zap.Error(err))
			return func() {}, nil
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = s.locker.Release(releaseCtx, key, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return func() {}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
