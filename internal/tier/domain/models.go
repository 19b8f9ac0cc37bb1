// Package domain defines the subscription tier catalog. A tenant's tier sets
// its monthly credit quota.
package domain

import (
	"context"
	"errors"
	"time"
)

type Tier struct {
	Code              string    `gorm:"primaryKey;type:text"`
	Name              string    `gorm:"type:text;not null"`
	QuotaMonthly      int64     `gorm:"not null"`
	PriceCentsMonthly int64     `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tier) TableName() string { return "tiers" }

// DefaultTierCode is assigned to tenants created without an explicit tier.
const DefaultTierCode = "free"

type Service interface {
	Get(ctx context.Context, code string) (Tier, error)
	List(ctx context.Context) ([]Tier, error)

	// Upsert creates or updates a catalog entry. Used by seeding and admin
	// tooling.
	Upsert(ctx context.Context, tier Tier) error
}

var ErrTierNotFound = errors.New("tier_not_found")
