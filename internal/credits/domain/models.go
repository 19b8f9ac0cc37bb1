// Package domain contains the tenant credit economy: a dual-bucket balance
// (monthly quota + purchased top-ups) with an append-only ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Bucket identifies which balance a credit lands in. Debits always consume
// the monthly bucket before the purchased bucket.
type Bucket string

const (
	BucketMonthly   Bucket = "monthly"
	BucketPurchased Bucket = "purchased"
)

// TenantCredits is the per-tenant balance row. Buckets are never negative.
type TenantCredits struct {
	TenantID         snowflake.ID `gorm:"primaryKey;column:tenant_id"`
	TierCode         string       `gorm:"type:text;not null;default:'free'"`
	CreditsMonthly   int64        `gorm:"not null;default:0"`
	CreditsPurchased int64        `gorm:"not null;default:0"`
	QuotaMonthly     int64        `gorm:"not null;default:0"`
	CycleStart       time.Time    `gorm:"not null"`
	CycleEnd         time.Time    `gorm:"not null"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TenantCredits) TableName() string { return "tenant_credits" }

// Total is the spendable balance across both buckets.
func (t TenantCredits) Total() int64 {
	return t.CreditsMonthly + t.CreditsPurchased
}

// LedgerEntry records one balance mutation. Amount is negative for debits.
// Every state-mutating operation writes exactly one entry.
type LedgerEntry struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	TenantID       snowflake.ID `gorm:"not null;index"`
	Actor          string       `gorm:"type:text;not null"`
	Reason         string       `gorm:"type:text;not null"`
	Amount         int64        `gorm:"not null"`
	MonthlyDelta   int64        `gorm:"not null;default:0"`
	PurchasedDelta int64        `gorm:"not null;default:0"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "credit_ledger_entries" }
