package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// CheckResult is a read-only affordability answer.
type CheckResult struct {
	OK        bool   `json:"ok"`
	Available int64  `json:"available"`
	Message   string `json:"message,omitempty"`
}

// DebitResult reports the balance after a single serialized debit.
type DebitResult struct {
	OK        bool   `json:"ok"`
	Remaining int64  `json:"remaining"`
	Message   string `json:"message,omitempty"`
}

type Service interface {
	// Ensure creates the balance row for a tenant if it does not exist.
	Ensure(ctx context.Context, tenantID snowflake.ID, tierCode string, quotaMonthly int64) error

	Get(ctx context.Context, tenantID snowflake.ID) (*TenantCredits, error)

	// Available returns monthly+purchased, rolling the cycle over first when due.
	Available(ctx context.Context, tenantID snowflake.ID) (int64, error)

	Check(ctx context.Context, tenantID snowflake.ID, amount int64) (CheckResult, error)

	// Debit atomically spends amount, monthly bucket first, and writes one
	// ledger entry. Concurrent debits for a tenant are serialized.
	Debit(ctx context.Context, tenantID snowflake.ID, amount int64, reason, actor string) (DebitResult, error)

	// Credit atomically adds amount to the named bucket with a ledger entry.
	Credit(ctx context.Context, tenantID snowflake.ID, amount int64, reason string, bucket Bucket, actor string) error

	// RefundDebit reverses the most recent debit recorded under debitReason,
	// returning each bucket exactly what that debit took from it. The refund
	// is written once under refundReason; repeated calls are no-ops. Returns
	// the amount restored.
	RefundDebit(ctx context.Context, tenantID snowflake.ID, debitReason, refundReason, actor string) (int64, error)

	ListLedger(ctx context.Context, tenantID snowflake.ID, limit int) ([]LedgerEntry, error)
}

var (
	ErrTenantNotFound      = errors.New("tenant_not_found")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidBucket       = errors.New("invalid_bucket")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrDebitNotFound       = errors.New("debit_not_found")
)
