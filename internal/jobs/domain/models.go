// Package domain defines the durable background job queue the AI operations
// run on. Handlers are registered per kind; jobs survive process restarts.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job will make no further progress.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is one durable unit of work.
type Job struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Kind            string         `gorm:"type:text;not null;index"`
	Status          Status         `gorm:"type:text;not null;index"`
	TenantID        snowflake.ID   `gorm:"not null;index"`
	UserID          string         `gorm:"type:text"`
	LogID           snowflake.ID   `gorm:"not null"`
	Payload         datatypes.JSON `gorm:"type:jsonb"`
	Result          datatypes.JSON `gorm:"type:jsonb"`
	Error           string         `gorm:"type:text"`
	CancelRequested bool           `gorm:"not null;default:false"`
	WorkerID        string         `gorm:"type:text"`
	EnqueuedAt      time.Time      `gorm:"not null"`
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// TableName sets the database table name.
func (Job) TableName() string { return "ai_jobs" }

// Spec describes a job to enqueue.
type Spec struct {
	// ID optionally pre-assigns the job id, letting callers reference the
	// task before the row is durable. Generated when zero.
	ID       snowflake.ID
	Kind     string
	TenantID snowflake.ID
	UserID   string
	LogID    snowflake.ID
	Payload  any
}

// Handler executes one job. The context carries the job wall-clock deadline
// and is cancelled on a cancel request; handlers must observe it between
// phases. The returned document becomes the job result.
type Handler func(ctx context.Context, job Job) (json.RawMessage, error)

// Queue is the durable queue contract.
type Queue interface {
	// Register binds a handler to a job kind. Must be called before the
	// workers start.
	Register(kind string, handler Handler)

	// Enqueue persists the job and wakes a worker. Bounded by the configured
	// enqueue timeout.
	Enqueue(ctx context.Context, spec Spec) (Job, error)

	// Status returns the current job row.
	Status(ctx context.Context, id snowflake.ID) (Job, error)

	// Cancel requests cooperative cancellation. Queued jobs are cancelled
	// immediately; running jobs observe the request at the next phase
	// boundary.
	Cancel(ctx context.Context, id snowflake.ID) error
}

var (
	ErrJobNotFound       = errors.New("job_not_found")
	ErrUnknownKind       = errors.New("unknown_job_kind")
	ErrJobFinished       = errors.New("job_already_finished")
	ErrJobCancelled      = errors.New("job_cancelled")
	ErrEnqueueTimeout    = errors.New("enqueue_timeout")
	ErrDuplicateHandler  = errors.New("duplicate_job_handler")
	ErrWallClockExceeded = errors.New("job_wall_clock_exceeded")
)
