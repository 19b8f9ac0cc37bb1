// Package domain defines the narrow contract over the external assistant
// service. The rest of the system never imports the SDK directly.
package domain

import (
	"context"
	"errors"
)

// Message roles accepted by the assistant service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RunStatus is the lifecycle state reported by the assistant service for a run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
	RunStatusRequiresAction RunStatus = "requires_action"
)

// Terminal reports whether the run will make no further progress.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	default:
		return false
	}
}

// RunState is a point-in-time snapshot of a run.
type RunState struct {
	ID     string
	Status RunStatus
	Model  string

	// Token usage reported by the service. Zero until the run completes;
	// some providers omit it entirely.
	PromptTokens     int64
	CompletionTokens int64
}

// RunOutput is the single assistant reply produced by a completed run.
type RunOutput struct {
	Text             string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// Client is the capability set required of the wrapped assistant service.
type Client interface {
	CreateThread(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, threadID, role, text string) error
	CreateRun(ctx context.Context, threadID, assistantID, instructions string) (string, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (RunState, error)
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
	CancelRun(ctx context.Context, threadID, runID string) error
}

// Runner drives a run to completion and returns the reply.
type Runner interface {
	RunUntilComplete(ctx context.Context, threadID, assistantID, instructions string) (RunOutput, error)
}

var (
	ErrRunTimeout        = errors.New("model_timeout")
	ErrRunFailed         = errors.New("model_failed")
	ErrRunRequiresAction = errors.New("model_requires_action")
	ErrEmptyReply        = errors.New("model_empty_reply")
)
