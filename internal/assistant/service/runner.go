package service

import (
	"context"
	"time"

	"github.com/pulseform/pulseform/internal/assistant/domain"
	"github.com/pulseform/pulseform/internal/clock"
	"github.com/pulseform/pulseform/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Client domain.Client
	Log    *zap.Logger
	Clock  clock.Clock
	Cfg    config.Config
}

// Runner polls a run at a fixed cadence until it reaches a terminal state or
// the wall-clock budget is exhausted. The assistant is assumed to produce a
// single reply per run, so no backoff is applied.
type Runner struct {
	client       domain.Client
	log          *zap.Logger
	clock        clock.Clock
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewRunner(p Params) domain.Runner {
	return &Runner{
		client:       p.Client,
		log:          p.Log.Named("assistant.runner"),
		clock:        p.Clock,
		pollInterval: p.Cfg.Assistant.PollInterval,
		pollTimeout:  p.Cfg.Assistant.PollTimeout,
	}
}

func (r *Runner) RunUntilComplete(ctx context.Context, threadID, assistantID, instructions string) (domain.RunOutput, error) {
	runID, err := r.client.CreateRun(ctx, threadID, assistantID, instructions)
	if err != nil {
		return domain.RunOutput{}, err
	}

	deadline := r.clock.Now().Add(r.pollTimeout)
	var state domain.RunState

	for {
		state, err = r.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return domain.RunOutput{}, err
		}
		if state.Status == domain.RunStatusRequiresAction {
			// No tools are declared on any assistant, so a tool call can
			// never be serviced.
			r.cancelBestEffort(threadID, runID)
			return domain.RunOutput{}, domain.ErrRunRequiresAction
		}
		if state.Status.Terminal() {
			break
		}
		if r.clock.Now().After(deadline) {
			r.cancelBestEffort(threadID, runID)
			return domain.RunOutput{}, domain.ErrRunTimeout
		}

		select {
		case <-ctx.Done():
			r.cancelBestEffort(threadID, runID)
			return domain.RunOutput{}, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}

	if state.Status != domain.RunStatusCompleted {
		r.log.Warn("run ended without completion",
			zap.String("thread_id", threadID),
			zap.String("run_id", runID),
			zap.String("status", string(state.Status)),
		)
		return domain.RunOutput{}, domain.ErrRunFailed
	}

	text, err := r.client.LatestAssistantMessage(ctx, threadID)
	if err != nil {
		return domain.RunOutput{}, err
	}

	return domain.RunOutput{
		Text:             text,
		Model:            state.Model,
		PromptTokens:     state.PromptTokens,
		CompletionTokens: state.CompletionTokens,
	}, nil
}

func (r *Runner) cancelBestEffort(threadID, runID string) {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.CancelRun(cancelCtx, threadID, runID); err != nil {
		r.log.Debug("run cancel failed", zap.String("run_id", runID), zap.Error(err))
	}
}
