package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pulseform/pulseform/internal/assistant/domain"
	"github.com/pulseform/pulseform/internal/clock"
	"github.com/pulseform/pulseform/internal/config"
	"go.uber.org/zap"
)

type clientStub struct {
	mu        sync.Mutex
	statuses  []domain.RunStatus
	reply     string
	cancelled int
	onPoll    func()
}

func (c *clientStub) CreateThread(ctx context.Context) (string, error) { return "thread_1", nil }

func (c *clientStub) PostMessage(ctx context.Context, threadID, role, text string) error {
	return nil
}

func (c *clientStub) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (string, error) {
	return "run_1", nil
}

func (c *clientStub) RetrieveRun(ctx context.Context, threadID, runID string) (domain.RunState, error) {
	c.mu.Lock()
	status := c.statuses[0]
	if len(c.statuses) > 1 {
		c.statuses = c.statuses[1:]
	}
	c.mu.Unlock()
	if c.onPoll != nil {
		c.onPoll()
	}
	return domain.RunState{ID: runID, Status: status, Model: "gpt-4o", PromptTokens: 120, CompletionTokens: 60}, nil
}

func (c *clientStub) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	return c.reply, nil
}

func (c *clientStub) CancelRun(ctx context.Context, threadID, runID string) error {
	c.mu.Lock()
	c.cancelled++
	c.mu.Unlock()
	return nil
}

func newTestRunner(t *testing.T, stub *clientStub, clk clock.Clock, timeout time.Duration) domain.Runner {
	t.Helper()
	cfg := config.Config{}
	cfg.Assistant.PollInterval = time.Millisecond
	cfg.Assistant.PollTimeout = timeout
	return NewRunner(Params{Client: stub, Log: zap.NewNop(), Clock: clk, Cfg: cfg})
}

func TestRunUntilCompleteReturnsReply(t *testing.T) {
	stub := &clientStub{
		statuses: []domain.RunStatus{domain.RunStatusQueued, domain.RunStatusInProgress, domain.RunStatusCompleted},
		reply:    `{"survey":{"title":"Checkout feedback"}}`,
	}
	runner := newTestRunner(t, stub, clock.NewSystemClock(), time.Minute)

	out, err := runner.RunUntilComplete(context.Background(), "thread_1", "asst_1", "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Text != stub.reply {
		t.Fatalf("unexpected reply %q", out.Text)
	}
	if out.PromptTokens != 120 || out.CompletionTokens != 60 {
		t.Fatalf("expected reported usage, got %d/%d", out.PromptTokens, out.CompletionTokens)
	}
}

func TestRunUntilCompleteTimesOutAndCancels(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	stub := &clientStub{statuses: []domain.RunStatus{domain.RunStatusInProgress}}
	stub.onPoll = func() { fake.Advance(time.Minute) }
	runner := newTestRunner(t, stub, fake, 150*time.Second)

	_, err := runner.RunUntilComplete(context.Background(), "thread_1", "asst_1", "")
	if err != domain.ErrRunTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if stub.cancelled != 1 {
		t.Fatalf("expected best-effort cancel, got %d", stub.cancelled)
	}
}

func TestRunUntilCompleteFailsOnTerminalStatus(t *testing.T) {
	for _, status := range []domain.RunStatus{domain.RunStatusFailed, domain.RunStatusCancelled, domain.RunStatusExpired} {
		stub := &clientStub{statuses: []domain.RunStatus{status}}
		runner := newTestRunner(t, stub, clock.NewSystemClock(), time.Minute)
		if _, err := runner.RunUntilComplete(context.Background(), "t", "a", ""); err != domain.ErrRunFailed {
			t.Fatalf("status %s: expected ErrRunFailed, got %v", status, err)
		}
	}
}

func TestRunUntilCompleteRequiresActionIsFatal(t *testing.T) {
	stub := &clientStub{statuses: []domain.RunStatus{domain.RunStatusRequiresAction}}
	runner := newTestRunner(t, stub, clock.NewSystemClock(), time.Minute)
	if _, err := runner.RunUntilComplete(context.Background(), "t", "a", ""); err != domain.ErrRunRequiresAction {
		t.Fatalf("expected ErrRunRequiresAction, got %v", err)
	}
}
