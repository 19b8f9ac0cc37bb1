package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pulseform/pulseform/internal/clock"
	"github.com/pulseform/pulseform/internal/config"
	jobsdomain "github.com/pulseform/pulseform/internal/jobs/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testConfig(pollTimeout time.Duration) config.Config {
	return config.Config{
		Assistant: config.AssistantConfig{PollTimeout: pollTimeout},
		Jobs: config.JobsConfig{
			Workers:           1,
			EnqueueTimeout:    time.Second,
			RecoveryThreshold: 15 * time.Minute,
		},
	}
}

func setupQueue(t *testing.T, cfg config.Config, clk clock.Clock) (*Queue, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&jobsdomain.Job{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	queue := NewQueue(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Cfg:   cfg,
		GenID: node,
		Clock: clk,
	})
	return queue, db
}

func TestEnqueueAndProcessCompletesJob(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	queue, _ := setupQueue(t, testConfig(150*time.Second), clk)

	var gotPayload string
	queue.Register("echo", func(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
		var payload map[string]string
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, err
		}
		gotPayload = payload["prompt"]
		return json.RawMessage(`{"ok":true}`), nil
	})

	job, err := queue.Enqueue(context.Background(), jobsdomain.Spec{
		Kind:     "echo",
		TenantID: 1,
		UserID:   "u1",
		LogID:    2,
		Payload:  map[string]string{"prompt": "hello"},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.Status != jobsdomain.StatusQueued {
		t.Fatalf("status %q after enqueue", job.Status)
	}

	if !queue.ProcessOne(context.Background()) {
		t.Fatalf("ProcessOne found no work")
	}
	if gotPayload != "hello" {
		t.Fatalf("payload %q", gotPayload)
	}

	done, err := queue.Status(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if done.Status != jobsdomain.StatusCompleted {
		t.Fatalf("status %q, want completed", done.Status)
	}
	if string(done.Result) != `{"ok":true}` {
		t.Fatalf("result %s", done.Result)
	}
	if done.FinishedAt == nil {
		t.Fatalf("finished_at not set")
	}
}

func TestEnqueueUnknownKindIsRejected(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	queue, _ := setupQueue(t, testConfig(150*time.Second), clk)

	_, err := queue.Enqueue(context.Background(), jobsdomain.Spec{Kind: "nope", TenantID: 1})
	if !errors.Is(err, jobsdomain.ErrUnknownKind) {
		t.Fatalf("err %v, want ErrUnknownKind", err)
	}
}

func TestHandlerErrorFailsJobWithoutRetry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	queue, _ := setupQueue(t, testConfig(150*time.Second), clk)

	runs := 0
	queue.Register("boom", func(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
		runs++
		return nil, errors.New("model_failed")
	})

	job, err := queue.Enqueue(context.Background(), jobsdomain.Spec{Kind: "boom", TenantID: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	queue.ProcessOne(context.Background())
	if queue.ProcessOne(context.Background()) {
		t.Fatalf("failed job was re-run")
	}
	if runs != 1 {
		t.Fatalf("handler ran %d times", runs)
	}

	done, _ := queue.Status(context.Background(), job.ID)
	if done.Status != jobsdomain.StatusFailed {
		t.Fatalf("status %q, want failed", done.Status)
	}
	if done.Error != "model_failed" {
		t.Fatalf("error %q", done.Error)
	}
}

func TestCancelQueuedJobNeverRuns(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	queue, _ := setupQueue(t, testConfig(150*time.Second), clk)

	queue.Register("slow", func(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
		t.Fatalf("cancelled job executed")
		return nil, nil
	})

	job, err := queue.Enqueue(context.Background(), jobsdomain.Spec{Kind: "slow", TenantID: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := queue.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if queue.ProcessOne(context.Background()) {
		t.Fatalf("cancelled job was claimed")
	}
	done, _ := queue.Status(context.Background(), job.ID)
	if done.Status != jobsdomain.StatusCancelled {
		t.Fatalf("status %q, want cancelled", done.Status)
	}
}

func TestCancelRunningJobIsCooperative(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	queue, _ := setupQueue(t, testConfig(150*time.Second), clk)

	started := make(chan struct{})
	queue.Register("wait", func(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	job, err := queue.Enqueue(context.Background(), jobsdomain.Spec{Kind: "wait", TenantID: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	processed := make(chan struct{})
	go func() {
		queue.ProcessOne(context.Background())
		close(processed)
	}()

	<-started
	if err := queue.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	select {
	case <-processed:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not observe cancellation")
	}

	done, _ := queue.Status(context.Background(), job.ID)
	if done.Status != jobsdomain.StatusCancelled {
		t.Fatalf("status %q, want cancelled", done.Status)
	}
}

func TestWallClockBudgetFailsRunawayJob(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	// 50ms poll budget gives a 60ms job wall clock.
	queue, _ := setupQueue(t, testConfig(50*time.Millisecond), clk)

	queue.Register("runaway", func(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	job, err := queue.Enqueue(context.Background(), jobsdomain.Spec{Kind: "runaway", TenantID: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	queue.ProcessOne(context.Background())

	done, _ := queue.Status(context.Background(), job.ID)
	if done.Status != jobsdomain.StatusFailed {
		t.Fatalf("status %q, want failed", done.Status)
	}
	if done.Error != jobsdomain.ErrWallClockExceeded.Error() {
		t.Fatalf("error %q", done.Error)
	}
}

func TestRecoverStaleFailsAbandonedJobs(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	queue, db := setupQueue(t, testConfig(150*time.Second), clk)

	node, _ := snowflake.NewNode(2)
	staleStart := clk.Now().Add(-time.Hour)
	stale := jobsdomain.Job{
		ID:         node.Generate(),
		Kind:       "echo",
		Status:     jobsdomain.StatusRunning,
		TenantID:   1,
		EnqueuedAt: staleStart,
		StartedAt:  &staleStart,
		WorkerID:   "dead/1",
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("seed stale job: %v", err)
	}

	if err := queue.RecoverStale(context.Background()); err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}

	done, _ := queue.Status(context.Background(), stale.ID)
	if done.Status != jobsdomain.StatusFailed {
		t.Fatalf("status %q, want failed", done.Status)
	}
	if done.Error != "worker_lost" {
		t.Fatalf("error %q", done.Error)
	}
}

func TestJobsProcessInEnqueueOrder(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	queue, _ := setupQueue(t, testConfig(150*time.Second), clk)

	var order []string
	queue.Register("ordered", func(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
		var payload map[string]string
		_ = json.Unmarshal(job.Payload, &payload)
		order = append(order, payload["n"])
		return nil, nil
	})

	for i := 0; i < 3; i++ {
		if _, err := queue.Enqueue(context.Background(), jobsdomain.Spec{
			Kind:     "ordered",
			TenantID: 1,
			Payload:  map[string]string{"n": fmt.Sprintf("%d", i)},
		}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	for queue.ProcessOne(context.Background()) {
	}
	if len(order) != 3 || order[0] != "0" || order[1] != "1" || order[2] != "2" {
		t.Fatalf("order %v", order)
	}
}
