package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pulseform/pulseform/internal/clock"
	"github.com/pulseform/pulseform/internal/config"
	jobsdomain "github.com/pulseform/pulseform/internal/jobs/domain"
	"github.com/pulseform/pulseform/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// pollEvery bounds how stale a wake-up can get when the in-process wake
// channel is missed, e.g. after a restart with queued rows on disk.
const pollEvery = time.Second

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
	Clock clock.Clock
}

// Queue is the gorm-backed durable queue. One claimed job runs to completion
// on one worker; there are no automatic retries.
type Queue struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.Config
	genID    *snowflake.Node
	clock    clock.Clock
	workerID string

	mu         sync.Mutex
	handlers   map[string]jobsdomain.Handler
	cancellers map[snowflake.ID]context.CancelFunc

	wake chan struct{}
}

func NewQueue(p Params) *Queue {
	host, _ := os.Hostname()
	return &Queue{
		db:         p.DB,
		log:        p.Log.Named("jobs.queue"),
		cfg:        p.Cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		workerID:   fmt.Sprintf("%s/%d", host, os.Getpid()),
		handlers:   make(map[string]jobsdomain.Handler),
		cancellers: make(map[snowflake.ID]context.CancelFunc),
		wake:       make(chan struct{}, 1),
	}
}

func (q *Queue) Register(kind string, handler jobsdomain.Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.handlers[kind]; exists {
		panic(jobsdomain.ErrDuplicateHandler)
	}
	q.handlers[kind] = handler
}

func (q *Queue) Enqueue(ctx context.Context, spec jobsdomain.Spec) (jobsdomain.Job, error) {
	q.mu.Lock()
	_, known := q.handlers[spec.Kind]
	q.mu.Unlock()
	if !known {
		return jobsdomain.Job{}, jobsdomain.ErrUnknownKind
	}

	payload, err := json.Marshal(spec.Payload)
	if err != nil {
		return jobsdomain.Job{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, q.cfg.Jobs.EnqueueTimeout)
	defer cancel()

	id := spec.ID
	if id == 0 {
		id = q.genID.Generate()
	}
	job := jobsdomain.Job{
		ID:         id,
		Kind:       spec.Kind,
		Status:     jobsdomain.StatusQueued,
		TenantID:   spec.TenantID,
		UserID:     spec.UserID,
		LogID:      spec.LogID,
		Payload:    datatypes.JSON(payload),
		EnqueuedAt: q.clock.Now(),
	}
	if err := q.db.WithContext(ctx).Create(&job).Error; err != nil {
		if ctx.Err() != nil {
			return jobsdomain.Job{}, jobsdomain.ErrEnqueueTimeout
		}
		return jobsdomain.Job{}, err
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return job, nil
}

func (q *Queue) Status(ctx context.Context, id snowflake.ID) (jobsdomain.Job, error) {
	var job jobsdomain.Job
	err := q.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return jobsdomain.Job{}, jobsdomain.ErrJobNotFound
	}
	if err != nil {
		return jobsdomain.Job{}, err
	}
	return job, nil
}

// Cancel flips the cancel flag. A queued job is cancelled in place; a running
// job's context is cancelled so the handler stops at its next phase boundary.
func (q *Queue) Cancel(ctx context.Context, id snowflake.ID) error {
	job, err := q.Status(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return jobsdomain.ErrJobFinished
	}

	now := q.clock.Now()
	if job.Status == jobsdomain.StatusQueued {
		result := q.db.WithContext(ctx).Model(&jobsdomain.Job{}).
			Where("id = ? AND status = ?", id, jobsdomain.StatusQueued).
			Updates(map[string]any{
				"status":           jobsdomain.StatusCancelled,
				"cancel_requested": true,
				"finished_at":      now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			return nil
		}
		// Claimed between the read and the update; fall through to the
		// running path.
	}

	if err := q.db.WithContext(ctx).Model(&jobsdomain.Job{}).
		Where("id = ?", id).
		Update("cancel_requested", true).Error; err != nil {
		return err
	}

	q.mu.Lock()
	cancel := q.cancellers[id]
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Run is the worker loop. It drains queued jobs, then sleeps until woken or
// the poll tick fires.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		for q.ProcessOne(ctx) {
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// ProcessOne claims and runs at most one queued job. Returns false when the
// queue was empty.
func (q *Queue) ProcessOne(ctx context.Context) bool {
	job, ok := q.claim(ctx)
	if !ok {
		return false
	}
	q.run(ctx, job)
	return true
}

func (q *Queue) claim(ctx context.Context) (jobsdomain.Job, bool) {
	var job jobsdomain.Job
	err := q.db.WithContext(ctx).
		Where("status = ?", jobsdomain.StatusQueued).
		Order("id").
		First(&job).Error
	if err != nil {
		return jobsdomain.Job{}, false
	}

	now := q.clock.Now()
	result := q.db.WithContext(ctx).Model(&jobsdomain.Job{}).
		Where("id = ? AND status = ?", job.ID, jobsdomain.StatusQueued).
		Updates(map[string]any{
			"status":     jobsdomain.StatusRunning,
			"started_at": now,
			"worker_id":  q.workerID,
		})
	if result.Error != nil || result.RowsAffected == 0 {
		return jobsdomain.Job{}, false
	}
	job.Status = jobsdomain.StatusRunning
	job.StartedAt = &now
	job.WorkerID = q.workerID
	metrics.Jobs().ObserveQueueWait(job.Kind, now.Sub(job.EnqueuedAt))
	return job, true
}

func (q *Queue) run(parent context.Context, job jobsdomain.Job) {
	q.mu.Lock()
	handler := q.handlers[job.Kind]
	q.mu.Unlock()
	if handler == nil {
		q.finish(job.ID, jobsdomain.StatusFailed, nil, jobsdomain.ErrUnknownKind.Error())
		return
	}

	wallClock := q.cfg.Jobs.JobWallClock(q.cfg.Assistant.PollTimeout)
	ctx, cancel := context.WithTimeout(parent, wallClock)
	defer cancel()

	q.mu.Lock()
	q.cancellers[job.ID] = cancel
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.cancellers, job.ID)
		q.mu.Unlock()
	}()

	// A cancel request may have landed while the job sat in the queue.
	if job.CancelRequested || q.cancelRequested(ctx, job.ID) {
		q.finish(job.ID, jobsdomain.StatusCancelled, nil, jobsdomain.ErrJobCancelled.Error())
		return
	}

	log := q.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("kind", job.Kind),
	)
	log.Info("job started")
	started := q.clock.Now()

	result, err := handler(ctx, job)
	switch {
	case err == nil:
		q.finish(job.ID, jobsdomain.StatusCompleted, result, "")
		log.Info("job completed")
		metrics.Jobs().IncJobRun(job.Kind, string(jobsdomain.StatusCompleted))
	case ctx.Err() != nil && q.cancelRequested(context.Background(), job.ID):
		q.finish(job.ID, jobsdomain.StatusCancelled, nil, jobsdomain.ErrJobCancelled.Error())
		log.Info("job cancelled")
		metrics.Jobs().IncJobRun(job.Kind, string(jobsdomain.StatusCancelled))
	case ctx.Err() == context.DeadlineExceeded:
		q.finish(job.ID, jobsdomain.StatusFailed, nil, jobsdomain.ErrWallClockExceeded.Error())
		log.Warn("job exceeded wall clock", zap.Duration("budget", wallClock))
		metrics.Jobs().IncJobRun(job.Kind, string(jobsdomain.StatusFailed))
		metrics.Jobs().IncJobError(job.Kind, context.DeadlineExceeded)
	default:
		q.finish(job.ID, jobsdomain.StatusFailed, nil, err.Error())
		log.Warn("job failed", zap.Error(err))
		metrics.Jobs().IncJobRun(job.Kind, string(jobsdomain.StatusFailed))
		metrics.Jobs().IncJobError(job.Kind, err)
	}
	metrics.Jobs().ObserveJobDuration(job.Kind, q.clock.Now().Sub(started))
}

func (q *Queue) cancelRequested(ctx context.Context, id snowflake.ID) bool {
	var requested bool
	err := q.db.WithContext(ctx).Model(&jobsdomain.Job{}).
		Where("id = ?", id).
		Pluck("cancel_requested", &requested).Error
	return err == nil && requested
}

func (q *Queue) finish(id snowflake.ID, status jobsdomain.Status, result json.RawMessage, errMsg string) {
	updates := map[string]any{
		"status":      status,
		"finished_at": q.clock.Now(),
		"error":       errMsg,
	}
	if result != nil {
		updates["result"] = datatypes.JSON(result)
	}
	// Finishing must not be lost to a cancelled job context.
	if err := q.db.Model(&jobsdomain.Job{}).
		Where("id = ? AND status = ?", id, jobsdomain.StatusRunning).
		Updates(updates).Error; err != nil {
		q.log.Error("finish job", zap.String("job_id", id.String()), zap.Error(err))
	}
}

// RecoverStale fails running jobs whose worker stopped reporting. Runs once
// at startup so a crashed worker's jobs do not stay running forever.
func (q *Queue) RecoverStale(ctx context.Context) error {
	cutoff := q.clock.Now().Add(-q.cfg.Jobs.RecoveryThreshold)
	result := q.db.WithContext(ctx).Model(&jobsdomain.Job{}).
		Where("status = ? AND started_at < ?", jobsdomain.StatusRunning, cutoff).
		Updates(map[string]any{
			"status":      jobsdomain.StatusFailed,
			"finished_at": q.clock.Now(),
			"error":       "worker_lost",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		q.log.Warn("recovered stale jobs", zap.Int64("count", result.RowsAffected))
	}
	return nil
}
