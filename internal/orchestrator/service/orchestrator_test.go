package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsservice "github.com/pulseform/pulseform/internal/analytics/service"
	assistantdomain "github.com/pulseform/pulseform/internal/assistant/domain"
	"github.com/pulseform/pulseform/internal/clock"
	"github.com/pulseform/pulseform/internal/config"
	creditsdomain "github.com/pulseform/pulseform/internal/credits/domain"
	creditsservice "github.com/pulseform/pulseform/internal/credits/service"
	jobsdomain "github.com/pulseform/pulseform/internal/jobs/domain"
	jobsservice "github.com/pulseform/pulseform/internal/jobs/service"
	"github.com/pulseform/pulseform/internal/notify"
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	surveyrepository "github.com/pulseform/pulseform/internal/survey/repository"
	threaddomain "github.com/pulseform/pulseform/internal/thread/domain"
	threadservice "github.com/pulseform/pulseform/internal/thread/service"
	usagelogdomain "github.com/pulseform/pulseform/internal/usagelog/domain"
	usagelogservice "github.com/pulseform/pulseform/internal/usagelog/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type scriptedRun struct {
	out assistantdomain.RunOutput
	err error
}

// modelStub plays both the assistant client and the runner with a scripted
// reply queue.
type modelStub struct {
	mu      sync.Mutex
	threads int
	posted  map[string][]string
	script  []scriptedRun
}

func newModelStub() *modelStub {
	return &modelStub{posted: make(map[string][]string)}
}

func (m *modelStub) reply(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptedRun{out: assistantdomain.RunOutput{Text: text, Model: "gpt-4o"}})
}

func (m *modelStub) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptedRun{err: err})
}

func (m *modelStub) CreateThread(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads++
	return fmt.Sprintf("thread_%d", m.threads), nil
}

func (m *modelStub) PostMessage(ctx context.Context, threadID, role, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted[threadID] = append(m.posted[threadID], text)
	return nil
}

func (m *modelStub) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (string, error) {
	return "run_1", nil
}

func (m *modelStub) RetrieveRun(ctx context.Context, threadID, runID string) (assistantdomain.RunState, error) {
	return assistantdomain.RunState{ID: runID, Status: assistantdomain.RunStatusCompleted}, nil
}

func (m *modelStub) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	return "", nil
}

func (m *modelStub) CancelRun(ctx context.Context, threadID, runID string) error { return nil }

func (m *modelStub) RunUntilComplete(ctx context.Context, threadID, assistantID, instructions string) (assistantdomain.RunOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.script) == 0 {
		return assistantdomain.RunOutput{}, errors.New("no scripted reply left")
	}
	next := m.script[0]
	m.script = m.script[1:]
	return next.out, next.err
}

type env struct {
	orch      orchdomain.Service
	queue     *jobsservice.Queue
	db        *gorm.DB
	credits   creditsdomain.Service
	usage     usagelogdomain.Service
	hub       *notify.Hub
	model     *modelStub
	surveys   surveydomain.Repository
	responses surveydomain.ResponseRepository
	clk       *clock.FakeClock
	node      *snowflake.Node
}

func setupEnv(t *testing.T) *env {
	return setupEnvWith(t, nil)
}

func setupEnvWith(t *testing.T, tune func(*config.Config)) *env {
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

	if err := db.AutoMigrate(
		&creditsdomain.TenantCredits{}, &creditsdomain.LedgerEntry{},
		&usagelogdomain.UsageLog{}, &usagelogdomain.SurveyGenerationRecord{}, &usagelogdomain.AnalyticsGenerationRecord{},
		&jobsdomain.Job{}, &threaddomain.Binding{},
		&surveydomain.Survey{}, &surveydomain.Question{}, &surveydomain.Submission{}, &surveydomain.Answer{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	cfg := config.Config{
		Assistant: config.AssistantConfig{
			DefaultModel: "gpt-4o",
			PollInterval: 2 * time.Second,
			PollTimeout:  150 * time.Second,
		},
		Jobs: config.JobsConfig{
			Workers:           1,
			EnqueueTimeout:    time.Second,
			RecoveryThreshold: 15 * time.Minute,
		},
		Credits: config.CreditsConfig{CycleMonths: 1},
		Analytics: config.AnalyticsConfig{
			OpenEndedSkipBelow:    30,
			OpenEndedCautionBelow: 100,
			QuantSkipBelow:        50,
			QuantCautionBelow:     200,
		},
	}
	if tune != nil {
		tune(&cfg)
	}

	model := newModelStub()
	credits := creditsservice.NewService(creditsservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Cfg: cfg})
	usage := usagelogservice.NewService(usagelogservice.Params{DB: db, Log: log, GenID: node, Clock: clk})
	queue := jobsservice.NewQueue(jobsservice.Params{DB: db, Log: log, Cfg: cfg, GenID: node, Clock: clk})
	threads := threadservice.NewRegistry(threadservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Client: model})
	surveys := surveyrepository.New(surveyrepository.Params{DB: db, Log: log, GenID: node, Clock: clk})
	responses := surveyrepository.NewResponses(surveyrepository.Params{DB: db, Log: log, GenID: node, Clock: clk})
	pre := analyticsservice.NewPreprocessor(analyticsservice.Params{Log: log, Cfg: cfg, Surveys: surveys, Responses: responses})
	hub := notify.NewHub()

	orch := New(Params{
		Log:          log,
		Cfg:          cfg,
		GenID:        node,
		Clock:        clk,
		Credits:      credits,
		Usage:        usage,
		Queue:        queue,
		Hub:          hub,
		Threads:      threads,
		Client:       model,
		Runner:       model,
		Surveys:      surveys,
		Responses:    responses,
		Preprocessor: pre,
	})

	return &env{
		orch:      orch,
		queue:     queue,
		db:        db,
		credits:   credits,
		usage:     usage,
		hub:       hub,
		model:     model,
		surveys:   surveys,
		responses: responses,
		clk:       clk,
		node:      node,
	}
}

func (e *env) seedTenant(t *testing.T, quota int64) snowflake.ID {
	t.Helper()
	tenantID := e.node.Generate()
	if err := e.credits.Ensure(context.Background(), tenantID, "growth", quota); err != nil {
		t.Fatalf("ensure tenant: %v", err)
	}
	return tenantID
}

func (e *env) balances(t *testing.T, tenantID snowflake.ID) (int64, int64) {
	t.Helper()
	row, err := e.credits.Get(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("get credits: %v", err)
	}
	return row.CreditsMonthly, row.CreditsPurchased
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	for e.queue.ProcessOne(context.Background()) {
	}
}

const quickSurveyReply = "```json\n" + `{
  "title": "",
  "description": "Post-redesign checkout satisfaction",
  "questions": [
    {"question_type": "rating", "question_text": "How satisfied are you with the new checkout?", "rating_start": 1, "rating_end": 5},
    {"question_type": "single-choice", "question_text": "Did you complete your purchase?", "options": ["Yes", "No"]},
    {"question_type": "nps", "question_text": "How likely are you to recommend us?", "options": ["should", "be", "dropped"]},
    {"question_type": "open-ended", "question_text": "Anything else?"}
  ]
}` + "\n```"

func TestQuickGenerateEndToEnd(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)
	userID := e.node.Generate()

	sub, _, err := e.hub.Subscribe(userID.String())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	e.model.reply(quickSurveyReply)

	handle, err := e.orch.QuickGenerate(ctx, orchdomain.QuickGenerateRequest{
		TenantID: tenantID,
		UserID:   userID,
		Prompt:   "Customer satisfaction after a checkout redesign",
	})
	if err != nil {
		t.Fatalf("QuickGenerate: %v", err)
	}
	if handle.Status != notify.StatusProcessing {
		t.Fatalf("handle status %q", handle.Status)
	}

	first := <-sub.Events()
	if first.Status != notify.StatusProcessing || first.TaskID != handle.TaskID.String() {
		t.Fatalf("unexpected first event: %+v", first)
	}

	e.drain(t)

	monthly, purchased := e.balances(t, tenantID)
	if monthly != 99 || purchased != 0 {
		t.Fatalf("balances %d/%d, want 99/0", monthly, purchased)
	}

	status, err := e.orch.TaskStatus(ctx, handle.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	if !status.Ready || status.Successful == nil || !*status.Successful {
		t.Fatalf("task not successful: %+v", status)
	}

	var result orchdomain.GeneratedSurvey
	if err := json.Unmarshal(status.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Title == "" {
		t.Fatalf("missing synthesized title")
	}
	if n := len(result.Questions); n < 3 || n > 10 {
		t.Fatalf("question count %d outside [3,10]", n)
	}
	for _, q := range result.Questions {
		if q.QuestionType == surveydomain.TypeNPS && len(q.Options) != 0 {
			t.Fatalf("options survived on nps question")
		}
	}

	second := <-sub.Events()
	if second.Status != notify.StatusCompleted {
		t.Fatalf("second event status %q", second.Status)
	}

	logRow, err := e.usage.Get(ctx, handle.LogID)
	if err != nil {
		t.Fatalf("usage log: %v", err)
	}
	if logRow.Outcome != usagelogdomain.OutcomeSuccess {
		t.Fatalf("log outcome %q", logRow.Outcome)
	}
	if logRow.CreditsCost != 1 {
		t.Fatalf("log credits cost %d", logRow.CreditsCost)
	}

	var rec usagelogdomain.SurveyGenerationRecord
	if err := e.db.First(&rec, "usage_log_id = ?", handle.LogID).Error; err != nil {
		t.Fatalf("generation record: %v", err)
	}
	if rec.Mode != usagelogdomain.ModeQuick || rec.QuestionsGenerated != 4 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestQuickGenerateInsufficientCreditsIsSynchronous(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 0)

	_, err := e.orch.QuickGenerate(ctx, orchdomain.QuickGenerateRequest{
		TenantID: tenantID,
		UserID:   e.node.Generate(),
		Prompt:   "anything",
	})
	if !errors.Is(err, creditsdomain.ErrInsufficientCredits) {
		t.Fatalf("err %v, want ErrInsufficientCredits", err)
	}

	var logs int64
	e.db.Model(&usagelogdomain.UsageLog{}).Count(&logs)
	if logs != 0 {
		t.Fatalf("usage log written for refused operation")
	}
	var jobs int64
	e.db.Model(&jobsdomain.Job{}).Count(&jobs)
	if jobs != 0 {
		t.Fatalf("job enqueued for refused operation")
	}
}

func TestModelTimeoutRefundsDebit(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)
	userID := e.node.Generate()

	e.model.fail(assistantdomain.ErrRunTimeout)

	handle, err := e.orch.QuickGenerate(ctx, orchdomain.QuickGenerateRequest{
		TenantID: tenantID,
		UserID:   userID,
		Prompt:   "slow request",
	})
	if err != nil {
		t.Fatalf("QuickGenerate: %v", err)
	}
	e.drain(t)

	monthly, _ := e.balances(t, tenantID)
	if monthly != 100 {
		t.Fatalf("monthly %d after refund, want 100", monthly)
	}

	logRow, _ := e.usage.Get(ctx, handle.LogID)
	if logRow.Outcome != usagelogdomain.OutcomeFailure {
		t.Fatalf("log outcome %q", logRow.Outcome)
	}
	if !strings.Contains(logRow.ErrorMsg, "model_timeout") {
		t.Fatalf("log error %q", logRow.ErrorMsg)
	}

	status, _ := e.orch.TaskStatus(ctx, handle.TaskID)
	if status.State != string(jobsdomain.StatusFailed) {
		t.Fatalf("task state %q", status.State)
	}
}

func TestTimeoutRefundRestoresPurchasedBucket(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 0)
	if err := e.credits.Credit(ctx, tenantID, 5, "purchase", creditsdomain.BucketPurchased, "admin:1"); err != nil {
		t.Fatalf("grant purchased credits: %v", err)
	}

	e.model.fail(assistantdomain.ErrRunTimeout)

	if _, err := e.orch.QuickGenerate(ctx, orchdomain.QuickGenerateRequest{
		TenantID: tenantID,
		UserID:   e.node.Generate(),
		Prompt:   "slow request",
	}); err != nil {
		t.Fatalf("QuickGenerate: %v", err)
	}
	e.drain(t)

	monthly, purchased := e.balances(t, tenantID)
	if monthly != 0 || purchased != 5 {
		t.Fatalf("balances %d/%d after refund, want 0/5", monthly, purchased)
	}

	// The refunded paid credit must survive the next cycle reset.
	e.clk.Advance(32 * 24 * time.Hour)
	if _, err := e.credits.Available(ctx, tenantID); err != nil {
		t.Fatalf("available: %v", err)
	}
	monthly, purchased = e.balances(t, tenantID)
	if monthly != 0 || purchased != 5 {
		t.Fatalf("balances %d/%d after rollover, want 0/5", monthly, purchased)
	}
}

func TestDebitAppliedBeforeWorkerRuns(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)

	e.model.reply(quickSurveyReply)

	handle, err := e.orch.QuickGenerate(ctx, orchdomain.QuickGenerateRequest{
		TenantID: tenantID,
		UserID:   e.node.Generate(),
		Prompt:   "checkout satisfaction",
	})
	if err != nil {
		t.Fatalf("QuickGenerate: %v", err)
	}

	// Not drained yet: the job is still queued but already paid for.
	status, err := e.orch.TaskStatus(ctx, handle.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	if status.State != string(jobsdomain.StatusQueued) {
		t.Fatalf("task state %q before drain", status.State)
	}
	monthly, _ := e.balances(t, tenantID)
	if monthly != 99 {
		t.Fatalf("monthly %d before the run, want 99", monthly)
	}

	e.drain(t)
}

func TestEnqueueFailureRefundsDebit(t *testing.T) {
	e := setupEnvWith(t, func(cfg *config.Config) {
		cfg.Jobs.EnqueueTimeout = -time.Nanosecond
	})
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)
	userID := e.node.Generate()

	sub, _, err := e.hub.Subscribe(userID.String())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	_, err = e.orch.QuickGenerate(ctx, orchdomain.QuickGenerateRequest{
		TenantID: tenantID,
		UserID:   userID,
		Prompt:   "doomed request",
	})
	if !errors.Is(err, jobsdomain.ErrEnqueueTimeout) {
		t.Fatalf("err %v, want ErrEnqueueTimeout", err)
	}

	monthly, _ := e.balances(t, tenantID)
	if monthly != 100 {
		t.Fatalf("monthly %d after failed enqueue, want 100", monthly)
	}

	var jobs int64
	e.db.Model(&jobsdomain.Job{}).Count(&jobs)
	if jobs != 0 {
		t.Fatalf("job persisted despite enqueue failure")
	}

	var entries int64
	e.db.Model(&creditsdomain.LedgerEntry{}).Where("tenant_id = ?", tenantID).Count(&entries)
	if entries != 2 {
		t.Fatalf("ledger entries %d, want debit plus refund", entries)
	}

	var logRow usagelogdomain.UsageLog
	if err := e.db.First(&logRow, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("usage log: %v", err)
	}
	if logRow.Outcome != usagelogdomain.OutcomeFailure {
		t.Fatalf("log outcome %q", logRow.Outcome)
	}

	first := <-sub.Events()
	second := <-sub.Events()
	if first.Status != notify.StatusProcessing {
		t.Fatalf("first event %q, want processing", first.Status)
	}
	if second.Status != notify.StatusFailed {
		t.Fatalf("second event %q, want failed", second.Status)
	}
}

func TestParseFailureKeepsDebitAndCarriesExcerpt(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)

	prose := strings.Repeat("I would love to help with that survey! ", 10)
	e.model.reply(prose)

	handle, err := e.orch.QuickGenerate(ctx, orchdomain.QuickGenerateRequest{
		TenantID: tenantID,
		UserID:   e.node.Generate(),
		Prompt:   "prose only",
	})
	if err != nil {
		t.Fatalf("QuickGenerate: %v", err)
	}
	e.drain(t)

	// Malformed output is not refunded: the model run was consumed.
	monthly, _ := e.balances(t, tenantID)
	if monthly != 99 {
		t.Fatalf("monthly %d, want 99", monthly)
	}

	logRow, _ := e.usage.Get(ctx, handle.LogID)
	if logRow.Outcome != usagelogdomain.OutcomeFailure {
		t.Fatalf("log outcome %q", logRow.Outcome)
	}
	if !strings.HasPrefix(logRow.ErrorMsg, "parse_failure: ") {
		t.Fatalf("log error %q", logRow.ErrorMsg)
	}
	excerpt := strings.TrimPrefix(logRow.ErrorMsg, "parse_failure: ")
	if len(excerpt) > 200 {
		t.Fatalf("excerpt length %d exceeds 200", len(excerpt))
	}
}

func TestEditQuestionSyncSanitizesResult(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)

	// The reply keeps stale choice fields after the type change; they must
	// not survive.
	e.model.reply(`{
		"question_type": "scale",
		"question_text": "How much do you agree?",
		"scale_points": ["Strongly disagree", "Disagree", "Neutral", "Agree", "Strongly agree"],
		"options": ["a", "b", "c"],
		"rating_start": 1,
		"rating_end": 5
	}`)

	original := json.RawMessage(`{"question_type":"single-choice","question_text":"Pick one","options":["a","b","c"]}`)
	updated, err := e.orch.EditQuestion(ctx, orchdomain.EditQuestionRequest{
		TenantID: tenantID,
		UserID:   e.node.Generate(),
		Original: original,
		Prompt:   "turn into a 5-point agreement scale",
	})
	if err != nil {
		t.Fatalf("EditQuestion: %v", err)
	}

	var def surveydomain.QuestionDef
	if err := json.Unmarshal(updated, &def); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if def.QuestionType != surveydomain.TypeScale {
		t.Fatalf("type %q, want scale", def.QuestionType)
	}
	if len(def.ScalePoints) != 5 {
		t.Fatalf("scale points %d, want 5", len(def.ScalePoints))
	}
	if def.Options != nil || def.RatingStart != nil || def.RatingEnd != nil || def.RatingStep != nil {
		t.Fatalf("forbidden fields survived: %+v", def)
	}

	monthly, _ := e.balances(t, tenantID)
	if monthly != 99 {
		t.Fatalf("monthly %d, want 99", monthly)
	}
}

func TestContinueConversationPlainProseIsNotAFailure(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)

	e.model.reply("Sure! I can add an NPS question. Want me to place it at the end?")

	result, err := e.orch.Continue(ctx, orchdomain.ConversationRequest{
		TenantID: tenantID,
		UserID:   e.node.Generate(),
		Prompt:   "can you add an NPS question?",
	})
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if result.SurveyUpdates != nil {
		t.Fatalf("unexpected updates: %+v", result.SurveyUpdates)
	}
	if !strings.Contains(result.ResponseText, "NPS question") {
		t.Fatalf("response text %q", result.ResponseText)
	}
}

func TestContinueConversationParsesBoundedUpdates(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)

	e.model.reply(`{
		"response_text": "Added an NPS question at the end.",
		"survey_updates": {
			"new_questions": [
				{"question_type": "nps", "question_text": "How likely are you to recommend us?", "options": ["drop", "me"]}
			]
		}
	}`)

	result, err := e.orch.Continue(ctx, orchdomain.ConversationRequest{
		TenantID:      tenantID,
		UserID:        e.node.Generate(),
		Prompt:        "add an NPS question",
		CurrentSurvey: json.RawMessage(`{"title":"CSAT","questions":[]}`),
	})
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if result.SurveyUpdates == nil || len(result.SurveyUpdates.NewQuestions) != 1 {
		t.Fatalf("updates missing: %+v", result.SurveyUpdates)
	}
	q := result.SurveyUpdates.NewQuestions[0]
	if q.QuestionType != surveydomain.TypeNPS || q.Options != nil {
		t.Fatalf("new question not sanitized: %+v", q)
	}
}

func TestResetConversationStartsFreshThread(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)

	e.model.reply("Happy to help with your survey.")
	if _, err := e.orch.Continue(ctx, orchdomain.ConversationRequest{
		TenantID: tenantID,
		UserID:   e.node.Generate(),
		Prompt:   "hello",
	}); err != nil {
		t.Fatalf("Continue: %v", err)
	}

	if err := e.orch.ResetConversation(ctx); err != nil {
		t.Fatalf("ResetConversation: %v", err)
	}

	e.model.reply("Starting over, what should the survey cover?")
	if _, err := e.orch.Continue(ctx, orchdomain.ConversationRequest{
		TenantID: tenantID,
		UserID:   e.node.Generate(),
		Prompt:   "let's start again",
	}); err != nil {
		t.Fatalf("Continue after reset: %v", err)
	}

	e.model.mu.Lock()
	defer e.model.mu.Unlock()
	if e.model.threads != 2 {
		t.Fatalf("threads %d, want a fresh one after reset", e.model.threads)
	}
	if len(e.model.posted["thread_1"]) != 1 || len(e.model.posted["thread_2"]) != 1 {
		t.Fatalf("turns not split across threads: %v", e.model.posted)
	}
}
