// Package service wires the AI operations end to end: credit check, usage
// log, queue, model run, parsing, persistence and notification.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pulseform/pulseform/internal/aijson"
	analyticsdomain "github.com/pulseform/pulseform/internal/analytics/domain"
	assistantdomain "github.com/pulseform/pulseform/internal/assistant/domain"
	"github.com/pulseform/pulseform/internal/clock"
	"github.com/pulseform/pulseform/internal/config"
	creditsdomain "github.com/pulseform/pulseform/internal/credits/domain"
	jobsdomain "github.com/pulseform/pulseform/internal/jobs/domain"
	"github.com/pulseform/pulseform/internal/modelcost"
	"github.com/pulseform/pulseform/internal/notify"
	obsmetrics "github.com/pulseform/pulseform/internal/observability/metrics"
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	threaddomain "github.com/pulseform/pulseform/internal/thread/domain"
	usagelogdomain "github.com/pulseform/pulseform/internal/usagelog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// proseExcerptLimit bounds the diagnostic attached to parse failures.
const proseExcerptLimit = 200

// defaultSurveyTitle is injected when the model omits a title.
const defaultSurveyTitle = "Generated Survey"

type Params struct {
	fx.In

	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
	Clock clock.Clock

	Credits      creditsdomain.Service
	Usage        usagelogdomain.Service
	Queue        jobsdomain.Queue
	Hub          *notify.Hub
	Threads      threaddomain.Registry
	Client       assistantdomain.Client
	Runner       assistantdomain.Runner
	Surveys      surveydomain.Repository
	Responses    surveydomain.ResponseRepository
	Preprocessor analyticsdomain.Preprocessor
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Orchestrator struct {
	log   *zap.Logger
	cfg   config.Config
	genID *snowflake.Node
	clock clock.Clock

	credits      creditsdomain.Service
	usage        usagelogdomain.Service
	queue        jobsdomain.Queue
	hub          *notify.Hub
	threads      threaddomain.Registry
	client       assistantdomain.Client
	runner       assistantdomain.Runner
	surveys      surveydomain.Repository
	responses    surveydomain.ResponseRepository
	preprocessor analyticsdomain.Preprocessor
	metrics      *obsmetrics.Metrics
}

func New(p Params) orchdomain.Service {
	o := &Orchestrator{
		log:          p.Log.Named("orchestrator"),
		cfg:          p.Cfg,
		genID:        p.GenID,
		clock:        p.Clock,
		credits:      p.Credits,
		usage:        p.Usage,
		queue:        p.Queue,
		hub:          p.Hub,
		threads:      p.Threads,
		client:       p.Client,
		runner:       p.Runner,
		surveys:      p.Surveys,
		responses:    p.Responses,
		preprocessor: p.Preprocessor,
		metrics:      p.Metrics,
	}

	o.queue.Register(usagelogdomain.OpQuickGenerate, o.runQuickGenerate)
	o.queue.Register(usagelogdomain.OpGuidedGenerate, o.runGuidedGenerate)
	o.queue.Register(usagelogdomain.OpEditSurvey, o.runEditSurvey)
	o.queue.Register(usagelogdomain.OpRegenerateSurvey, o.runRegenerateSurvey)
	o.queue.Register(usagelogdomain.OpGenerateInsights, o.runGenerateInsights)
	o.queue.Register(usagelogdomain.OpSyntheticResponses, o.runGenerateSynthetic)
	return o
}

func (o *Orchestrator) TaskStatus(ctx context.Context, taskID snowflake.ID) (orchdomain.TaskStatus, error) {
	job, err := o.queue.Status(ctx, taskID)
	if err != nil {
		return orchdomain.TaskStatus{}, err
	}
	status := orchdomain.TaskStatus{
		State: string(job.Status),
		Ready: job.Status.Terminal(),
	}
	if status.Ready {
		successful := job.Status == jobsdomain.StatusCompleted
		status.Successful = &successful
		status.Result = json.RawMessage(job.Result)
		status.Error = job.Error
	}
	return status, nil
}

func (o *Orchestrator) CancelTask(ctx context.Context, taskID snowflake.ID) error {
	return o.queue.Cancel(ctx, taskID)
}

// enqueue runs the shared front half of every asynchronous operation:
// affordability check, usage log, debit, processing event and durable
// enqueue. The debit lands before the job becomes claimable, so no run ever
// starts unpaid, and the processing event goes out before a worker can emit
// a terminal one.
func (o *Orchestrator) enqueue(
	ctx context.Context,
	op string,
	tenantID, userID snowflake.ID,
	surveyID *snowflake.ID,
	cost int64,
	payload any,
	extra map[string]any,
) (orchdomain.TaskHandle, error) {
	check, err := o.credits.Check(ctx, tenantID, cost)
	if err != nil {
		return orchdomain.TaskHandle{}, err
	}
	if !check.OK {
		return orchdomain.TaskHandle{}, creditsdomain.ErrInsufficientCredits
	}

	logID, err := o.usage.Begin(ctx, usagelogdomain.BeginParams{
		TenantID:      tenantID,
		UserID:        &userID,
		OperationType: op,
		SurveyID:      surveyID,
		CreditsCost:   cost,
		Extra:         extra,
	})
	if err != nil {
		return orchdomain.TaskHandle{}, err
	}

	debit, err := o.credits.Debit(ctx, tenantID, cost, debitReason(op, logID), userID.String())
	if err != nil || !debit.OK {
		if err == nil {
			err = creditsdomain.ErrInsufficientCredits
		}
		o.finalizeFailure(logID, err, nil)
		return orchdomain.TaskHandle{}, err
	}
	o.metrics.RecordCreditsDebited(ctx, op, cost)

	taskID := o.genID.Generate()
	o.hub.Publish(userID.String(), notify.Event{
		TaskID: taskID.String(),
		LogID:  logID.String(),
		Status: notify.StatusProcessing,
	})

	if _, err := o.queue.Enqueue(ctx, jobsdomain.Spec{
		ID:       taskID,
		Kind:     op,
		TenantID: tenantID,
		UserID:   userID.String(),
		LogID:    logID,
		Payload:  payload,
	}); err != nil {
		o.refundDebit(op, logID, tenantID)
		o.finalizeFailure(logID, err, nil)
		o.hub.Publish(userID.String(), notify.Event{
			TaskID:  taskID.String(),
			LogID:   logID.String(),
			Status:  notify.StatusFailed,
			Message: err.Error(),
		})
		return orchdomain.TaskHandle{}, err
	}
	return orchdomain.TaskHandle{TaskID: taskID, LogID: logID, Status: notify.StatusProcessing}, nil
}

// debitReason ties a debit to its usage log so a later refund can mirror the
// exact bucket split that debit took.
func debitReason(op string, logID snowflake.ID) string {
	return op + ":" + logID.String()
}

// refundDebit reverses the debit recorded for (op, logID). Each bucket gets
// back exactly what the debit took from it; a purchased credit spent on a
// failed run is never converted into an expiring monthly one.
func (o *Orchestrator) refundDebit(op string, logID, tenantID snowflake.ID) {
	reason := debitReason(op, logID)
	refunded, err := o.credits.RefundDebit(context.Background(), tenantID, reason, "refund:"+reason, "system")
	if err != nil {
		o.log.Error("refund failed",
			zap.String("log_id", logID.String()),
			zap.Error(err),
		)
		return
	}
	if refunded > 0 {
		o.metrics.RecordCreditsRefunded(context.Background(), op, refunded)
	}
}

// refundable reports whether a failed operation earns its credits back. Model
// failures are refunded; malformed model output is not, since the run itself
// was consumed.
func refundable(err error) bool {
	return errors.Is(err, assistantdomain.ErrRunTimeout) ||
		errors.Is(err, assistantdomain.ErrRunFailed) ||
		errors.Is(err, assistantdomain.ErrRunRequiresAction)
}

// failJob is the shared back half of a failed asynchronous phase: refund when
// warranted, finalize the log and push the failure event.
func (o *Orchestrator) failJob(job jobsdomain.Job, op string, runErr error, est *modelcost.Estimate) error {
	if refundable(runErr) {
		// The ledger entry carries the full charge, including per-respondent
		// synthetic batches, and its bucket split.
		o.refundDebit(op, job.LogID, job.TenantID)
	}
	o.metrics.RecordOperation(context.Background(), op, usagelogdomain.OutcomeFailure)
	o.finalizeFailure(job.LogID, runErr, est)
	o.hub.Publish(job.UserID, notify.Event{
		TaskID:  job.ID.String(),
		LogID:   job.LogID.String(),
		Status:  notify.StatusFailed,
		Message: runErr.Error(),
	})
	return runErr
}

// completeJob finalizes the log with the cost estimate and pushes the result.
func (o *Orchestrator) completeJob(job jobsdomain.Job, est modelcost.Estimate, result any) (json.RawMessage, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if err := o.usage.Finalize(context.Background(), job.LogID, usagelogdomain.FinalizeParams{
		Outcome:         usagelogdomain.OutcomeSuccess,
		ModelName:       est.Model,
		EstInputTokens:  &est.InputTokens,
		EstOutputTokens: &est.OutputTokens,
		CostUSD:         &est.CostUSD,
	}); err != nil {
		o.log.Error("finalize usage log", zap.String("log_id", job.LogID.String()), zap.Error(err))
	}
	o.metrics.RecordOperation(context.Background(), job.Kind, usagelogdomain.OutcomeSuccess)
	o.metrics.RecordModelTokens(context.Background(), est.Model, est.InputTokens, est.OutputTokens)
	o.hub.Publish(job.UserID, notify.Event{
		TaskID: job.ID.String(),
		LogID:  job.LogID.String(),
		Status: notify.StatusCompleted,
		Result: encoded,
	})
	return encoded, nil
}

func (o *Orchestrator) finalizeFailure(logID snowflake.ID, cause error, est *modelcost.Estimate) {
	params := usagelogdomain.FinalizeParams{
		Outcome:  usagelogdomain.OutcomeFailure,
		ErrorMsg: cause.Error(),
	}
	if est != nil {
		params.ModelName = est.Model
		params.EstInputTokens = &est.InputTokens
		params.EstOutputTokens = &est.OutputTokens
		params.CostUSD = &est.CostUSD
	}
	if err := o.usage.Finalize(context.Background(), logID, params); err != nil {
		o.log.Error("finalize usage log", zap.String("log_id", logID.String()), zap.Error(err))
	}
}

// runOnNewThread posts the prompt on a throwaway thread and runs it. Used by
// generation, which carries no conversational state.
func (o *Orchestrator) runOnNewThread(ctx context.Context, assistantID, promptText string) (assistantdomain.RunOutput, error) {
	threadID, err := o.client.CreateThread(ctx)
	if err != nil {
		return assistantdomain.RunOutput{}, err
	}
	if err := o.client.PostMessage(ctx, threadID, assistantdomain.RoleUser, promptText); err != nil {
		return assistantdomain.RunOutput{}, err
	}
	return o.runner.RunUntilComplete(ctx, threadID, assistantID, "")
}

// runOnBoundThread posts the prompt on the thread bound to (scope, key) and
// runs it. Message posting and run creation are serialized per binding; the
// seed text is posted once, when the binding is created.
func (o *Orchestrator) runOnBoundThread(ctx context.Context, scope threaddomain.Scope, key, seed, assistantID, promptText string) (assistantdomain.RunOutput, error) {
	unlock := o.threads.Lock(scope, key)
	defer unlock()

	threadID, created, err := o.threads.GetOrCreate(ctx, scope, key)
	if err != nil {
		return assistantdomain.RunOutput{}, err
	}
	if created && seed != "" {
		if err := o.client.PostMessage(ctx, threadID, assistantdomain.RoleUser, seed); err != nil {
			return assistantdomain.RunOutput{}, err
		}
	}
	if err := o.client.PostMessage(ctx, threadID, assistantdomain.RoleUser, promptText); err != nil {
		return assistantdomain.RunOutput{}, err
	}
	return o.runner.RunUntilComplete(ctx, threadID, assistantID, "")
}

// estimate prices a run, preferring service-reported token counts over the
// character heuristic.
func (o *Orchestrator) estimate(promptText string, out assistantdomain.RunOutput) modelcost.Estimate {
	model := out.Model
	if model == "" {
		model = o.cfg.Assistant.DefaultModel
	}
	if out.PromptTokens > 0 || out.CompletionTokens > 0 {
		return modelcost.FromTokens(out.PromptTokens, out.CompletionTokens, model)
	}
	return modelcost.EstimateText(promptText, out.Text, model)
}

func addEstimates(a, b modelcost.Estimate) modelcost.Estimate {
	a.InputTokens += b.InputTokens
	a.OutputTokens += b.OutputTokens
	a.CostUSD += b.CostUSD
	if a.Model == "" {
		a.Model = b.Model
	}
	return a
}

// parseSurveyDef recovers a survey definition from raw model text. Both the
// wrapped {"survey": {...}} and the bare {"title", ..., "questions"} shapes
// are accepted.
func parseSurveyDef(text string) (surveydomain.SurveyDef, error) {
	raw, ok := aijson.Extract(text)
	if !ok {
		return surveydomain.SurveyDef{}, &orchdomain.ParseError{Excerpt: aijson.Prose(text, proseExcerptLimit)}
	}

	var wrapper struct {
		Survey *surveydomain.SurveyDef `json:"survey"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Survey != nil && len(wrapper.Survey.Questions) > 0 {
		return sanitizeSurveyDef(*wrapper.Survey), nil
	}

	var def surveydomain.SurveyDef
	if err := json.Unmarshal(raw, &def); err != nil || len(def.Questions) == 0 {
		return surveydomain.SurveyDef{}, orchdomain.ErrSchemaViolation
	}
	return sanitizeSurveyDef(def), nil
}

func sanitizeSurveyDef(def surveydomain.SurveyDef) surveydomain.SurveyDef {
	if strings.TrimSpace(def.Title) == "" {
		def.Title = defaultSurveyTitle
	}
	for i, q := range def.Questions {
		def.Questions[i] = sanitizeQuestionDef(q)
	}
	return def
}

// sanitizeQuestionDef drops the fields the question's type forbids, so a
// model slip (options on an nps question, stale rating bounds after a type
// change) never reaches storage.
func sanitizeQuestionDef(def surveydomain.QuestionDef) surveydomain.QuestionDef {
	keepOptions := surveydomain.IsChoiceType(def.QuestionType)
	keepScale := def.QuestionType == surveydomain.TypeScale
	keepRating := def.QuestionType == surveydomain.TypeRating
	keepGrid := def.QuestionType == surveydomain.TypeStarRatingGrid || def.QuestionType == surveydomain.TypeRadioGrid
	keepRanking := def.QuestionType == surveydomain.TypeRanking

	if !keepOptions {
		def.Options = nil
	}
	if !keepScale {
		def.ScalePoints = nil
	}
	if !keepRating {
		def.RatingStart, def.RatingEnd, def.RatingStep = nil, nil, nil
		def.LeftLabel, def.RightLabel = "", ""
	}
	if !keepGrid {
		def.GridRows, def.GridColumns = nil, nil
	}
	if !keepRanking {
		def.RankingItems = nil
	}
	return def
}

func decodePayload[T any](job jobsdomain.Job) (T, error) {
	var payload T
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
