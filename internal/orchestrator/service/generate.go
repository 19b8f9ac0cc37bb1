package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	creditsdomain "github.com/pulseform/pulseform/internal/credits/domain"
	jobsdomain "github.com/pulseform/pulseform/internal/jobs/domain"
	"github.com/pulseform/pulseform/internal/modelcost"
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	"github.com/pulseform/pulseform/internal/prompt"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	threaddomain "github.com/pulseform/pulseform/internal/thread/domain"
	usagelogdomain "github.com/pulseform/pulseform/internal/usagelog/domain"
	"go.uber.org/zap"
)

func (o *Orchestrator) QuickGenerate(ctx context.Context, req orchdomain.QuickGenerateRequest) (orchdomain.TaskHandle, error) {
	if strings.TrimSpace(req.Prompt) == "" || req.TenantID == 0 {
		return orchdomain.TaskHandle{}, orchdomain.ErrInvalidInput
	}
	op := usagelogdomain.OpQuickGenerate
	return o.enqueue(ctx, op, req.TenantID, req.UserID, nil, creditsdomain.CostOf(op), req, map[string]any{
		"prompt": req.Prompt,
	})
}

func (o *Orchestrator) GuidedGenerate(ctx context.Context, req orchdomain.GuidedGenerateRequest) (orchdomain.TaskHandle, error) {
	if req.TenantID == 0 || strings.TrimSpace(req.Industry) == "" || strings.TrimSpace(req.Goal) == "" {
		return orchdomain.TaskHandle{}, orchdomain.ErrInvalidInput
	}
	op := usagelogdomain.OpGuidedGenerate
	return o.enqueue(ctx, op, req.TenantID, req.UserID, nil, creditsdomain.CostOf(op), req, map[string]any{
		"industry":    req.Industry,
		"goal":        req.Goal,
		"tone_length": req.ToneLength,
	})
}

func (o *Orchestrator) EditSurvey(ctx context.Context, req orchdomain.EditSurveyRequest) (orchdomain.TaskHandle, error) {
	if req.TenantID == 0 || req.SurveyID == 0 || strings.TrimSpace(req.Instructions) == "" {
		return orchdomain.TaskHandle{}, orchdomain.ErrInvalidInput
	}
	if _, err := o.surveys.Get(ctx, req.SurveyID); err != nil {
		return orchdomain.TaskHandle{}, err
	}
	op := usagelogdomain.OpEditSurvey
	return o.enqueue(ctx, op, req.TenantID, req.UserID, &req.SurveyID, creditsdomain.CostOf(op), req, nil)
}

func (o *Orchestrator) RegenerateSurvey(ctx context.Context, req orchdomain.RegenerateRequest) (orchdomain.TaskHandle, error) {
	if req.TenantID == 0 || req.SurveyID == 0 || len(req.CurrentSurvey) == 0 {
		return orchdomain.TaskHandle{}, orchdomain.ErrInvalidInput
	}
	op := usagelogdomain.OpRegenerateSurvey
	return o.enqueue(ctx, op, req.TenantID, req.UserID, &req.SurveyID, creditsdomain.CostOf(op), req, nil)
}

func (o *Orchestrator) runQuickGenerate(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
	req, err := decodePayload[orchdomain.QuickGenerateRequest](job)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpQuickGenerate, err, nil)
	}

	promptText := prompt.QuickGenerate(req.Prompt)
	out, err := o.runOnNewThread(ctx, o.cfg.Assistant.QuickGenAssistantID, promptText)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpQuickGenerate, err, nil)
	}
	est := o.estimate(promptText, out)

	def, err := parseSurveyDef(out.Text)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpQuickGenerate, err, &est)
	}

	return o.storeGeneratedSurvey(ctx, job, est, def, usagelogdomain.SurveyGenerationRecord{
		Mode:   usagelogdomain.ModeQuick,
		Prompt: req.Prompt,
	})
}

func (o *Orchestrator) runGuidedGenerate(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
	req, err := decodePayload[orchdomain.GuidedGenerateRequest](job)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpGuidedGenerate, err, nil)
	}

	promptText := prompt.GuidedGenerate(req.Industry, req.Goal, req.Description, req.ToneLength)
	out, err := o.runOnNewThread(ctx, o.cfg.Assistant.GuidedGenAssistantID, promptText)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpGuidedGenerate, err, nil)
	}
	est := o.estimate(promptText, out)

	def, err := parseSurveyDef(out.Text)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpGuidedGenerate, err, &est)
	}

	return o.storeGeneratedSurvey(ctx, job, est, def, usagelogdomain.SurveyGenerationRecord{
		Mode:       usagelogdomain.ModeGuided,
		Prompt:     req.Description,
		Industry:   req.Industry,
		Goal:       req.Goal,
		ToneLength: req.ToneLength,
	})
}

func (o *Orchestrator) runEditSurvey(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
	req, err := decodePayload[orchdomain.EditSurveyRequest](job)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpEditSurvey, err, nil)
	}

	current, err := o.currentSurveyJSON(ctx, req.SurveyID)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpEditSurvey, err, nil)
	}

	promptText := prompt.SurveyEdit(current, req.Instructions)
	out, err := o.runOnBoundThread(ctx,
		threaddomain.ScopeSurveyEdit, req.SurveyID.String(),
		prompt.SurveyContext(current),
		o.cfg.Assistant.SurveyUpdateAssistantID, promptText)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpEditSurvey, err, nil)
	}
	est := o.estimate(promptText, out)

	def, err := parseSurveyDef(out.Text)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpEditSurvey, err, &est)
	}

	return o.replaceSurvey(ctx, job, est, req.SurveyID, def, usagelogdomain.ModeEdit, req.Instructions)
}

func (o *Orchestrator) runRegenerateSurvey(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
	req, err := decodePayload[orchdomain.RegenerateRequest](job)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpRegenerateSurvey, err, nil)
	}

	promptText := prompt.SurveyEdit(req.CurrentSurvey, req.Instructions)
	out, err := o.runOnBoundThread(ctx,
		threaddomain.ScopeSurveyEdit, req.SurveyID.String(),
		prompt.SurveyContext(req.CurrentSurvey),
		o.cfg.Assistant.SurveyUpdateAssistantID, promptText)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpRegenerateSurvey, err, nil)
	}
	est := o.estimate(promptText, out)

	def, err := parseSurveyDef(out.Text)
	if err != nil {
		return nil, o.failJob(job, usagelogdomain.OpRegenerateSurvey, err, &est)
	}

	return o.replaceSurvey(ctx, job, est, req.SurveyID, def, usagelogdomain.ModeRegenerate, req.Instructions)
}

func (o *Orchestrator) storeGeneratedSurvey(
	ctx context.Context,
	job jobsdomain.Job,
	est modelcost.Estimate,
	def surveydomain.SurveyDef,
	rec usagelogdomain.SurveyGenerationRecord,
) (json.RawMessage, error) {
	op := job.Kind
	survey, questions, err := o.surveys.Create(ctx, job.TenantID, def)
	if err != nil {
		return nil, o.failJob(job, op, err, &est)
	}

	rec.ID = o.genID.Generate()
	rec.UsageLogID = job.LogID
	rec.QuestionsGenerated = len(questions)
	rec.SurveyTitle = survey.Title
	if err := o.usage.RecordGeneration(ctx, rec); err != nil {
		o.log.Error("record generation", zap.Error(err))
	}

	return o.completeJob(job, est, generatedSurvey(survey, questions))
}

func (o *Orchestrator) replaceSurvey(
	ctx context.Context,
	job jobsdomain.Job,
	est modelcost.Estimate,
	surveyID snowflake.ID,
	def surveydomain.SurveyDef,
	mode, instructions string,
) (json.RawMessage, error) {
	op := job.Kind
	survey, questions, err := o.surveys.Replace(ctx, surveyID, def)
	if err != nil {
		return nil, o.failJob(job, op, err, &est)
	}

	rec := usagelogdomain.SurveyGenerationRecord{
		ID:                 o.genID.Generate(),
		UsageLogID:         job.LogID,
		Mode:               mode,
		Prompt:             instructions,
		QuestionsGenerated: len(questions),
		SurveyTitle:        survey.Title,
	}
	if err := o.usage.RecordGeneration(ctx, rec); err != nil {
		o.log.Error("record generation", zap.Error(err))
	}

	return o.completeJob(job, est, generatedSurvey(survey, questions))
}

func (o *Orchestrator) currentSurveyJSON(ctx context.Context, surveyID snowflake.ID) (json.RawMessage, error) {
	survey, err := o.surveys.Get(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	questions, err := o.surveys.ListQuestions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	defs := make([]surveydomain.QuestionDef, 0, len(questions))
	for _, q := range questions {
		defs = append(defs, surveydomain.DefFromQuestion(q))
	}
	return json.Marshal(surveydomain.SurveyDef{
		Title:       survey.Title,
		Description: survey.Description,
		Questions:   defs,
	})
}

func generatedSurvey(survey *surveydomain.Survey, questions []surveydomain.Question) orchdomain.GeneratedSurvey {
	defs := make([]surveydomain.QuestionDef, 0, len(questions))
	for _, q := range questions {
		defs = append(defs, surveydomain.DefFromQuestion(q))
	}
	return orchdomain.GeneratedSurvey{
		SurveyID:    survey.ID,
		Title:       survey.Title,
		Description: survey.Description,
		Questions:   defs,
	}
}
