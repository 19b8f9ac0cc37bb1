package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pulseform/pulseform/internal/aijson"
	creditsdomain "github.com/pulseform/pulseform/internal/credits/domain"
	"github.com/pulseform/pulseform/internal/modelcost"
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	"github.com/pulseform/pulseform/internal/prompt"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	threaddomain "github.com/pulseform/pulseform/internal/thread/domain"
	usagelogdomain "github.com/pulseform/pulseform/internal/usagelog/domain"
)

// EditQuestion rewrites one question synchronously: the interaction is
// conversational and the caller waits for the updated object.
func (o *Orchestrator) EditQuestion(ctx context.Context, req orchdomain.EditQuestionRequest) (json.RawMessage, error) {
	if req.TenantID == 0 || len(req.Original) == 0 || strings.TrimSpace(req.Prompt) == "" {
		return nil, orchdomain.ErrInvalidInput
	}

	op := usagelogdomain.OpEditQuestion
	cost := creditsdomain.CostOf(op)
	logID, err := o.beginSync(ctx, op, req.TenantID, req.UserID, req.SurveyID, cost)
	if err != nil {
		return nil, err
	}

	scope, key := conversationBinding(req.SurveyID)
	promptText := prompt.EditQuestion(req.Original, req.Prompt)
	out, err := o.runOnBoundThread(ctx, scope, key, "", o.cfg.Assistant.SurveyUpdateAssistantID, promptText)
	if err != nil {
		o.finalizeFailure(logID, err, nil)
		return nil, err
	}
	est := o.estimate(promptText, out)

	def, err := parseQuestionDef(out.Text)
	if err != nil {
		o.finalizeFailure(logID, err, &est)
		return nil, err
	}

	updated, err := json.Marshal(def)
	if err != nil {
		o.finalizeFailure(logID, err, &est)
		return nil, err
	}
	if err := o.settleSync(ctx, op, req.TenantID, req.UserID, logID, cost, est); err != nil {
		return nil, err
	}
	return updated, nil
}

// Continue handles one conversational turn synchronously. A reply without a
// recoverable JSON object is treated as plain prose rather than a failure.
func (o *Orchestrator) Continue(ctx context.Context, req orchdomain.ConversationRequest) (orchdomain.ConversationResult, error) {
	if req.TenantID == 0 || strings.TrimSpace(req.Prompt) == "" {
		return orchdomain.ConversationResult{}, orchdomain.ErrInvalidInput
	}

	op := usagelogdomain.OpConversation
	cost := creditsdomain.CostOf(op)
	logID, err := o.beginSync(ctx, op, req.TenantID, req.UserID, req.SurveyID, cost)
	if err != nil {
		return orchdomain.ConversationResult{}, err
	}

	scope, key := conversationBinding(req.SurveyID)
	var seed string
	if len(req.CurrentSurvey) > 0 {
		seed = prompt.SurveyContext(req.CurrentSurvey)
	}
	promptText := prompt.Conversation(req.Prompt, req.CurrentSurvey)
	out, err := o.runOnBoundThread(ctx, scope, key, seed, o.cfg.Assistant.ChatAssistantID, promptText)
	if err != nil {
		o.finalizeFailure(logID, err, nil)
		return orchdomain.ConversationResult{}, err
	}
	est := o.estimate(promptText, out)

	result := parseConversation(out.Text)
	if err := o.settleSync(ctx, op, req.TenantID, req.UserID, logID, cost, est); err != nil {
		return orchdomain.ConversationResult{}, err
	}
	return result, nil
}

// ResetConversation drops the generic chat binding so the next turn opens a
// fresh thread. Per-survey threads are unaffected.
func (o *Orchestrator) ResetConversation(ctx context.Context) error {
	_, err := o.threads.ResetGeneric(ctx)
	return err
}

func (o *Orchestrator) beginSync(ctx context.Context, op string, tenantID, userID snowflake.ID, surveyID *snowflake.ID, cost int64) (snowflake.ID, error) {
	check, err := o.credits.Check(ctx, tenantID, cost)
	if err != nil {
		return 0, err
	}
	if !check.OK {
		return 0, creditsdomain.ErrInsufficientCredits
	}
	return o.usage.Begin(ctx, usagelogdomain.BeginParams{
		TenantID:      tenantID,
		UserID:        &userID,
		OperationType: op,
		SurveyID:      surveyID,
		CreditsCost:   cost,
	})
}

// settleSync debits and finalizes a successful synchronous operation.
func (o *Orchestrator) settleSync(ctx context.Context, op string, tenantID, userID snowflake.ID, logID snowflake.ID, cost int64, est modelcost.Estimate) error {
	debit, err := o.credits.Debit(ctx, tenantID, cost, op, userID.String())
	if err != nil {
		o.finalizeFailure(logID, err, &est)
		return err
	}
	if !debit.OK {
		o.finalizeFailure(logID, creditsdomain.ErrInsufficientCredits, &est)
		return creditsdomain.ErrInsufficientCredits
	}
	return o.usage.Finalize(ctx, logID, usagelogdomain.FinalizeParams{
		Outcome:         usagelogdomain.OutcomeSuccess,
		ModelName:       est.Model,
		EstInputTokens:  &est.InputTokens,
		EstOutputTokens: &est.OutputTokens,
		CostUSD:         &est.CostUSD,
	})
}

// conversationBinding picks the per-survey thread when a survey is in play
// and the shared generic thread otherwise.
func conversationBinding(surveyID *snowflake.ID) (threaddomain.Scope, string) {
	if surveyID != nil && *surveyID != 0 {
		return threaddomain.ScopeSurveyEdit, surveyID.String()
	}
	return threaddomain.ScopeGeneric, threaddomain.GenericKey
}

func parseQuestionDef(text string) (surveydomain.QuestionDef, error) {
	raw, ok := aijson.Extract(text)
	if !ok {
		return surveydomain.QuestionDef{}, &orchdomain.ParseError{Excerpt: aijson.Prose(text, proseExcerptLimit)}
	}

	var wrapper struct {
		Question *surveydomain.QuestionDef `json:"question"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Question != nil && wrapper.Question.QuestionType != "" {
		return validateQuestionDef(*wrapper.Question)
	}

	var def surveydomain.QuestionDef
	if err := json.Unmarshal(raw, &def); err != nil {
		return surveydomain.QuestionDef{}, orchdomain.ErrSchemaViolation
	}
	return validateQuestionDef(def)
}

func validateQuestionDef(def surveydomain.QuestionDef) (surveydomain.QuestionDef, error) {
	if def.QuestionType == "" || strings.TrimSpace(def.QuestionText) == "" {
		return surveydomain.QuestionDef{}, orchdomain.ErrSchemaViolation
	}
	allowed := false
	for _, t := range surveydomain.AllowedQuestionTypes {
		if def.QuestionType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return surveydomain.QuestionDef{}, orchdomain.ErrSchemaViolation
	}
	return sanitizeQuestionDef(def), nil
}

func parseConversation(text string) orchdomain.ConversationResult {
	raw, ok := aijson.Extract(text)
	if !ok {
		// Conversational prose without JSON is a valid reply, not a failure.
		return orchdomain.ConversationResult{ResponseText: strings.TrimSpace(text)}
	}

	var parsed struct {
		ResponseText  string                      `json:"response_text"`
		SurveyUpdates *surveydomain.SurveyUpdates `json:"survey_updates"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || (parsed.ResponseText == "" && parsed.SurveyUpdates == nil) {
		return orchdomain.ConversationResult{ResponseText: strings.TrimSpace(text)}
	}

	if parsed.SurveyUpdates != nil {
		for i, update := range parsed.SurveyUpdates.QuestionUpdates {
			parsed.SurveyUpdates.QuestionUpdates[i].UpdatedQuestion = sanitizeQuestionDef(update.UpdatedQuestion)
		}
		for i, q := range parsed.SurveyUpdates.NewQuestions {
			parsed.SurveyUpdates.NewQuestions[i] = sanitizeQuestionDef(q)
		}
	}
	return orchdomain.ConversationResult{
		ResponseText:  parsed.ResponseText,
		SurveyUpdates: parsed.SurveyUpdates,
	}
}
