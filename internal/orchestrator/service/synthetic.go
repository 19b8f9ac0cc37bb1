package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pulseform/pulseform/internal/aijson"
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

// maxSyntheticRespondents caps one batch; larger requests are split by the
// caller.
const maxSyntheticRespondents = 50

func (o *Orchestrator) GenerateSynthetic(ctx context.Context, req orchdomain.SyntheticRequest) (orchdomain.TaskHandle, error) {
	if req.TenantID == 0 || req.SurveyID == 0 || req.NumResponses < 1 || req.NumResponses > maxSyntheticRespondents {
		return orchdomain.TaskHandle{}, orchdomain.ErrInvalidInput
	}
	if _, err := o.surveys.Get(ctx, req.SurveyID); err != nil {
		return orchdomain.TaskHandle{}, err
	}
	op := usagelogdomain.OpSyntheticResponses
	cost := creditsdomain.CostOf(op) * int64(req.NumResponses)
	return o.enqueue(ctx, op, req.TenantID, req.UserID, &req.SurveyID, cost, req, map[string]any{
		"num_responses": req.NumResponses,
	})
}

func (o *Orchestrator) runGenerateSynthetic(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
	op := usagelogdomain.OpSyntheticResponses
	req, err := decodePayload[orchdomain.SyntheticRequest](job)
	if err != nil {
		return nil, o.failJob(job, op, err, nil)
	}

	survey, err := o.surveys.Get(ctx, req.SurveyID)
	if err != nil {
		return nil, o.failJob(job, op, err, nil)
	}
	questions, err := o.surveys.ListQuestions(ctx, req.SurveyID)
	if err != nil {
		return nil, o.failJob(job, op, err, nil)
	}

	// Simulated respondents converse on a private throwaway thread so the
	// role-play never leaks into shared conversational history.
	scope, key := threaddomain.ScopeSynthetic, job.ID.String()
	defer func() {
		if err := o.threads.Delete(context.Background(), scope, key); err != nil {
			o.log.Warn("discard synthetic thread", zap.Error(err))
		}
	}()

	summary := orchdomain.SyntheticSummary{}
	var est modelcost.Estimate

	for i := 1; i <= req.NumResponses; i++ {
		if ctx.Err() != nil {
			return nil, o.failJob(job, op, ctx.Err(), &est)
		}
		runEst, err := o.simulateRespondent(ctx, scope, key, survey, questions, i)
		est = addEstimates(est, runEst)
		detail := orchdomain.SyntheticDetail{Respondent: i, OK: err == nil}
		if err != nil {
			detail.Error = err.Error()
			summary.Failed++
		} else {
			summary.Successful++
		}
		summary.Details = append(summary.Details, detail)
	}

	o.metrics.RecordSyntheticRespondents(ctx, "success", int64(summary.Successful))
	o.metrics.RecordSyntheticRespondents(ctx, "failure", int64(summary.Failed))
	return o.completeJob(job, est, summary)
}

// simulateRespondent invents one persona and answers every answerable
// question in character, then persists the full submission.
func (o *Orchestrator) simulateRespondent(
	ctx context.Context,
	scope threaddomain.Scope,
	key string,
	survey *surveydomain.Survey,
	questions []surveydomain.Question,
	seq int,
) (modelcost.Estimate, error) {
	var est modelcost.Estimate

	profilePrompt := prompt.RespondentProfile(survey.Title, seq)
	out, err := o.runOnBoundThread(ctx, scope, key, "", o.cfg.Assistant.ChatAssistantID, profilePrompt)
	if err != nil {
		return est, err
	}
	est = addEstimates(est, o.estimate(profilePrompt, out))

	var demographics map[string]any
	if !aijson.ExtractInto(out.Text, &demographics) {
		return est, &orchdomain.ParseError{Excerpt: aijson.Prose(out.Text, proseExcerptLimit)}
	}
	persona := personaSummary(demographics)

	input := surveydomain.SubmissionInput{
		SurveyID:     survey.ID,
		Synthetic:    true,
		Demographics: demographics,
	}
	for _, q := range questions {
		if q.Type == surveydomain.TypeContentBlock {
			continue
		}
		if ctx.Err() != nil {
			return est, ctx.Err()
		}

		def := surveydomain.DefFromQuestion(q)
		answerPrompt := prompt.SyntheticAnswer(def, persona)
		out, err := o.runOnBoundThread(ctx, scope, key, "", o.cfg.Assistant.ChatAssistantID, answerPrompt)
		if err != nil {
			return est, err
		}
		est = addEstimates(est, o.estimate(answerPrompt, out))

		var reply struct {
			Value any `json:"value"`
		}
		if !aijson.ExtractInto(out.Text, &reply) {
			return est, &orchdomain.ParseError{Excerpt: aijson.Prose(out.Text, proseExcerptLimit)}
		}
		if err := validateAnswer(def, reply.Value); err != nil {
			return est, fmt.Errorf("question %s: %w", q.ID.String(), err)
		}
		input.Answers = append(input.Answers, surveydomain.AnswerInput{
			QuestionID: q.ID,
			Value:      reply.Value,
		})
	}

	if err := o.responses.Submit(ctx, input); err != nil {
		return est, err
	}
	return est, nil
}

func personaSummary(demographics map[string]any) string {
	parts := make([]string, 0, 4)
	for _, field := range []string{"age_group", "gender", "occupation", "location"} {
		if v, ok := demographics[field].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "an anonymous respondent"
	}
	return strings.Join(parts, ", ")
}

// validateAnswer rejects answers that violate the question's type contract
// before they can reach storage.
func validateAnswer(def surveydomain.QuestionDef, value any) error {
	switch def.QuestionType {
	case surveydomain.TypeSingleChoice, surveydomain.TypeDropdown:
		text, ok := value.(string)
		if !ok || !contains(def.Options, text) {
			return errInvalidValue("option not offered")
		}
	case surveydomain.TypeMultipleChoice:
		items, ok := value.([]any)
		if !ok || len(items) == 0 {
			return errInvalidValue("expected a non-empty option list")
		}
		for _, item := range items {
			text, ok := item.(string)
			if !ok || !contains(def.Options, text) {
				return errInvalidValue("option not offered")
			}
		}
	case surveydomain.TypeRating:
		start, end := 1, 5
		if def.RatingStart != nil {
			start = *def.RatingStart
		}
		if def.RatingEnd != nil {
			end = *def.RatingEnd
		}
		n, ok := wholeNumber(value)
		if !ok || n < start || n > end {
			return errInvalidValue(fmt.Sprintf("rating outside [%d,%d]", start, end))
		}
	case surveydomain.TypeNPS:
		n, ok := wholeNumber(value)
		if !ok || n < 0 || n > 10 {
			return errInvalidValue("nps outside [0,10]")
		}
	case surveydomain.TypeScale:
		text, ok := value.(string)
		if !ok || !contains(def.ScalePoints, text) {
			return errInvalidValue("scale point not offered")
		}
	case surveydomain.TypeRanking:
		items, ok := value.([]any)
		if !ok || len(items) != len(def.RankingItems) {
			return errInvalidValue("ranking must cover every item")
		}
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			text, ok := item.(string)
			if !ok || !contains(def.RankingItems, text) || seen[text] {
				return errInvalidValue("ranking must be a permutation of the items")
			}
			seen[text] = true
		}
	case surveydomain.TypeStarRatingGrid:
		rows, ok := value.(map[string]any)
		if !ok {
			return errInvalidValue("expected a row map")
		}
		for _, row := range def.GridRows {
			n, found := wholeNumber(rows[row])
			if !found || n < 1 || n > len(def.GridColumns) {
				return errInvalidValue(fmt.Sprintf("row %q missing or out of range", row))
			}
		}
	case surveydomain.TypeRadioGrid:
		rows, ok := value.(map[string]any)
		if !ok {
			return errInvalidValue("expected a row map")
		}
		for _, row := range def.GridRows {
			col, found := rows[row].(string)
			if !found || !contains(def.GridColumns, col) {
				return errInvalidValue(fmt.Sprintf("row %q missing or column not offered", row))
			}
		}
	default:
		text, ok := value.(string)
		if !ok || strings.TrimSpace(text) == "" {
			return errInvalidValue("expected non-empty text")
		}
	}
	return nil
}

func errInvalidValue(detail string) error {
	return fmt.Errorf("%w: %s", orchdomain.ErrSchemaViolation, detail)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// wholeNumber accepts the integer-ish shapes JSON decoding produces.
func wholeNumber(value any) (int, bool) {
	switch n := value.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
