package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"

	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	threaddomain "github.com/pulseform/pulseform/internal/thread/domain"
)

func seedSyntheticSurvey(t *testing.T, e *env) (*surveydomain.Survey, []surveydomain.Question) {
	t.Helper()
	survey, questions, err := e.surveys.Create(context.Background(), e.node.Generate(), surveydomain.SurveyDef{
		Title: "Onboarding feedback",
		Questions: []surveydomain.QuestionDef{
			{QuestionType: surveydomain.TypeContentBlock, QuestionText: "Thanks for trying us out!"},
			{QuestionType: surveydomain.TypeSingleChoice, QuestionText: "How did you hear about us?", Options: []string{"Search", "Friend", "Ad"}},
			{QuestionType: surveydomain.TypeRating, QuestionText: "Rate the onboarding flow"},
			{QuestionType: surveydomain.TypeOpenEnded, QuestionText: "What confused you?"},
		},
	})
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}
	return survey, questions
}

func scriptRespondent(e *env, choice string, rating int, text string) {
	e.model.reply(`{"age_group": "25-34", "gender": "female", "occupation": "designer", "location": "Berlin"}`)
	e.model.reply(`{"value": "` + choice + `"}`)
	e.model.reply(`{"value": ` + jsonInt(rating) + `}`)
	e.model.reply(`{"value": "` + text + `"}`)
}

func jsonInt(n int) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}

func TestGenerateSyntheticPersistsValidSubmissions(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)
	survey, questions := seedSyntheticSurvey(t, e)

	scriptRespondent(e, "Search", 4, "The billing step was unclear")
	scriptRespondent(e, "Friend", 5, "Nothing, it was smooth")

	handle, err := e.orch.GenerateSynthetic(ctx, orchdomain.SyntheticRequest{
		TenantID:     tenantID,
		UserID:       e.node.Generate(),
		SurveyID:     survey.ID,
		NumResponses: 2,
	})
	if err != nil {
		t.Fatalf("GenerateSynthetic: %v", err)
	}
	e.drain(t)

	status, err := e.orch.TaskStatus(ctx, handle.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	if !status.Ready || status.Successful == nil || !*status.Successful {
		t.Fatalf("task not successful: %+v", status)
	}

	var summary orchdomain.SyntheticSummary
	if err := json.Unmarshal(status.Result, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Successful != 2 || summary.Failed != 0 || len(summary.Details) != 2 {
		t.Fatalf("summary %+v", summary)
	}

	var submissions []surveydomain.Submission
	if err := e.db.Find(&submissions, "survey_id = ?", survey.ID).Error; err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(submissions) != 2 {
		t.Fatalf("submissions %d, want 2", len(submissions))
	}
	for _, sub := range submissions {
		if !sub.Synthetic {
			t.Fatalf("submission %s not flagged synthetic", sub.ID)
		}
		if sub.Demographics["occupation"] != "designer" {
			t.Fatalf("demographics not persisted: %+v", sub.Demographics)
		}
	}

	// The content block is never answered: three answers per respondent.
	var answers int64
	e.db.Model(&surveydomain.Answer{}).
		Where("submission_id IN ?", []snowflake.ID{submissions[0].ID, submissions[1].ID}).
		Count(&answers)
	if answers != 6 {
		t.Fatalf("answers %d, want 6", answers)
	}

	var ratingAnswer surveydomain.Answer
	if err := e.db.First(&ratingAnswer, "submission_id = ? AND question_id = ?", submissions[0].ID, questions[2].ID).Error; err != nil {
		t.Fatalf("rating answer: %v", err)
	}
	var ratingValue int
	if err := json.Unmarshal(ratingAnswer.Value, &ratingValue); err != nil || ratingValue != 4 {
		t.Fatalf("rating value %s", ratingAnswer.Value)
	}

	// Two credits debited, one per respondent.
	monthly, _ := e.balances(t, tenantID)
	if monthly != 98 {
		t.Fatalf("monthly %d, want 98", monthly)
	}

	// The role-play thread is discarded with the job.
	var bindings int64
	e.db.Model(&threaddomain.Binding{}).Where("scope = ?", threaddomain.ScopeSynthetic).Count(&bindings)
	if bindings != 0 {
		t.Fatalf("synthetic thread binding survived the job")
	}
}

func TestGenerateSyntheticRecordsPerRespondentFailures(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)
	survey, _ := seedSyntheticSurvey(t, e)

	scriptRespondent(e, "Search", 4, "All good")
	// Respondent 2 answers with an option the question never offered; the
	// simulation aborts there.
	e.model.reply(`{"age_group": "35-44"}`)
	e.model.reply(`{"value": "Billboard"}`)

	handle, err := e.orch.GenerateSynthetic(ctx, orchdomain.SyntheticRequest{
		TenantID:     tenantID,
		UserID:       e.node.Generate(),
		SurveyID:     survey.ID,
		NumResponses: 2,
	})
	if err != nil {
		t.Fatalf("GenerateSynthetic: %v", err)
	}
	e.drain(t)

	status, _ := e.orch.TaskStatus(ctx, handle.TaskID)
	var summary orchdomain.SyntheticSummary
	if err := json.Unmarshal(status.Result, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Successful != 1 || summary.Failed != 1 {
		t.Fatalf("summary %+v", summary)
	}
	if summary.Details[1].OK || summary.Details[1].Error == "" {
		t.Fatalf("failure detail missing: %+v", summary.Details[1])
	}

	var submissions int64
	e.db.Model(&surveydomain.Submission{}).Where("survey_id = ?", survey.ID).Count(&submissions)
	if submissions != 1 {
		t.Fatalf("submissions %d, want 1", submissions)
	}
}

func TestGenerateSyntheticRejectsOversizedBatch(t *testing.T) {
	e := setupEnv(t)
	tenantID := e.seedTenant(t, 1000)
	survey, _ := seedSyntheticSurvey(t, e)

	_, err := e.orch.GenerateSynthetic(context.Background(), orchdomain.SyntheticRequest{
		TenantID:     tenantID,
		UserID:       e.node.Generate(),
		SurveyID:     survey.ID,
		NumResponses: maxSyntheticRespondents + 1,
	})
	if !errors.Is(err, orchdomain.ErrInvalidInput) {
		t.Fatalf("err %v, want ErrInvalidInput", err)
	}
}
