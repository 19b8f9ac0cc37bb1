package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/pulseform/pulseform/internal/analytics/domain"
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	usagelogdomain "github.com/pulseform/pulseform/internal/usagelog/domain"
)

func questionIDs(questions []surveydomain.Question) []snowflake.ID {
	ids := make([]snowflake.ID, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func seedInsightsSurvey(t *testing.T, e *env) (*surveydomain.Survey, []surveydomain.Question) {
	t.Helper()
	ctx := context.Background()

	ratingEnd := 5
	survey, questions, err := e.surveys.Create(ctx, e.node.Generate(), surveydomain.SurveyDef{
		Title: "Checkout satisfaction",
		Questions: []surveydomain.QuestionDef{
			{QuestionType: surveydomain.TypeRating, QuestionText: "How satisfied are you?", RatingEnd: &ratingEnd},
			{QuestionType: surveydomain.TypeOpenEnded, QuestionText: "What should we improve?"},
			{QuestionType: surveydomain.TypeSingleChoice, QuestionText: "Would you buy again?", Options: []string{"Yes", "No"}},
		},
	})
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}

	// 250 rating answers, 20 open-ended, 60 choice: one Success, one
	// Skipped_SampleSize, one Caution_SampleSize under the default gates.
	for i := 0; i < 250; i++ {
		input := surveydomain.SubmissionInput{
			SurveyID: survey.ID,
			Answers: []surveydomain.AnswerInput{
				{QuestionID: questions[0].ID, Value: 1 + i%5},
			},
		}
		if i < 20 {
			input.Answers = append(input.Answers, surveydomain.AnswerInput{
				QuestionID: questions[1].ID,
				Value:      fmt.Sprintf("faster shipping please %d", i),
			})
		}
		if i < 60 {
			choice := "Yes"
			if i%3 == 0 {
				choice = "No"
			}
			input.Answers = append(input.Answers, surveydomain.AnswerInput{
				QuestionID: questions[2].ID,
				Value:      choice,
			})
		}
		if err := e.responses.Submit(ctx, input); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	return survey, questions
}

func TestGenerateInsightsBackfillsSkippedQuestions(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)
	survey, questions := seedInsightsSurvey(t, e)

	// The model reports on the rating question only; the report must still
	// cover all three.
	e.model.reply(fmt.Sprintf(`{
		"executive_summary": ["Satisfaction is strong overall."],
		"question_insights": [
			{
				"question_id": %q,
				"question_text": "How satisfied are you?",
				"headline": "Most respondents are satisfied",
				"summary": "Ratings cluster at 4 and 5.",
				"statistics": {"primary_metric": "4.1 average", "trend_direction": "stable", "confidence_level": "high"}
			}
		],
		"statistics": {"total_responses": 0, "confidence_level": "", "data_quality_score": 0},
		"insights": ["Keep the new checkout flow."]
	}`, questions[0].ID.String()))

	handle, err := e.orch.GenerateInsights(ctx, orchdomain.InsightsRequest{
		TenantID:    tenantID,
		UserID:      e.node.Generate(),
		SurveyID:    survey.ID,
		QuestionIDs: questionIDs(questions),
	})
	if err != nil {
		t.Fatalf("GenerateInsights: %v", err)
	}
	e.drain(t)

	status, err := e.orch.TaskStatus(ctx, handle.TaskID)
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	if !status.Ready || status.Successful == nil || !*status.Successful {
		t.Fatalf("task not successful: %+v", status)
	}

	var report orchdomain.InsightsReport
	if err := json.Unmarshal(status.Result, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.QuestionInsights) != 3 {
		t.Fatalf("question insights %d, want 3", len(report.QuestionInsights))
	}

	byID := make(map[string]orchdomain.QuestionInsight, 3)
	for _, qi := range report.QuestionInsights {
		byID[qi.QuestionID] = qi
	}

	rating := byID[questions[0].ID.String()]
	if rating.Headline != "Most respondents are satisfied" {
		t.Fatalf("rating headline %q", rating.Headline)
	}
	if rating.ChartData == nil {
		t.Fatalf("rating chart not backfilled from analytics")
	}
	if rating.SampleSize != 250 {
		t.Fatalf("rating sample size %d", rating.SampleSize)
	}

	open := byID[questions[1].ID.String()]
	if open.Headline != "Not enough responses to analyze" {
		t.Fatalf("open-ended headline %q", open.Headline)
	}
	if open.Statistics.ConfidenceLevel != "low" || open.SampleSize != 20 {
		t.Fatalf("open-ended insight %+v", open)
	}
	if open.ChartData != nil {
		t.Fatalf("skipped question carries a chart")
	}

	choice := byID[questions[2].ID.String()]
	if choice.Headline != "Limited sample size" {
		t.Fatalf("choice headline %q", choice.Headline)
	}
	if choice.Statistics.ConfidenceLevel != "moderate" || choice.SampleSize != 60 {
		t.Fatalf("choice insight %+v", choice)
	}

	if report.Statistics.TotalResponses != 250 {
		t.Fatalf("total responses %d", report.Statistics.TotalResponses)
	}
	if report.Statistics.ConfidenceLevel != "moderate" {
		t.Fatalf("report confidence %q", report.Statistics.ConfidenceLevel)
	}

	// Insights cost two credits.
	monthly, _ := e.balances(t, tenantID)
	if monthly != 98 {
		t.Fatalf("monthly %d, want 98", monthly)
	}

	var rec usagelogdomain.AnalyticsGenerationRecord
	if err := e.db.First(&rec, "usage_log_id = ?", handle.LogID).Error; err != nil {
		t.Fatalf("analytics record: %v", err)
	}
	if rec.InsightsGenerated != 3 {
		t.Fatalf("insights generated %d", rec.InsightsGenerated)
	}
	if rec.ChartsGenerated != 2 {
		t.Fatalf("charts generated %d, want 2 (rating and choice)", rec.ChartsGenerated)
	}
}

func TestGenerateInsightsMalformedReportFailsWithoutRefund(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tenantID := e.seedTenant(t, 100)
	survey, questions := seedInsightsSurvey(t, e)

	e.model.reply(`{"question_insights": "not an array"}`)

	handle, err := e.orch.GenerateInsights(ctx, orchdomain.InsightsRequest{
		TenantID:    tenantID,
		UserID:      e.node.Generate(),
		SurveyID:    survey.ID,
		QuestionIDs: questionIDs(questions),
	})
	if err != nil {
		t.Fatalf("GenerateInsights: %v", err)
	}
	e.drain(t)

	logRow, err := e.usage.Get(ctx, handle.LogID)
	if err != nil {
		t.Fatalf("usage log: %v", err)
	}
	if logRow.Outcome != usagelogdomain.OutcomeFailure {
		t.Fatalf("log outcome %q", logRow.Outcome)
	}

	monthly, _ := e.balances(t, tenantID)
	if monthly != 98 {
		t.Fatalf("monthly %d, want 98", monthly)
	}
}

func TestAnalyticsStatusesFeedSynthesizedInsights(t *testing.T) {
	q := analyticsdomain.QuestionPayload{
		Status:     analyticsdomain.StatusCaution,
		SampleSize: 75,
		Trend:      analyticsdomain.TrendMetrics{ResponseTrend: "stable"},
	}
	report := orchdomain.InsightsReport{}
	pre := analyticsdomain.Result{Questions: []analyticsdomain.QuestionPayload{q}}

	filled := backfillReport(report, pre)
	if len(filled.QuestionInsights) != 1 {
		t.Fatalf("insights %d", len(filled.QuestionInsights))
	}
	got := filled.QuestionInsights[0]
	if got.Statistics.TrendDirection != "stable" {
		t.Fatalf("trend %q", got.Statistics.TrendDirection)
	}
	if filled.Statistics.DataQualityScore != 100 {
		t.Fatalf("data quality %v", filled.Statistics.DataQualityScore)
	}
}
