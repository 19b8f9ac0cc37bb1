package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pulseform/pulseform/internal/aijson"
	analyticsdomain "github.com/pulseform/pulseform/internal/analytics/domain"
	creditsdomain "github.com/pulseform/pulseform/internal/credits/domain"
	jobsdomain "github.com/pulseform/pulseform/internal/jobs/domain"
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	"github.com/pulseform/pulseform/internal/prompt"
	threaddomain "github.com/pulseform/pulseform/internal/thread/domain"
	usagelogdomain "github.com/pulseform/pulseform/internal/usagelog/domain"
	"go.uber.org/zap"
)

func (o *Orchestrator) GenerateInsights(ctx context.Context, req orchdomain.InsightsRequest) (orchdomain.TaskHandle, error) {
	if req.TenantID == 0 || req.SurveyID == 0 || len(req.QuestionIDs) == 0 {
		return orchdomain.TaskHandle{}, orchdomain.ErrInvalidInput
	}
	if _, err := o.surveys.Get(ctx, req.SurveyID); err != nil {
		return orchdomain.TaskHandle{}, err
	}
	op := usagelogdomain.OpGenerateInsights
	return o.enqueue(ctx, op, req.TenantID, req.UserID, &req.SurveyID, creditsdomain.CostOf(op), req, map[string]any{
		"questions": len(req.QuestionIDs),
		"compare":   req.Comparison != "",
	})
}

func (o *Orchestrator) runGenerateInsights(ctx context.Context, job jobsdomain.Job) (json.RawMessage, error) {
	op := usagelogdomain.OpGenerateInsights
	req, err := decodePayload[orchdomain.InsightsRequest](job)
	if err != nil {
		return nil, o.failJob(job, op, err, nil)
	}

	pre, err := o.preprocessor.Preprocess(ctx, analyticsdomain.Input{
		SurveyID:    req.SurveyID,
		QuestionIDs: req.QuestionIDs,
		Filters:     req.Filters,
		SegmentBy:   req.Comparison,
	})
	if err != nil {
		return nil, o.failJob(job, op, err, nil)
	}

	promptText, err := prompt.Insights(pre)
	if err != nil {
		return nil, o.failJob(job, op, err, nil)
	}
	out, err := o.runOnBoundThread(ctx,
		threaddomain.ScopeSurveyAnalytics, req.SurveyID.String(), "",
		o.cfg.Assistant.AnalyticsAssistantID, promptText)
	if err != nil {
		return nil, o.failJob(job, op, err, nil)
	}
	est := o.estimate(promptText, out)

	report, err := parseInsightsReport(out.Text)
	if err != nil {
		return nil, o.failJob(job, op, err, &est)
	}
	report = backfillReport(report, pre)

	charts := 0
	for _, qi := range report.QuestionInsights {
		if qi.ChartData != nil {
			charts++
		}
	}
	rec := usagelogdomain.AnalyticsGenerationRecord{
		ID:                o.genID.Generate(),
		UsageLogID:        job.LogID,
		SurveyID:          req.SurveyID,
		QuestionsAnalyzed: len(req.QuestionIDs),
		Filters:           req.Filters,
		Compare:           req.Comparison != "",
		InsightsGenerated: len(report.QuestionInsights),
		ChartsGenerated:   charts,
	}
	if err := o.usage.RecordAnalytics(ctx, rec); err != nil {
		o.log.Error("record analytics", zap.Error(err))
	}

	return o.completeJob(job, est, report)
}

func parseInsightsReport(text string) (orchdomain.InsightsReport, error) {
	raw, ok := aijson.Extract(text)
	if !ok {
		return orchdomain.InsightsReport{}, &orchdomain.ParseError{Excerpt: aijson.Prose(text, proseExcerptLimit)}
	}
	var report orchdomain.InsightsReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return orchdomain.InsightsReport{}, orchdomain.ErrSchemaViolation
	}
	return report, nil
}

// backfillReport guarantees one question_insights entry per expected
// question: any question the model skipped gets a minimal insight built from
// the backend analytics, so the report always covers the selected set.
func backfillReport(report orchdomain.InsightsReport, pre analyticsdomain.Result) orchdomain.InsightsReport {
	present := make(map[string]int, len(report.QuestionInsights))
	for i, qi := range report.QuestionInsights {
		present[qi.QuestionID] = i
	}

	covered := make([]orchdomain.QuestionInsight, 0, len(pre.Questions))
	for _, q := range pre.Questions {
		if idx, ok := present[q.QuestionID.String()]; ok {
			qi := report.QuestionInsights[idx]
			if qi.ChartData == nil {
				qi.ChartData = q.Chart
			}
			if qi.SampleSize == 0 {
				qi.SampleSize = q.SampleSize
			}
			covered = append(covered, qi)
			continue
		}
		covered = append(covered, synthesizedInsight(q))
	}
	report.QuestionInsights = covered

	if report.Statistics.TotalResponses == 0 {
		report.Statistics.TotalResponses = pre.TotalResponses
	}
	if report.Statistics.ConfidenceLevel == "" {
		report.Statistics.ConfidenceLevel = "moderate"
	}
	if report.Statistics.DataQualityScore == 0 && len(pre.Questions) > 0 {
		analyzed := 0
		for _, q := range pre.Questions {
			if q.Status != analyticsdomain.StatusSkipped {
				analyzed++
			}
		}
		report.Statistics.DataQualityScore = float64(analyzed) / float64(len(pre.Questions)) * 100
	}
	return report
}

func synthesizedInsight(q analyticsdomain.QuestionPayload) orchdomain.QuestionInsight {
	insight := orchdomain.QuestionInsight{
		QuestionID:   q.QuestionID.String(),
		QuestionText: q.QuestionText,
		SampleSize:   q.SampleSize,
		Statistics: orchdomain.InsightStatistics{
			PrimaryMetric:  fmt.Sprintf("%d responses", q.SampleSize),
			TrendDirection: q.Trend.ResponseTrend,
		},
		ChartData: q.Chart,
	}
	switch q.Status {
	case analyticsdomain.StatusSkipped:
		insight.Headline = "Not enough responses to analyze"
		insight.Summary = fmt.Sprintf("Only %d responses were collected for this question, below the minimum needed for reliable analysis.", q.SampleSize)
		insight.Statistics.ConfidenceLevel = "low"
	case analyticsdomain.StatusCaution:
		insight.Headline = "Limited sample size"
		insight.Summary = fmt.Sprintf("Based on %d responses. Treat these numbers as directional rather than conclusive.", q.SampleSize)
		insight.Statistics.ConfidenceLevel = "moderate"
	default:
		insight.Headline = "Response summary"
		insight.Summary = fmt.Sprintf("Based on %d responses.", q.SampleSize)
		insight.Statistics.ConfidenceLevel = "high"
	}
	return insight
}
