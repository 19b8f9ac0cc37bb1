package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/pulseform/pulseform/internal/analytics/domain"
	"github.com/pulseform/pulseform/internal/config"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const topWordLimit = 30

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Surveys   surveydomain.Repository
	Responses surveydomain.ResponseRepository
}

type preprocessor struct {
	log       *zap.Logger
	cfg       config.AnalyticsConfig
	surveys   surveydomain.Repository
	responses surveydomain.ResponseRepository
}

func NewPreprocessor(p Params) analyticsdomain.Preprocessor {
	return &preprocessor{
		log:       p.Log.Named("analytics.preprocessor"),
		cfg:       p.Cfg.Analytics,
		surveys:   p.Surveys,
		responses: p.Responses,
	}
}

func (p *preprocessor) Preprocess(ctx context.Context, in analyticsdomain.Input) (analyticsdomain.Result, error) {
	if len(in.QuestionIDs) == 0 {
		return analyticsdomain.Result{}, analyticsdomain.ErrNoQuestions
	}

	survey, err := p.surveys.Get(ctx, in.SurveyID)
	if err != nil {
		return analyticsdomain.Result{}, err
	}
	questions, err := p.surveys.ListQuestions(ctx, in.SurveyID)
	if err != nil {
		return analyticsdomain.Result{}, err
	}
	byID := make(map[snowflake.ID]surveydomain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	summary, err := p.responses.ReportSummary(ctx, in.SurveyID)
	if err != nil {
		return analyticsdomain.Result{}, err
	}
	trend := analyticsdomain.TrendMetrics{
		ResponseTrend:      "stable",
		ResponseRateChange: "normal",
		CompletionRate:     summary.CompletionRate,
		TimePeriod:         "all_time",
	}

	result := analyticsdomain.Result{
		SurveyID:       in.SurveyID,
		SurveyTitle:    survey.Title,
		TotalResponses: summary.TotalSubmissions,
		CompletionRate: summary.CompletionRate,
		Comparison:     in.SegmentBy != "",
		SegmentBy:      in.SegmentBy,
	}

	var segmented map[string]map[snowflake.ID]surveydomain.QuestionAnalytics
	if in.SegmentBy != "" {
		segmented, err = p.responses.MultiDemographicAnalytics(ctx, in.SurveyID, in.QuestionIDs, in.Filters, in.SegmentBy)
		if err != nil {
			return analyticsdomain.Result{}, err
		}
	}

	for _, qid := range in.QuestionIDs {
		question, ok := byID[qid]
		if !ok {
			return analyticsdomain.Result{}, surveydomain.ErrQuestionNotFound
		}

		var payload analyticsdomain.QuestionPayload
		if in.SegmentBy != "" {
			payload = p.buildSegmented(question, segmented, trend)
		} else {
			analytics, err := p.responses.FilteredQuestionAnalytics(ctx, in.SurveyID, qid, in.Filters)
			if err != nil {
				return analyticsdomain.Result{}, err
			}
			payload = p.buildSingle(question, analytics, trend)
		}
		result.Questions = append(result.Questions, payload)
	}
	return result, nil
}

func (p *preprocessor) buildSingle(q surveydomain.Question, a surveydomain.QuestionAnalytics, trend analyticsdomain.TrendMetrics) analyticsdomain.QuestionPayload {
	n := sampleSize(a)
	status := p.gate(q.Type, n)

	out := analyticsdomain.QuestionPayload{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		QuestionType: q.Type,
		Status:       status,
		SampleSize:   n,
		Trend:        trend,
	}
	if status == analyticsdomain.StatusSkipped {
		return out
	}
	out.Payload = typedPayload(q, a)
	out.Chart = synthesizeChart(q, a)
	return out
}

func (p *preprocessor) buildSegmented(q surveydomain.Question, segmented map[string]map[snowflake.ID]surveydomain.QuestionAnalytics, trend analyticsdomain.TrendMetrics) analyticsdomain.QuestionPayload {
	segments := make(map[string]any)
	minN := math.MaxInt
	merged := surveydomain.QuestionAnalytics{
		QuestionID:   q.ID,
		Distribution: make(map[string]int64),
	}

	keys := make([]string, 0, len(segmented))
	for key := range segmented {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		a, ok := segmented[key][q.ID]
		if !ok {
			continue
		}
		n := sampleSize(a)
		if n < minN {
			minN = n
		}
		segments[key] = typedPayload(q, a)

		merged.CountValid += a.CountValid
		merged.TotalResponsesConsidered += a.TotalResponsesConsidered
		for bucket, count := range a.Distribution {
			merged.Distribution[bucket] += count
		}
		merged.TextResponses = append(merged.TextResponses, a.TextResponses...)
	}
	if len(segments) == 0 {
		minN = 0
	}

	// The smallest segment governs: a comparison is only as trustworthy as
	// its thinnest slice.
	status := p.gate(q.Type, minN)

	out := analyticsdomain.QuestionPayload{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		QuestionType: q.Type,
		Status:       status,
		SampleSize:   minN,
		Trend:        trend,
	}
	if status == analyticsdomain.StatusSkipped {
		return out
	}
	out.Payload = map[string]any{"segments": segments}
	out.Chart = synthesizeChart(q, merged)
	return out
}

func (p *preprocessor) gate(questionType string, n int) analyticsdomain.Status {
	skip, caution := p.cfg.QuantSkipBelow, p.cfg.QuantCautionBelow
	if questionType == surveydomain.TypeOpenEnded {
		skip, caution = p.cfg.OpenEndedSkipBelow, p.cfg.OpenEndedCautionBelow
	}
	switch {
	case n < skip:
		return analyticsdomain.StatusSkipped
	case n < caution:
		return analyticsdomain.StatusCaution
	default:
		return analyticsdomain.StatusSuccess
	}
}

// sampleSize resolves n with a fixed precedence so every question type gets a
// defensible number even when only partial aggregates exist.
func sampleSize(a surveydomain.QuestionAnalytics) int {
	if a.CountValid > 0 {
		return a.CountValid
	}
	if a.TotalResponsesConsidered > 0 {
		return a.TotalResponsesConsidered
	}
	var sum int64
	for _, count := range a.Distribution {
		sum += count
	}
	return int(sum)
}

func typedPayload(q surveydomain.Question, a surveydomain.QuestionAnalytics) map[string]any {
	switch q.Type {
	case surveydomain.TypeRating:
		return ratingPayload(q, a)
	case surveydomain.TypeSingleChoice, surveydomain.TypeMultipleChoice, surveydomain.TypeDropdown:
		return map[string]any{"distribution": a.Distribution}
	case surveydomain.TypeOpenEnded:
		return openEndedPayload(a)
	case surveydomain.TypeRanking:
		return rankingPayload(q, a)
	case surveydomain.TypeStarRatingGrid, surveydomain.TypeRadioGrid:
		return gridPayload(q, a)
	case surveydomain.TypeScale:
		return scalePayload(q, a)
	case surveydomain.TypeNPS:
		return npsPayload(a)
	default:
		return map[string]any{"distribution": a.Distribution}
	}
}

func ratingPayload(q surveydomain.Question, a surveydomain.QuestionAnalytics) map[string]any {
	scaleMin, scaleMax := 1, 5
	if q.RatingStart != nil {
		scaleMin = *q.RatingStart
	}
	if q.RatingEnd != nil {
		scaleMax = *q.RatingEnd
	}
	return map[string]any{
		"scale_min":    scaleMin,
		"scale_max":    scaleMax,
		"left_label":   q.LeftLabel,
		"right_label":  q.RightLabel,
		"distribution": a.Distribution,
	}
}

func openEndedPayload(a surveydomain.QuestionAnalytics) map[string]any {
	// Raw samples stay out of the payload so prompt size stays bounded.
	return map[string]any{
		"has_text":             true,
		"total_text_responses": len(a.TextResponses),
		"word_frequencies":     wordFrequencies(a.TextResponses, topWordLimit),
	}
}

func rankingPayload(q surveydomain.Question, a surveydomain.QuestionAnalytics) map[string]any {
	def := surveydomain.DefFromQuestion(q)
	averages := make(map[string]float64, len(a.RankPositions))
	for item, positions := range a.RankPositions {
		var weighted, total int64
		for pos, count := range positions {
			weighted += int64(pos) * count
			total += count
		}
		if total > 0 {
			averages[item] = trimFloat(float64(weighted) / float64(total))
		}
	}
	return map[string]any{
		"items":             def.RankingItems,
		"average_ranks":     averages,
		"rank_distribution": a.RankPositions,
	}
}

func gridPayload(q surveydomain.Question, a surveydomain.QuestionAnalytics) map[string]any {
	def := surveydomain.DefFromQuestion(q)
	payload := map[string]any{
		"grid_rows":    def.GridRows,
		"grid_columns": def.GridColumns,
	}
	if q.Type == surveydomain.TypeStarRatingGrid {
		rowAverages := make(map[string]float64, len(a.GridCounts))
		for row, cols := range a.GridCounts {
			var weighted, total int64
			for col, count := range cols {
				stars, err := strconv.ParseInt(col, 10, 64)
				if err != nil {
					continue
				}
				weighted += stars * count
				total += count
			}
			if total > 0 {
				rowAverages[row] = trimFloat(float64(weighted) / float64(total))
			}
		}
		payload["row_averages"] = rowAverages
		return payload
	}

	// Categorical grid: report how each column is used across all rows.
	columnTotals := make(map[string]int64)
	var grand int64
	for _, cols := range a.GridCounts {
		for col, count := range cols {
			columnTotals[col] += count
			grand += count
		}
	}
	columnAverages := make(map[string]float64, len(columnTotals))
	for col, count := range columnTotals {
		if grand > 0 {
			columnAverages[col] = trimFloat(float64(count) / float64(grand) * 100)
		}
	}
	payload["column_averages"] = columnAverages
	return payload
}

func scalePayload(q surveydomain.Question, a surveydomain.QuestionAnalytics) map[string]any {
	def := surveydomain.DefFromQuestion(q)
	return map[string]any{
		"scale_points": def.ScalePoints,
		"distribution": a.Distribution,
	}
}

func npsPayload(a surveydomain.QuestionAnalytics) map[string]any {
	var promoters, passives, detractors, total int64
	for bucket, count := range a.Distribution {
		score, err := strconv.ParseInt(bucket, 10, 64)
		if err != nil {
			continue
		}
		total += count
		switch {
		case score >= 9:
			promoters += count
		case score >= 7:
			passives += count
		default:
			detractors += count
		}
	}
	var score float64
	if total > 0 {
		score = trimFloat(float64(promoters-detractors) / float64(total) * 100)
	}
	return map[string]any{
		"segments": map[string]int64{
			"promoters":  promoters,
			"passives":   passives,
			"detractors": detractors,
		},
		"score":        score,
		"distribution": a.Distribution,
	}
}

func synthesizeChart(q surveydomain.Question, a surveydomain.QuestionAnalytics) *analyticsdomain.Chart {
	chart := &analyticsdomain.Chart{
		Title:      q.Text,
		YAxisLabel: "Responses",
	}
	switch q.Type {
	case surveydomain.TypeOpenEnded:
		chart.Type = "word_cloud"
		chart.XAxisLabel = "Word"
		chart.YAxisLabel = "Frequency"
		for _, wf := range wordFrequencies(a.TextResponses, 10) {
			chart.Data = append(chart.Data, analyticsdomain.ChartPoint{
				Category: wf.Word,
				Value:    float64(wf.Frequency),
			})
		}
	case surveydomain.TypeRanking:
		chart.Type = "bar"
		chart.XAxisLabel = "Item"
		chart.YAxisLabel = "Average rank"
		items := make([]string, 0, len(a.RankPositions))
		for item := range a.RankPositions {
			items = append(items, item)
		}
		sort.Strings(items)
		for _, item := range items {
			var weighted, total int64
			for pos, count := range a.RankPositions[item] {
				weighted += int64(pos) * count
				total += count
			}
			if total > 0 {
				chart.Data = append(chart.Data, analyticsdomain.ChartPoint{
					Category: item,
					Value:    trimFloat(float64(weighted) / float64(total)),
				})
			}
		}
	default:
		chart.Type = "bar"
		chart.XAxisLabel = "Answer"
		if q.Type == surveydomain.TypeSingleChoice || q.Type == surveydomain.TypeDropdown {
			chart.Type = "pie"
		}
		var total int64
		for _, count := range a.Distribution {
			total += count
		}
		buckets := make([]string, 0, len(a.Distribution))
		for bucket := range a.Distribution {
			buckets = append(buckets, bucket)
		}
		sort.Slice(buckets, func(i, j int) bool {
			bi, erri := strconv.ParseFloat(buckets[i], 64)
			bj, errj := strconv.ParseFloat(buckets[j], 64)
			if erri == nil && errj == nil {
				return bi < bj
			}
			return buckets[i] < buckets[j]
		})
		for _, bucket := range buckets {
			count := a.Distribution[bucket]
			point := analyticsdomain.ChartPoint{
				Category: bucket,
				Value:    float64(count),
			}
			if total > 0 {
				pct := trimFloat(float64(count) / float64(total) * 100)
				point.Percentage = &pct
			}
			chart.Data = append(chart.Data, point)
		}
	}
	if len(chart.Data) == 0 {
		return nil
	}
	return chart
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "was": {}, "can": {}, "had": {}, "has": {},
	"have": {}, "this": {}, "that": {}, "with": {}, "they": {}, "from": {},
	"there": {}, "would": {}, "their": {}, "what": {}, "about": {},
	"which": {}, "when": {}, "will": {}, "more": {}, "very": {}, "some": {},
	"could": {}, "them": {}, "than": {}, "then": {}, "were": {}, "been": {},
	"also": {}, "just": {}, "like": {}, "into": {}, "its": {}, "your": {},
}

func wordFrequencies(texts []string, limit int) []analyticsdomain.WordFrequency {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
		}) {
			word = strings.Trim(word, "'")
			if len(word) < 3 {
				continue
			}
			if _, skip := stopwords[word]; skip {
				continue
			}
			counts[word]++
		}
	}

	freqs := make([]analyticsdomain.WordFrequency, 0, len(counts))
	for word, count := range counts {
		freqs = append(freqs, analyticsdomain.WordFrequency{Word: word, Frequency: count})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].Frequency != freqs[j].Frequency {
			return freqs[i].Frequency > freqs[j].Frequency
		}
		return freqs[i].Word < freqs[j].Word
	})
	if len(freqs) > limit {
		freqs = freqs[:limit]
	}
	return freqs
}

func trimFloat(v float64) float64 {
	trimmed, err := strconv.ParseFloat(fmt.Sprintf("%.2f", v), 64)
	if err != nil {
		return v
	}
	return trimmed
}
