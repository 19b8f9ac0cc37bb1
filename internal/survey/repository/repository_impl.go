package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pulseform/pulseform/internal/clock"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Repository struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) *Repository {
	return &Repository{
		db:    p.DB,
		log:   p.Log.Named("survey.repository"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (r *Repository) Get(ctx context.Context, id snowflake.ID) (*surveydomain.Survey, error) {
	var row surveydomain.Survey
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, surveydomain.ErrSurveyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) ListQuestions(ctx context.Context, surveyID snowflake.ID) ([]surveydomain.Question, error) {
	var questions []surveydomain.Question
	err := r.db.WithContext(ctx).
		Where("survey_id = ?", surveyID).
		Order("sequence ASC").
		Find(&questions).Error
	return questions, err
}

func (r *Repository) Create(ctx context.Context, tenantID snowflake.ID, def surveydomain.SurveyDef) (*surveydomain.Survey, []surveydomain.Question, error) {
	if len(def.Questions) == 0 {
		return nil, nil, surveydomain.ErrInvalidDef
	}
	now := r.clock.Now()
	row := surveydomain.Survey{
		ID:          r.genID.Generate(),
		TenantID:    tenantID,
		Title:       def.Title,
		Description: def.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var questions []surveydomain.Question
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		var err error
		questions, err = r.insertQuestions(tx, row.ID, def.Questions)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &row, questions, nil
}

func (r *Repository) Replace(ctx context.Context, id snowflake.ID, def surveydomain.SurveyDef) (*surveydomain.Survey, []surveydomain.Question, error) {
	if len(def.Questions) == 0 {
		return nil, nil, surveydomain.ErrInvalidDef
	}

	var row surveydomain.Survey
	var questions []surveydomain.Question
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return surveydomain.ErrSurveyNotFound
			}
			return err
		}

		row.Title = def.Title
		row.Description = def.Description
		row.UpdatedAt = r.clock.Now()
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		if err := tx.Where("survey_id = ?", id).Delete(&surveydomain.Question{}).Error; err != nil {
			return err
		}
		var err error
		questions, err = r.insertQuestions(tx, id, def.Questions)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &row, questions, nil
}

func (r *Repository) insertQuestions(tx *gorm.DB, surveyID snowflake.ID, defs []surveydomain.QuestionDef) ([]surveydomain.Question, error) {
	questions := make([]surveydomain.Question, 0, len(defs))
	for i, def := range defs {
		q := surveydomain.QuestionFromDef(def)
		q.ID = r.genID.Generate()
		q.SurveyID = surveyID
		q.Sequence = i + 1
		if err := tx.Create(&q).Error; err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// --- response repository ---

type ResponseRepository struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewResponses(p Params) *ResponseRepository {
	return &ResponseRepository{
		db:    p.DB,
		log:   p.Log.Named("responses.repository"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (r *ResponseRepository) Submit(ctx context.Context, input surveydomain.SubmissionInput) error {
	if input.SurveyID == 0 || len(input.Answers) == 0 {
		return surveydomain.ErrInvalidDef
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := surveydomain.Submission{
			ID:           r.genID.Generate(),
			SurveyID:     input.SurveyID,
			Synthetic:    input.Synthetic,
			Demographics: datatypes.JSONMap(input.Demographics),
			SubmittedAt:  r.clock.Now(),
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		for _, ans := range input.Answers {
			value, err := json.Marshal(ans.Value)
			if err != nil {
				return fmt.Errorf("encode answer: %w", err)
			}
			row := surveydomain.Answer{
				ID:           r.genID.Generate(),
				SubmissionID: sub.ID,
				QuestionID:   ans.QuestionID,
				Value:        value,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ResponseRepository) ReportSummary(ctx context.Context, surveyID snowflake.ID) (surveydomain.ReportSummary, error) {
	var summary surveydomain.ReportSummary

	var subs []surveydomain.Submission
	if err := r.db.WithContext(ctx).Where("survey_id = ?", surveyID).Order("submitted_at ASC").Find(&subs).Error; err != nil {
		return summary, err
	}
	summary.TotalSubmissions = int64(len(subs))
	if len(subs) == 0 {
		return summary, nil
	}
	first := subs[0].SubmittedAt
	last := subs[len(subs)-1].SubmittedAt
	summary.FirstResponseAt = &first
	summary.LastResponseAt = &last

	var questionCount int64
	if err := r.db.WithContext(ctx).Model(&surveydomain.Question{}).Where("survey_id = ?", surveyID).Count(&questionCount).Error; err != nil {
		return summary, err
	}
	if questionCount == 0 {
		return summary, nil
	}

	var answerCount int64
	if err := r.db.WithContext(ctx).
		Model(&surveydomain.Answer{}).
		Joins("JOIN survey_submissions ON survey_submissions.id = survey_answers.submission_id").
		Where("survey_submissions.survey_id = ?", surveyID).
		Count(&answerCount).Error; err != nil {
		return summary, err
	}
	summary.CompletionRate = float64(answerCount) / float64(questionCount*int64(len(subs)))
	if summary.CompletionRate > 1 {
		summary.CompletionRate = 1
	}
	return summary, nil
}

func (r *ResponseRepository) FilteredQuestionAnalytics(ctx context.Context, surveyID, questionID snowflake.ID, filters map[string]any) (surveydomain.QuestionAnalytics, error) {
	var question surveydomain.Question
	err := r.db.WithContext(ctx).First(&question, "id = ? AND survey_id = ?", questionID, surveyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return surveydomain.QuestionAnalytics{}, surveydomain.ErrQuestionNotFound
	}
	if err != nil {
		return surveydomain.QuestionAnalytics{}, err
	}

	answers, total, err := r.answersForQuestion(ctx, surveyID, questionID, filters, "")
	if err != nil {
		return surveydomain.QuestionAnalytics{}, err
	}
	result := aggregateAnswers(question, answers[""])
	result.TotalResponsesConsidered = total
	return result, nil
}

func (r *ResponseRepository) MultiDemographicAnalytics(ctx context.Context, surveyID snowflake.ID, questionIDs []snowflake.ID, filters map[string]any, segmentBy string) (map[string]map[snowflake.ID]surveydomain.QuestionAnalytics, error) {
	questions := make(map[snowflake.ID]surveydomain.Question, len(questionIDs))
	var rows []surveydomain.Question
	if err := r.db.WithContext(ctx).Where("survey_id = ? AND id IN ?", surveyID, idValues(questionIDs)).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, q := range rows {
		questions[q.ID] = q
	}

	out := make(map[string]map[snowflake.ID]surveydomain.QuestionAnalytics)
	for qid, question := range questions {
		segmented, total, err := r.answersForQuestion(ctx, surveyID, qid, filters, segmentBy)
		if err != nil {
			return nil, err
		}
		for segment, values := range segmented {
			if out[segment] == nil {
				out[segment] = make(map[snowflake.ID]surveydomain.QuestionAnalytics)
			}
			agg := aggregateAnswers(question, values)
			agg.TotalResponsesConsidered = total
			out[segment][qid] = agg
		}
	}
	return out, nil
}

// answersForQuestion loads decoded answer values for a question, applying
// demographic equality filters and optional segmentation. Demographic
// matching happens in memory to stay dialect-portable over JSON columns.
func (r *ResponseRepository) answersForQuestion(ctx context.Context, surveyID, questionID snowflake.ID, filters map[string]any, segmentBy string) (map[string][]any, int, error) {
	var subs []surveydomain.Submission
	if err := r.db.WithContext(ctx).Where("survey_id = ?", surveyID).Find(&subs).Error; err != nil {
		return nil, 0, err
	}

	matching := make(map[snowflake.ID]string, len(subs))
	for _, sub := range subs {
		if !matchesFilters(sub.Demographics, filters) {
			continue
		}
		segment := ""
		if segmentBy != "" {
			segment = fmt.Sprintf("%v", sub.Demographics[segmentBy])
			if segment == "<nil>" {
				segment = "unknown"
			}
		}
		matching[sub.ID] = segment
	}
	if len(matching) == 0 {
		return map[string][]any{}, 0, nil
	}

	subIDs := make([]int64, 0, len(matching))
	for id := range matching {
		subIDs = append(subIDs, int64(id))
	}

	var answers []surveydomain.Answer
	if err := r.db.WithContext(ctx).Where("question_id = ? AND submission_id IN ?", questionID, subIDs).Find(&answers).Error; err != nil {
		return nil, 0, err
	}

	segmented := make(map[string][]any)
	for _, ans := range answers {
		var value any
		if err := json.Unmarshal(ans.Value, &value); err != nil || value == nil {
			continue
		}
		segment := matching[ans.SubmissionID]
		segmented[segment] = append(segmented[segment], value)
	}
	return segmented, len(matching), nil
}

func matchesFilters(demographics datatypes.JSONMap, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := demographics[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// aggregateAnswers reshapes decoded values into the per-type aggregate.
func aggregateAnswers(question surveydomain.Question, values []any) surveydomain.QuestionAnalytics {
	agg := surveydomain.QuestionAnalytics{
		QuestionID: question.ID,
		CountValid: len(values),
	}

	switch question.Type {
	case surveydomain.TypeOpenEnded:
		for _, v := range values {
			if text, ok := v.(string); ok && strings.TrimSpace(text) != "" {
				agg.TextResponses = append(agg.TextResponses, text)
			}
		}
		agg.CountValid = len(agg.TextResponses)

	case surveydomain.TypeMultipleChoice:
		agg.Distribution = map[string]int64{}
		for _, v := range values {
			items, ok := v.([]any)
			if !ok {
				continue
			}
			for _, item := range items {
				agg.Distribution[fmt.Sprintf("%v", item)]++
			}
		}

	case surveydomain.TypeRanking:
		agg.RankPositions = map[string]map[int]int64{}
		for _, v := range values {
			order, ok := v.([]any)
			if !ok {
				continue
			}
			for pos, item := range order {
				key := fmt.Sprintf("%v", item)
				if agg.RankPositions[key] == nil {
					agg.RankPositions[key] = map[int]int64{}
				}
				agg.RankPositions[key][pos+1]++
			}
		}

	case surveydomain.TypeStarRatingGrid, surveydomain.TypeRadioGrid:
		agg.GridCounts = map[string]map[string]int64{}
		for _, v := range values {
			cells, ok := v.(map[string]any)
			if !ok {
				continue
			}
			for rowKey, cell := range cells {
				if agg.GridCounts[rowKey] == nil {
					agg.GridCounts[rowKey] = map[string]int64{}
				}
				agg.GridCounts[rowKey][fmt.Sprintf("%v", cell)]++
			}
		}

	default:
		// rating, nps, scale, single-choice, dropdown: scalar distribution
		agg.Distribution = map[string]int64{}
		for _, v := range values {
			switch value := v.(type) {
			case float64:
				agg.Distribution[trimFloat(value)]++
			default:
				agg.Distribution[fmt.Sprintf("%v", value)]++
			}
		}
	}
	return agg
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func idValues(ids []snowflake.ID) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}
