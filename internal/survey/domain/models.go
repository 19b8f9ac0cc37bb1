// Package domain holds the survey schema the AI core consumes read-mostly:
// question types, per-type structure, and raw response values.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// The closed set of question types the platform supports. These exact
// strings are the contract with the assistant.
const (
	TypeSingleChoice   = "single-choice"
	TypeMultipleChoice = "multiple-choice"
	TypeDropdown       = "dropdown"
	TypeOpenEnded      = "open-ended"
	TypeRating         = "rating"
	TypeNPS            = "nps"
	TypeScale          = "scale"
	TypeStarRatingGrid = "star-rating-grid"
	TypeRadioGrid      = "radio-grid"
	TypeRanking        = "interactive-ranking"
	TypeContentBlock   = "content-block"
)

// AllowedQuestionTypes lists every answerable and content type.
var AllowedQuestionTypes = []string{
	TypeSingleChoice,
	TypeMultipleChoice,
	TypeDropdown,
	TypeOpenEnded,
	TypeRating,
	TypeNPS,
	TypeScale,
	TypeStarRatingGrid,
	TypeRadioGrid,
	TypeRanking,
	TypeContentBlock,
}

// IsChoiceType reports whether the type carries an options list.
func IsChoiceType(questionType string) bool {
	switch questionType {
	case TypeSingleChoice, TypeMultipleChoice, TypeDropdown:
		return true
	default:
		return false
	}
}

// IsQuantitative reports whether the stricter quantitative sample-size gates
// apply to the type.
func IsQuantitative(questionType string) bool {
	switch questionType {
	case TypeRating, TypeNPS, TypeScale, TypeSingleChoice, TypeMultipleChoice,
		TypeDropdown, TypeStarRatingGrid, TypeRadioGrid, TypeRanking:
		return true
	default:
		return false
	}
}

type Survey struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TenantID    snowflake.ID `gorm:"not null;index"`
	Title       string       `gorm:"type:text;not null"`
	Description string       `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Survey) TableName() string { return "surveys" }

// Question stores one survey question. Type-specific columns are null for
// types they do not apply to.
type Question struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	SurveyID     snowflake.ID   `gorm:"not null;index"`
	Sequence     int            `gorm:"not null"`
	Type         string         `gorm:"type:text;not null"`
	Text         string         `gorm:"type:text;not null"`
	Required     bool           `gorm:"not null;default:false"`
	Options      datatypes.JSON `gorm:"type:jsonb"`
	ScalePoints  datatypes.JSON `gorm:"type:jsonb"`
	RatingStart  *int           `gorm:""`
	RatingEnd    *int           `gorm:""`
	RatingStep   *int           `gorm:""`
	LeftLabel    string         `gorm:"type:text"`
	RightLabel   string         `gorm:"type:text"`
	GridRows     datatypes.JSON `gorm:"type:jsonb"`
	GridColumns  datatypes.JSON `gorm:"type:jsonb"`
	RankingItems datatypes.JSON `gorm:"type:jsonb"`
}

// TableName sets the database table name.
func (Question) TableName() string { return "survey_questions" }

type Submission struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	SurveyID     snowflake.ID      `gorm:"not null;index"`
	Synthetic    bool              `gorm:"not null;default:false"`
	Demographics datatypes.JSONMap `gorm:"type:jsonb"`
	SubmittedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Submission) TableName() string { return "survey_submissions" }

// Answer stores one response value. Value is JSON-typed by question type:
// string, number, array of strings, grid row map, or ranked item list.
type Answer struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	SubmissionID snowflake.ID   `gorm:"not null;index"`
	QuestionID   snowflake.ID   `gorm:"not null;index"`
	Value        datatypes.JSON `gorm:"type:jsonb"`
}

// TableName sets the database table name.
func (Answer) TableName() string { return "survey_answers" }
