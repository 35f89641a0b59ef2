package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound      = errors.New("submission_not_found")
	ErrFieldNotFound = errors.New("field_not_found")
	ErrInvalidID     = errors.New("invalid_id")
)

// FormField is a question on a form template.
type FormField struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	TemplateID snowflake.ID `json:"template_id" gorm:"not null;index"`
	Code       string       `json:"code" gorm:"type:text;not null"`
	Label      string       `json:"label" gorm:"type:text;not null"`
	FieldType  string       `json:"field_type" gorm:"type:text;not null"`
	IsActive   bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FormField) TableName() string { return "form_fields" }

// Submission is a filled-in form. OrgUnitID is nil for unit-agnostic templates.
type Submission struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	TemplateID  snowflake.ID  `json:"template_id" gorm:"not null;index"`
	OrgUnitID   *snowflake.ID `json:"org_unit_id,omitempty"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Submission) TableName() string { return "form_submissions" }

// EffectiveDate is the date the submission counts towards.
func (s Submission) EffectiveDate(fallback time.Time) time.Time {
	if s.SubmittedAt != nil && !s.SubmittedAt.IsZero() {
		return s.SubmittedAt.UTC()
	}
	if !s.CreatedAt.IsZero() {
		return s.CreatedAt.UTC()
	}
	return fallback.UTC()
}

// Answer holds one field's response. At most one value column is set, chosen
// by the field's declared type.
type Answer struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	SubmissionID snowflake.ID `json:"submission_id" gorm:"not null;index"`
	FieldID      snowflake.ID `json:"field_id" gorm:"not null"`
	NumericValue *float64     `json:"numeric_value,omitempty"`
	BooleanValue *bool        `json:"boolean_value,omitempty"`
	TextValue    *string      `json:"text_value,omitempty"`
	DateValue    *time.Time   `json:"date_value,omitempty"`
}

func (Answer) TableName() string { return "form_answers" }
