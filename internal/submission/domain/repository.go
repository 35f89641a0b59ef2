package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PendingSubmission is a finalized submission with no finished population run.
type PendingSubmission struct {
	ID          snowflake.ID `gorm:"column:id"`
	SubmittedAt time.Time    `gorm:"column:submitted_at"`
}

type Repository interface {
	FindSubmission(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Submission, error)
	ListAnswers(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) ([]Answer, error)
	FindField(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FormField, error)
	FindFields(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]FormField, error)
	ListFieldsByTemplate(ctx context.Context, db *gorm.DB, templateID snowflake.ID) ([]FormField, error)
	// ListPendingSubmissions returns finalized submissions without a completed
	// or skipped run. Cancelled runs and runs still marked running that
	// started before staleBefore do not count.
	ListPendingSubmissions(ctx context.Context, db *gorm.DB, staleBefore time.Time, limit int) ([]PendingSubmission, error)

	InsertField(ctx context.Context, db *gorm.DB, field *FormField) error
	InsertSubmission(ctx context.Context, db *gorm.DB, submission *Submission, answers []Answer) error
}
