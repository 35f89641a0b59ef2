package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() submissiondomain.Repository {
	return &repo{}
}

func (r *repo) FindSubmission(ctx context.Context, db *gorm.DB, id snowflake.ID) (*submissiondomain.Submission, error) {
	var s submissiondomain.Submission
	err := db.WithContext(ctx).Raw(
		`SELECT id, template_id, org_unit_id, submitted_at, created_at
		 FROM form_submissions WHERE id = ?`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListAnswers(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) ([]submissiondomain.Answer, error) {
	var answers []submissiondomain.Answer
	err := db.WithContext(ctx).Raw(
		`SELECT id, submission_id, field_id, numeric_value, boolean_value, text_value, date_value
		 FROM form_answers WHERE submission_id = ?
		 ORDER BY id ASC`,
		submissionID,
	).Scan(&answers).Error
	if err != nil {
		return nil, err
	}
	return answers, nil
}

func (r *repo) FindField(ctx context.Context, db *gorm.DB, id snowflake.ID) (*submissiondomain.FormField, error) {
	var f submissiondomain.FormField
	err := db.WithContext(ctx).Raw(
		`SELECT id, template_id, code, label, field_type, is_active, created_at
		 FROM form_fields WHERE id = ?`,
		id,
	).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == 0 {
		return nil, nil
	}
	return &f, nil
}

func (r *repo) FindFields(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]submissiondomain.FormField, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var fields []submissiondomain.FormField
	err := db.WithContext(ctx).Raw(
		`SELECT id, template_id, code, label, field_type, is_active, created_at
		 FROM form_fields WHERE id IN ?`,
		ids,
	).Scan(&fields).Error
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func (r *repo) ListFieldsByTemplate(ctx context.Context, db *gorm.DB, templateID snowflake.ID) ([]submissiondomain.FormField, error) {
	var fields []submissiondomain.FormField
	err := db.WithContext(ctx).Raw(
		`SELECT id, template_id, code, label, field_type, is_active, created_at
		 FROM form_fields WHERE template_id = ?
		 ORDER BY id ASC`,
		templateID,
	).Scan(&fields).Error
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func (r *repo) ListPendingSubmissions(ctx context.Context, db *gorm.DB, staleBefore time.Time, limit int) ([]submissiondomain.PendingSubmission, error) {
	var rows []submissiondomain.PendingSubmission
	// Run statuses are owned by the population module.
	err := db.WithContext(ctx).Raw(
		`SELECT s.id, s.submitted_at
		 FROM form_submissions s
		 WHERE s.submitted_at IS NOT NULL
		   AND NOT EXISTS (
		     SELECT 1 FROM metric_population_runs r
		     WHERE r.submission_id = s.id
		       AND (r.status IN ('completed', 'skipped')
		         OR (r.status = 'running' AND r.started_at >= ?))
		   )
		 ORDER BY s.submitted_at ASC, s.id ASC
		 LIMIT ?`,
		staleBefore.UTC(),
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) InsertField(ctx context.Context, db *gorm.DB, f *submissiondomain.FormField) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO form_fields (id, template_id, code, label, field_type, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.TemplateID,
		f.Code,
		f.Label,
		f.FieldType,
		f.IsActive,
		f.CreatedAt,
	).Error
}

func (r *repo) InsertSubmission(ctx context.Context, db *gorm.DB, s *submissiondomain.Submission, answers []submissiondomain.Answer) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO form_submissions (id, template_id, org_unit_id, submitted_at, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			s.ID,
			s.TemplateID,
			s.OrgUnitID,
			s.SubmittedAt,
			s.CreatedAt,
		).Error; err != nil {
			return err
		}
		for _, a := range answers {
			if err := tx.Exec(
				`INSERT INTO form_answers (id, submission_id, field_id, numeric_value, boolean_value, text_value, date_value)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.ID,
				s.ID,
				a.FieldID,
				a.NumericValue,
				a.BooleanValue,
				a.TextValue,
				a.DateValue,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
