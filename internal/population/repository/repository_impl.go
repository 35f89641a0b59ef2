package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const runColumns = `id, run_key, submission_id, trigger_source, status, skip_reason, reporting_period,
	mapping_count, succeeded, failed, skipped, started_at, finished_at`

type repo struct{}

func Provide() populationdomain.Repository {
	return &repo{}
}

func (r *repo) UpsertValue(ctx context.Context, db *gorm.DB, v *populationdomain.MetricValue) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "org_unit_id"},
				{Name: "metric_id"},
				{Name: "reporting_period"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"numeric_value",
				"text_value",
				"source_type",
				"source_submission_id",
				"captured_at",
				"updated_at",
			}),
		}).
		Create(v).Error
}

func (r *repo) FindValue(ctx context.Context, db *gorm.DB, orgUnitID, metricID snowflake.ID, period time.Time) (*populationdomain.MetricValue, error) {
	var v populationdomain.MetricValue
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_unit_id, metric_id, reporting_period, numeric_value, text_value, source_type,
		   source_submission_id, captured_at, created_at, updated_at
		 FROM metric_values
		 WHERE org_unit_id = ? AND metric_id = ? AND reporting_period = ?`,
		orgUnitID,
		metricID,
		period,
	).Scan(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == 0 {
		return nil, nil
	}
	return &v, nil
}

func (r *repo) ListValues(ctx context.Context, db *gorm.DB, filter populationdomain.ValueFilter) ([]populationdomain.MetricValue, error) {
	var items []populationdomain.MetricValue
	stmt := db.WithContext(ctx).
		Model(&populationdomain.MetricValue{}).
		Where("org_unit_id = ?", filter.OrgUnitID)
	if filter.MetricID != nil {
		stmt = stmt.Where("metric_id = ?", *filter.MetricID)
	}
	if filter.From != nil {
		stmt = stmt.Where("reporting_period >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("reporting_period <= ?", *filter.To)
	}
	if filter.AfterID != nil {
		stmt = stmt.Where("id < ?", *filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertLog(ctx context.Context, db *gorm.DB, l *populationdomain.PopulationLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO metric_population_logs (id, run_id, submission_id, mapping_id, metric_id, source_field_id,
		   source_value, calculated_value, formula, inputs, status, error_message, processing_time_ms, populated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.RunID,
		l.SubmissionID,
		l.MappingID,
		l.MetricID,
		l.SourceFieldID,
		l.SourceValue,
		l.CalculatedValue,
		l.Formula,
		l.Inputs,
		l.Status,
		l.ErrorMessage,
		l.ProcessingTimeMs,
		l.PopulatedAt,
	).Error
}

func (r *repo) DeleteLogsBySubmission(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM metric_population_logs WHERE submission_id = ?`,
		submissionID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListLogsBySubmission(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) ([]populationdomain.PopulationLog, error) {
	var items []populationdomain.PopulationLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, run_id, submission_id, mapping_id, metric_id, source_field_id, source_value,
		   calculated_value, formula, inputs, status, error_message, processing_time_ms, populated_at
		 FROM metric_population_logs
		 WHERE submission_id = ?
		 ORDER BY id ASC`,
		submissionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertRun(ctx context.Context, db *gorm.DB, run *populationdomain.PopulationRun) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO metric_population_runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.RunKey,
		run.SubmissionID,
		run.Trigger,
		run.Status,
		run.SkipReason,
		run.ReportingPeriod,
		run.MappingCount,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		run.StartedAt,
		run.FinishedAt,
	).Error
}

func (r *repo) FinishRun(ctx context.Context, db *gorm.DB, run *populationdomain.PopulationRun) error {
	return db.WithContext(ctx).Exec(
		`UPDATE metric_population_runs
		 SET status = ?, skip_reason = ?, reporting_period = ?, mapping_count = ?,
		     succeeded = ?, failed = ?, skipped = ?, finished_at = ?
		 WHERE id = ?`,
		run.Status,
		run.SkipReason,
		run.ReportingPeriod,
		run.MappingCount,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		run.FinishedAt,
		run.ID,
	).Error
}

func (r *repo) ListRunsBySubmission(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) ([]populationdomain.PopulationRun, error) {
	var items []populationdomain.PopulationRun
	err := db.WithContext(ctx).Raw(
		`SELECT `+runColumns+`
		 FROM metric_population_runs
		 WHERE submission_id = ?
		 ORDER BY run_key ASC`,
		submissionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
