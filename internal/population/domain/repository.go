package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ValueFilter struct {
	OrgUnitID snowflake.ID
	MetricID  *snowflake.ID
	From      *time.Time
	To        *time.Time
	// AfterID continues a page strictly below this id.
	AfterID *snowflake.ID
	Limit   int
}

type Repository interface {
	// UpsertValue writes v atomically on (org_unit_id, metric_id, reporting_period).
	UpsertValue(ctx context.Context, db *gorm.DB, v *MetricValue) error
	FindValue(ctx context.Context, db *gorm.DB, orgUnitID, metricID snowflake.ID, period time.Time) (*MetricValue, error)
	ListValues(ctx context.Context, db *gorm.DB, filter ValueFilter) ([]MetricValue, error)

	InsertLog(ctx context.Context, db *gorm.DB, l *PopulationLog) error
	DeleteLogsBySubmission(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) (int64, error)
	ListLogsBySubmission(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) ([]PopulationLog, error)

	InsertRun(ctx context.Context, db *gorm.DB, r *PopulationRun) error
	FinishRun(ctx context.Context, db *gorm.DB, r *PopulationRun) error
	ListRunsBySubmission(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) ([]PopulationRun, error)
}
