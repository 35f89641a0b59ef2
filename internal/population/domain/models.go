package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Audit record statuses.
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
	StatusSkipped = "Skipped"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunSkipped   = "skipped"
	RunCancelled = "cancelled"
)

// Run triggers.
const (
	TriggerAPI         = "api"
	TriggerWorker      = "worker"
	TriggerCLI         = "cli"
	TriggerRecalculate = "recalculate"
)

// Run skip reasons.
const (
	SkipReasonNoOrgUnit        = "no_org_unit"
	SkipReasonNoActiveMappings = "no_active_mappings"
)

// MetricValue is the single row per (org unit, metric, period). Writes are
// upserts on that key and the engine never deletes rows.
type MetricValue struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgUnitID          snowflake.ID `json:"org_unit_id" gorm:"not null;uniqueIndex:ux_metric_values_key,priority:1"`
	MetricID           snowflake.ID `json:"metric_id" gorm:"not null;uniqueIndex:ux_metric_values_key,priority:2"`
	ReportingPeriod    time.Time    `json:"reporting_period" gorm:"not null;uniqueIndex:ux_metric_values_key,priority:3"`
	NumericValue       float64      `json:"numeric_value" gorm:"not null"`
	TextValue          *string      `json:"text_value,omitempty" gorm:"type:text"`
	SourceType         string       `json:"source_type" gorm:"type:text;not null"`
	SourceSubmissionID snowflake.ID `json:"source_submission_id" gorm:"not null"`
	CapturedAt         time.Time    `json:"captured_at" gorm:"not null"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (MetricValue) TableName() string { return "metric_values" }

// PopulationLog is the audit record of one mapping in one run.
type PopulationLog struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	RunID            snowflake.ID   `json:"run_id" gorm:"not null;index"`
	SubmissionID     snowflake.ID   `json:"submission_id" gorm:"not null;index"`
	MappingID        snowflake.ID   `json:"mapping_id" gorm:"not null"`
	MetricID         *snowflake.ID  `json:"metric_id,omitempty"`
	SourceFieldID    snowflake.ID   `json:"source_field_id" gorm:"not null"`
	SourceValue      *string        `json:"source_value,omitempty" gorm:"type:text"`
	CalculatedValue  *float64       `json:"calculated_value,omitempty"`
	Formula          *string        `json:"formula,omitempty" gorm:"type:text"`
	Inputs           datatypes.JSON `json:"inputs,omitempty" gorm:"type:jsonb"`
	Status           string         `json:"status" gorm:"type:text;not null"`
	ErrorMessage     *string        `json:"error_message,omitempty" gorm:"type:text"`
	ProcessingTimeMs int64          `json:"processing_time_ms" gorm:"not null;default:0"`
	PopulatedAt      time.Time      `json:"populated_at" gorm:"not null"`
}

func (PopulationLog) TableName() string { return "metric_population_logs" }

// PopulationRun records one invocation of the engine, skips included.
type PopulationRun struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	RunKey          string       `json:"run_key" gorm:"type:text;not null;uniqueIndex"`
	SubmissionID    snowflake.ID `json:"submission_id" gorm:"not null;index"`
	Trigger         string       `json:"trigger" gorm:"column:trigger_source;type:text;not null"`
	Status          string       `json:"status" gorm:"type:text;not null"`
	SkipReason      *string      `json:"skip_reason,omitempty" gorm:"type:text"`
	ReportingPeriod *time.Time   `json:"reporting_period,omitempty"`
	MappingCount    int          `json:"mapping_count" gorm:"not null;default:0"`
	Succeeded       int          `json:"succeeded" gorm:"not null;default:0"`
	Failed          int          `json:"failed" gorm:"not null;default:0"`
	Skipped         int          `json:"skipped" gorm:"not null;default:0"`
	StartedAt       time.Time    `json:"started_at" gorm:"not null"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
}

func (PopulationRun) TableName() string { return "metric_population_runs" }

// PeriodStart truncates t to the first day of its month in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
