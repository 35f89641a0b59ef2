package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/formmetrics/pkg/db/pagination"
)

type Service interface {
	// PopulateFromSubmission computes and stores metric values for every
	// active mapping of the submission's template. Only a missing submission
	// or a load failure is returned as an error.
	PopulateFromSubmission(ctx context.Context, submissionID snowflake.ID) (*RunSummary, error)
	// Recalculate discards the submission's audit records and populates again.
	Recalculate(ctx context.Context, submissionID snowflake.ID) (*RunSummary, error)

	GetValue(ctx context.Context, req GetValueRequest) (*ValueResponse, error)
	ListValues(ctx context.Context, req ListValuesRequest) (*ListValuesResponse, error)
	ListLogs(ctx context.Context, submissionID string) ([]LogResponse, error)
	ListRuns(ctx context.Context, submissionID string) ([]RunResponse, error)
}

type triggerKey struct{}

// WithTrigger tags ctx with what started a population run.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFromContext defaults to TriggerAPI.
func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(triggerKey{}).(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return TriggerAPI
}

type RunSummary struct {
	RunID           string     `json:"run_id"`
	RunKey          string     `json:"run_key"`
	SubmissionID    string     `json:"submission_id"`
	Trigger         string     `json:"trigger"`
	Status          string     `json:"status"`
	SkipReason      string     `json:"skip_reason,omitempty"`
	ReportingPeriod *time.Time `json:"reporting_period,omitempty"`
	MappingCount    int        `json:"mapping_count"`
	Succeeded       int        `json:"succeeded"`
	Failed          int        `json:"failed"`
	Skipped         int        `json:"skipped"`
	DeletedLogs     int64      `json:"deleted_logs,omitempty"`
	DurationMs      int64      `json:"duration_ms"`
}

type GetValueRequest struct {
	OrgUnitID string
	MetricID  string
	Period    string
}

type ListValuesRequest struct {
	OrgUnitID string
	MetricID  string
	From      *time.Time
	To        *time.Time
	pagination.Pagination
}

type ValueResponse struct {
	ID                 string    `json:"id"`
	OrgUnitID          string    `json:"org_unit_id"`
	MetricID           string    `json:"metric_id"`
	ReportingPeriod    string    `json:"reporting_period"`
	NumericValue       float64   `json:"numeric_value"`
	TextValue          *string   `json:"text_value,omitempty"`
	SourceType         string    `json:"source_type"`
	SourceSubmissionID string    `json:"source_submission_id"`
	CapturedAt         time.Time `json:"captured_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ListValuesResponse struct {
	Values   []ValueResponse      `json:"values"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type LogResponse struct {
	ID               string          `json:"id"`
	RunID            string          `json:"run_id"`
	MappingID        string          `json:"mapping_id"`
	MetricID         string          `json:"metric_id,omitempty"`
	SourceFieldID    string          `json:"source_field_id"`
	SourceValue      *string         `json:"source_value,omitempty"`
	CalculatedValue  *float64        `json:"calculated_value,omitempty"`
	Formula          *string         `json:"formula,omitempty"`
	Inputs           json.RawMessage `json:"inputs,omitempty"`
	Status           string          `json:"status"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	PopulatedAt      time.Time       `json:"populated_at"`
}

type RunResponse struct {
	ID              string     `json:"id"`
	RunKey          string     `json:"run_key"`
	Trigger         string     `json:"trigger"`
	Status          string     `json:"status"`
	SkipReason      *string    `json:"skip_reason,omitempty"`
	ReportingPeriod *time.Time `json:"reporting_period,omitempty"`
	MappingCount    int        `json:"mapping_count"`
	Succeeded       int        `json:"succeeded"`
	Failed          int        `json:"failed"`
	Skipped         int        `json:"skipped"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

var (
	ErrSubmissionNotFound = errors.New("submission_not_found")
	ErrValueNotFound      = errors.New("metric_value_not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidPeriod      = errors.New("invalid_period")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrInvalidRange       = errors.New("invalid_range")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}

// ParsePeriod accepts YYYY-MM or YYYY-MM-DD and returns the month start.
func ParsePeriod(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return PeriodStart(t), nil
		}
	}
	return time.Time{}, ErrInvalidPeriod
}
