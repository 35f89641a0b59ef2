package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Deactivate(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Response, error)
	// ListActiveByTemplate is the engine's view of a template's mappings.
	ListActiveByTemplate(ctx context.Context, templateID snowflake.ID) ([]Mapping, error)
	ListByTemplate(ctx context.Context, templateID string) ([]Response, error)
	TestMapping(ctx context.Context, req TestRequest) (*TestResult, error)
	UnmappedFields(ctx context.Context, templateID string) ([]UnmappedField, error)
}

type CreateRequest struct {
	FieldID             string          `json:"field_id"`
	MetricID            string          `json:"metric_id"`
	MappingType         string          `json:"mapping_type"`
	AggregationType     string          `json:"aggregation_type"`
	TransformationLogic json.RawMessage `json:"transformation_logic,omitempty"`
	ExpectedValue       *string         `json:"expected_value,omitempty"`
}

type UpdateRequest struct {
	ID                  string          `json:"id"`
	MetricID            *string         `json:"metric_id,omitempty"`
	AggregationType     *string         `json:"aggregation_type,omitempty"`
	TransformationLogic json.RawMessage `json:"transformation_logic,omitempty"`
	ExpectedValue       *string         `json:"expected_value,omitempty"`
	IsActive            *bool           `json:"is_active,omitempty"`
}

// TestRequest carries sample answers keyed by field id.
type TestRequest struct {
	ID      string            `json:"id"`
	Samples map[string]string `json:"samples"`
}

type TestResult struct {
	MappingID   string             `json:"mapping_id"`
	MappingType string             `json:"mapping_type"`
	Success     bool               `json:"success"`
	Value       *float64           `json:"value,omitempty"`
	SourceValue string             `json:"source_value,omitempty"`
	Inputs      map[string]float64 `json:"inputs,omitempty"`
	Skipped     string             `json:"skipped,omitempty"`
	Error       string             `json:"error,omitempty"`
}

type Response struct {
	ID                  string          `json:"id"`
	FieldID             string          `json:"field_id"`
	FieldCode           string          `json:"field_code,omitempty"`
	FieldLabel          string          `json:"field_label,omitempty"`
	FieldType           string          `json:"field_type,omitempty"`
	MetricID            string          `json:"metric_id,omitempty"`
	MappingType         string          `json:"mapping_type"`
	AggregationType     string          `json:"aggregation_type,omitempty"`
	TransformationLogic json.RawMessage `json:"transformation_logic,omitempty"`
	ExpectedValue       *string         `json:"expected_value,omitempty"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type SuggestedMetric struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

type UnmappedField struct {
	FieldID                string            `json:"field_id"`
	Code                   string            `json:"code"`
	Label                  string            `json:"label"`
	FieldType              string            `json:"field_type"`
	RecommendedMappingType string            `json:"recommended_mapping_type"`
	SuggestedMetrics       []SuggestedMetric `json:"suggested_metrics"`
}

var (
	ErrNotFound             = errors.New("mapping_not_found")
	ErrInvalidID            = errors.New("invalid_id")
	ErrFieldNotFound        = errors.New("field_not_found")
	ErrFieldInactive        = errors.New("field_inactive")
	ErrMetricNotFound       = errors.New("metric_not_found")
	ErrMetricInactive       = errors.New("metric_inactive")
	ErrInvalidMappingType   = errors.New("invalid_mapping_type")
	ErrInvalidAggregation   = errors.New("invalid_aggregation_type")
	ErrMissingFormula       = errors.New("calculated_mapping_requires_formula")
	ErrInvalidFormula       = errors.New("invalid_formula")
	ErrAliasOutsideTemplate = errors.New("formula_alias_field_outside_template")
	ErrMissingExpectedValue = errors.New("binary_compliance_requires_expected_value")
	ErrDuplicateMapping     = errors.New("duplicate_mapping")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
