package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateMetric(ctx context.Context, req CreateMetricRequest) (*MetricResponse, error)
	GetMetric(ctx context.Context, id string) (*MetricResponse, error)
	GetMetricByCode(ctx context.Context, code string) (*MetricResponse, error)
	ListMetrics(ctx context.Context, req ListMetricsRequest) ([]MetricResponse, error)
	UpdateMetric(ctx context.Context, req UpdateMetricRequest) (*MetricResponse, error)
	UpdateThresholds(ctx context.Context, req UpdateThresholdsRequest) (*MetricResponse, error)
	DeactivateMetric(ctx context.Context, id string) error
	MetricsForFieldType(ctx context.Context, fieldType string) ([]MetricResponse, error)

	ListUnits(ctx context.Context) ([]Unit, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ListSubCategories(ctx context.Context, categoryID string) ([]SubCategory, error)

	// ResolveMetric loads a metric and its unit. It returns ErrNotFound for
	// unknown ids and does not filter on the active flag.
	ResolveMetric(ctx context.Context, id snowflake.ID) (*ResolvedMetric, error)
}

type ThresholdsRequest struct {
	Green  float64 `json:"green"`
	Yellow float64 `json:"yellow"`
	Red    float64 `json:"red"`
}

type CreateMetricRequest struct {
	Code            string             `json:"code"`
	Name            string             `json:"name"`
	SubCategoryID   string             `json:"sub_category_id"`
	SourceType      string             `json:"source_type"`
	DataType        string             `json:"data_type"`
	UnitID          string             `json:"unit_id"`
	AggregationType string             `json:"aggregation_type"`
	IsKPI           bool               `json:"is_kpi"`
	Thresholds      *ThresholdsRequest `json:"thresholds,omitempty"`
	ExpectedValue   *string            `json:"expected_value,omitempty"`
	ComplianceRule  json.RawMessage    `json:"compliance_rule,omitempty"`
	Description     string             `json:"description"`
}

type UpdateMetricRequest struct {
	ID              string          `json:"id"`
	Name            *string         `json:"name,omitempty"`
	Description     *string         `json:"description,omitempty"`
	AggregationType *string         `json:"aggregation_type,omitempty"`
	UnitID          *string         `json:"unit_id,omitempty"`
	IsKPI           *bool           `json:"is_kpi,omitempty"`
	ExpectedValue   *string         `json:"expected_value,omitempty"`
	ComplianceRule  json.RawMessage `json:"compliance_rule,omitempty"`
	IsActive        *bool           `json:"is_active,omitempty"`
}

// UpdateThresholdsRequest with nil Thresholds clears them.
type UpdateThresholdsRequest struct {
	ID         string             `json:"id"`
	Thresholds *ThresholdsRequest `json:"thresholds"`
}

type ListMetricsRequest struct {
	Active        *bool
	KPI           *bool
	SubCategoryID string
}

type MetricResponse struct {
	ID              string             `json:"id"`
	Code            string             `json:"code"`
	Name            string             `json:"name"`
	SubCategoryID   string             `json:"sub_category_id,omitempty"`
	SourceType      string             `json:"source_type"`
	DataType        string             `json:"data_type"`
	UnitID          string             `json:"unit_id,omitempty"`
	UnitCode        string             `json:"unit_code,omitempty"`
	UnitSymbol      string             `json:"unit_symbol,omitempty"`
	AggregationType string             `json:"aggregation_type"`
	IsKPI           bool               `json:"is_kpi"`
	Thresholds      *ThresholdsRequest `json:"thresholds,omitempty"`
	ExpectedValue   *string            `json:"expected_value,omitempty"`
	ComplianceRule  json.RawMessage    `json:"compliance_rule,omitempty"`
	Description     string             `json:"description"`
	IsActive        bool               `json:"is_active"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

var (
	ErrNotFound              = errors.New("metric_not_found")
	ErrUnitNotFound          = errors.New("unit_not_found")
	ErrSubCategoryNotFound   = errors.New("sub_category_not_found")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidCode           = errors.New("invalid_code")
	ErrDuplicateCode         = errors.New("duplicate_code")
	ErrInvalidDataType       = errors.New("invalid_data_type")
	ErrInvalidAggregation    = errors.New("invalid_aggregation_type")
	ErrInvalidThresholds     = errors.New("invalid_thresholds")
	ErrInvalidComplianceRule = errors.New("invalid_compliance_rule")
	ErrDataTypeNotAllowed    = errors.New("data_type_not_allowed_for_sub_category")
	ErrAggregationNotAllowed = errors.New("aggregation_not_allowed_for_sub_category")
	ErrInvalidFieldType      = errors.New("invalid_field_type")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
