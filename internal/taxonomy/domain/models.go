package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Unit categories drive value rendering.
const (
	UnitCategoryNumeric    = "Numeric"
	UnitCategoryPercentage = "Percentage"
	UnitCategoryCount      = "Count"
	UnitCategoryStatus     = "Status"
	UnitCategoryDuration   = "Duration"
	UnitCategoryCurrency   = "Currency"
)

// Threshold status values.
const (
	StatusGreen  = "green"
	StatusYellow = "yellow"
	StatusRed    = "red"
	StatusNone   = "none"
)

type Unit struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	Code                 string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name                 string       `json:"name" gorm:"type:text;not null"`
	Symbol               string       `json:"symbol" gorm:"type:text"`
	FormatPattern        string       `json:"format_pattern" gorm:"type:text"`
	SuggestedAggregation string       `json:"suggested_aggregation" gorm:"type:text"`
	Category             string       `json:"category" gorm:"type:text;not null"`
	IsActive             bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Unit) TableName() string { return "metric_units" }

type Category struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Code        string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description string       `json:"description" gorm:"type:text"`
	SortOrder   int          `json:"sort_order" gorm:"not null;default:0"`
	IsActive    bool         `json:"is_active" gorm:"not null;default:true"`
}

func (Category) TableName() string { return "metric_categories" }

type SubCategory struct {
	ID                  snowflake.ID   `json:"id" gorm:"primaryKey"`
	CategoryID          snowflake.ID   `json:"category_id" gorm:"not null;index"`
	Code                string         `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name                string         `json:"name" gorm:"type:text;not null"`
	AllowedDataTypes    datatypes.JSON `json:"allowed_data_types" gorm:"type:jsonb"`
	AllowedAggregations datatypes.JSON `json:"allowed_aggregations" gorm:"type:jsonb"`
	DefaultDataType     string         `json:"default_data_type" gorm:"type:text"`
	DefaultAggregation  string         `json:"default_aggregation" gorm:"type:text"`
	ThresholdGreen      *float64       `json:"threshold_green,omitempty"`
	ThresholdYellow     *float64       `json:"threshold_yellow,omitempty"`
	ThresholdRed        *float64       `json:"threshold_red,omitempty"`
	IsActive            bool           `json:"is_active" gorm:"not null;default:true"`
}

func (SubCategory) TableName() string { return "metric_sub_categories" }

type MetricDefinition struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Code            string         `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name            string         `json:"name" gorm:"type:text;not null"`
	SubCategoryID   *snowflake.ID  `json:"sub_category_id,omitempty"`
	SourceType      string         `json:"source_type" gorm:"type:text"`
	DataType        string         `json:"data_type" gorm:"type:text;not null"`
	UnitID          *snowflake.ID  `json:"unit_id,omitempty"`
	AggregationType string         `json:"aggregation_type" gorm:"type:text;not null"`
	IsKPI           bool           `json:"is_kpi" gorm:"column:is_kpi;not null;default:false"`
	ThresholdGreen  *float64       `json:"threshold_green,omitempty"`
	ThresholdYellow *float64       `json:"threshold_yellow,omitempty"`
	ThresholdRed    *float64       `json:"threshold_red,omitempty"`
	ExpectedValue   *string        `json:"expected_value,omitempty"`
	ComplianceRule  datatypes.JSON `json:"compliance_rule,omitempty" gorm:"type:jsonb"`
	Description     string         `json:"description" gorm:"type:text"`
	IsActive        bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MetricDefinition) TableName() string { return "metric_definitions" }

// HasThresholds reports whether all three boundaries are set.
func (m MetricDefinition) HasThresholds() bool {
	return m.ThresholdGreen != nil && m.ThresholdYellow != nil && m.ThresholdRed != nil
}

// ResolvedMetric is a metric joined with its unit, as the engine needs it.
type ResolvedMetric struct {
	Metric MetricDefinition
	Unit   *Unit
}

func (r ResolvedMetric) Format(value float64) string {
	return FormatValue(r.Unit, value)
}

func (r ResolvedMetric) ThresholdStatus(value float64) string {
	return ThresholdStatus(r.Metric, value)
}
