package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Mapping binds one form field to at most one metric. A nil MetricID is an
// unlinked mapping still being authored.
type Mapping struct {
	ID                  snowflake.ID   `json:"id" gorm:"primaryKey"`
	FieldID             snowflake.ID   `json:"field_id" gorm:"not null;index"`
	MetricID            *snowflake.ID  `json:"metric_id,omitempty"`
	MappingType         string         `json:"mapping_type" gorm:"type:text;not null"`
	AggregationType     *string        `json:"aggregation_type,omitempty" gorm:"type:text"`
	TransformationLogic datatypes.JSON `json:"transformation_logic,omitempty" gorm:"type:jsonb"`
	ExpectedValue       *string        `json:"expected_value,omitempty" gorm:"type:text"`
	IsActive            bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt           time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Mapping) TableName() string { return "metric_mappings" }

func (m Mapping) Logic() string {
	return string(m.TransformationLogic)
}
