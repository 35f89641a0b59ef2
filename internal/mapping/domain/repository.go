package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, m *Mapping) error
	Update(ctx context.Context, db *gorm.DB, m *Mapping) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Mapping, error)
	// FindActiveByFieldMetric returns the active mapping for the pair, if any.
	FindActiveByFieldMetric(ctx context.Context, db *gorm.DB, fieldID, metricID snowflake.ID) (*Mapping, error)
	ListActiveByTemplate(ctx context.Context, db *gorm.DB, templateID snowflake.ID) ([]Mapping, error)
	ListByTemplate(ctx context.Context, db *gorm.DB, templateID snowflake.ID) ([]Mapping, error)
}
