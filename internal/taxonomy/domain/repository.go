package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type MetricFilter struct {
	Active        *bool
	KPI           *bool
	SubCategoryID *snowflake.ID
	DataTypes     []string
}

type Repository interface {
	InsertMetric(ctx context.Context, db *gorm.DB, m *MetricDefinition) error
	UpdateMetric(ctx context.Context, db *gorm.DB, m *MetricDefinition) error
	FindMetric(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MetricDefinition, error)
	FindMetricByCode(ctx context.Context, db *gorm.DB, code string) (*MetricDefinition, error)
	ListMetrics(ctx context.Context, db *gorm.DB, filter MetricFilter) ([]MetricDefinition, error)

	InsertUnit(ctx context.Context, db *gorm.DB, u *Unit) error
	FindUnit(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Unit, error)
	FindUnitByCode(ctx context.Context, db *gorm.DB, code string) (*Unit, error)
	ListUnits(ctx context.Context, db *gorm.DB) ([]Unit, error)

	InsertCategory(ctx context.Context, db *gorm.DB, c *Category) error
	FindCategoryByCode(ctx context.Context, db *gorm.DB, code string) (*Category, error)
	ListCategories(ctx context.Context, db *gorm.DB) ([]Category, error)

	InsertSubCategory(ctx context.Context, db *gorm.DB, s *SubCategory) error
	FindSubCategory(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SubCategory, error)
	FindSubCategoryByCode(ctx context.Context, db *gorm.DB, code string) (*SubCategory, error)
	ListSubCategories(ctx context.Context, db *gorm.DB, categoryID snowflake.ID) ([]SubCategory, error)
}
