package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
	"github.com/smallbiznis/formmetrics/pkg/repository"
	"gorm.io/gorm"
)

const metricColumns = `id, code, name, sub_category_id, source_type, data_type, unit_id, aggregation_type,
	is_kpi, threshold_green, threshold_yellow, threshold_red, expected_value, compliance_rule,
	description, is_active, created_at, updated_at`

const subCategoryColumns = `id, category_id, code, name, allowed_data_types, allowed_aggregations,
	default_data_type, default_aggregation, threshold_green, threshold_yellow, threshold_red, is_active`

type repo struct{}

func Provide() taxonomydomain.Repository {
	return &repo{}
}

func (r *repo) InsertMetric(ctx context.Context, db *gorm.DB, m *taxonomydomain.MetricDefinition) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO metric_definitions (`+metricColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Code,
		m.Name,
		m.SubCategoryID,
		m.SourceType,
		m.DataType,
		m.UnitID,
		m.AggregationType,
		m.IsKPI,
		m.ThresholdGreen,
		m.ThresholdYellow,
		m.ThresholdRed,
		m.ExpectedValue,
		m.ComplianceRule,
		m.Description,
		m.IsActive,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) UpdateMetric(ctx context.Context, db *gorm.DB, m *taxonomydomain.MetricDefinition) error {
	return db.WithContext(ctx).Exec(
		`UPDATE metric_definitions
		 SET name = ?, unit_id = ?, aggregation_type = ?, is_kpi = ?,
		     threshold_green = ?, threshold_yellow = ?, threshold_red = ?,
		     expected_value = ?, compliance_rule = ?, description = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		m.Name,
		m.UnitID,
		m.AggregationType,
		m.IsKPI,
		m.ThresholdGreen,
		m.ThresholdYellow,
		m.ThresholdRed,
		m.ExpectedValue,
		m.ComplianceRule,
		m.Description,
		m.IsActive,
		m.UpdatedAt,
		m.ID,
	).Error
}

func (r *repo) FindMetric(ctx context.Context, db *gorm.DB, id snowflake.ID) (*taxonomydomain.MetricDefinition, error) {
	var m taxonomydomain.MetricDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT `+metricColumns+` FROM metric_definitions WHERE id = ?`,
		id,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) FindMetricByCode(ctx context.Context, db *gorm.DB, code string) (*taxonomydomain.MetricDefinition, error) {
	var m taxonomydomain.MetricDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT `+metricColumns+` FROM metric_definitions WHERE code = ?`,
		code,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) ListMetrics(ctx context.Context, db *gorm.DB, filter taxonomydomain.MetricFilter) ([]taxonomydomain.MetricDefinition, error) {
	var items []taxonomydomain.MetricDefinition
	stmt := db.WithContext(ctx).Model(&taxonomydomain.MetricDefinition{})
	if filter.Active != nil {
		stmt = stmt.Where("is_active = ?", *filter.Active)
	}
	if filter.KPI != nil {
		stmt = stmt.Where("is_kpi = ?", *filter.KPI)
	}
	if filter.SubCategoryID != nil {
		stmt = stmt.Where("sub_category_id = ?", *filter.SubCategoryID)
	}
	if len(filter.DataTypes) > 0 {
		stmt = stmt.Where("data_type IN ?", filter.DataTypes)
	}
	if err := stmt.Order("code asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertUnit(ctx context.Context, db *gorm.DB, u *taxonomydomain.Unit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO metric_units (id, code, name, symbol, format_pattern, suggested_aggregation, category, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Code,
		u.Name,
		u.Symbol,
		u.FormatPattern,
		u.SuggestedAggregation,
		u.Category,
		u.IsActive,
		u.CreatedAt,
	).Error
}

func (r *repo) FindUnit(ctx context.Context, db *gorm.DB, id snowflake.ID) (*taxonomydomain.Unit, error) {
	var u taxonomydomain.Unit
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, symbol, format_pattern, suggested_aggregation, category, is_active, created_at
		 FROM metric_units WHERE id = ?`,
		id,
	).Scan(&u).Error
	if err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, nil
	}
	return &u, nil
}

func (r *repo) FindUnitByCode(ctx context.Context, db *gorm.DB, code string) (*taxonomydomain.Unit, error) {
	var u taxonomydomain.Unit
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, symbol, format_pattern, suggested_aggregation, category, is_active, created_at
		 FROM metric_units WHERE code = ?`,
		code,
	).Scan(&u).Error
	if err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, nil
	}
	return &u, nil
}

func (r *repo) ListUnits(ctx context.Context, db *gorm.DB) ([]taxonomydomain.Unit, error) {
	return repository.ProvideStore[taxonomydomain.Unit](db).Find(ctx,
		&taxonomydomain.Unit{IsActive: true},
		repository.OrderBy("code ASC"),
	)
}

func (r *repo) InsertCategory(ctx context.Context, db *gorm.DB, c *taxonomydomain.Category) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO metric_categories (id, code, name, description, sort_order, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Code,
		c.Name,
		c.Description,
		c.SortOrder,
		c.IsActive,
	).Error
}

func (r *repo) FindCategoryByCode(ctx context.Context, db *gorm.DB, code string) (*taxonomydomain.Category, error) {
	var c taxonomydomain.Category
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, sort_order, is_active
		 FROM metric_categories WHERE code = ?`,
		code,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) ListCategories(ctx context.Context, db *gorm.DB) ([]taxonomydomain.Category, error) {
	return repository.ProvideStore[taxonomydomain.Category](db).Find(ctx,
		&taxonomydomain.Category{IsActive: true},
		repository.OrderBy("sort_order ASC"),
		repository.OrderBy("code ASC"),
	)
}

func (r *repo) InsertSubCategory(ctx context.Context, db *gorm.DB, s *taxonomydomain.SubCategory) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO metric_sub_categories (`+subCategoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.CategoryID,
		s.Code,
		s.Name,
		s.AllowedDataTypes,
		s.AllowedAggregations,
		s.DefaultDataType,
		s.DefaultAggregation,
		s.ThresholdGreen,
		s.ThresholdYellow,
		s.ThresholdRed,
		s.IsActive,
	).Error
}

func (r *repo) FindSubCategory(ctx context.Context, db *gorm.DB, id snowflake.ID) (*taxonomydomain.SubCategory, error) {
	var s taxonomydomain.SubCategory
	err := db.WithContext(ctx).Raw(
		`SELECT `+subCategoryColumns+` FROM metric_sub_categories WHERE id = ?`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) FindSubCategoryByCode(ctx context.Context, db *gorm.DB, code string) (*taxonomydomain.SubCategory, error) {
	var s taxonomydomain.SubCategory
	err := db.WithContext(ctx).Raw(
		`SELECT `+subCategoryColumns+` FROM metric_sub_categories WHERE code = ?`,
		code,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListSubCategories(ctx context.Context, db *gorm.DB, categoryID snowflake.ID) ([]taxonomydomain.SubCategory, error) {
	return repository.ProvideStore[taxonomydomain.SubCategory](db).Find(ctx,
		&taxonomydomain.SubCategory{CategoryID: categoryID, IsActive: true},
		repository.OrderBy("code ASC"),
	)
}
