package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	"gorm.io/gorm"
)

const mappingColumns = `m.id, m.field_id, m.metric_id, m.mapping_type, m.aggregation_type,
	m.transformation_logic, m.expected_value, m.is_active, m.created_at, m.updated_at`

type repo struct{}

func Provide() mappingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *mappingdomain.Mapping) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO metric_mappings (id, field_id, metric_id, mapping_type, aggregation_type,
		   transformation_logic, expected_value, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.FieldID,
		m.MetricID,
		m.MappingType,
		m.AggregationType,
		m.TransformationLogic,
		m.ExpectedValue,
		m.IsActive,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, m *mappingdomain.Mapping) error {
	return db.WithContext(ctx).Exec(
		`UPDATE metric_mappings
		 SET metric_id = ?, aggregation_type = ?, transformation_logic = ?, expected_value = ?,
		     is_active = ?, updated_at = ?
		 WHERE id = ?`,
		m.MetricID,
		m.AggregationType,
		m.TransformationLogic,
		m.ExpectedValue,
		m.IsActive,
		m.UpdatedAt,
		m.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*mappingdomain.Mapping, error) {
	var m mappingdomain.Mapping
	err := db.WithContext(ctx).Raw(
		`SELECT `+mappingColumns+` FROM metric_mappings m WHERE m.id = ?`,
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

func (r *repo) FindActiveByFieldMetric(ctx context.Context, db *gorm.DB, fieldID, metricID snowflake.ID) (*mappingdomain.Mapping, error) {
	var m mappingdomain.Mapping
	err := db.WithContext(ctx).Raw(
		`SELECT `+mappingColumns+` FROM metric_mappings m
		 WHERE m.field_id = ? AND m.metric_id = ? AND m.is_active = ?
		 LIMIT 1`,
		fieldID,
		metricID,
		true,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) ListActiveByTemplate(ctx context.Context, db *gorm.DB, templateID snowflake.ID) ([]mappingdomain.Mapping, error) {
	var items []mappingdomain.Mapping
	err := db.WithContext(ctx).Raw(
		`SELECT `+mappingColumns+`
		 FROM metric_mappings m
		 JOIN form_fields f ON f.id = m.field_id
		 WHERE f.template_id = ? AND m.is_active = ?
		 ORDER BY m.id ASC`,
		templateID,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByTemplate(ctx context.Context, db *gorm.DB, templateID snowflake.ID) ([]mappingdomain.Mapping, error) {
	var items []mappingdomain.Mapping
	err := db.WithContext(ctx).Raw(
		`SELECT `+mappingColumns+`
		 FROM metric_mappings m
		 JOIN form_fields f ON f.id = m.field_id
		 WHERE f.template_id = ?
		 ORDER BY m.id ASC`,
		templateID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
