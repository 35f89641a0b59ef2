package service

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/formmetrics/internal/clock"
	"github.com/smallbiznis/formmetrics/internal/compatibility"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
	"github.com/smallbiznis/formmetrics/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  taxonomydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  taxonomydomain.Repository
}

func New(p Params) taxonomydomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("taxonomy.service"),
		genID: p.GenID,
		clock: c,
		repo:  p.Repo,
	}
}

func (s *Service) CreateMetric(ctx context.Context, req taxonomydomain.CreateMetricRequest) (*taxonomydomain.MetricResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, taxonomydomain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = MetricCode(name)
	}
	if code == "" {
		return nil, taxonomydomain.ErrInvalidCode
	}
	existing, err := s.repo.FindMetricByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, taxonomydomain.ErrDuplicateCode
	}

	var sub *taxonomydomain.SubCategory
	var subID *snowflake.ID
	if raw := strings.TrimSpace(req.SubCategoryID); raw != "" {
		id, err := taxonomydomain.ParseID(raw)
		if err != nil {
			return nil, taxonomydomain.ErrInvalidID
		}
		sub, err = s.repo.FindSubCategory(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, taxonomydomain.ErrSubCategoryNotFound
		}
		subID = &id
	}

	var unit *taxonomydomain.Unit
	var unitID *snowflake.ID
	if raw := strings.TrimSpace(req.UnitID); raw != "" {
		unit, unitID, err = s.loadUnit(ctx, raw)
		if err != nil {
			return nil, err
		}
	}

	dataType := strings.TrimSpace(req.DataType)
	if dataType == "" && sub != nil {
		dataType = sub.DefaultDataType
	}
	if !compatibility.IsDataType(dataType) {
		return nil, taxonomydomain.ErrInvalidDataType
	}

	aggregation, err := resolveAggregation(req.AggregationType, sub, unit)
	if err != nil {
		return nil, err
	}

	if sub != nil {
		if !allows(sub.AllowedDataTypes, dataType) {
			return nil, taxonomydomain.ErrDataTypeNotAllowed
		}
		if !allows(sub.AllowedAggregations, string(aggregation)) {
			return nil, taxonomydomain.ErrAggregationNotAllowed
		}
	}

	rule, err := complianceRule(req.ComplianceRule)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	m := &taxonomydomain.MetricDefinition{
		ID:              s.genID.Generate(),
		Code:            code,
		Name:            name,
		SubCategoryID:   subID,
		SourceType:      strings.TrimSpace(req.SourceType),
		DataType:        dataType,
		UnitID:          unitID,
		AggregationType: string(aggregation),
		IsKPI:           req.IsKPI,
		ExpectedValue:   trimmedOrNil(req.ExpectedValue),
		ComplianceRule:  rule,
		Description:     strings.TrimSpace(req.Description),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if m.SourceType == "" {
		m.SourceType = "Form"
	}

	if req.Thresholds != nil {
		if err := setThresholds(m, req.Thresholds); err != nil {
			return nil, err
		}
	} else if m.IsKPI {
		m.ThresholdGreen, m.ThresholdYellow, m.ThresholdRed = suggestedThresholds(sub, dataType, aggregation)
	}

	if err := s.repo.InsertMetric(ctx, s.db, m); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, taxonomydomain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("metric created", zap.String("metric_id", m.ID.String()), zap.String("code", m.Code))
	return s.toResponse(m, unit), nil
}

func (s *Service) GetMetric(ctx context.Context, id string) (*taxonomydomain.MetricResponse, error) {
	metricID, err := taxonomydomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, taxonomydomain.ErrInvalidID
	}
	resolved, err := s.ResolveMetric(ctx, metricID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(&resolved.Metric, resolved.Unit), nil
}

func (s *Service) GetMetricByCode(ctx context.Context, code string) (*taxonomydomain.MetricResponse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, taxonomydomain.ErrInvalidCode
	}
	m, err := s.repo.FindMetricByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, taxonomydomain.ErrNotFound
	}
	unit, err := s.unitFor(ctx, m)
	if err != nil {
		return nil, err
	}
	return s.toResponse(m, unit), nil
}

func (s *Service) ListMetrics(ctx context.Context, req taxonomydomain.ListMetricsRequest) ([]taxonomydomain.MetricResponse, error) {
	filter := taxonomydomain.MetricFilter{
		Active: req.Active,
		KPI:    req.KPI,
	}
	if raw := strings.TrimSpace(req.SubCategoryID); raw != "" {
		id, err := taxonomydomain.ParseID(raw)
		if err != nil {
			return nil, taxonomydomain.ErrInvalidID
		}
		filter.SubCategoryID = &id
	}
	return s.listMetrics(ctx, filter)
}

func (s *Service) UpdateMetric(ctx context.Context, req taxonomydomain.UpdateMetricRequest) (*taxonomydomain.MetricResponse, error) {
	m, err := s.findMetric(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, taxonomydomain.ErrInvalidName
		}
		m.Name = name
	}
	if req.Description != nil {
		m.Description = strings.TrimSpace(*req.Description)
	}
	if req.AggregationType != nil {
		agg, ok := compatibility.ParseAggregationType(*req.AggregationType)
		if !ok {
			return nil, taxonomydomain.ErrInvalidAggregation
		}
		m.AggregationType = string(agg)
	}
	if req.UnitID != nil {
		if raw := strings.TrimSpace(*req.UnitID); raw == "" {
			m.UnitID = nil
		} else {
			_, unitID, err := s.loadUnit(ctx, raw)
			if err != nil {
				return nil, err
			}
			m.UnitID = unitID
		}
	}
	if req.IsKPI != nil {
		m.IsKPI = *req.IsKPI
	}
	if req.ExpectedValue != nil {
		m.ExpectedValue = trimmedOrNil(req.ExpectedValue)
	}
	if req.ComplianceRule != nil {
		rule, err := complianceRule(req.ComplianceRule)
		if err != nil {
			return nil, err
		}
		m.ComplianceRule = rule
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}

	if m.SubCategoryID != nil {
		sub, err := s.repo.FindSubCategory(ctx, s.db, *m.SubCategoryID)
		if err != nil {
			return nil, err
		}
		if sub != nil && !allows(sub.AllowedAggregations, m.AggregationType) {
			return nil, taxonomydomain.ErrAggregationNotAllowed
		}
	}

	m.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.UpdateMetric(ctx, s.db, m); err != nil {
		return nil, err
	}

	unit, err := s.unitFor(ctx, m)
	if err != nil {
		return nil, err
	}
	return s.toResponse(m, unit), nil
}

func (s *Service) UpdateThresholds(ctx context.Context, req taxonomydomain.UpdateThresholdsRequest) (*taxonomydomain.MetricResponse, error) {
	m, err := s.findMetric(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Thresholds == nil {
		m.ThresholdGreen, m.ThresholdYellow, m.ThresholdRed = nil, nil, nil
	} else if err := setThresholds(m, req.Thresholds); err != nil {
		return nil, err
	}

	m.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.UpdateMetric(ctx, s.db, m); err != nil {
		return nil, err
	}

	unit, err := s.unitFor(ctx, m)
	if err != nil {
		return nil, err
	}
	return s.toResponse(m, unit), nil
}

func (s *Service) DeactivateMetric(ctx context.Context, id string) error {
	m, err := s.findMetric(ctx, id)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return nil
	}
	m.IsActive = false
	m.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.UpdateMetric(ctx, s.db, m); err != nil {
		return err
	}
	s.log.Info("metric deactivated", zap.String("metric_id", m.ID.String()))
	return nil
}

func (s *Service) MetricsForFieldType(ctx context.Context, fieldType string) ([]taxonomydomain.MetricResponse, error) {
	ft, ok := compatibility.ParseFieldType(fieldType)
	if !ok {
		return nil, taxonomydomain.ErrInvalidFieldType
	}
	active := true
	return s.listMetrics(ctx, taxonomydomain.MetricFilter{
		Active:    &active,
		DataTypes: compatibility.CompatibleMetricDataTypes(ft),
	})
}

func (s *Service) ListUnits(ctx context.Context) ([]taxonomydomain.Unit, error) {
	return s.repo.ListUnits(ctx, s.db)
}

func (s *Service) ListCategories(ctx context.Context) ([]taxonomydomain.Category, error) {
	return s.repo.ListCategories(ctx, s.db)
}

func (s *Service) ListSubCategories(ctx context.Context, categoryID string) ([]taxonomydomain.SubCategory, error) {
	id, err := taxonomydomain.ParseID(strings.TrimSpace(categoryID))
	if err != nil {
		return nil, taxonomydomain.ErrInvalidID
	}
	return s.repo.ListSubCategories(ctx, s.db, id)
}

func (s *Service) ResolveMetric(ctx context.Context, id snowflake.ID) (*taxonomydomain.ResolvedMetric, error) {
	m, err := s.repo.FindMetric(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, taxonomydomain.ErrNotFound
	}
	unit, err := s.unitFor(ctx, m)
	if err != nil {
		return nil, err
	}
	return &taxonomydomain.ResolvedMetric{Metric: *m, Unit: unit}, nil
}

// MetricCode derives an upper snake case code from a display name.
func MetricCode(name string) string {
	return strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", "_"))
}

func (s *Service) findMetric(ctx context.Context, rawID string) (*taxonomydomain.MetricDefinition, error) {
	id, err := taxonomydomain.ParseID(strings.TrimSpace(rawID))
	if err != nil {
		return nil, taxonomydomain.ErrInvalidID
	}
	m, err := s.repo.FindMetric(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, taxonomydomain.ErrNotFound
	}
	return m, nil
}

func (s *Service) listMetrics(ctx context.Context, filter taxonomydomain.MetricFilter) ([]taxonomydomain.MetricResponse, error) {
	items, err := s.repo.ListMetrics(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	units := make(map[snowflake.ID]*taxonomydomain.Unit)
	resp := make([]taxonomydomain.MetricResponse, 0, len(items))
	for i := range items {
		var unit *taxonomydomain.Unit
		if items[i].UnitID != nil {
			cached, ok := units[*items[i].UnitID]
			if !ok {
				cached, err = s.repo.FindUnit(ctx, s.db, *items[i].UnitID)
				if err != nil {
					return nil, err
				}
				units[*items[i].UnitID] = cached
			}
			unit = cached
		}
		resp = append(resp, *s.toResponse(&items[i], unit))
	}
	return resp, nil
}

func (s *Service) loadUnit(ctx context.Context, raw string) (*taxonomydomain.Unit, *snowflake.ID, error) {
	id, err := taxonomydomain.ParseID(raw)
	if err != nil {
		return nil, nil, taxonomydomain.ErrInvalidID
	}
	unit, err := s.repo.FindUnit(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	if unit == nil {
		return nil, nil, taxonomydomain.ErrUnitNotFound
	}
	return unit, &id, nil
}

func (s *Service) unitFor(ctx context.Context, m *taxonomydomain.MetricDefinition) (*taxonomydomain.Unit, error) {
	if m.UnitID == nil {
		return nil, nil
	}
	return s.repo.FindUnit(ctx, s.db, *m.UnitID)
}

func (s *Service) toResponse(m *taxonomydomain.MetricDefinition, unit *taxonomydomain.Unit) *taxonomydomain.MetricResponse {
	resp := &taxonomydomain.MetricResponse{
		ID:              m.ID.String(),
		Code:            m.Code,
		Name:            m.Name,
		SourceType:      m.SourceType,
		DataType:        m.DataType,
		AggregationType: m.AggregationType,
		IsKPI:           m.IsKPI,
		ExpectedValue:   m.ExpectedValue,
		Description:     m.Description,
		IsActive:        m.IsActive,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.SubCategoryID != nil {
		resp.SubCategoryID = m.SubCategoryID.String()
	}
	if m.UnitID != nil {
		resp.UnitID = m.UnitID.String()
	}
	if unit != nil {
		resp.UnitCode = unit.Code
		resp.UnitSymbol = unit.Symbol
	}
	if m.HasThresholds() {
		resp.Thresholds = &taxonomydomain.ThresholdsRequest{
			Green:  *m.ThresholdGreen,
			Yellow: *m.ThresholdYellow,
			Red:    *m.ThresholdRed,
		}
	}
	if len(m.ComplianceRule) > 0 {
		resp.ComplianceRule = json.RawMessage(m.ComplianceRule)
	}
	return resp
}

func resolveAggregation(raw string, sub *taxonomydomain.SubCategory, unit *taxonomydomain.Unit) (compatibility.AggregationType, error) {
	candidates := []string{raw}
	if sub != nil {
		candidates = append(candidates, sub.DefaultAggregation)
	}
	if unit != nil {
		candidates = append(candidates, unit.SuggestedAggregation)
	}
	for i, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		agg, ok := compatibility.ParseAggregationType(c)
		if !ok {
			if i == 0 {
				return "", taxonomydomain.ErrInvalidAggregation
			}
			continue
		}
		return agg, nil
	}
	return compatibility.AggregationLatest, nil
}

func setThresholds(m *taxonomydomain.MetricDefinition, t *taxonomydomain.ThresholdsRequest) error {
	if !taxonomydomain.MonotonicThresholds(t.Green, t.Yellow, t.Red) {
		return taxonomydomain.ErrInvalidThresholds
	}
	green, yellow, red := t.Green, t.Yellow, t.Red
	m.ThresholdGreen, m.ThresholdYellow, m.ThresholdRed = &green, &yellow, &red
	return nil
}

func suggestedThresholds(sub *taxonomydomain.SubCategory, dataType string, agg compatibility.AggregationType) (*float64, *float64, *float64) {
	if sub != nil && sub.ThresholdGreen != nil && sub.ThresholdYellow != nil && sub.ThresholdRed != nil {
		green, yellow, red := *sub.ThresholdGreen, *sub.ThresholdYellow, *sub.ThresholdRed
		return &green, &yellow, &red
	}
	suggested := compatibility.SuggestThresholds(dataType, agg)
	if suggested == nil {
		return nil, nil, nil
	}
	return &suggested.Green, &suggested.Yellow, &suggested.Red
}

// allows treats an empty allow-list as allowing everything.
func allows(list datatypes.JSON, value string) bool {
	if len(list) == 0 {
		return true
	}
	var values []string
	if err := json.Unmarshal(list, &values); err != nil || len(values) == 0 {
		return true
	}
	return slices.ContainsFunc(values, func(v string) bool {
		return strings.EqualFold(v, value)
	})
}

func complianceRule(raw json.RawMessage) (datatypes.JSON, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, taxonomydomain.ErrInvalidComplianceRule
	}
	return datatypes.JSON(trimmed), nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
