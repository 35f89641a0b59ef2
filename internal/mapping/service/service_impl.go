package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/formmetrics/internal/clock"
	"github.com/smallbiznis/formmetrics/internal/compatibility"
	"github.com/smallbiznis/formmetrics/internal/config"
	"github.com/smallbiznis/formmetrics/internal/formula"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	"github.com/smallbiznis/formmetrics/internal/mapping/strategy"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
	"github.com/smallbiznis/formmetrics/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxSuggestedMetrics caps the suggestions returned per unmapped field.
const maxSuggestedMetrics = 5

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       mappingdomain.Repository
	Fields     submissiondomain.Repository
	Taxonomy   taxonomydomain.Service
	Population *config.PopulationConfigHolder `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       mappingdomain.Repository
	fields     submissiondomain.Repository
	taxonomy   taxonomydomain.Service
	population *config.PopulationConfigHolder
}

func New(p Params) mappingdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("mapping.service"),
		genID:      p.GenID,
		clock:      c,
		repo:       p.Repo,
		fields:     p.Fields,
		taxonomy:   p.Taxonomy,
		population: p.Population,
	}
}

func (s *Service) Create(ctx context.Context, req mappingdomain.CreateRequest) (*mappingdomain.Response, error) {
	fieldID, err := mappingdomain.ParseID(strings.TrimSpace(req.FieldID))
	if err != nil {
		return nil, mappingdomain.ErrInvalidID
	}
	field, err := s.loadField(ctx, fieldID)
	if err != nil {
		return nil, err
	}

	metricID, err := s.parseMetricID(req.MetricID)
	if err != nil {
		return nil, err
	}

	mappingType, ok := compatibility.ParseMappingType(req.MappingType)
	if !ok {
		return nil, mappingdomain.ErrInvalidMappingType
	}

	now := s.clock.Now().UTC()
	m := &mappingdomain.Mapping{
		ID:                  s.genID.Generate(),
		FieldID:             field.ID,
		MetricID:            metricID,
		MappingType:         string(mappingType),
		TransformationLogic: logicJSON(req.TransformationLogic),
		ExpectedValue:       trimmedOrNil(req.ExpectedValue),
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if agg := strings.TrimSpace(req.AggregationType); agg != "" {
		m.AggregationType = &agg
	}

	if err := s.validate(ctx, m, field); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, m); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, mappingdomain.ErrDuplicateMapping
		}
		return nil, err
	}

	s.log.Info("mapping created",
		zap.String("mapping_id", m.ID.String()),
		zap.String("field_id", m.FieldID.String()),
		zap.String("mapping_type", m.MappingType),
	)
	return s.toResponse(m, field), nil
}

func (s *Service) Update(ctx context.Context, req mappingdomain.UpdateRequest) (*mappingdomain.Response, error) {
	m, err := s.findMapping(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	field, err := s.fields.FindField(ctx, s.db, m.FieldID)
	if err != nil {
		return nil, err
	}
	if field == nil {
		return nil, mappingdomain.ErrFieldNotFound
	}

	if req.MetricID != nil {
		metricID, err := s.parseMetricID(*req.MetricID)
		if err != nil {
			return nil, err
		}
		m.MetricID = metricID
	}
	if req.AggregationType != nil {
		if agg := strings.TrimSpace(*req.AggregationType); agg == "" {
			m.AggregationType = nil
		} else {
			m.AggregationType = &agg
		}
	}
	if req.TransformationLogic != nil {
		m.TransformationLogic = logicJSON(req.TransformationLogic)
	}
	if req.ExpectedValue != nil {
		m.ExpectedValue = trimmedOrNil(req.ExpectedValue)
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}

	if m.IsActive {
		if !field.IsActive {
			return nil, mappingdomain.ErrFieldInactive
		}
		if err := s.validate(ctx, m, field); err != nil {
			return nil, err
		}
	}

	m.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, s.db, m); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, mappingdomain.ErrDuplicateMapping
		}
		return nil, err
	}
	return s.toResponse(m, field), nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	m, err := s.findMapping(ctx, id)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return nil
	}
	m.IsActive = false
	m.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, s.db, m); err != nil {
		return err
	}
	s.log.Info("mapping deactivated", zap.String("mapping_id", m.ID.String()))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*mappingdomain.Response, error) {
	m, err := s.findMapping(ctx, id)
	if err != nil {
		return nil, err
	}
	field, err := s.fields.FindField(ctx, s.db, m.FieldID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(m, field), nil
}

func (s *Service) ListActiveByTemplate(ctx context.Context, templateID snowflake.ID) ([]mappingdomain.Mapping, error) {
	return s.repo.ListActiveByTemplate(ctx, s.db, templateID)
}

func (s *Service) ListByTemplate(ctx context.Context, templateID string) ([]mappingdomain.Response, error) {
	id, err := mappingdomain.ParseID(strings.TrimSpace(templateID))
	if err != nil {
		return nil, mappingdomain.ErrInvalidID
	}

	fields, err := s.fields.ListFieldsByTemplate(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]*submissiondomain.FormField, len(fields))
	for i := range fields {
		byID[fields[i].ID] = &fields[i]
	}

	items, err := s.repo.ListByTemplate(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	resp := make([]mappingdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *s.toResponse(&items[i], byID[items[i].FieldID]))
	}
	return resp, nil
}

func (s *Service) TestMapping(ctx context.Context, req mappingdomain.TestRequest) (*mappingdomain.TestResult, error) {
	m, err := s.findMapping(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	answers := make([]submissiondomain.Answer, 0, len(req.Samples))
	for rawID, raw := range req.Samples {
		fieldID, err := mappingdomain.ParseID(strings.TrimSpace(rawID))
		if err != nil {
			return nil, mappingdomain.ErrInvalidID
		}
		answers = append(answers, sampleAnswer(fieldID, raw))
	}

	// A dry run exercises the strategy even before a metric is linked.
	probe := *m
	if probe.MetricID == nil {
		placeholder := snowflake.ID(0)
		probe.MetricID = &placeholder
	}

	result := &mappingdomain.TestResult{
		MappingID:   m.ID.String(),
		MappingType: m.MappingType,
	}
	res, err := strategy.Compute(probe, submissiondomain.NewAnswerSet(answers), strategy.Options{
		DefaultExpectedValue: s.population.Get().Engine.DefaultExpectedValue,
	})
	result.SourceValue = res.SourceValue
	result.Inputs = res.Inputs
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.Success = true
	result.Value = res.Value
	result.Skipped = res.SkipReason
	return result, nil
}

func (s *Service) UnmappedFields(ctx context.Context, templateID string) ([]mappingdomain.UnmappedField, error) {
	id, err := mappingdomain.ParseID(strings.TrimSpace(templateID))
	if err != nil {
		return nil, mappingdomain.ErrInvalidID
	}

	fields, err := s.fields.ListFieldsByTemplate(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.ListActiveByTemplate(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	mapped := make(map[snowflake.ID]struct{}, len(active))
	for _, m := range active {
		mapped[m.FieldID] = struct{}{}
	}

	suggestions := make(map[string][]mappingdomain.SuggestedMetric)
	out := make([]mappingdomain.UnmappedField, 0)
	for _, f := range fields {
		if !f.IsActive {
			continue
		}
		if _, ok := mapped[f.ID]; ok {
			continue
		}

		suggested, ok := suggestions[f.FieldType]
		if !ok {
			suggested, err = s.suggestMetrics(ctx, f.FieldType)
			if err != nil {
				return nil, err
			}
			suggestions[f.FieldType] = suggested
		}

		out = append(out, mappingdomain.UnmappedField{
			FieldID:                f.ID.String(),
			Code:                   f.Code,
			Label:                  f.Label,
			FieldType:              f.FieldType,
			RecommendedMappingType: string(compatibility.RecommendedMappingType(fieldType(f.FieldType))),
			SuggestedMetrics:       suggested,
		})
	}
	return out, nil
}

// validate applies every authoring rule to m in a fixed order.
func (s *Service) validate(ctx context.Context, m *mappingdomain.Mapping, field *submissiondomain.FormField) error {
	if m.MetricID != nil {
		resolved, err := s.taxonomy.ResolveMetric(ctx, *m.MetricID)
		if err != nil {
			if errors.Is(err, taxonomydomain.ErrNotFound) {
				return mappingdomain.ErrMetricNotFound
			}
			return err
		}
		if !resolved.Metric.IsActive {
			return mappingdomain.ErrMetricInactive
		}
	}

	ft := fieldType(field.FieldType)
	mappingType, ok := compatibility.ParseMappingType(m.MappingType)
	if !ok || !compatibility.IsValidMappingType(ft, mappingType) {
		return fmt.Errorf("%w: %s is not allowed for %s fields", mappingdomain.ErrInvalidMappingType, m.MappingType, field.FieldType)
	}
	m.MappingType = string(mappingType)

	if m.AggregationType != nil {
		agg, ok := compatibility.ParseAggregationType(*m.AggregationType)
		if !ok || !compatibility.IsValidAggregationType(ft, mappingType, agg) {
			return fmt.Errorf("%w: %s is not allowed for %s/%s", mappingdomain.ErrInvalidAggregation, *m.AggregationType, field.FieldType, mappingType)
		}
		normalized := string(agg)
		m.AggregationType = &normalized
	} else {
		recommended := string(compatibility.RecommendedAggregationType(ft, mappingType))
		m.AggregationType = &recommended
	}

	switch mappingType {
	case compatibility.MappingCalculated:
		if len(m.TransformationLogic) == 0 {
			return mappingdomain.ErrMissingFormula
		}
		d, err := formula.ParseDescriptor(m.Logic())
		if err != nil {
			return fmt.Errorf("%w: %v", mappingdomain.ErrInvalidFormula, err)
		}
		if err := s.checkAliasFields(ctx, d, field.TemplateID); err != nil {
			return err
		}
	case compatibility.MappingBinaryCompliance:
		if m.ExpectedValue == nil {
			return mappingdomain.ErrMissingExpectedValue
		}
	}

	if m.MetricID != nil && m.IsActive {
		existing, err := s.repo.FindActiveByFieldMetric(ctx, s.db, m.FieldID, *m.MetricID)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != m.ID {
			return mappingdomain.ErrDuplicateMapping
		}
	}
	return nil
}

func (s *Service) checkAliasFields(ctx context.Context, d *formula.Descriptor, templateID snowflake.ID) error {
	ids := d.FieldIDs()
	fields, err := s.fields.FindFields(ctx, s.db, ids)
	if err != nil {
		return err
	}
	onTemplate := make(map[snowflake.ID]struct{}, len(fields))
	for _, f := range fields {
		if f.TemplateID == templateID {
			onTemplate[f.ID] = struct{}{}
		}
	}
	for _, alias := range d.Aliases() {
		if _, ok := onTemplate[d.ItemAliases[alias].ID()]; !ok {
			return fmt.Errorf("%w: %s", mappingdomain.ErrAliasOutsideTemplate, alias)
		}
	}
	return nil
}

func (s *Service) suggestMetrics(ctx context.Context, rawFieldType string) ([]mappingdomain.SuggestedMetric, error) {
	metrics, err := s.taxonomy.MetricsForFieldType(ctx, rawFieldType)
	if err != nil {
		if errors.Is(err, taxonomydomain.ErrInvalidFieldType) {
			return []mappingdomain.SuggestedMetric{}, nil
		}
		return nil, err
	}
	if len(metrics) > maxSuggestedMetrics {
		metrics = metrics[:maxSuggestedMetrics]
	}
	out := make([]mappingdomain.SuggestedMetric, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, mappingdomain.SuggestedMetric{
			ID:       m.ID,
			Code:     m.Code,
			Name:     m.Name,
			DataType: m.DataType,
		})
	}
	return out, nil
}

func (s *Service) loadField(ctx context.Context, id snowflake.ID) (*submissiondomain.FormField, error) {
	field, err := s.fields.FindField(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if field == nil {
		return nil, mappingdomain.ErrFieldNotFound
	}
	if !field.IsActive {
		return nil, mappingdomain.ErrFieldInactive
	}
	return field, nil
}

func (s *Service) findMapping(ctx context.Context, rawID string) (*mappingdomain.Mapping, error) {
	id, err := mappingdomain.ParseID(strings.TrimSpace(rawID))
	if err != nil {
		return nil, mappingdomain.ErrInvalidID
	}
	m, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, mappingdomain.ErrNotFound
	}
	return m, nil
}

func (s *Service) parseMetricID(raw string) (*snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := mappingdomain.ParseID(raw)
	if err != nil {
		return nil, mappingdomain.ErrInvalidID
	}
	return &id, nil
}

func (s *Service) toResponse(m *mappingdomain.Mapping, field *submissiondomain.FormField) *mappingdomain.Response {
	resp := &mappingdomain.Response{
		ID:            m.ID.String(),
		FieldID:       m.FieldID.String(),
		MappingType:   m.MappingType,
		ExpectedValue: m.ExpectedValue,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if field != nil {
		resp.FieldCode = field.Code
		resp.FieldLabel = field.Label
		resp.FieldType = field.FieldType
	}
	if m.MetricID != nil {
		resp.MetricID = m.MetricID.String()
	}
	if m.AggregationType != nil {
		resp.AggregationType = *m.AggregationType
	}
	if len(m.TransformationLogic) > 0 {
		resp.TransformationLogic = json.RawMessage(m.TransformationLogic)
	}
	return resp
}

// fieldType keeps unrecognized names so the matrix falls back to its defaults.
func fieldType(raw string) compatibility.FieldType {
	ft, _ := compatibility.ParseFieldType(raw)
	return ft
}

// sampleAnswer stores a sample as text, plus its numeric or boolean reading
// when it has one.
func sampleAnswer(fieldID snowflake.ID, raw string) submissiondomain.Answer {
	text := raw
	answer := submissiondomain.Answer{FieldID: fieldID, TextValue: &text}
	trimmed := strings.TrimSpace(raw)
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		answer.NumericValue = &v
	}
	switch strings.ToLower(trimmed) {
	case "true":
		b := true
		answer.BooleanValue = &b
	case "false":
		b := false
		answer.BooleanValue = &b
	}
	return answer
}

func logicJSON(raw json.RawMessage) datatypes.JSON {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	// A JSON string holding the descriptor is unwrapped.
	var inner string
	if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
		trimmed = strings.TrimSpace(inner)
		if trimmed == "" {
			return nil
		}
	}
	return datatypes.JSON(trimmed)
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
