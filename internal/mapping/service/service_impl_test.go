package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/formmetrics/internal/clock"
	"github.com/smallbiznis/formmetrics/internal/config"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	mappingrepo "github.com/smallbiznis/formmetrics/internal/mapping/repository"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
	submissionrepo "github.com/smallbiznis/formmetrics/internal/submission/repository"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
	taxonomyrepo "github.com/smallbiznis/formmetrics/internal/taxonomy/repository"
	taxonomyservice "github.com/smallbiznis/formmetrics/internal/taxonomy/service"
	"github.com/smallbiznis/formmetrics/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	fields     submissiondomain.Repository
	taxonomy   taxonomydomain.Service
	svc        mappingdomain.Service
	templateID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	require.NoError(t, db.AutoMigrate(
		&submissiondomain.FormField{},
		&mappingdomain.Mapping{},
		&taxonomydomain.Unit{},
		&taxonomydomain.SubCategory{},
		&taxonomydomain.MetricDefinition{},
	))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	taxonomy := taxonomyservice.New(taxonomyservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  taxonomyrepo.Provide(),
	})
	fields := submissionrepo.Provide()
	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       mappingrepo.Provide(),
		Fields:     fields,
		Taxonomy:   taxonomy,
		Population: config.NewStaticPopulationConfigHolder(config.DefaultPopulationConfig()),
	})
	return &fixture{db: db, node: node, fields: fields, taxonomy: taxonomy, svc: svc, templateID: node.Generate()}
}

func (f *fixture) field(t *testing.T, code, fieldType string) *submissiondomain.FormField {
	t.Helper()
	return f.fieldOn(t, f.templateID, code, fieldType)
}

func (f *fixture) fieldOn(t *testing.T, templateID snowflake.ID, code, fieldType string) *submissiondomain.FormField {
	t.Helper()
	field := &submissiondomain.FormField{
		ID:         f.node.Generate(),
		TemplateID: templateID,
		Code:       code,
		Label:      code,
		FieldType:  fieldType,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.fields.InsertField(context.Background(), f.db, field))
	return field
}

func (f *fixture) metric(t *testing.T, name, dataType string) string {
	t.Helper()
	resp, err := f.taxonomy.CreateMetric(context.Background(), taxonomydomain.CreateMetricRequest{Name: name, DataType: dataType})
	require.NoError(t, err)
	return resp.ID
}

func strPtr(v string) *string { return &v }

func TestCreateDirectDefaultsToRecommendedAggregation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	field := f.field(t, "TEMP", "Number")
	metricID := f.metric(t, "Temperature", "Decimal")

	resp, err := f.svc.Create(ctx, mappingdomain.CreateRequest{
		FieldID:     field.ID.String(),
		MetricID:    metricID,
		MappingType: "Direct",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sum", resp.AggregationType)
	assert.Equal(t, "Number", resp.FieldType)
	assert.True(t, resp.IsActive)

	_, err = f.svc.Create(ctx, mappingdomain.CreateRequest{
		FieldID:     field.ID.String(),
		MetricID:    metricID,
		MappingType: "Direct",
	})
	assert.ErrorIs(t, err, mappingdomain.ErrDuplicateMapping)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	number := f.field(t, "COUNT", "Number")
	checkbox := f.field(t, "LOCKED", "Checkbox")
	other := f.fieldOn(t, f.node.Generate(), "ELSEWHERE", "Number")
	metricID := f.metric(t, "Total", "Decimal")

	inactive := f.field(t, "OLD", "Number")
	require.NoError(t, f.db.Exec(`UPDATE form_fields SET is_active = ? WHERE id = ?`, false, inactive.ID).Error)

	tests := []struct {
		name string
		req  mappingdomain.CreateRequest
		want error
	}{
		{name: "unknown field", req: mappingdomain.CreateRequest{FieldID: f.node.Generate().String(), MappingType: "Direct"}, want: mappingdomain.ErrFieldNotFound},
		{name: "inactive field", req: mappingdomain.CreateRequest{FieldID: inactive.ID.String(), MappingType: "Direct"}, want: mappingdomain.ErrFieldInactive},
		{name: "unknown metric", req: mappingdomain.CreateRequest{FieldID: number.ID.String(), MetricID: f.node.Generate().String(), MappingType: "Direct"}, want: mappingdomain.ErrMetricNotFound},
		{name: "illegal mapping type", req: mappingdomain.CreateRequest{FieldID: number.ID.String(), MappingType: "BinaryCompliance", ExpectedValue: strPtr("Yes")}, want: mappingdomain.ErrInvalidMappingType},
		{name: "unknown mapping type", req: mappingdomain.CreateRequest{FieldID: number.ID.String(), MappingType: "Magic"}, want: mappingdomain.ErrInvalidMappingType},
		{name: "illegal aggregation", req: mappingdomain.CreateRequest{FieldID: checkbox.ID.String(), MappingType: "BinaryCompliance", AggregationType: "Max", ExpectedValue: strPtr("Yes")}, want: mappingdomain.ErrInvalidAggregation},
		{name: "missing expected", req: mappingdomain.CreateRequest{FieldID: checkbox.ID.String(), MappingType: "BinaryCompliance"}, want: mappingdomain.ErrMissingExpectedValue},
		{name: "missing formula", req: mappingdomain.CreateRequest{FieldID: number.ID.String(), MappingType: "Calculated"}, want: mappingdomain.ErrMissingFormula},
		{
			name: "unbound alias",
			req: mappingdomain.CreateRequest{
				FieldID:             number.ID.String(),
				MappingType:         "Calculated",
				TransformationLogic: json.RawMessage(`{"formula":"A + C","itemAliases":{"A":"` + number.ID.String() + `"}}`),
			},
			want: mappingdomain.ErrInvalidFormula,
		},
		{
			name: "alias outside template",
			req: mappingdomain.CreateRequest{
				FieldID:             number.ID.String(),
				MetricID:            metricID,
				MappingType:         "Calculated",
				TransformationLogic: json.RawMessage(`{"formula":"A * 2","itemAliases":{"A":"` + other.ID.String() + `"}}`),
			},
			want: mappingdomain.ErrAliasOutsideTemplate,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateCalculatedAcceptsStringEncodedDescriptor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.field(t, "PASSED", "Number")
	b := f.field(t, "TOTAL", "Number")
	metricID := f.metric(t, "Pass Rate", "Percentage")

	logic := `{"formula":"(A / B) * 100","itemAliases":{"A":"` + a.ID.String() + `","B":"` + b.ID.String() + `"},"roundTo":2}`
	encoded, err := json.Marshal(logic)
	require.NoError(t, err)

	resp, err := f.svc.Create(ctx, mappingdomain.CreateRequest{
		FieldID:             a.ID.String(),
		MetricID:            metricID,
		MappingType:         "Calculated",
		TransformationLogic: encoded,
	})
	require.NoError(t, err)
	assert.JSONEq(t, logic, string(resp.TransformationLogic))

	result, err := f.svc.TestMapping(ctx, mappingdomain.TestRequest{
		ID:      resp.ID,
		Samples: map[string]string{a.ID.String(): "23", b.ID.String(): "25"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.Value)
	assert.Equal(t, 92.0, *result.Value)

	failed, err := f.svc.TestMapping(ctx, mappingdomain.TestRequest{
		ID:      resp.ID,
		Samples: map[string]string{a.ID.String(): "23", b.ID.String(): "0"},
	})
	require.NoError(t, err)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "division by zero")
}

func TestTestMappingBinaryCompliance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	field := f.field(t, "DOOR", "Dropdown")

	resp, err := f.svc.Create(ctx, mappingdomain.CreateRequest{
		FieldID:       field.ID.String(),
		MappingType:   "BinaryCompliance",
		ExpectedValue: strPtr("Locked"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Percentage", resp.AggregationType)

	result, err := f.svc.TestMapping(ctx, mappingdomain.TestRequest{
		ID:      resp.ID,
		Samples: map[string]string{field.ID.String(): "locked"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Value)
	assert.Equal(t, 100.0, *result.Value)

	skipped, err := f.svc.TestMapping(ctx, mappingdomain.TestRequest{ID: resp.ID})
	require.NoError(t, err)
	assert.True(t, skipped.Success)
	assert.Nil(t, skipped.Value)
	assert.NotEmpty(t, skipped.Skipped)
}

func TestUpdateAndDeactivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	field := f.field(t, "SCORE", "Rating")
	metricID := f.metric(t, "Score", "Rating")

	created, err := f.svc.Create(ctx, mappingdomain.CreateRequest{
		FieldID:     field.ID.String(),
		MetricID:    metricID,
		MappingType: "Direct",
	})
	require.NoError(t, err)
	assert.Equal(t, "Average", created.AggregationType)

	_, err = f.svc.Update(ctx, mappingdomain.UpdateRequest{ID: created.ID, AggregationType: strPtr("Sum")})
	assert.ErrorIs(t, err, mappingdomain.ErrInvalidAggregation)

	updated, err := f.svc.Update(ctx, mappingdomain.UpdateRequest{ID: created.ID, AggregationType: strPtr("max")})
	require.NoError(t, err)
	assert.Equal(t, "Max", updated.AggregationType)

	require.NoError(t, f.svc.Deactivate(ctx, created.ID))
	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	replacement, err := f.svc.Create(ctx, mappingdomain.CreateRequest{
		FieldID:     field.ID.String(),
		MetricID:    metricID,
		MappingType: "Direct",
	})
	require.NoError(t, err)

	active := true
	_, err = f.svc.Update(ctx, mappingdomain.UpdateRequest{ID: created.ID, IsActive: &active})
	assert.ErrorIs(t, err, mappingdomain.ErrDuplicateMapping)

	all, err := f.svc.ListByTemplate(ctx, f.templateID.String())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	live, err := f.svc.ListActiveByTemplate(ctx, f.templateID)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, replacement.ID, live[0].ID.String())

	_, err = f.svc.Get(ctx, "bogus")
	assert.ErrorIs(t, err, mappingdomain.ErrInvalidID)
	_, err = f.svc.Get(ctx, f.node.Generate().String())
	assert.ErrorIs(t, err, mappingdomain.ErrNotFound)
}

func TestUnmappedFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mapped := f.field(t, "MAPPED", "Number")
	open := f.field(t, "OPEN", "Checkbox")
	f.field(t, "PHOTO", "Image")
	metricID := f.metric(t, "Mapped", "Decimal")
	f.metric(t, "Door Locked", "Boolean")

	_, err := f.svc.Create(ctx, mappingdomain.CreateRequest{
		FieldID:     mapped.ID.String(),
		MetricID:    metricID,
		MappingType: "Direct",
	})
	require.NoError(t, err)

	unmapped, err := f.svc.UnmappedFields(ctx, f.templateID.String())
	require.NoError(t, err)
	require.Len(t, unmapped, 2)

	byCode := map[string]mappingdomain.UnmappedField{}
	for _, u := range unmapped {
		byCode[u.Code] = u
	}
	require.Contains(t, byCode, "OPEN")
	assert.Equal(t, open.ID.String(), byCode["OPEN"].FieldID)
	assert.Equal(t, "BinaryCompliance", byCode["OPEN"].RecommendedMappingType)
	require.Len(t, byCode["OPEN"].SuggestedMetrics, 1)
	assert.Equal(t, "DOOR_LOCKED", byCode["OPEN"].SuggestedMetrics[0].Code)

	require.Contains(t, byCode, "PHOTO")
	assert.Equal(t, "Derived", byCode["PHOTO"].RecommendedMappingType)
}
