package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/formmetrics/internal/clock"
	"github.com/smallbiznis/formmetrics/internal/config"
	"github.com/smallbiznis/formmetrics/internal/keylock"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	mappingrepo "github.com/smallbiznis/formmetrics/internal/mapping/repository"
	mappingservice "github.com/smallbiznis/formmetrics/internal/mapping/service"
	"github.com/smallbiznis/formmetrics/internal/observability/metrics"
	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	populationrepo "github.com/smallbiznis/formmetrics/internal/population/repository"
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
	db          *gorm.DB
	node        *snowflake.Node
	clock       *clock.FakeClock
	locker      *keylock.LocalLocker
	submissions submissiondomain.Repository
	taxonomy    taxonomydomain.Service
	mappings    mappingdomain.Service
	svc         populationdomain.Service
	templateID  snowflake.ID
	orgUnitID   snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	require.NoError(t, db.AutoMigrate(
		&submissiondomain.FormField{},
		&submissiondomain.Submission{},
		&submissiondomain.Answer{},
		&mappingdomain.Mapping{},
		&taxonomydomain.Unit{},
		&taxonomydomain.SubCategory{},
		&taxonomydomain.MetricDefinition{},
		&populationdomain.MetricValue{},
		&populationdomain.PopulationLog{},
		&populationdomain.PopulationRun{},
	))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC))
	holder := config.NewStaticPopulationConfigHolder(config.DefaultPopulationConfig())
	taxonomy := taxonomyservice.New(taxonomyservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  taxonomyrepo.Provide(),
	})
	submissions := submissionrepo.Provide()
	mappings := mappingservice.New(mappingservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       mappingrepo.Provide(),
		Fields:     submissions,
		Taxonomy:   taxonomy,
		Population: holder,
	})
	f := &fixture{
		db:          db,
		node:        node,
		clock:       clk,
		locker:      keylock.NewLocalLocker(),
		submissions: submissions,
		taxonomy:    taxonomy,
		mappings:    mappings,
		templateID:  node.Generate(),
		orgUnitID:   node.Generate(),
	}
	f.svc = f.newService(mappings)
	return f
}

func (f *fixture) newService(mappings mappingdomain.Service) populationdomain.Service {
	return New(Params{
		DB:          f.db,
		Log:         zap.NewNop(),
		GenID:       f.node,
		Clock:       f.clock,
		Repo:        populationrepo.Provide(),
		Submissions: f.submissions,
		Mappings:    mappings,
		Taxonomy:    f.taxonomy,
		Locker:      f.locker,
		Config:      config.NewStaticPopulationConfigHolder(config.DefaultPopulationConfig()),
	})
}

func (f *fixture) field(t *testing.T, code, fieldType string) snowflake.ID {
	t.Helper()
	field := &submissiondomain.FormField{
		ID:         f.node.Generate(),
		TemplateID: f.templateID,
		Code:       code,
		Label:      code,
		FieldType:  fieldType,
		IsActive:   true,
		CreatedAt:  f.clock.Now(),
	}
	require.NoError(t, f.submissions.InsertField(context.Background(), f.db, field))
	return field.ID
}

func (f *fixture) metric(t *testing.T, name, dataType string) string {
	t.Helper()
	resp, err := f.taxonomy.CreateMetric(context.Background(), taxonomydomain.CreateMetricRequest{Name: name, DataType: dataType})
	require.NoError(t, err)
	return resp.ID
}

func (f *fixture) mapping(t *testing.T, req mappingdomain.CreateRequest) string {
	t.Helper()
	resp, err := f.mappings.Create(context.Background(), req)
	require.NoError(t, err)
	return resp.ID
}

func (f *fixture) submit(t *testing.T, submittedAt time.Time, answers ...submissiondomain.Answer) snowflake.ID {
	t.Helper()
	orgUnitID := f.orgUnitID
	return f.submitFor(t, &orgUnitID, submittedAt, answers...)
}

func (f *fixture) submitFor(t *testing.T, orgUnitID *snowflake.ID, submittedAt time.Time, answers ...submissiondomain.Answer) snowflake.ID {
	t.Helper()
	sub := &submissiondomain.Submission{
		ID:          f.node.Generate(),
		TemplateID:  f.templateID,
		OrgUnitID:   orgUnitID,
		SubmittedAt: &submittedAt,
		CreatedAt:   submittedAt,
	}
	for i := range answers {
		answers[i].ID = f.node.Generate()
		answers[i].SubmissionID = sub.ID
	}
	require.NoError(t, f.submissions.InsertSubmission(context.Background(), f.db, sub, answers))
	return sub.ID
}

func (f *fixture) value(t *testing.T, metricID string, period string) *populationdomain.ValueResponse {
	t.Helper()
	v, err := f.svc.GetValue(context.Background(), populationdomain.GetValueRequest{
		OrgUnitID: f.orgUnitID.String(),
		MetricID:  metricID,
		Period:    period,
	})
	require.NoError(t, err)
	return v
}

func numeric(fieldID snowflake.ID, v float64) submissiondomain.Answer {
	return submissiondomain.Answer{FieldID: fieldID, NumericValue: &v}
}

func boolean(fieldID snowflake.ID, v bool) submissiondomain.Answer {
	return submissiondomain.Answer{FieldID: fieldID, BooleanValue: &v}
}

func text(fieldID snowflake.ID, v string) submissiondomain.Answer {
	return submissiondomain.Answer{FieldID: fieldID, TextValue: &v}
}

func strPtr(v string) *string { return &v }

func ratioLogic(a, b snowflake.ID) json.RawMessage {
	return json.RawMessage(`{"formula":"(A / B) * 100","itemAliases":{"A":"` + a.String() + `","B":"` + b.String() + `"},"roundTo":2}`)
}

func TestPopulateCalculatedRatio(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	passed := f.field(t, "PASSED", "Number")
	total := f.field(t, "TOTAL", "Number")
	metricID := f.metric(t, "Pass Rate", "Percentage")
	f.mapping(t, mappingdomain.CreateRequest{
		FieldID:             passed.String(),
		MetricID:            metricID,
		MappingType:         "Calculated",
		TransformationLogic: ratioLogic(passed, total),
	})

	submissionID := f.submit(t, time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC), numeric(passed, 23), numeric(total, 25))

	summary, err := f.svc.PopulateFromSubmission(ctx, submissionID)
	require.NoError(t, err)
	assert.Equal(t, populationdomain.RunCompleted, summary.Status)
	assert.Equal(t, populationdomain.TriggerAPI, summary.Trigger)
	assert.Equal(t, 1, summary.Succeeded)
	require.NotNil(t, summary.ReportingPeriod)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), summary.ReportingPeriod.UTC())

	v := f.value(t, metricID, "2024-03")
	assert.Equal(t, 92.0, v.NumericValue)
	assert.Equal(t, "Calculated", v.SourceType)
	assert.Equal(t, submissionID.String(), v.SourceSubmissionID)
	assert.Equal(t, "2024-03-01", v.ReportingPeriod)

	logs, err := f.svc.ListLogs(ctx, submissionID.String())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, populationdomain.StatusSuccess, logs[0].Status)
	require.NotNil(t, logs[0].Formula)
	assert.Equal(t, "(A / B) * 100", *logs[0].Formula)
	assert.JSONEq(t, `{"A":23,"B":25}`, string(logs[0].Inputs))
}

func TestPopulateDirectAndCompliance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	temp := f.field(t, "TEMP", "Number")
	locked := f.field(t, "LOCKED", "Checkbox")
	tempMetric := f.metric(t, "Fridge Temperature", "Decimal")
	lockMetric := f.metric(t, "Door Locked", "Percentage")
	f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: tempMetric, MappingType: "Direct"})
	f.mapping(t, mappingdomain.CreateRequest{
		FieldID:       locked.String(),
		MetricID:      lockMetric,
		MappingType:   "BinaryCompliance",
		ExpectedValue: strPtr("Yes"),
	})

	submissionID := f.submit(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), text(temp, "4.5"), boolean(locked, true))
	summary, err := f.svc.PopulateFromSubmission(ctx, submissionID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)

	assert.Equal(t, 4.5, f.value(t, tempMetric, "2024-03-01").NumericValue)
	assert.Equal(t, 100.0, f.value(t, lockMetric, "2024-03").NumericValue)
}

func TestPopulateBlankComplianceAnswerKeepsPeriodValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	status := f.field(t, "STATUS", "Text")
	metricID := f.metric(t, "Door Locked", "Percentage")
	f.mapping(t, mappingdomain.CreateRequest{
		FieldID:       status.String(),
		MetricID:      metricID,
		MappingType:   "BinaryCompliance",
		ExpectedValue: strPtr("Yes"),
	})

	first := f.submit(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), text(status, "Yes"))
	_, err := f.svc.PopulateFromSubmission(ctx, first)
	require.NoError(t, err)

	for i, answer := range []submissiondomain.Answer{text(status, "   "), numeric(status, 1)} {
		id := f.submit(t, time.Date(2024, 3, 10+i, 0, 0, 0, 0, time.UTC), answer)
		summary, err := f.svc.PopulateFromSubmission(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Succeeded)
		assert.Equal(t, 1, summary.Skipped)
	}

	v := f.value(t, metricID, "2024-03")
	assert.Equal(t, 100.0, v.NumericValue)
	assert.Equal(t, first.String(), v.SourceSubmissionID)
}

func TestPopulateUpsertIsIdempotentAndLastWriterWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	temp := f.field(t, "TEMP", "Number")
	metricID := f.metric(t, "Temperature", "Decimal")
	f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: metricID, MappingType: "Direct"})

	first := f.submit(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), numeric(temp, 5))
	_, err := f.svc.PopulateFromSubmission(ctx, first)
	require.NoError(t, err)
	_, err = f.svc.PopulateFromSubmission(ctx, first)
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&populationdomain.MetricValue{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	second := f.submit(t, time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), numeric(temp, 7))
	_, err = f.svc.PopulateFromSubmission(ctx, second)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&populationdomain.MetricValue{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	v := f.value(t, metricID, "2024-03")
	assert.Equal(t, 7.0, v.NumericValue)
	assert.Equal(t, second.String(), v.SourceSubmissionID)

	april := f.submit(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), numeric(temp, 9))
	_, err = f.svc.PopulateFromSubmission(ctx, april)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&populationdomain.MetricValue{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestPopulateIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	passed := f.field(t, "PASSED", "Number")
	total := f.field(t, "TOTAL", "Number")
	temp := f.field(t, "TEMP", "Number")
	rateMetric := f.metric(t, "Pass Rate", "Percentage")
	tempMetric := f.metric(t, "Temperature", "Decimal")
	f.mapping(t, mappingdomain.CreateRequest{
		FieldID:             passed.String(),
		MetricID:            rateMetric,
		MappingType:         "Calculated",
		TransformationLogic: ratioLogic(passed, total),
	})
	f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: tempMetric, MappingType: "Direct"})

	submissionID := f.submit(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), numeric(passed, 3), numeric(total, 0), numeric(temp, 2))
	summary, err := f.svc.PopulateFromSubmission(ctx, submissionID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	logs, err := f.svc.ListLogs(ctx, submissionID.String())
	require.NoError(t, err)
	require.Len(t, logs, 2)
	byStatus := map[string]populationdomain.LogResponse{}
	for _, l := range logs {
		byStatus[l.Status] = l
	}
	failed := byStatus[populationdomain.StatusFailed]
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "division by zero")
	assert.Nil(t, failed.CalculatedValue)

	assert.Equal(t, 2.0, f.value(t, tempMetric, "2024-03").NumericValue)
	_, err = f.svc.GetValue(ctx, populationdomain.GetValueRequest{OrgUnitID: f.orgUnitID.String(), MetricID: rateMetric, Period: "2024-03"})
	assert.ErrorIs(t, err, populationdomain.ErrValueNotFound)
}

func TestPopulateMissingCalculatedInputFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	passed := f.field(t, "PASSED", "Number")
	total := f.field(t, "TOTAL", "Number")
	metricID := f.metric(t, "Pass Rate", "Percentage")
	f.mapping(t, mappingdomain.CreateRequest{
		FieldID:             passed.String(),
		MetricID:            metricID,
		MappingType:         "Calculated",
		TransformationLogic: ratioLogic(passed, total),
	})

	submissionID := f.submit(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), numeric(passed, 3))
	summary, err := f.svc.PopulateFromSubmission(ctx, submissionID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	logs, err := f.svc.ListLogs(ctx, submissionID.String())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Contains(t, *logs[0].ErrorMessage, "missing response for field B")
}

func TestPopulateSkips(t *testing.T) {
	ctx := context.Background()

	t.Run("no org unit", func(t *testing.T) {
		f := newFixture(t)
		temp := f.field(t, "TEMP", "Number")
		f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: f.metric(t, "Temperature", "Decimal"), MappingType: "Direct"})

		submissionID := f.submitFor(t, nil, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), numeric(temp, 1))
		summary, err := f.svc.PopulateFromSubmission(ctx, submissionID)
		require.NoError(t, err)
		assert.Equal(t, populationdomain.RunSkipped, summary.Status)
		assert.Equal(t, populationdomain.SkipReasonNoOrgUnit, summary.SkipReason)

		runs, err := f.svc.ListRuns(ctx, submissionID.String())
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, populationdomain.RunSkipped, runs[0].Status)
	})

	t.Run("no active mappings", func(t *testing.T) {
		f := newFixture(t)
		temp := f.field(t, "TEMP", "Number")
		submissionID := f.submit(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), numeric(temp, 1))
		summary, err := f.svc.PopulateFromSubmission(ctx, submissionID)
		require.NoError(t, err)
		assert.Equal(t, populationdomain.SkipReasonNoActiveMappings, summary.SkipReason)

		logs, err := f.svc.ListLogs(ctx, submissionID.String())
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("per mapping", func(t *testing.T) {
		f := newFixture(t)
		temp := f.field(t, "TEMP", "Number")
		note := f.field(t, "NOTE", "Number")
		unbound := f.field(t, "UNBOUND", "Number")
		retired := f.field(t, "RETIRED", "Number")
		f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: f.metric(t, "Temperature", "Decimal"), MappingType: "Direct"})
		f.mapping(t, mappingdomain.CreateRequest{FieldID: note.String(), MetricID: f.metric(t, "Notes", "Decimal"), MappingType: "Direct"})
		f.mapping(t, mappingdomain.CreateRequest{FieldID: unbound.String(), MappingType: "Direct"})
		retiredMetric := f.metric(t, "Retired", "Decimal")
		f.mapping(t, mappingdomain.CreateRequest{FieldID: retired.String(), MetricID: retiredMetric, MappingType: "Direct"})
		require.NoError(t, f.taxonomy.DeactivateMetric(ctx, retiredMetric))

		submissionID := f.submit(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			text(note, "n/a"), numeric(unbound, 3), numeric(retired, 4))
		summary, err := f.svc.PopulateFromSubmission(ctx, submissionID)
		require.NoError(t, err)
		assert.Equal(t, 4, summary.Skipped)
		assert.Equal(t, 0, summary.Failed)

		logs, err := f.svc.ListLogs(ctx, submissionID.String())
		require.NoError(t, err)
		require.Len(t, logs, 4)
		for _, l := range logs {
			assert.Equal(t, populationdomain.StatusSkipped, l.Status)
			require.NotNil(t, l.ErrorMessage)
		}

		var count int64
		require.NoError(t, f.db.Model(&populationdomain.MetricValue{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestPopulateUnknownSubmission(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PopulateFromSubmission(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, populationdomain.ErrSubmissionNotFound)

	_, err = f.svc.Recalculate(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, populationdomain.ErrSubmissionNotFound)
}

func TestPopulateFallsBackToCreatedAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	temp := f.field(t, "TEMP", "Number")
	metricID := f.metric(t, "Temperature", "Decimal")
	f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: metricID, MappingType: "Direct"})

	orgUnitID := f.orgUnitID
	sub := &submissiondomain.Submission{
		ID:         f.node.Generate(),
		TemplateID: f.templateID,
		OrgUnitID:  &orgUnitID,
		CreatedAt:  time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC),
	}
	v := 3.0
	require.NoError(t, f.submissions.InsertSubmission(ctx, f.db, sub, []submissiondomain.Answer{
		{ID: f.node.Generate(), SubmissionID: sub.ID, FieldID: temp, NumericValue: &v},
	}))

	_, err := f.svc.PopulateFromSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, f.value(t, metricID, "2024-01").NumericValue)
}

func TestRecalculateReplacesAuditRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	temp := f.field(t, "TEMP", "Number")
	passed := f.field(t, "PASSED", "Number")
	total := f.field(t, "TOTAL", "Number")
	f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: f.metric(t, "Temperature", "Decimal"), MappingType: "Direct"})
	f.mapping(t, mappingdomain.CreateRequest{
		FieldID:             passed.String(),
		MetricID:            f.metric(t, "Pass Rate", "Percentage"),
		MappingType:         "Calculated",
		TransformationLogic: ratioLogic(passed, total),
	})

	submissionID := f.submit(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), numeric(temp, 1), numeric(passed, 1), numeric(total, 2))
	_, err := f.svc.PopulateFromSubmission(ctx, submissionID)
	require.NoError(t, err)
	_, err = f.svc.PopulateFromSubmission(ctx, submissionID)
	require.NoError(t, err)

	logs, err := f.svc.ListLogs(ctx, submissionID.String())
	require.NoError(t, err)
	assert.Len(t, logs, 4)

	summary, err := f.svc.Recalculate(ctx, submissionID)
	require.NoError(t, err)
	assert.Equal(t, populationdomain.TriggerRecalculate, summary.Trigger)
	assert.Equal(t, int64(4), summary.DeletedLogs)

	logs, err = f.svc.ListLogs(ctx, submissionID.String())
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	runs, err := f.svc.ListRuns(ctx, submissionID.String())
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

type cancellingMappings struct {
	mappingdomain.Service
	cancel context.CancelFunc
}

func (c cancellingMappings) ListActiveByTemplate(ctx context.Context, templateID snowflake.ID) ([]mappingdomain.Mapping, error) {
	items, err := c.Service.ListActiveByTemplate(ctx, templateID)
	c.cancel()
	return items, err
}

func TestPopulateStopsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	temp := f.field(t, "TEMP", "Number")
	f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: f.metric(t, "Temperature", "Decimal"), MappingType: "Direct"})
	submissionID := f.submit(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), numeric(temp, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := f.newService(cancellingMappings{Service: f.mappings, cancel: cancel})

	summary, err := svc.PopulateFromSubmission(ctx, submissionID)
	require.NoError(t, err)
	assert.Equal(t, populationdomain.RunCancelled, summary.Status)
	assert.Zero(t, summary.Succeeded)

	runs, err := f.svc.ListRuns(context.Background(), submissionID.String())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, populationdomain.RunCancelled, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestPopulateWaitsForSubmissionLock(t *testing.T) {
	f := newFixture(t)
	temp := f.field(t, "TEMP", "Number")
	f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: f.metric(t, "Temperature", "Decimal"), MappingType: "Direct"})
	submissionID := f.submit(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), numeric(temp, 1))

	_, ok, err := f.locker.TryLock(context.Background(), lockPrefix+submissionID.String(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = f.svc.PopulateFromSubmission(ctx, submissionID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, metrics.ErrLockContended)
	assert.Equal(t, metrics.WorkerReasonLockContended, metrics.ClassifyWorkerReason(err))
}

func TestConcurrentPopulateKeepsOneValue(t *testing.T) {
	f := newFixture(t)
	temp := f.field(t, "TEMP", "Number")
	metricID := f.metric(t, "Temperature", "Decimal")
	f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: metricID, MappingType: "Direct"})

	ids := []snowflake.ID{
		f.submit(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), numeric(temp, 1)),
		f.submit(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), numeric(temp, 2)),
		f.submit(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), numeric(temp, 3)),
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id snowflake.ID) {
			defer wg.Done()
			_, err := f.svc.PopulateFromSubmission(context.Background(), id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	var count int64
	require.NoError(t, f.db.Model(&populationdomain.MetricValue{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestListValuesPaginates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	temp := f.field(t, "TEMP", "Number")
	metricID := f.metric(t, "Temperature", "Decimal")
	f.mapping(t, mappingdomain.CreateRequest{FieldID: temp.String(), MetricID: metricID, MappingType: "Direct"})

	for month := time.January; month <= time.March; month++ {
		id := f.submit(t, time.Date(2024, month, 10, 0, 0, 0, 0, time.UTC), numeric(temp, float64(month)))
		_, err := f.svc.PopulateFromSubmission(ctx, id)
		require.NoError(t, err)
	}

	req := populationdomain.ListValuesRequest{OrgUnitID: f.orgUnitID.String(), MetricID: metricID}
	req.PageSize = 2
	page, err := f.svc.ListValues(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Values, 2)
	require.True(t, page.PageInfo.HasMore)

	req.PageToken = page.PageInfo.NextPageToken
	next, err := f.svc.ListValues(ctx, req)
	require.NoError(t, err)
	require.Len(t, next.Values, 1)
	assert.False(t, next.PageInfo.HasMore)

	from := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	ranged, err := f.svc.ListValues(ctx, populationdomain.ListValuesRequest{OrgUnitID: f.orgUnitID.String(), From: &from})
	require.NoError(t, err)
	assert.Len(t, ranged.Values, 2)

	to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.ListValues(ctx, populationdomain.ListValuesRequest{OrgUnitID: f.orgUnitID.String(), From: &from, To: &to})
	assert.ErrorIs(t, err, populationdomain.ErrInvalidRange)

	bad := populationdomain.ListValuesRequest{OrgUnitID: f.orgUnitID.String()}
	bad.PageToken = "%%%"
	_, err = f.svc.ListValues(ctx, bad)
	assert.ErrorIs(t, err, populationdomain.ErrInvalidPageToken)
}

func TestGetValueValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetValue(context.Background(), populationdomain.GetValueRequest{OrgUnitID: "x", MetricID: "1", Period: "2024-03"})
	assert.ErrorIs(t, err, populationdomain.ErrInvalidID)
	_, err = f.svc.GetValue(context.Background(), populationdomain.GetValueRequest{OrgUnitID: "1", MetricID: "1", Period: "March"})
	assert.ErrorIs(t, err, populationdomain.ErrInvalidPeriod)
}

func TestTriggerFromContext(t *testing.T) {
	ctx := populationdomain.WithTrigger(context.Background(), populationdomain.TriggerWorker)
	f := newFixture(t)
	temp := f.field(t, "TEMP", "Number")
	submissionID := f.submit(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), numeric(temp, 1))

	summary, err := f.svc.PopulateFromSubmission(ctx, submissionID)
	require.NoError(t, err)
	assert.Equal(t, populationdomain.TriggerWorker, summary.Trigger)
}
