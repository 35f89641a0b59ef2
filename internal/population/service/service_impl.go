package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/formmetrics/internal/clock"
	"github.com/smallbiznis/formmetrics/internal/config"
	"github.com/smallbiznis/formmetrics/internal/keylock"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	"github.com/smallbiznis/formmetrics/internal/mapping/strategy"
	obscontext "github.com/smallbiznis/formmetrics/internal/observability/context"
	"github.com/smallbiznis/formmetrics/internal/observability/logger"
	"github.com/smallbiznis/formmetrics/internal/observability/metrics"
	"github.com/smallbiznis/formmetrics/internal/observability/tracing"
	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
	"github.com/smallbiznis/formmetrics/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const lockPrefix = "population:submission:"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        populationdomain.Repository
	Submissions submissiondomain.Repository
	Mappings    mappingdomain.Service
	Taxonomy    taxonomydomain.Service
	Locker      keylock.Locker
	Config      *config.PopulationConfigHolder `optional:"true"`
	Metrics     *metrics.Metrics               `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        populationdomain.Repository
	submissions submissiondomain.Repository
	mappings    mappingdomain.Service
	taxonomy    taxonomydomain.Service
	locker      keylock.Locker
	config      *config.PopulationConfigHolder
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

func New(p Params) populationdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	locker := p.Locker
	if locker == nil {
		locker = keylock.NewLocalLocker()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("population.service"),
		genID:       p.GenID,
		clock:       c,
		repo:        p.Repo,
		submissions: p.Submissions,
		mappings:    p.Mappings,
		taxonomy:    p.Taxonomy,
		locker:      locker,
		config:      p.Config,
		metrics:     p.Metrics,
		tracer:      otel.Tracer("formmetrics/population"),
	}
}

func (s *Service) PopulateFromSubmission(ctx context.Context, submissionID snowflake.ID) (*populationdomain.RunSummary, error) {
	release, err := s.lock(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.populate(ctx, submissionID, populationdomain.TriggerFromContext(ctx), 0)
}

func (s *Service) Recalculate(ctx context.Context, submissionID snowflake.ID) (*populationdomain.RunSummary, error) {
	release, err := s.lock(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := s.submissions.FindSubmission(ctx, s.db, submissionID)
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if sub == nil {
		return nil, populationdomain.ErrSubmissionNotFound
	}

	deleted, err := s.repo.DeleteLogsBySubmission(ctx, s.db, submissionID)
	if err != nil {
		return nil, fmt.Errorf("delete audit records: %w", err)
	}
	s.log.Info("audit records cleared for recalculation",
		zap.String("submission_id", submissionID.String()),
		zap.Int64("deleted", deleted),
	)

	return s.populate(ctx, submissionID, populationdomain.TriggerRecalculate, deleted)
}

// lock serializes runs on one submission. The release func never fails the run.
func (s *Service) lock(ctx context.Context, submissionID snowflake.ID) (func(), error) {
	key := lockPrefix + submissionID.String()
	ttl := s.config.Get().Engine.LockTTL
	waitStart := time.Now()
	token, err := keylock.Acquire(ctx, s.locker, key, ttl, 0)
	s.metrics.RecordLockWait(ctx, time.Since(waitStart), err == nil)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Gave up waiting while another run held the submission.
		return nil, fmt.Errorf("acquire submission lock: %w: %w", metrics.ErrLockContended, err)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire submission lock: %w", err)
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("release submission lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *Service) populate(ctx context.Context, submissionID snowflake.ID, trigger string, deletedLogs int64) (*populationdomain.RunSummary, error) {
	started := s.clock.Now().UTC()
	ctx, span := s.tracer.Start(ctx, "population.run", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("submission.id", submissionID.String()),
		attribute.String("population.trigger", trigger),
	)...))
	defer span.End()

	ctx = obscontext.WithSubmissionID(ctx, submissionID.String())
	log := logger.WithContext(ctx, s.log).With(zap.String("trigger", trigger))

	sub, err := s.submissions.FindSubmission(ctx, s.db, submissionID)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "load submission")
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if sub == nil {
		span.SetStatus(codes.Error, "submission not found")
		return nil, populationdomain.ErrSubmissionNotFound
	}

	answerRows, err := s.submissions.ListAnswers(ctx, s.db, submissionID)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "load answers")
		return nil, fmt.Errorf("load answers: %w", err)
	}
	answers := submissiondomain.NewAnswerSet(answerRows)

	run := &populationdomain.PopulationRun{
		ID:           s.genID.Generate(),
		RunKey:       ulid.MustNew(ulid.Timestamp(started), ulid.DefaultEntropy()).String(),
		SubmissionID: submissionID,
		Trigger:      trigger,
		Status:       populationdomain.RunRunning,
		StartedAt:    started,
	}

	if sub.OrgUnitID == nil {
		log.Info("submission has no org unit, skipping")
		return s.recordSkippedRun(ctx, run, populationdomain.SkipReasonNoOrgUnit, deletedLogs)
	}

	mappings, err := s.mappings.ListActiveByTemplate(ctx, sub.TemplateID)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "load mappings")
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	if len(mappings) == 0 {
		log.Info("template has no active mappings, skipping")
		return s.recordSkippedRun(ctx, run, populationdomain.SkipReasonNoActiveMappings, deletedLogs)
	}

	period := populationdomain.PeriodStart(sub.EffectiveDate(started))
	run.ReportingPeriod = &period
	run.MappingCount = len(mappings)
	if err := s.repo.InsertRun(context.WithoutCancel(ctx), s.db, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	opts := strategy.Options{DefaultExpectedValue: s.config.Get().Engine.DefaultExpectedValue}
	for _, m := range mappings {
		if ctx.Err() != nil {
			run.Status = populationdomain.RunCancelled
			log.Warn("population cancelled",
				zap.Int("processed", run.Succeeded+run.Failed+run.Skipped),
				zap.Int("total", run.MappingCount),
			)
			break
		}

		// An in-flight mapping always finishes writing.
		status := s.processMapping(context.WithoutCancel(ctx), log, run, sub, answers, m, period, opts)
		switch status {
		case populationdomain.StatusSuccess:
			run.Succeeded++
		case populationdomain.StatusFailed:
			run.Failed++
		default:
			run.Skipped++
		}
	}
	if run.Status == populationdomain.RunRunning {
		run.Status = populationdomain.RunCompleted
	}

	finished := s.clock.Now().UTC()
	run.FinishedAt = &finished
	if err := s.repo.FinishRun(context.WithoutCancel(ctx), s.db, run); err != nil {
		log.Error("finish run failed", zap.String("run_key", run.RunKey), zap.Error(err))
	}

	duration := finished.Sub(started)
	s.metrics.RecordRun(ctx, trigger, run.Status, duration)
	span.SetAttributes(
		attribute.String("population.status", run.Status),
		attribute.Int("population.succeeded", run.Succeeded),
		attribute.Int("population.failed", run.Failed),
		attribute.Int("population.skipped", run.Skipped),
	)

	log.Info("population finished",
		zap.String("run_key", run.RunKey),
		zap.String("status", run.Status),
		zap.Time("reporting_period", period),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Int("skipped", run.Skipped),
		zap.Duration("duration", duration),
	)
	return toSummary(run, deletedLogs, duration), nil
}

func (s *Service) recordSkippedRun(ctx context.Context, run *populationdomain.PopulationRun, reason string, deletedLogs int64) (*populationdomain.RunSummary, error) {
	finished := s.clock.Now().UTC()
	run.Status = populationdomain.RunSkipped
	run.SkipReason = &reason
	run.FinishedAt = &finished
	if err := s.repo.InsertRun(context.WithoutCancel(ctx), s.db, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	duration := finished.Sub(run.StartedAt)
	s.metrics.RecordRun(ctx, run.Trigger, run.Status, duration)
	return toSummary(run, deletedLogs, duration), nil
}

// processMapping computes and stores one mapping and always leaves exactly
// one audit record behind. It returns that record's status.
func (s *Service) processMapping(
	ctx context.Context,
	log *zap.Logger,
	run *populationdomain.PopulationRun,
	sub *submissiondomain.Submission,
	answers submissiondomain.AnswerSet,
	m mappingdomain.Mapping,
	period time.Time,
	opts strategy.Options,
) string {
	started := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, "population.mapping", trace.WithAttributes(
		attribute.String("mapping.id", m.ID.String()),
		attribute.String("mapping.type", m.MappingType),
	))
	defer span.End()

	entry := &populationdomain.PopulationLog{
		ID:            s.genID.Generate(),
		RunID:         run.ID,
		SubmissionID:  sub.ID,
		MappingID:     m.ID,
		MetricID:      m.MetricID,
		SourceFieldID: m.FieldID,
	}

	res, err := strategy.Compute(m, answers, opts)
	entry.SourceValue = optionalString(res.SourceValue)
	entry.Formula = optionalString(res.Formula)
	entry.Inputs = inputsJSON(res.Inputs)
	if err != nil {
		return s.fail(ctx, log, span, entry, m, started, err)
	}
	if res.Skipped() {
		return s.skip(ctx, log, entry, m, started, res.SkipReason)
	}

	resolved, err := s.taxonomy.ResolveMetric(ctx, *m.MetricID)
	if err != nil {
		return s.fail(ctx, log, span, entry, m, started, fmt.Errorf("resolve metric: %w", err))
	}
	if !resolved.Metric.IsActive {
		return s.skip(ctx, log, entry, m, started, "metric is inactive")
	}

	value := *res.Value
	text := resolved.Format(value)
	now := s.clock.Now().UTC()
	row := &populationdomain.MetricValue{
		ID:                 s.genID.Generate(),
		OrgUnitID:          *sub.OrgUnitID,
		MetricID:           *m.MetricID,
		ReportingPeriod:    period,
		NumericValue:       value,
		TextValue:          &text,
		SourceType:         m.MappingType,
		SourceSubmissionID: sub.ID,
		CapturedAt:         now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	entry.CalculatedValue = &value
	entry.Status = populationdomain.StatusSuccess
	entry.PopulatedAt = now
	entry.ProcessingTimeMs = s.clock.Now().Sub(started).Milliseconds()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertValue(ctx, tx, row); err != nil {
			return fmt.Errorf("upsert metric value: %w", err)
		}
		if err := s.repo.InsertLog(ctx, tx, entry); err != nil {
			return fmt.Errorf("insert audit record: %w", err)
		}
		return nil
	})
	if err != nil {
		entry.ID = s.genID.Generate()
		entry.CalculatedValue = nil
		return s.fail(ctx, log, span, entry, m, started, err)
	}

	s.metrics.RecordMappingOutcome(ctx, m.MappingType, populationdomain.StatusSuccess)
	log.Debug("mapping populated",
		zap.String("mapping_id", m.ID.String()),
		zap.Float64("value", value),
	)
	return populationdomain.StatusSuccess
}

func (s *Service) skip(ctx context.Context, log *zap.Logger, entry *populationdomain.PopulationLog, m mappingdomain.Mapping, started time.Time, reason string) string {
	entry.Status = populationdomain.StatusSkipped
	entry.ErrorMessage = optionalString(reason)
	s.writeLog(ctx, log, entry, started)
	s.metrics.RecordMappingOutcome(ctx, m.MappingType, populationdomain.StatusSkipped)
	log.Debug("mapping skipped", zap.String("mapping_id", m.ID.String()), zap.String("reason", reason))
	return populationdomain.StatusSkipped
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, span trace.Span, entry *populationdomain.PopulationLog, m mappingdomain.Mapping, started time.Time, cause error) string {
	span.RecordError(tracing.SafeError(cause))
	span.SetStatus(codes.Error, "mapping failed")

	msg := cause.Error()
	entry.Status = populationdomain.StatusFailed
	entry.ErrorMessage = &msg
	s.writeLog(ctx, log, entry, started)
	s.metrics.RecordMappingOutcome(ctx, m.MappingType, populationdomain.StatusFailed)
	log.Warn("mapping failed", zap.String("mapping_id", m.ID.String()), zap.Error(cause))
	return populationdomain.StatusFailed
}

func (s *Service) writeLog(ctx context.Context, log *zap.Logger, entry *populationdomain.PopulationLog, started time.Time) {
	now := s.clock.Now().UTC()
	entry.PopulatedAt = now
	entry.ProcessingTimeMs = now.Sub(started).Milliseconds()
	if err := s.repo.InsertLog(ctx, s.db, entry); err != nil {
		log.Error("insert audit record failed",
			zap.String("mapping_id", entry.MappingID.String()),
			zap.String("status", entry.Status),
			zap.Error(err),
		)
	}
}

func (s *Service) GetValue(ctx context.Context, req populationdomain.GetValueRequest) (*populationdomain.ValueResponse, error) {
	orgUnitID, err := populationdomain.ParseID(req.OrgUnitID)
	if err != nil {
		return nil, populationdomain.ErrInvalidID
	}
	metricID, err := populationdomain.ParseID(req.MetricID)
	if err != nil {
		return nil, populationdomain.ErrInvalidID
	}
	period, err := populationdomain.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}

	v, err := s.repo.FindValue(ctx, s.db, orgUnitID, metricID, period)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, populationdomain.ErrValueNotFound
	}
	return toValueResponse(v), nil
}

func (s *Service) ListValues(ctx context.Context, req populationdomain.ListValuesRequest) (*populationdomain.ListValuesResponse, error) {
	orgUnitID, err := populationdomain.ParseID(req.OrgUnitID)
	if err != nil {
		return nil, populationdomain.ErrInvalidID
	}
	filter := populationdomain.ValueFilter{OrgUnitID: orgUnitID}
	if req.MetricID != "" {
		metricID, err := populationdomain.ParseID(req.MetricID)
		if err != nil {
			return nil, populationdomain.ErrInvalidID
		}
		filter.MetricID = &metricID
	}
	if req.From != nil {
		from := populationdomain.PeriodStart(*req.From)
		filter.From = &from
	}
	if req.To != nil {
		to := populationdomain.PeriodStart(*req.To)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, populationdomain.ErrInvalidRange
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, populationdomain.ErrInvalidPageToken
		}
		after, err := populationdomain.ParseID(cursor.ID)
		if err != nil {
			return nil, populationdomain.ErrInvalidPageToken
		}
		filter.AfterID = &after
	}

	limit := req.Limit()
	filter.Limit = limit + 1
	items, err := s.repo.ListValues(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	page, info, err := pagination.BuildCursorPageInfo(items, limit, func(v populationdomain.MetricValue) pagination.Cursor {
		return pagination.Cursor{ID: v.ID.String(), CreatedAt: v.CreatedAt.Format(time.RFC3339)}
	})
	if err != nil {
		return nil, err
	}

	values := make([]populationdomain.ValueResponse, 0, len(page))
	for i := range page {
		values = append(values, *toValueResponse(&page[i]))
	}
	return &populationdomain.ListValuesResponse{Values: values, PageInfo: info}, nil
}

func (s *Service) ListLogs(ctx context.Context, submissionID string) ([]populationdomain.LogResponse, error) {
	id, err := populationdomain.ParseID(submissionID)
	if err != nil {
		return nil, populationdomain.ErrInvalidID
	}
	items, err := s.repo.ListLogsBySubmission(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	resp := make([]populationdomain.LogResponse, 0, len(items))
	for _, l := range items {
		item := populationdomain.LogResponse{
			ID:               l.ID.String(),
			RunID:            l.RunID.String(),
			MappingID:        l.MappingID.String(),
			SourceFieldID:    l.SourceFieldID.String(),
			SourceValue:      l.SourceValue,
			CalculatedValue:  l.CalculatedValue,
			Formula:          l.Formula,
			Status:           l.Status,
			ErrorMessage:     l.ErrorMessage,
			ProcessingTimeMs: l.ProcessingTimeMs,
			PopulatedAt:      l.PopulatedAt,
		}
		if l.MetricID != nil {
			item.MetricID = l.MetricID.String()
		}
		if len(l.Inputs) > 0 {
			item.Inputs = json.RawMessage(l.Inputs)
		}
		resp = append(resp, item)
	}
	return resp, nil
}

func (s *Service) ListRuns(ctx context.Context, submissionID string) ([]populationdomain.RunResponse, error) {
	id, err := populationdomain.ParseID(submissionID)
	if err != nil {
		return nil, populationdomain.ErrInvalidID
	}
	items, err := s.repo.ListRunsBySubmission(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	resp := make([]populationdomain.RunResponse, 0, len(items))
	for _, r := range items {
		resp = append(resp, populationdomain.RunResponse{
			ID:              r.ID.String(),
			RunKey:          r.RunKey,
			Trigger:         r.Trigger,
			Status:          r.Status,
			SkipReason:      r.SkipReason,
			ReportingPeriod: r.ReportingPeriod,
			MappingCount:    r.MappingCount,
			Succeeded:       r.Succeeded,
			Failed:          r.Failed,
			Skipped:         r.Skipped,
			StartedAt:       r.StartedAt,
			FinishedAt:      r.FinishedAt,
		})
	}
	return resp, nil
}

func toSummary(run *populationdomain.PopulationRun, deletedLogs int64, duration time.Duration) *populationdomain.RunSummary {
	summary := &populationdomain.RunSummary{
		RunID:           run.ID.String(),
		RunKey:          run.RunKey,
		SubmissionID:    run.SubmissionID.String(),
		Trigger:         run.Trigger,
		Status:          run.Status,
		ReportingPeriod: run.ReportingPeriod,
		MappingCount:    run.MappingCount,
		Succeeded:       run.Succeeded,
		Failed:          run.Failed,
		Skipped:         run.Skipped,
		DeletedLogs:     deletedLogs,
		DurationMs:      duration.Milliseconds(),
	}
	if run.SkipReason != nil {
		summary.SkipReason = *run.SkipReason
	}
	return summary
}

func toValueResponse(v *populationdomain.MetricValue) *populationdomain.ValueResponse {
	return &populationdomain.ValueResponse{
		ID:                 v.ID.String(),
		OrgUnitID:          v.OrgUnitID.String(),
		MetricID:           v.MetricID.String(),
		ReportingPeriod:    v.ReportingPeriod.UTC().Format("2006-01-02"),
		NumericValue:       v.NumericValue,
		TextValue:          v.TextValue,
		SourceType:         v.SourceType,
		SourceSubmissionID: v.SourceSubmissionID.String(),
		CapturedAt:         v.CapturedAt,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
	}
}

func inputsJSON(inputs map[string]float64) datatypes.JSON {
	if len(inputs) == 0 {
		return nil
	}
	b, err := json.Marshal(inputs)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
