package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/formmetrics/pkg/db/dbtest"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// runRow mirrors the population run table the pending query consults.
type runRow struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	SubmissionID snowflake.ID
	Status       string
	StartedAt    time.Time
}

func (runRow) TableName() string { return "metric_population_runs" }

func setup(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	db := dbtest.Open(t)
	require.NoError(t, db.AutoMigrate(
		&submissiondomain.FormField{},
		&submissiondomain.Submission{},
		&submissiondomain.Answer{},
		&runRow{},
	))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return db, node
}

func TestInsertAndLoadSubmission(t *testing.T) {
	ctx := context.Background()
	db, node := setup(t)
	r := Provide()

	templateID := node.Generate()
	field := &submissiondomain.FormField{
		ID:         node.Generate(),
		TemplateID: templateID,
		Code:       "CRITICAL_ITEMS",
		Label:      "Critical items passed",
		FieldType:  "Number",
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, r.InsertField(ctx, db, field))

	orgUnit := node.Generate()
	submitted := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	sub := &submissiondomain.Submission{
		ID:          node.Generate(),
		TemplateID:  templateID,
		OrgUnitID:   &orgUnit,
		SubmittedAt: &submitted,
		CreatedAt:   submitted,
	}
	value := 23.0
	require.NoError(t, r.InsertSubmission(ctx, db, sub, []submissiondomain.Answer{
		{ID: node.Generate(), FieldID: field.ID, NumericValue: &value},
	}))

	got, err := r.FindSubmission(ctx, db, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.OrgUnitID)
	require.Equal(t, orgUnit, *got.OrgUnitID)

	answers, err := r.ListAnswers(ctx, db, sub.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.Equal(t, sub.ID, answers[0].SubmissionID)
	require.NotNil(t, answers[0].NumericValue)
	require.Equal(t, 23.0, *answers[0].NumericValue)

	fields, err := r.ListFieldsByTemplate(ctx, db, templateID)
	require.NoError(t, err)
	require.Len(t, fields, 1)

	byIDs, err := r.FindFields(ctx, db, []snowflake.ID{field.ID})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
}

func TestFindMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	db, node := setup(t)
	r := Provide()

	sub, err := r.FindSubmission(ctx, db, node.Generate())
	require.NoError(t, err)
	require.Nil(t, sub)

	field, err := r.FindField(ctx, db, node.Generate())
	require.NoError(t, err)
	require.Nil(t, field)

	fields, err := r.FindFields(ctx, db, nil)
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestListPendingSubmissions(t *testing.T) {
	ctx := context.Background()
	db, node := setup(t)
	r := Provide()

	templateID := node.Generate()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	staleBefore := base.Add(-time.Minute)

	newer := base.Add(2 * time.Hour)
	older := base.Add(time.Hour)
	draft := &submissiondomain.Submission{ID: node.Generate(), TemplateID: templateID, CreatedAt: base}
	done := &submissiondomain.Submission{ID: node.Generate(), TemplateID: templateID, SubmittedAt: &older, CreatedAt: base}
	pendingNew := &submissiondomain.Submission{ID: node.Generate(), TemplateID: templateID, SubmittedAt: &newer, CreatedAt: base}
	pendingOld := &submissiondomain.Submission{ID: node.Generate(), TemplateID: templateID, SubmittedAt: &older, CreatedAt: base}

	for _, s := range []*submissiondomain.Submission{draft, done, pendingNew, pendingOld} {
		require.NoError(t, r.InsertSubmission(ctx, db, s, nil))
	}
	require.NoError(t, db.Create(&runRow{ID: node.Generate(), SubmissionID: done.ID, Status: "completed", StartedAt: base}).Error)

	pending, err := r.ListPendingSubmissions(ctx, db, staleBefore, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, pendingOld.ID, pending[0].ID)
	require.Equal(t, pendingNew.ID, pending[1].ID)

	limited, err := r.ListPendingSubmissions(ctx, db, staleBefore, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestListPendingSubmissionsByRunStatus(t *testing.T) {
	ctx := context.Background()
	db, node := setup(t)
	r := Provide()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	staleBefore := base.Add(-10 * time.Minute)

	tests := []struct {
		status    string
		startedAt time.Time
		pending   bool
	}{
		{status: "completed", startedAt: base, pending: false},
		{status: "skipped", startedAt: base, pending: false},
		{status: "cancelled", startedAt: base, pending: true},
		{status: "running", startedAt: base, pending: false},
		{status: "running", startedAt: base.Add(-time.Hour), pending: true},
	}

	want := map[snowflake.ID]bool{}
	for _, tc := range tests {
		sub := &submissiondomain.Submission{ID: node.Generate(), TemplateID: 1, SubmittedAt: &base, CreatedAt: base}
		require.NoError(t, r.InsertSubmission(ctx, db, sub, nil))
		require.NoError(t, db.Create(&runRow{ID: node.Generate(), SubmissionID: sub.ID, Status: tc.status, StartedAt: tc.startedAt}).Error)
		want[sub.ID] = tc.pending
	}

	pending, err := r.ListPendingSubmissions(ctx, db, staleBefore, 10)
	require.NoError(t, err)
	got := map[snowflake.ID]bool{}
	for _, p := range pending {
		got[p.ID] = true
	}
	for id, isPending := range want {
		require.Equal(t, isPending, got[id], "submission %s", id)
	}
}
