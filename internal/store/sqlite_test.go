package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/propfin/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func mustCreateDocument(t *testing.T, st *SQLiteStore, filename string) *model.Document {
	t.Helper()
	doc, err := st.CreateDocument(context.Background(), filename, "blobs/"+filename)
	require.NoError(t, err)
	return doc
}

func mustCreateProperty(t *testing.T, st *SQLiteStore, name string, class model.PropertyClass) *model.Property {
	t.Helper()
	p, err := st.CreateProperty(context.Background(), name, class)
	require.NoError(t, err)
	return p
}

// --- Documents ---

func TestSQLite_DocumentLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := mustCreateDocument(t, st, "rentroll.xlsx")
	assert.Equal(t, model.StatusQueued, doc.ProcessingStatus)
	assert.Equal(t, model.KindUnknown, doc.DetectedKind)
	assert.Equal(t, 1, doc.Version)

	require.NoError(t, st.MarkProcessing(ctx, doc.ID))

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.ProcessingStatus)
}

func TestSQLite_GetDocument_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetDocument(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSQLite_FailDocument(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := mustCreateDocument(t, st, "bad.pdf")
	require.NoError(t, st.FailDocument(ctx, doc.ID, "empty document"))

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.ProcessingStatus)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "empty document", *got.FailureReason)
}

func TestSQLite_ListDocuments_Filter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := mustCreateDocument(t, st, "a.xlsx")
	mustCreateDocument(t, st, "b.xlsx")
	require.NoError(t, st.FailDocument(ctx, a.ID, "boom"))

	failed, err := st.ListDocuments(ctx, DocumentFilter{Status: model.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, a.ID, failed[0].ID)

	all, err := st.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- CommitProcessing ---

func testCommit(docID, propID string) Commit {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2028, 6, 1, 0, 0, 0, 0, time.UTC)
	tenant := "Acme Retail"
	area := 37000.0

	return Commit{
		DocumentID:         docID,
		Kind:               model.KindRentRoll,
		Status:             model.StatusValidated,
		ResolvedPropertyID: &propID,
		CandidateText:      "EASTERN SHORE PLAZA",
		Units: []model.ExtractedUnit{
			{DocumentID: docID, UnitNumber: "101", TenantName: &tenant, AreaSqFt: 37000, MonthlyRent: 52000,
				LeaseStart: &start, LeaseEnd: &end, OccupancyStatus: model.Occupied, Included: true},
			{DocumentID: docID, UnitNumber: "CAM", AreaSqFt: 0, MonthlyRent: 0,
				OccupancyStatus: model.Vacant, Included: false},
		},
		Report: &model.ValidationReport{
			ID:             "rep-1",
			DocumentID:     docID,
			ValidationType: model.ValidationRentRoll,
			ExpectedCount:  1,
			ActualCount:    1,
			ActualArea:     &area,
			MatchStatus:    model.MatchPass,
			Occupancy:      &model.OccupancySummary{OccupiedUnits: 1, OccupiedArea: 37000, Rate: 1},
		},
	}
}

func TestSQLite_CommitProcessing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	prop := mustCreateProperty(t, st, "Eastern Shore Plaza", model.ClassStabilized)
	doc := mustCreateDocument(t, st, "esp_rentroll.xlsx")

	require.NoError(t, st.CommitProcessing(ctx, testCommit(doc.ID, prop.ID)))

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, got.ProcessingStatus)
	assert.Equal(t, model.KindRentRoll, got.DetectedKind)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.ResolvedPropertyID)
	assert.Equal(t, prop.ID, *got.ResolvedPropertyID)

	units, err := st.ListUnits(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, units, 2)

	rep, err := st.GetLatestReport(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, model.MatchPass, rep.MatchStatus)
	require.NotNil(t, rep.Occupancy)
	assert.Equal(t, 1.0, rep.Occupancy.Rate)
}

func TestSQLite_CommitProcessing_SupersedesPriorRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	prop := mustCreateProperty(t, st, "Eastern Shore Plaza", model.ClassStabilized)
	doc := mustCreateDocument(t, st, "esp_rentroll.xlsx")

	require.NoError(t, st.CommitProcessing(ctx, testCommit(doc.ID, prop.ID)))

	// Reprocess with a single unit: old rows must be gone, not appended to.
	second := testCommit(doc.ID, prop.ID)
	second.Units = second.Units[:1]
	second.Report.ID = "rep-2"
	require.NoError(t, st.CommitProcessing(ctx, second))

	units, err := st.ListUnits(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, units, 1)

	// Reports are append-only history.
	rep, err := st.GetLatestReport(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "rep-2", rep.ID)
}

func TestSQLite_CommitProcessing_InsertsAliasOnce(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	prop := mustCreateProperty(t, st, "Eastern Shore Plaza", model.ClassStabilized)
	doc := mustCreateDocument(t, st, "esp.xlsx")

	commit := testCommit(doc.ID, prop.ID)
	commit.NewAlias = &model.PropertyAlias{
		PropertyID: prop.ID, AliasText: "ESP", SourceDocumentID: doc.ID,
		Confidence: 0.95, Approved: true,
	}
	require.NoError(t, st.CommitProcessing(ctx, commit))

	// A second commit proposing the same alias is insert-if-absent.
	commit.Report.ID = "rep-2"
	require.NoError(t, st.CommitProcessing(ctx, commit))

	aliases, err := st.ListAliases(ctx, false)
	require.NoError(t, err)
	assert.Len(t, aliases, 1)
	assert.True(t, aliases[0].Approved)
}

// --- Pending resolutions ---

func TestSQLite_PendingResolutions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	prop := mustCreateProperty(t, st, "Eastern Shore Plaza", model.ClassStabilized)
	doc := mustCreateDocument(t, st, "eastrn_shor_plaza.xlsx")

	reason := "low_confidence"
	commit := testCommit(doc.ID, prop.ID)
	commit.ResolutionReason = &reason
	commit.CandidateText = "EASTRN SHOR PLAZA"
	commit.NewAlias = &model.PropertyAlias{
		ID: "alias-1", PropertyID: prop.ID, AliasText: "EASTRN SHOR PLAZA",
		SourceDocumentID: doc.ID, Confidence: 0.72, Approved: false,
	}
	require.NoError(t, st.CommitProcessing(ctx, commit))

	pending, err := st.ListPendingResolutions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, doc.ID, pending[0].DocumentID)
	assert.Equal(t, "EASTRN SHOR PLAZA", pending[0].CandidateText)
	assert.Equal(t, "low_confidence", pending[0].Reason)
	require.NotNil(t, pending[0].AliasID)
	assert.Equal(t, "alias-1", *pending[0].AliasID)

	// Approving the alias releases the document from the queue.
	require.NoError(t, st.ApproveAlias(ctx, "alias-1"))
	approved, err := st.ListAliases(ctx, true)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "EASTRN SHOR PLAZA", approved[0].AliasText)

	pending, err = st.ListPendingResolutions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "approval clears the resolution hold")

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedPropertyID)
	assert.Equal(t, prop.ID, *got.ResolvedPropertyID)
}

func TestSQLite_ApproveAlias_AttributesHeldMetrics(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	prop := mustCreateProperty(t, st, "Eastern Shore Plaza", model.ClassStabilized)
	doc := mustCreateDocument(t, st, "eastrn_shor_plaza_statement.pdf")

	// A review-band statement: metrics land unattributed until the
	// proposed alias is confirmed.
	reason := "low_confidence"
	require.NoError(t, st.CommitProcessing(ctx, Commit{
		DocumentID:         doc.ID,
		Kind:               model.KindIncomeStatement,
		Status:             model.StatusValidated,
		ResolvedPropertyID: &prop.ID,
		ResolutionReason:   &reason,
		CandidateText:      "EASTRN SHOR PLAZA",
		Metrics: []model.ExtractedMetric{{
			DocumentID: doc.ID,
			Period:     model.Period{Year: 2025, Month: 6, Type: model.PeriodMonthly},
			MetricType: model.MetricNOI, Value: 52000,
		}},
		Report: &model.ValidationReport{
			ID: "rep-1", DocumentID: doc.ID,
			ValidationType: model.ValidationStatement,
			ExpectedCount:  1, ActualCount: 1, MatchStatus: model.MatchPass,
		},
		NewAlias: &model.PropertyAlias{
			ID: "alias-1", PropertyID: prop.ID, AliasText: "EASTRN SHOR PLAZA",
			SourceDocumentID: doc.ID, Confidence: 0.72,
		},
	}))

	series, err := st.ListMetricSeries(ctx, prop.ID, model.MetricNOI, 0)
	require.NoError(t, err)
	assert.Empty(t, series, "held metrics stay out of aggregates")

	require.NoError(t, st.ApproveAlias(ctx, "alias-1"))

	series, err = st.ListMetricSeries(ctx, prop.ID, model.MetricNOI, 0)
	require.NoError(t, err)
	require.Len(t, series, 1, "approval backfills the metric attribution")
	assert.Equal(t, 52000.0, series[0].Value)
	assert.Equal(t, prop.ID, series[0].PropertyID)
}

func TestSQLite_RejectAlias_Reassign(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p1 := mustCreateProperty(t, st, "Eastern Shore Plaza", model.ClassStabilized)
	p2 := mustCreateProperty(t, st, "Harborview Center", model.ClassLeaseUp)

	require.NoError(t, st.UpsertPropertyAlias(ctx, model.PropertyAlias{
		ID: "alias-1", PropertyID: p1.ID, AliasText: "HV CENTER", Approved: false,
	}))
	require.NoError(t, st.RejectAlias(ctx, "alias-1", p2.ID))

	aliases, err := st.ListAliases(ctx, true)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, p2.ID, aliases[0].PropertyID)
}

func TestSQLite_RejectAlias_Delete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p1 := mustCreateProperty(t, st, "Eastern Shore Plaza", model.ClassStabilized)
	require.NoError(t, st.UpsertPropertyAlias(ctx, model.PropertyAlias{
		ID: "alias-1", PropertyID: p1.ID, AliasText: "WRONG", Approved: false,
	}))
	require.NoError(t, st.RejectAlias(ctx, "alias-1", ""))

	aliases, err := st.ListAliases(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, aliases)
}

// --- Metric series ---

func commitStatement(t *testing.T, st *SQLiteStore, propID string, year, month int, value float64, status model.MatchStatus) {
	t.Helper()
	ctx := context.Background()
	doc := mustCreateDocument(t, st, "statement.pdf")

	docStatus := model.StatusValidated
	if status == model.MatchFail {
		docStatus = model.StatusFailed
	}
	require.NoError(t, st.CommitProcessing(ctx, Commit{
		DocumentID: doc.ID,
		Kind:       model.KindIncomeStatement,
		Status:     docStatus,
		Metrics: []model.ExtractedMetric{{
			DocumentID: doc.ID, PropertyID: propID,
			Period:     model.Period{Year: year, Month: month, Type: model.PeriodMonthly},
			MetricType: model.MetricNOI, Value: value,
		}},
		Report: &model.ValidationReport{
			ID: doc.ID + "-rep", DocumentID: doc.ID,
			ValidationType: model.ValidationStatement,
			ActualCount:    1, ExpectedCount: 1, MatchStatus: status,
		},
	}))
}

func TestSQLite_ListMetricSeries_ExcludesFailedDocuments(t *testing.T) {
	st := newTestSQLiteStore(t)
	prop := mustCreateProperty(t, st, "Eastern Shore Plaza", model.ClassStabilized)

	commitStatement(t, st, prop.ID, 2025, 1, 60000, model.MatchPass)
	commitStatement(t, st, prop.ID, 2025, 2, 61000, model.MatchWarning)
	commitStatement(t, st, prop.ID, 2025, 3, 9000, model.MatchFail)

	series, err := st.ListMetricSeries(context.Background(), prop.ID, model.MetricNOI, 0)
	require.NoError(t, err)
	require.Len(t, series, 2, "failed documents never feed anomaly input")
	assert.Equal(t, 60000.0, series[0].Value)
	assert.Equal(t, 61000.0, series[1].Value)
}

func TestSQLite_ListMetricSeries_LimitKeepsMostRecentPeriods(t *testing.T) {
	st := newTestSQLiteStore(t)
	prop := mustCreateProperty(t, st, "Eastern Shore Plaza", model.ClassStabilized)

	for month := 1; month <= 10; month++ {
		commitStatement(t, st, prop.ID, 2024, month, float64(50000+month), model.MatchPass)
	}

	series, err := st.ListMetricSeries(context.Background(), prop.ID, model.MetricNOI, 4)
	require.NoError(t, err)
	require.Len(t, series, 4)
	assert.Equal(t, 7, series[0].Period.Month, "oldest point inside the trailing window")
	assert.Equal(t, 10, series[3].Period.Month, "latest period survives the limit")
	assert.Equal(t, 50010.0, series[3].Value)
}

// --- Anomaly records ---

func TestSQLite_UpsertAnomalyRecord_LastWriteWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := model.AnomalyRecord{
		PropertyID: "prop-1", MetricType: model.MetricNOI,
		Period: model.Period{Year: 2025, Month: 6, Type: model.PeriodMonthly},
		Mean:   50000, StdDev: 2000, ZScore: 1.1, CUSUMStatistic: 0.4,
		ComputedAt: time.Now().UTC(),
	}
	require.NoError(t, st.UpsertAnomalyRecord(ctx, rec))

	rec.ZScore = 3.5
	rec.Flagged = true
	require.NoError(t, st.UpsertAnomalyRecord(ctx, rec))

	records, err := st.ListAnomalies(ctx, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3.5, records[0].ZScore)
	assert.True(t, records[0].Flagged)

	flagged, err := st.ListAnomalies(ctx, true)
	require.NoError(t, err)
	assert.Len(t, flagged, 1)
}

// --- Job queue ---

func TestSQLite_EnqueueJob_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := mustCreateDocument(t, st, "a.xlsx")

	j1, err := st.EnqueueJob(ctx, doc.ID, doc.StorageKey)
	require.NoError(t, err)
	j2, err := st.EnqueueJob(ctx, doc.ID, doc.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, j1.ID, j2.ID, "a document never has two live jobs")

	stats, err := st.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestSQLite_ClaimAckJob(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := mustCreateDocument(t, st, "a.xlsx")
	_, err := st.EnqueueJob(ctx, doc.ID, doc.StorageKey)
	require.NoError(t, err)

	job, err := st.ClaimJob(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobClaimed, job.Status)
	assert.Equal(t, "worker-1", job.ClaimedBy)
	assert.Equal(t, 1, job.Attempts)

	// Claimed job is invisible to other workers.
	other, err := st.ClaimJob(ctx, "worker-2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, st.AckJob(ctx, job.ID))
	stats, err := st.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Done)
}

func TestSQLite_ClaimJob_EmptyQueue(t *testing.T) {
	st := newTestSQLiteStore(t)
	job, err := st.ClaimJob(context.Background(), "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestSQLite_ClaimJob_ReclaimAfterVisibilityTimeout(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := mustCreateDocument(t, st, "a.xlsx")
	_, err := st.EnqueueJob(ctx, doc.ID, doc.StorageKey)
	require.NoError(t, err)

	// Claim with an already-lapsed visibility deadline, simulating a
	// worker that crashed mid-processing.
	job, err := st.ClaimJob(ctx, "worker-1", -time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)

	reclaimed, err := st.ClaimJob(ctx, "worker-2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.Equal(t, "worker-2", reclaimed.ClaimedBy)
	assert.Equal(t, 2, reclaimed.Attempts)
}

func TestSQLite_RetryJob_BackoffDelaysVisibility(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := mustCreateDocument(t, st, "a.xlsx")
	_, err := st.EnqueueJob(ctx, doc.ID, doc.StorageKey)
	require.NoError(t, err)

	job, err := st.ClaimJob(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, st.RetryJob(ctx, job.ID, time.Hour, "transient parse failure"))

	// Backed-off job is not yet claimable.
	next, err := st.ClaimJob(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, next)

	stats, err := st.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestSQLite_DeadLetterJob(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := mustCreateDocument(t, st, "a.xlsx")
	_, err := st.EnqueueJob(ctx, doc.ID, doc.StorageKey)
	require.NoError(t, err)

	job, err := st.ClaimJob(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, st.DeadLetterJob(ctx, job.ID, "unrecognized document kind"))

	stats, err := st.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeadLetter)

	next, err := st.ClaimJob(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, next)

	// Dead-lettering frees the document for a fresh enqueue.
	fresh, err := st.EnqueueJob(ctx, doc.ID, doc.StorageKey)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, fresh.ID)
}
