package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/propfin/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id                   TEXT PRIMARY KEY,
	original_filename    TEXT NOT NULL,
	storage_key          TEXT NOT NULL,
	uploaded_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	detected_kind        TEXT NOT NULL DEFAULT 'unknown',
	processing_status    TEXT NOT NULL DEFAULT 'queued',
	resolved_property_id TEXT,
	failure_reason       TEXT,
	candidate_text       TEXT,
	resolution_reason    TEXT,
	version              INTEGER NOT NULL DEFAULT 1,
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extracted_units (
	id               TEXT PRIMARY KEY,
	document_id      TEXT NOT NULL REFERENCES documents(id),
	unit_number      TEXT NOT NULL,
	tenant_name      TEXT,
	area_sqft        REAL NOT NULL DEFAULT 0,
	monthly_rent     REAL NOT NULL DEFAULT 0,
	lease_start      DATETIME,
	lease_end        DATETIME,
	occupancy_status TEXT NOT NULL,
	included         INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS extracted_metrics (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id),
	property_id  TEXT NOT NULL DEFAULT '',
	period_year  INTEGER NOT NULL,
	period_month INTEGER NOT NULL DEFAULT 0,
	period_type  TEXT NOT NULL,
	metric_type  TEXT NOT NULL,
	value        REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS validation_reports (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL REFERENCES documents(id),
	validation_type TEXT NOT NULL,
	expected_count  INTEGER NOT NULL DEFAULT 0,
	actual_count    INTEGER NOT NULL DEFAULT 0,
	expected_area   REAL,
	actual_area     REAL,
	match_status    TEXT NOT NULL,
	discrepancies   TEXT,
	occupancy       TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS properties (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	property_class TEXT NOT NULL DEFAULT 'stabilized',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS property_aliases (
	id                 TEXT PRIMARY KEY,
	property_id        TEXT NOT NULL REFERENCES properties(id),
	alias_text         TEXT NOT NULL,
	source_document_id TEXT NOT NULL DEFAULT '',
	confidence         REAL NOT NULL DEFAULT 0,
	approved           INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(property_id, alias_text)
);

CREATE TABLE IF NOT EXISTS anomaly_records (
	property_id  TEXT NOT NULL,
	metric_type  TEXT NOT NULL,
	period_year  INTEGER NOT NULL,
	period_month INTEGER NOT NULL DEFAULT 0,
	period_type  TEXT NOT NULL,
	mean         REAL NOT NULL,
	stddev       REAL NOT NULL,
	zscore       REAL NOT NULL,
	cusum        REAL NOT NULL,
	flagged      INTEGER NOT NULL DEFAULT 0,
	computed_at  DATETIME NOT NULL,
	PRIMARY KEY (property_id, metric_type, period_year, period_month, period_type)
);

CREATE TABLE IF NOT EXISTS jobs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL REFERENCES documents(id),
	storage_key TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	visible_at  DATETIME NOT NULL,
	claimed_by  TEXT NOT NULL DEFAULT '',
	claimed_at  DATETIME,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(processing_status);
CREATE INDEX IF NOT EXISTS idx_documents_property ON documents(resolved_property_id);
CREATE INDEX IF NOT EXISTS idx_units_document ON extracted_units(document_id);
CREATE INDEX IF NOT EXISTS idx_metrics_document ON extracted_metrics(document_id);
CREATE INDEX IF NOT EXISTS idx_metrics_series ON extracted_metrics(property_id, metric_type, period_year, period_month);
CREATE INDEX IF NOT EXISTS idx_reports_document ON validation_reports(document_id, created_at);
CREATE INDEX IF NOT EXISTS idx_aliases_property ON property_aliases(property_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active_document ON jobs(document_id) WHERE status IN ('pending', 'claimed');
CREATE INDEX IF NOT EXISTS idx_jobs_claimable ON jobs(status, visible_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Documents

func (s *SQLiteStore) CreateDocument(ctx context.Context, filename, storageKey string) (*model.Document, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, original_filename, storage_key, uploaded_at, detected_kind, processing_status, version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		id, filename, storageKey, now, string(model.KindUnknown), string(model.StatusQueued), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert document")
	}

	return &model.Document{
		ID:               id,
		OriginalFilename: filename,
		StorageKey:       storageKey,
		UploadedAt:       now,
		DetectedKind:     model.KindUnknown,
		ProcessingStatus: model.StatusQueued,
		Version:          1,
		UpdatedAt:        now,
	}, nil
}

const documentColumns = `id, original_filename, storage_key, uploaded_at, detected_kind, processing_status, resolved_property_id, failure_reason, version, updated_at`

func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, documentID,
	)
	return scanDocument(row)
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND processing_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += ` AND detected_kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.PropertyID != "" {
		query += ` AND resolved_property_id = ?`
		args = append(args, filter.PropertyID)
	}
	query += ` ORDER BY uploaded_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) MarkProcessing(ctx context.Context, documentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET processing_status = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusProcessing), time.Now().UTC(), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark processing %s", documentID)
	}
	return checkRowsAffected(res, "document", documentID)
}

func (s *SQLiteStore) FailDocument(ctx context.Context, documentID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET processing_status = ?, failure_reason = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusFailed), reason, time.Now().UTC(), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail document %s", documentID)
	}
	return checkRowsAffected(res, "document", documentID)
}

// CommitProcessing applies one processing attempt atomically: supersede
// the document's extracted rows, append the validation report, update
// document status, and propose the new alias if any.
func (s *SQLiteStore) CommitProcessing(ctx context.Context, commit Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin commit")
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_units WHERE document_id = ?`, commit.DocumentID); err != nil {
		return eris.Wrap(err, "sqlite: supersede units")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_metrics WHERE document_id = ?`, commit.DocumentID); err != nil {
		return eris.Wrap(err, "sqlite: supersede metrics")
	}

	for _, u := range commit.Units {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO extracted_units (id, document_id, unit_number, tenant_name, area_sqft, monthly_rent, lease_start, lease_end, occupancy_status, included)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), commit.DocumentID, u.UnitNumber, u.TenantName,
			u.AreaSqFt, u.MonthlyRent, u.LeaseStart, u.LeaseEnd,
			string(u.OccupancyStatus), u.Included,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert unit")
		}
	}

	for _, m := range commit.Metrics {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO extracted_metrics (id, document_id, property_id, period_year, period_month, period_type, metric_type, value)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), commit.DocumentID, m.PropertyID,
			m.Period.Year, m.Period.Month, string(m.Period.Type),
			string(m.MetricType), m.Value,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert metric")
		}
	}

	if rep := commit.Report; rep != nil {
		discJSON, occJSON, err := marshalReportJSON(rep)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO validation_reports (id, document_id, validation_type, expected_count, actual_count, expected_area, actual_area, match_status, discrepancies, occupancy, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.ID, commit.DocumentID, string(rep.ValidationType),
			rep.ExpectedCount, rep.ActualCount, rep.ExpectedArea, rep.ActualArea,
			string(rep.MatchStatus), discJSON, occJSON, now,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert report")
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE documents
		 SET detected_kind = ?, processing_status = ?, resolved_property_id = ?,
		     failure_reason = ?, candidate_text = ?, resolution_reason = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ?`,
		string(commit.Kind), string(commit.Status), commit.ResolvedPropertyID,
		commit.FailureReason, commit.CandidateText, commit.ResolutionReason,
		now, commit.DocumentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: commit document %s", commit.DocumentID)
	}
	if err := checkRowsAffected(res, "document", commit.DocumentID); err != nil {
		return err
	}

	if a := commit.NewAlias; a != nil {
		if err := upsertAliasTx(ctx, tx, a); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Extracted records

func (s *SQLiteStore) ListUnits(ctx context.Context, documentID string) ([]model.ExtractedUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, unit_number, tenant_name, area_sqft, monthly_rent, lease_start, lease_end, occupancy_status, included
		 FROM extracted_units WHERE document_id = ? ORDER BY unit_number`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list units")
	}
	defer rows.Close()

	var units []model.ExtractedUnit
	for rows.Next() {
		var u model.ExtractedUnit
		var tenant sql.NullString
		var start, end sql.NullTime
		if err := rows.Scan(&u.DocumentID, &u.UnitNumber, &tenant, &u.AreaSqFt, &u.MonthlyRent, &start, &end, &u.OccupancyStatus, &u.Included); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unit")
		}
		if tenant.Valid {
			u.TenantName = &tenant.String
		}
		if start.Valid {
			u.LeaseStart = &start.Time
		}
		if end.Valid {
			u.LeaseEnd = &end.Time
		}
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "sqlite: list units iterate")
}

const reportColumns = `id, document_id, validation_type, expected_count, actual_count, expected_area, actual_area, match_status, discrepancies, occupancy, created_at`

func (s *SQLiteStore) GetLatestReport(ctx context.Context, documentID string) (*model.ValidationReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM validation_reports
		 WHERE document_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		documentID,
	)
	rep, err := scanReport(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rep, err
}

func (s *SQLiteStore) ListValidationWarnings(ctx context.Context, propertyID string) ([]model.ValidationReport, error) {
	query := `SELECT ` + reportColumns + ` FROM validation_reports r
	          WHERE r.match_status = 'warning'`
	var args []any
	if propertyID != "" {
		query += ` AND EXISTS (SELECT 1 FROM documents d WHERE d.id = r.document_id AND d.resolved_property_id = ?)`
		args = append(args, propertyID)
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list warnings")
	}
	defer rows.Close()

	var reports []model.ValidationReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *rep)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list warnings iterate")
}

// Property registry

func (s *SQLiteStore) CreateProperty(ctx context.Context, name string, class model.PropertyClass) (*model.Property, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	if class == "" {
		class = model.ClassStabilized
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO properties (id, name, property_class, created_at) VALUES (?, ?, ?, ?)`,
		id, name, string(class), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert property")
	}
	return &model.Property{ID: id, Name: name, PropertyClass: class, CreatedAt: now}, nil
}

func (s *SQLiteStore) ListProperties(ctx context.Context) ([]model.Property, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, property_class, created_at FROM properties ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list properties")
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		var p model.Property
		if err := rows.Scan(&p.ID, &p.Name, &p.PropertyClass, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan property")
		}
		props = append(props, p)
	}
	return props, eris.Wrap(rows.Err(), "sqlite: list properties iterate")
}

func (s *SQLiteStore) ListAliases(ctx context.Context, approvedOnly bool) ([]model.PropertyAlias, error) {
	query := `SELECT id, property_id, alias_text, source_document_id, confidence, approved, created_at FROM property_aliases`
	if approvedOnly {
		query += ` WHERE approved = 1`
	}
	query += ` ORDER BY alias_text`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list aliases")
	}
	defer rows.Close()

	var aliases []model.PropertyAlias
	for rows.Next() {
		var a model.PropertyAlias
		if err := rows.Scan(&a.ID, &a.PropertyID, &a.AliasText, &a.SourceDocumentID, &a.Confidence, &a.Approved, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alias")
		}
		aliases = append(aliases, a)
	}
	return aliases, eris.Wrap(rows.Err(), "sqlite: list aliases iterate")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsertAliasTx inserts an alias with insert-if-absent semantics on
// (property_id, alias_text), so concurrent workers proposing the same
// normalized alias never create duplicate rows.
func upsertAliasTx(ctx context.Context, ex execer, a *model.PropertyAlias) error {
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO property_aliases (id, property_id, alias_text, source_document_id, confidence, approved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(property_id, alias_text) DO NOTHING`,
		id, a.PropertyID, a.AliasText, a.SourceDocumentID, a.Confidence, a.Approved, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert alias")
}

func (s *SQLiteStore) UpsertPropertyAlias(ctx context.Context, alias model.PropertyAlias) error {
	return upsertAliasTx(ctx, s.db, &alias)
}

// ApproveAlias confirms a proposed alias and releases its source
// document from the review queue: the provisional resolution becomes
// final and the document's metrics gain the property attribution that
// was held pending approval, all in one transaction.
func (s *SQLiteStore) ApproveAlias(ctx context.Context, aliasID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin approve alias")
	}
	defer tx.Rollback() //nolint:errcheck

	var propertyID string
	var sourceDocID sql.NullString
	err = tx.QueryRowContext(ctx,
		`UPDATE property_aliases SET approved = 1 WHERE id = ?
		 RETURNING property_id, source_document_id`,
		aliasID,
	).Scan(&propertyID, &sourceDocID)
	if eris.Is(err, sql.ErrNoRows) {
		return eris.Errorf("alias not found: %s", aliasID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: approve alias %s", aliasID)
	}

	if err := releaseHeldDocumentTx(ctx, tx, sourceDocID.String, propertyID); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit approve alias")
}

func (s *SQLiteStore) RejectAlias(ctx context.Context, aliasID, reassignToPropertyID string) error {
	if reassignToPropertyID == "" {
		res, err := s.db.ExecContext(ctx, `DELETE FROM property_aliases WHERE id = ?`, aliasID)
		if err != nil {
			return eris.Wrapf(err, "sqlite: reject alias %s", aliasID)
		}
		return checkRowsAffected(res, "alias", aliasID)
	}

	// Reassignment approves the alias under the corrected property, so the
	// source document follows it out of the review queue.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin reassign alias")
	}
	defer tx.Rollback() //nolint:errcheck

	var sourceDocID sql.NullString
	err = tx.QueryRowContext(ctx,
		`UPDATE property_aliases SET property_id = ?, approved = 1 WHERE id = ?
		 RETURNING source_document_id`,
		reassignToPropertyID, aliasID,
	).Scan(&sourceDocID)
	if eris.Is(err, sql.ErrNoRows) {
		return eris.Errorf("alias not found: %s", aliasID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: reassign alias %s", aliasID)
	}

	if err := releaseHeldDocumentTx(ctx, tx, sourceDocID.String, reassignToPropertyID); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit reassign alias")
}

// releaseHeldDocumentTx finalizes a document whose attribution was held
// for review: the resolution reason clears, the resolved property is
// confirmed, and the document's metrics are backfilled so they start
// feeding aggregates and anomaly input.
func releaseHeldDocumentTx(ctx context.Context, tx *sql.Tx, documentID, propertyID string) error {
	if documentID == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE documents SET resolved_property_id = ?, resolution_reason = NULL, updated_at = ?
		 WHERE id = ? AND resolution_reason IS NOT NULL`,
		propertyID, time.Now().UTC(), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: release document %s", documentID)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE extracted_metrics SET property_id = ? WHERE document_id = ?`,
		propertyID, documentID,
	)
	return eris.Wrapf(err, "sqlite: attribute metrics for %s", documentID)
}

// ListPendingResolutions returns the manual-review queue: documents whose
// property attribution is held, joined to the unapproved alias proposed
// from each document, if any. Documents that failed processing outright
// carry no resolution reason and are reviewed through the failed-status
// document listing instead.
func (s *SQLiteStore) ListPendingResolutions(ctx context.Context) ([]model.PendingResolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.original_filename, COALESCE(d.candidate_text, ''), d.resolution_reason,
		        a.id, a.property_id, a.confidence
		 FROM documents d
		 LEFT JOIN property_aliases a ON a.source_document_id = d.id AND a.approved = 0
		 WHERE d.resolution_reason IS NOT NULL
		 ORDER BY d.uploaded_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending resolutions")
	}
	defer rows.Close()

	var pending []model.PendingResolution
	for rows.Next() {
		var p model.PendingResolution
		var reason sql.NullString
		var aliasID, propertyID sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&p.DocumentID, &p.Filename, &p.CandidateText, &reason, &aliasID, &propertyID, &confidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pending resolution")
		}
		p.Reason = reason.String
		if aliasID.Valid {
			p.AliasID = &aliasID.String
		}
		if propertyID.Valid {
			p.PropertyID = &propertyID.String
		}
		if confidence.Valid {
			p.Confidence = &confidence.Float64
		}
		pending = append(pending, p)
	}
	return pending, eris.Wrap(rows.Err(), "sqlite: list pending resolutions iterate")
}

// Metric series and anomaly records

// ListMetricSeries returns usable metric points for one (property,
// metricType) in period order, oldest first. The limit keeps the most
// recent periods: the inner query selects newest-first, the outer one
// restores chronological order. Metrics from failed documents never
// appear: only validated documents whose latest report passed or warned
// feed the series.
func (s *SQLiteStore) ListMetricSeries(ctx context.Context, propertyID string, metricType model.MetricType, limit int) ([]model.ExtractedMetric, error) {
	if limit <= 0 {
		limit = 120
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, property_id, period_year, period_month, period_type, metric_type, value
		 FROM (
		   SELECT m.document_id, m.property_id, m.period_year, m.period_month, m.period_type, m.metric_type, m.value
		   FROM extracted_metrics m
		   JOIN documents d ON d.id = m.document_id
		   WHERE m.property_id = ? AND m.metric_type = ?
		     AND d.processing_status = 'validated'
		     AND EXISTS (
		       SELECT 1 FROM validation_reports r
		       WHERE r.document_id = d.id
		         AND r.match_status IN ('pass', 'warning')
		         AND r.created_at = (SELECT MAX(created_at) FROM validation_reports WHERE document_id = d.id)
		     )
		   ORDER BY m.period_year DESC, m.period_month DESC
		   LIMIT ?
		 ) AS recent
		 ORDER BY period_year, period_month`,
		propertyID, string(metricType), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list metric series")
	}
	defer rows.Close()

	var metrics []model.ExtractedMetric
	for rows.Next() {
		var m model.ExtractedMetric
		if err := rows.Scan(&m.DocumentID, &m.PropertyID, &m.Period.Year, &m.Period.Month, &m.Period.Type, &m.MetricType, &m.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "sqlite: list metric series iterate")
}

func (s *SQLiteStore) UpsertAnomalyRecord(ctx context.Context, rec model.AnomalyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anomaly_records (property_id, metric_type, period_year, period_month, period_type, mean, stddev, zscore, cusum, flagged, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(property_id, metric_type, period_year, period_month, period_type) DO UPDATE SET
		   mean = excluded.mean, stddev = excluded.stddev, zscore = excluded.zscore,
		   cusum = excluded.cusum, flagged = excluded.flagged, computed_at = excluded.computed_at`,
		rec.PropertyID, string(rec.MetricType),
		rec.Period.Year, rec.Period.Month, string(rec.Period.Type),
		rec.Mean, rec.StdDev, rec.ZScore, rec.CUSUMStatistic, rec.Flagged, rec.ComputedAt,
	)
	return eris.Wrap(err, "sqlite: upsert anomaly record")
}

func (s *SQLiteStore) ListAnomalies(ctx context.Context, onlyFlagged bool) ([]model.AnomalyRecord, error) {
	query := `SELECT property_id, metric_type, period_year, period_month, period_type, mean, stddev, zscore, cusum, flagged, computed_at
	          FROM anomaly_records`
	if onlyFlagged {
		query += ` WHERE flagged = 1`
	}
	query += ` ORDER BY property_id, metric_type, period_year, period_month`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list anomalies")
	}
	defer rows.Close()

	var records []model.AnomalyRecord
	for rows.Next() {
		var r model.AnomalyRecord
		if err := rows.Scan(&r.PropertyID, &r.MetricType, &r.Period.Year, &r.Period.Month, &r.Period.Type,
			&r.Mean, &r.StdDev, &r.ZScore, &r.CUSUMStatistic, &r.Flagged, &r.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan anomaly record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list anomalies iterate")
}

// Job queue

const jobColumns = `id, document_id, storage_key, status, attempts, last_error, visible_at, claimed_by, claimed_at, created_at, updated_at`

// EnqueueJob creates a pending job for the document, or returns the
// already-active job when one is pending or claimed. A document never has
// two live jobs.
func (s *SQLiteStore) EnqueueJob(ctx context.Context, documentID, storageKey string) (*model.Job, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (document_id, storage_key, status, visible_at, created_at, updated_at)
		 VALUES (?, ?, 'pending', ?, ?, ?)
		 ON CONFLICT(document_id) WHERE status IN ('pending', 'claimed') DO NOTHING`,
		documentID, storageKey, now, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enqueue job")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE document_id = ? AND status IN ('pending', 'claimed')
		 ORDER BY id DESC LIMIT 1`,
		documentID,
	)
	return scanJob(row)
}

// ClaimJob atomically claims the longest-waiting visible job. Claimed
// jobs whose visibility deadline has lapsed are reclaimable, which is
// how work abandoned by a crashed worker returns to the pool.
func (s *SQLiteStore) ClaimJob(ctx context.Context, workerID string, visibilityTimeout time.Duration) (*model.Job, error) {
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx,
		`UPDATE jobs
		 SET status = 'claimed', claimed_by = ?, claimed_at = ?, visible_at = ?, attempts = attempts + 1, updated_at = ?
		 WHERE id = (
		   SELECT id FROM jobs
		   WHERE status IN ('pending', 'claimed') AND visible_at <= ?
		   ORDER BY visible_at, id LIMIT 1
		 )
		 RETURNING `+jobColumns,
		workerID, now, now.Add(visibilityTimeout), now, now,
	)
	job, err := scanJob(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *SQLiteStore) AckJob(ctx context.Context, jobID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'done', updated_at = ? WHERE id = ? AND status = 'claimed'`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: ack job %d", jobID)
	}
	return checkRowsAffected(res, "job", "claimed")
}

// RetryJob returns a claimed job to pending, invisible until the backoff
// elapses.
func (s *SQLiteStore) RetryJob(ctx context.Context, jobID int64, backoff time.Duration, lastErr string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', claimed_by = '', claimed_at = NULL, last_error = ?, visible_at = ?, updated_at = ?
		 WHERE id = ?`,
		lastErr, now.Add(backoff), now, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: retry job %d", jobID)
	}
	return checkRowsAffected(res, "job", "retry")
}

func (s *SQLiteStore) DeadLetterJob(ctx context.Context, jobID int64, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'dead_letter', last_error = ?, updated_at = ? WHERE id = ?`,
		lastErr, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: dead-letter job %d", jobID)
	}
	return checkRowsAffected(res, "job", "dead_letter")
}

func (s *SQLiteStore) QueueStats(ctx context.Context) (*model.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: queue stats")
	}
	defer rows.Close()

	var stats model.QueueStats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue stats")
		}
		switch model.JobStatus(status) {
		case model.JobPending:
			stats.Pending = n
		case model.JobClaimed:
			stats.Claimed = n
		case model.JobDone:
			stats.Done = n
		case model.JobDeadLetter:
			stats.DeadLetter = n
		}
	}
	return &stats, eris.Wrap(rows.Err(), "sqlite: queue stats iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var resolved, reason sql.NullString

	err := row.Scan(&d.ID, &d.OriginalFilename, &d.StorageKey, &d.UploadedAt,
		&d.DetectedKind, &d.ProcessingStatus, &resolved, &reason, &d.Version, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(err, "document not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan document")
	}
	if resolved.Valid {
		d.ResolvedPropertyID = &resolved.String
	}
	if reason.Valid {
		d.FailureReason = &reason.String
	}
	return &d, nil
}

func scanReport(row scannable) (*model.ValidationReport, error) {
	var rep model.ValidationReport
	var expectedArea, actualArea sql.NullFloat64
	var discJSON, occJSON sql.NullString

	err := row.Scan(&rep.ID, &rep.DocumentID, &rep.ValidationType,
		&rep.ExpectedCount, &rep.ActualCount, &expectedArea, &actualArea,
		&rep.MatchStatus, &discJSON, &occJSON, &rep.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(err, "report not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan report")
	}
	if expectedArea.Valid {
		rep.ExpectedArea = &expectedArea.Float64
	}
	if actualArea.Valid {
		rep.ActualArea = &actualArea.Float64
	}
	if discJSON.Valid && discJSON.String != "" {
		if err := json.Unmarshal([]byte(discJSON.String), &rep.Discrepancies); err != nil {
			return nil, eris.Wrap(err, "unmarshal discrepancies")
		}
	}
	if occJSON.Valid && occJSON.String != "" {
		rep.Occupancy = &model.OccupancySummary{}
		if err := json.Unmarshal([]byte(occJSON.String), rep.Occupancy); err != nil {
			return nil, eris.Wrap(err, "unmarshal occupancy")
		}
	}
	return &rep, nil
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var claimedAt sql.NullTime

	err := row.Scan(&j.ID, &j.DocumentID, &j.StorageKey, &j.Status, &j.Attempts,
		&j.LastError, &j.VisibleAt, &j.ClaimedBy, &claimedAt, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(err, "job not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan job")
	}
	if claimedAt.Valid {
		j.ClaimedAt = &claimedAt.Time
	}
	return &j, nil
}

func marshalReportJSON(rep *model.ValidationReport) (disc, occ *string, err error) {
	if len(rep.Discrepancies) > 0 {
		b, err := json.Marshal(rep.Discrepancies)
		if err != nil {
			return nil, nil, eris.Wrap(err, "marshal discrepancies")
		}
		s := string(b)
		disc = &s
	}
	if rep.Occupancy != nil {
		b, err := json.Marshal(rep.Occupancy)
		if err != nil {
			return nil, nil, eris.Wrap(err, "marshal occupancy")
		}
		s := string(b)
		occ = &s
	}
	return disc, occ, nil
}
