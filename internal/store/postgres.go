package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/propfin/internal/db"
	"github.com/sells-group/propfin/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id                   TEXT PRIMARY KEY,
	original_filename    TEXT NOT NULL,
	storage_key          TEXT NOT NULL,
	uploaded_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	detected_kind        TEXT NOT NULL DEFAULT 'unknown',
	processing_status    TEXT NOT NULL DEFAULT 'queued',
	resolved_property_id TEXT,
	failure_reason       TEXT,
	candidate_text       TEXT,
	resolution_reason    TEXT,
	version              INTEGER NOT NULL DEFAULT 1,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extracted_units (
	id               TEXT PRIMARY KEY,
	document_id      TEXT NOT NULL REFERENCES documents(id),
	unit_number      TEXT NOT NULL,
	tenant_name      TEXT,
	area_sqft        DOUBLE PRECISION NOT NULL DEFAULT 0,
	monthly_rent     DOUBLE PRECISION NOT NULL DEFAULT 0,
	lease_start      TIMESTAMPTZ,
	lease_end        TIMESTAMPTZ,
	occupancy_status TEXT NOT NULL,
	included         BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS extracted_metrics (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id),
	property_id  TEXT NOT NULL DEFAULT '',
	period_year  INTEGER NOT NULL,
	period_month INTEGER NOT NULL DEFAULT 0,
	period_type  TEXT NOT NULL,
	metric_type  TEXT NOT NULL,
	value        DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS validation_reports (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL REFERENCES documents(id),
	validation_type TEXT NOT NULL,
	expected_count  INTEGER NOT NULL DEFAULT 0,
	actual_count    INTEGER NOT NULL DEFAULT 0,
	expected_area   DOUBLE PRECISION,
	actual_area     DOUBLE PRECISION,
	match_status    TEXT NOT NULL,
	discrepancies   JSONB,
	occupancy       JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS properties (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	property_class TEXT NOT NULL DEFAULT 'stabilized',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS property_aliases (
	id                 TEXT PRIMARY KEY,
	property_id        TEXT NOT NULL REFERENCES properties(id),
	alias_text         TEXT NOT NULL,
	source_document_id TEXT NOT NULL DEFAULT '',
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	approved           BOOLEAN NOT NULL DEFAULT false,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(property_id, alias_text)
);

CREATE TABLE IF NOT EXISTS anomaly_records (
	property_id  TEXT NOT NULL,
	metric_type  TEXT NOT NULL,
	period_year  INTEGER NOT NULL,
	period_month INTEGER NOT NULL DEFAULT 0,
	period_type  TEXT NOT NULL,
	mean         DOUBLE PRECISION NOT NULL,
	stddev       DOUBLE PRECISION NOT NULL,
	zscore       DOUBLE PRECISION NOT NULL,
	cusum        DOUBLE PRECISION NOT NULL,
	flagged      BOOLEAN NOT NULL DEFAULT false,
	computed_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (property_id, metric_type, period_year, period_month, period_type)
);

CREATE TABLE IF NOT EXISTS jobs (
	id          BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	storage_key TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	visible_at  TIMESTAMPTZ NOT NULL,
	claimed_by  TEXT NOT NULL DEFAULT '',
	claimed_at  TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(processing_status);
CREATE INDEX IF NOT EXISTS idx_documents_property ON documents(resolved_property_id);
CREATE INDEX IF NOT EXISTS idx_units_document ON extracted_units(document_id);
CREATE INDEX IF NOT EXISTS idx_metrics_document ON extracted_metrics(document_id);
CREATE INDEX IF NOT EXISTS idx_metrics_series ON extracted_metrics(property_id, metric_type, period_year, period_month);
CREATE INDEX IF NOT EXISTS idx_reports_document ON validation_reports(document_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_aliases_property ON property_aliases(property_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active_document ON jobs(document_id) WHERE status IN ('pending', 'claimed');
CREATE INDEX IF NOT EXISTS idx_jobs_claimable ON jobs(status, visible_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Documents

func (s *PostgresStore) CreateDocument(ctx context.Context, filename, storageKey string) (*model.Document, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, original_filename, storage_key, uploaded_at, detected_kind, processing_status, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 1, $7)`,
		id, filename, storageKey, now, string(model.KindUnknown), string(model.StatusQueued), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert document")
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

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID,
	)
	d, err := scanPgDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", documentID)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND processing_status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(` AND detected_kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.PropertyID != "" {
		query += fmt.Sprintf(` AND resolved_property_id = $%d`, argIdx)
		args = append(args, filter.PropertyID)
		argIdx++
	}
	query += ` ORDER BY uploaded_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanPgDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, documentID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET processing_status = $1, updated_at = $2 WHERE id = $3`,
		string(model.StatusProcessing), time.Now().UTC(), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark processing %s", documentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("document not found: %s", documentID)
	}
	return nil
}

func (s *PostgresStore) FailDocument(ctx context.Context, documentID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET processing_status = $1, failure_reason = $2, updated_at = $3 WHERE id = $4`,
		string(model.StatusFailed), reason, time.Now().UTC(), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail document %s", documentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("document not found: %s", documentID)
	}
	return nil
}

func (s *PostgresStore) CommitProcessing(ctx context.Context, commit Commit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin commit")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	if _, err := tx.Exec(ctx, `DELETE FROM extracted_units WHERE document_id = $1`, commit.DocumentID); err != nil {
		return eris.Wrap(err, "postgres: supersede units")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM extracted_metrics WHERE document_id = $1`, commit.DocumentID); err != nil {
		return eris.Wrap(err, "postgres: supersede metrics")
	}

	for _, u := range commit.Units {
		_, err := tx.Exec(ctx,
			`INSERT INTO extracted_units (id, document_id, unit_number, tenant_name, area_sqft, monthly_rent, lease_start, lease_end, occupancy_status, included)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New().String(), commit.DocumentID, u.UnitNumber, u.TenantName,
			u.AreaSqFt, u.MonthlyRent, u.LeaseStart, u.LeaseEnd,
			string(u.OccupancyStatus), u.Included,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert unit")
		}
	}

	for _, m := range commit.Metrics {
		_, err := tx.Exec(ctx,
			`INSERT INTO extracted_metrics (id, document_id, property_id, period_year, period_month, period_type, metric_type, value)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New().String(), commit.DocumentID, m.PropertyID,
			m.Period.Year, m.Period.Month, string(m.Period.Type),
			string(m.MetricType), m.Value,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert metric")
		}
	}

	if rep := commit.Report; rep != nil {
		var discJSON, occJSON []byte
		if len(rep.Discrepancies) > 0 {
			if discJSON, err = json.Marshal(rep.Discrepancies); err != nil {
				return eris.Wrap(err, "postgres: marshal discrepancies")
			}
		}
		if rep.Occupancy != nil {
			if occJSON, err = json.Marshal(rep.Occupancy); err != nil {
				return eris.Wrap(err, "postgres: marshal occupancy")
			}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO validation_reports (id, document_id, validation_type, expected_count, actual_count, expected_area, actual_area, match_status, discrepancies, occupancy, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			rep.ID, commit.DocumentID, string(rep.ValidationType),
			rep.ExpectedCount, rep.ActualCount, rep.ExpectedArea, rep.ActualArea,
			string(rep.MatchStatus), discJSON, occJSON, now,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert report")
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE documents
		 SET detected_kind = $1, processing_status = $2, resolved_property_id = $3,
		     failure_reason = $4, candidate_text = $5, resolution_reason = $6,
		     version = version + 1, updated_at = $7
		 WHERE id = $8`,
		string(commit.Kind), string(commit.Status), commit.ResolvedPropertyID,
		commit.FailureReason, commit.CandidateText, commit.ResolutionReason,
		now, commit.DocumentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: commit document %s", commit.DocumentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("document not found: %s", commit.DocumentID)
	}

	if a := commit.NewAlias; a != nil {
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO property_aliases (id, property_id, alias_text, source_document_id, confidence, approved, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (property_id, alias_text) DO NOTHING`,
			id, a.PropertyID, a.AliasText, a.SourceDocumentID, a.Confidence, a.Approved, now,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: upsert alias")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// Extracted records

func (s *PostgresStore) ListUnits(ctx context.Context, documentID string) ([]model.ExtractedUnit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, unit_number, tenant_name, area_sqft, monthly_rent, lease_start, lease_end, occupancy_status, included
		 FROM extracted_units WHERE document_id = $1 ORDER BY unit_number`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list units")
	}
	defer rows.Close()

	var units []model.ExtractedUnit
	for rows.Next() {
		var u model.ExtractedUnit
		var status string
		if err := rows.Scan(&u.DocumentID, &u.UnitNumber, &u.TenantName, &u.AreaSqFt, &u.MonthlyRent, &u.LeaseStart, &u.LeaseEnd, &status, &u.Included); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unit")
		}
		u.OccupancyStatus = model.OccupancyStatus(status)
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "postgres: list units iterate")
}

func (s *PostgresStore) GetLatestReport(ctx context.Context, documentID string) (*model.ValidationReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM validation_reports
		 WHERE document_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		documentID,
	)
	rep, err := scanPgReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get latest report %s", documentID)
	}
	return rep, nil
}

func (s *PostgresStore) ListValidationWarnings(ctx context.Context, propertyID string) ([]model.ValidationReport, error) {
	query := `SELECT ` + reportColumns + ` FROM validation_reports r
	          WHERE r.match_status = 'warning'`
	args := []any{}
	if propertyID != "" {
		query += ` AND EXISTS (SELECT 1 FROM documents d WHERE d.id = r.document_id AND d.resolved_property_id = $1)`
		args = append(args, propertyID)
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list warnings")
	}
	defer rows.Close()

	var reports []model.ValidationReport
	for rows.Next() {
		rep, err := scanPgReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan warning")
		}
		reports = append(reports, *rep)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list warnings iterate")
}

// Property registry

func (s *PostgresStore) CreateProperty(ctx context.Context, name string, class model.PropertyClass) (*model.Property, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	if class == "" {
		class = model.ClassStabilized
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO properties (id, name, property_class, created_at) VALUES ($1, $2, $3, $4)`,
		id, name, string(class), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert property")
	}
	return &model.Property{ID: id, Name: name, PropertyClass: class, CreatedAt: now}, nil
}

func (s *PostgresStore) ListProperties(ctx context.Context) ([]model.Property, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, property_class, created_at FROM properties ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list properties")
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		var p model.Property
		var class string
		if err := rows.Scan(&p.ID, &p.Name, &class, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan property")
		}
		p.PropertyClass = model.PropertyClass(class)
		props = append(props, p)
	}
	return props, eris.Wrap(rows.Err(), "postgres: list properties iterate")
}

func (s *PostgresStore) ListAliases(ctx context.Context, approvedOnly bool) ([]model.PropertyAlias, error) {
	query := `SELECT id, property_id, alias_text, source_document_id, confidence, approved, created_at FROM property_aliases`
	if approvedOnly {
		query += ` WHERE approved`
	}
	query += ` ORDER BY alias_text`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list aliases")
	}
	defer rows.Close()

	var aliases []model.PropertyAlias
	for rows.Next() {
		var a model.PropertyAlias
		if err := rows.Scan(&a.ID, &a.PropertyID, &a.AliasText, &a.SourceDocumentID, &a.Confidence, &a.Approved, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alias")
		}
		aliases = append(aliases, a)
	}
	return aliases, eris.Wrap(rows.Err(), "postgres: list aliases iterate")
}

func (s *PostgresStore) UpsertPropertyAlias(ctx context.Context, alias model.PropertyAlias) error {
	id := alias.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO property_aliases (id, property_id, alias_text, source_document_id, confidence, approved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (property_id, alias_text) DO NOTHING`,
		id, alias.PropertyID, alias.AliasText, alias.SourceDocumentID, alias.Confidence, alias.Approved, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: upsert alias")
}

// ApproveAlias confirms a proposed alias and releases its source
// document from the review queue: the provisional resolution becomes
// final and the document's metrics gain the property attribution that
// was held pending approval, all in one transaction.
func (s *PostgresStore) ApproveAlias(ctx context.Context, aliasID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin approve alias")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var propertyID string
	var sourceDocID *string
	err = tx.QueryRow(ctx,
		`UPDATE property_aliases SET approved = true WHERE id = $1
		 RETURNING property_id, source_document_id`,
		aliasID,
	).Scan(&propertyID, &sourceDocID)
	if eris.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("alias not found: %s", aliasID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: approve alias %s", aliasID)
	}

	if sourceDocID != nil {
		if err := releaseHeldDocument(ctx, tx, *sourceDocID, propertyID); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit approve alias")
}

func (s *PostgresStore) RejectAlias(ctx context.Context, aliasID, reassignToPropertyID string) error {
	if reassignToPropertyID == "" {
		tag, err := s.pool.Exec(ctx, `DELETE FROM property_aliases WHERE id = $1`, aliasID)
		if err != nil {
			return eris.Wrapf(err, "postgres: reject alias %s", aliasID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("alias not found: %s", aliasID)
		}
		return nil
	}

	// Reassignment approves the alias under the corrected property, so the
	// source document follows it out of the review queue.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin reassign alias")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var sourceDocID *string
	err = tx.QueryRow(ctx,
		`UPDATE property_aliases SET property_id = $1, approved = true WHERE id = $2
		 RETURNING source_document_id`,
		reassignToPropertyID, aliasID,
	).Scan(&sourceDocID)
	if eris.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("alias not found: %s", aliasID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: reassign alias %s", aliasID)
	}

	if sourceDocID != nil {
		if err := releaseHeldDocument(ctx, tx, *sourceDocID, reassignToPropertyID); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit reassign alias")
}

// releaseHeldDocument finalizes a document whose attribution was held
// for review: the resolution reason clears, the resolved property is
// confirmed, and the document's metrics are backfilled so they start
// feeding aggregates and anomaly input.
func releaseHeldDocument(ctx context.Context, tx pgx.Tx, documentID, propertyID string) error {
	if documentID == "" {
		return nil
	}
	_, err := tx.Exec(ctx,
		`UPDATE documents SET resolved_property_id = $1, resolution_reason = NULL, updated_at = $2
		 WHERE id = $3 AND resolution_reason IS NOT NULL`,
		propertyID, time.Now().UTC(), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: release document %s", documentID)
	}
	_, err = tx.Exec(ctx,
		`UPDATE extracted_metrics SET property_id = $1 WHERE document_id = $2`,
		propertyID, documentID,
	)
	return eris.Wrapf(err, "postgres: attribute metrics for %s", documentID)
}

func (s *PostgresStore) ListPendingResolutions(ctx context.Context) ([]model.PendingResolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.id, d.original_filename, COALESCE(d.candidate_text, ''), d.resolution_reason,
		        a.id, a.property_id, a.confidence
		 FROM documents d
		 LEFT JOIN property_aliases a ON a.source_document_id = d.id AND a.approved = false
		 WHERE d.resolution_reason IS NOT NULL
		 ORDER BY d.uploaded_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending resolutions")
	}
	defer rows.Close()

	var pending []model.PendingResolution
	for rows.Next() {
		var p model.PendingResolution
		var reason *string
		if err := rows.Scan(&p.DocumentID, &p.Filename, &p.CandidateText, &reason, &p.AliasID, &p.PropertyID, &p.Confidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending resolution")
		}
		if reason != nil {
			p.Reason = *reason
		}
		pending = append(pending, p)
	}
	return pending, eris.Wrap(rows.Err(), "postgres: list pending resolutions iterate")
}

// Metric series and anomaly records

func (s *PostgresStore) ListMetricSeries(ctx context.Context, propertyID string, metricType model.MetricType, limit int) ([]model.ExtractedMetric, error) {
	if limit <= 0 {
		limit = 120
	}
	// The limit keeps the most recent periods; the outer query restores
	// chronological order for callers.
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, property_id, period_year, period_month, period_type, metric_type, value
		 FROM (
		   SELECT m.document_id, m.property_id, m.period_year, m.period_month, m.period_type, m.metric_type, m.value
		   FROM extracted_metrics m
		   JOIN documents d ON d.id = m.document_id
		   WHERE m.property_id = $1 AND m.metric_type = $2
		     AND d.processing_status = 'validated'
		     AND EXISTS (
		       SELECT 1 FROM validation_reports r
		       WHERE r.document_id = d.id
		         AND r.match_status IN ('pass', 'warning')
		         AND r.created_at = (SELECT MAX(created_at) FROM validation_reports WHERE document_id = d.id)
		     )
		   ORDER BY m.period_year DESC, m.period_month DESC
		   LIMIT $3
		 ) AS recent
		 ORDER BY period_year, period_month`,
		propertyID, string(metricType), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list metric series")
	}
	defer rows.Close()

	var metrics []model.ExtractedMetric
	for rows.Next() {
		var m model.ExtractedMetric
		var periodType, metric string
		if err := rows.Scan(&m.DocumentID, &m.PropertyID, &m.Period.Year, &m.Period.Month, &periodType, &metric, &m.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		m.Period.Type = model.PeriodType(periodType)
		m.MetricType = model.MetricType(metric)
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "postgres: list metric series iterate")
}

func (s *PostgresStore) UpsertAnomalyRecord(ctx context.Context, rec model.AnomalyRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO anomaly_records (property_id, metric_type, period_year, period_month, period_type, mean, stddev, zscore, cusum, flagged, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (property_id, metric_type, period_year, period_month, period_type) DO UPDATE SET
		   mean = EXCLUDED.mean, stddev = EXCLUDED.stddev, zscore = EXCLUDED.zscore,
		   cusum = EXCLUDED.cusum, flagged = EXCLUDED.flagged, computed_at = EXCLUDED.computed_at`,
		rec.PropertyID, string(rec.MetricType),
		rec.Period.Year, rec.Period.Month, string(rec.Period.Type),
		rec.Mean, rec.StdDev, rec.ZScore, rec.CUSUMStatistic, rec.Flagged, rec.ComputedAt,
	)
	return eris.Wrap(err, "postgres: upsert anomaly record")
}

func (s *PostgresStore) ListAnomalies(ctx context.Context, onlyFlagged bool) ([]model.AnomalyRecord, error) {
	query := `SELECT property_id, metric_type, period_year, period_month, period_type, mean, stddev, zscore, cusum, flagged, computed_at
	          FROM anomaly_records`
	if onlyFlagged {
		query += ` WHERE flagged`
	}
	query += ` ORDER BY property_id, metric_type, period_year, period_month`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list anomalies")
	}
	defer rows.Close()

	var records []model.AnomalyRecord
	for rows.Next() {
		var r model.AnomalyRecord
		var metric, periodType string
		if err := rows.Scan(&r.PropertyID, &metric, &r.Period.Year, &r.Period.Month, &periodType,
			&r.Mean, &r.StdDev, &r.ZScore, &r.CUSUMStatistic, &r.Flagged, &r.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan anomaly record")
		}
		r.MetricType = model.MetricType(metric)
		r.Period.Type = model.PeriodType(periodType)
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list anomalies iterate")
}

// Job queue

func (s *PostgresStore) EnqueueJob(ctx context.Context, documentID, storageKey string) (*model.Job, error) {
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (document_id, storage_key, status, visible_at, created_at, updated_at)
		 VALUES ($1, $2, 'pending', $3, $4, $5)
		 ON CONFLICT (document_id) WHERE status IN ('pending', 'claimed') DO NOTHING`,
		documentID, storageKey, now, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue job")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE document_id = $1 AND status IN ('pending', 'claimed')
		 ORDER BY id DESC LIMIT 1`,
		documentID,
	)
	j, err := scanPgJob(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue job select")
	}
	return j, nil
}

// ClaimJob claims the longest-waiting visible job using FOR UPDATE SKIP
// LOCKED so concurrent workers never fight over the same row.
func (s *PostgresStore) ClaimJob(ctx context.Context, workerID string, visibilityTimeout time.Duration) (*model.Job, error) {
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx,
		`WITH next AS (
		   SELECT id FROM jobs
		   WHERE status IN ('pending', 'claimed') AND visible_at <= $1
		   ORDER BY visible_at, id
		   FOR UPDATE SKIP LOCKED
		   LIMIT 1
		 )
		 UPDATE jobs j
		 SET status = 'claimed', claimed_by = $2, claimed_at = $3, visible_at = $4, attempts = attempts + 1, updated_at = $5
		 FROM next WHERE j.id = next.id
		 RETURNING j.id, j.document_id, j.storage_key, j.status, j.attempts, j.last_error, j.visible_at, j.claimed_by, j.claimed_at, j.created_at, j.updated_at`,
		now, workerID, now, now.Add(visibilityTimeout), now,
	)
	j, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim job")
	}
	return j, nil
}

func (s *PostgresStore) AckJob(ctx context.Context, jobID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'done', updated_at = $1 WHERE id = $2 AND status = 'claimed'`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: ack job %d", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not claimed: %d", jobID)
	}
	return nil
}

func (s *PostgresStore) RetryJob(ctx context.Context, jobID int64, backoff time.Duration, lastErr string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'pending', claimed_by = '', claimed_at = NULL, last_error = $1, visible_at = $2, updated_at = $3
		 WHERE id = $4`,
		lastErr, now.Add(backoff), now, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: retry job %d", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %d", jobID)
	}
	return nil
}

func (s *PostgresStore) DeadLetterJob(ctx context.Context, jobID int64, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'dead_letter', last_error = $1, updated_at = $2 WHERE id = $3`,
		lastErr, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: dead-letter job %d", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %d", jobID)
	}
	return nil
}

func (s *PostgresStore) QueueStats(ctx context.Context) (*model.QueueStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: queue stats")
	}
	defer rows.Close()

	var stats model.QueueStats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue stats")
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
	return &stats, eris.Wrap(rows.Err(), "postgres: queue stats iterate")
}

// scan helpers

func scanPgDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var kind, status string

	err := row.Scan(&d.ID, &d.OriginalFilename, &d.StorageKey, &d.UploadedAt,
		&kind, &status, &d.ResolvedPropertyID, &d.FailureReason, &d.Version, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.DetectedKind = model.DocumentKind(kind)
	d.ProcessingStatus = model.ProcessingStatus(status)
	return &d, nil
}

func scanPgReport(row scannable) (*model.ValidationReport, error) {
	var rep model.ValidationReport
	var vtype, status string
	var discJSON, occJSON []byte

	err := row.Scan(&rep.ID, &rep.DocumentID, &vtype,
		&rep.ExpectedCount, &rep.ActualCount, &rep.ExpectedArea, &rep.ActualArea,
		&status, &discJSON, &occJSON, &rep.CreatedAt)
	if err != nil {
		return nil, err
	}
	rep.ValidationType = model.ValidationType(vtype)
	rep.MatchStatus = model.MatchStatus(status)
	if len(discJSON) > 0 {
		if err := json.Unmarshal(discJSON, &rep.Discrepancies); err != nil {
			return nil, eris.Wrap(err, "unmarshal discrepancies")
		}
	}
	if len(occJSON) > 0 {
		rep.Occupancy = &model.OccupancySummary{}
		if err := json.Unmarshal(occJSON, rep.Occupancy); err != nil {
			return nil, eris.Wrap(err, "unmarshal occupancy")
		}
	}
	return &rep, nil
}

func scanPgJob(row scannable) (*model.Job, error) {
	var j model.Job
	var status string

	err := row.Scan(&j.ID, &j.DocumentID, &j.StorageKey, &status, &j.Attempts,
		&j.LastError, &j.VisibleAt, &j.ClaimedBy, &j.ClaimedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}
