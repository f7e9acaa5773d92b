// Package store persists documents, extracted records, validation
// reports, property identities, anomaly records, and the durable job
// queue, with SQLite and Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/sells-group/propfin/internal/model"
)

// DocumentFilter specifies criteria for listing documents.
type DocumentFilter struct {
	Status     model.ProcessingStatus `json:"status,omitempty"`
	Kind       model.DocumentKind     `json:"kind,omitempty"`
	PropertyID string                 `json:"property_id,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	Offset     int                    `json:"offset,omitempty"`
}

// Commit is everything one processing attempt writes for a document. The
// store applies it as a single transaction so a reader never observes a
// validation report without its supporting extracted rows. Prior units
// and metrics for the document are superseded, not appended to; reports
// are append-only history.
type Commit struct {
	DocumentID         string
	Kind               model.DocumentKind
	Status             model.ProcessingStatus
	FailureReason      *string
	ResolvedPropertyID *string
	CandidateText      string
	// ResolutionReason is set ("low_confidence" or "no_match") when
	// property attribution is held for manual review, nil otherwise.
	ResolutionReason *string
	Units            []model.ExtractedUnit
	Metrics          []model.ExtractedMetric
	Report           *model.ValidationReport
	NewAlias         *model.PropertyAlias
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, filename, storageKey string) (*model.Document, error)
	GetDocument(ctx context.Context, documentID string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error)
	MarkProcessing(ctx context.Context, documentID string) error
	FailDocument(ctx context.Context, documentID, reason string) error
	CommitProcessing(ctx context.Context, commit Commit) error

	// Extracted records
	ListUnits(ctx context.Context, documentID string) ([]model.ExtractedUnit, error)
	GetLatestReport(ctx context.Context, documentID string) (*model.ValidationReport, error)
	ListValidationWarnings(ctx context.Context, propertyID string) ([]model.ValidationReport, error)

	// Property registry
	CreateProperty(ctx context.Context, name string, class model.PropertyClass) (*model.Property, error)
	ListProperties(ctx context.Context) ([]model.Property, error)
	ListAliases(ctx context.Context, approvedOnly bool) ([]model.PropertyAlias, error)
	UpsertPropertyAlias(ctx context.Context, alias model.PropertyAlias) error
	ApproveAlias(ctx context.Context, aliasID string) error
	RejectAlias(ctx context.Context, aliasID, reassignToPropertyID string) error
	// ListPendingResolutions covers documents held on property identity
	// (low_confidence, no_match). Documents that failed processing
	// outright are a separate review surface: poll them via
	// ListDocuments with StatusFailed.
	ListPendingResolutions(ctx context.Context) ([]model.PendingResolution, error)

	// Metric series and anomaly records
	ListMetricSeries(ctx context.Context, propertyID string, metricType model.MetricType, limit int) ([]model.ExtractedMetric, error)
	UpsertAnomalyRecord(ctx context.Context, rec model.AnomalyRecord) error
	ListAnomalies(ctx context.Context, onlyFlagged bool) ([]model.AnomalyRecord, error)

	// Job queue
	EnqueueJob(ctx context.Context, documentID, storageKey string) (*model.Job, error)
	ClaimJob(ctx context.Context, workerID string, visibilityTimeout time.Duration) (*model.Job, error)
	AckJob(ctx context.Context, jobID int64) error
	RetryJob(ctx context.Context, jobID int64, backoff time.Duration, lastErr string) error
	DeadLetterJob(ctx context.Context, jobID int64, lastErr string) error
	QueueStats(ctx context.Context) (*model.QueueStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
