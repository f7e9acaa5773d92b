// Package model defines the core entities of the document processing pipeline.
package model

import "time"

// DocumentKind classifies what kind of financial document was detected.
type DocumentKind string

const (
	KindRentRoll        DocumentKind = "rent_roll"
	KindIncomeStatement DocumentKind = "income_statement"
	KindBalanceSheet    DocumentKind = "balance_sheet"
	KindCashFlow        DocumentKind = "cash_flow"
	KindUnknown         DocumentKind = "unknown"
)

// IsStatement reports whether the kind is one of the financial statement kinds.
func (k DocumentKind) IsStatement() bool {
	switch k {
	case KindIncomeStatement, KindBalanceSheet, KindCashFlow:
		return true
	}
	return false
}

// ProcessingStatus tracks a document through the pipeline.
type ProcessingStatus string

const (
	StatusQueued     ProcessingStatus = "queued"
	StatusProcessing ProcessingStatus = "processing"
	StatusValidated  ProcessingStatus = "validated"
	StatusFailed     ProcessingStatus = "failed"
)

// Terminal reports whether the status is a terminal pipeline state.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusValidated || s == StatusFailed
}

// Document is an uploaded financial document owned by the pipeline.
// The UI layer only reads it; all mutation happens inside a worker's
// single claimed processing attempt.
type Document struct {
	ID                 string           `json:"id"`
	OriginalFilename   string           `json:"original_filename"`
	StorageKey         string           `json:"storage_key"`
	UploadedAt         time.Time        `json:"uploaded_at"`
	DetectedKind       DocumentKind     `json:"detected_kind"`
	ProcessingStatus   ProcessingStatus `json:"processing_status"`
	ResolvedPropertyID *string          `json:"resolved_property_id,omitempty"`
	FailureReason      *string          `json:"failure_reason,omitempty"`
	Version            int              `json:"version"`
	UpdatedAt          time.Time        `json:"updated_at"`
}
