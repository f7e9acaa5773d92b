package model

import "time"

// PropertyClass groups properties for anomaly threshold tuning.
type PropertyClass string

const (
	ClassStabilized PropertyClass = "stabilized"
	ClassLeaseUp    PropertyClass = "lease_up"
)

// Property is a canonical property record in the registry.
type Property struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	PropertyClass PropertyClass `json:"property_class"`
	CreatedAt     time.Time     `json:"created_at"`
}

// PropertyAlias maps a normalized free-text name variant learned from
// documents to a canonical property. Unapproved aliases may be proposed but
// are never used for automatic routing.
type PropertyAlias struct {
	ID               string    `json:"id"`
	PropertyID       string    `json:"property_id"`
	AliasText        string    `json:"alias_text"` // normalized
	SourceDocumentID string    `json:"source_document_id"`
	Confidence       float64   `json:"confidence"`
	Approved         bool      `json:"approved"`
	CreatedAt        time.Time `json:"created_at"`
}

// PendingResolution is one entry in the manual-review queue: either a
// low-confidence alias awaiting approval or a document with no resolution.
type PendingResolution struct {
	DocumentID    string   `json:"document_id"`
	Filename      string   `json:"filename"`
	CandidateText string   `json:"candidate_text"`
	AliasID       *string  `json:"alias_id,omitempty"`
	PropertyID    *string  `json:"property_id,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	Reason        string   `json:"reason"` // "low_confidence" or "no_match"
}
