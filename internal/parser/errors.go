package parser

import "fmt"

// ParseError signals unreadable or corrupt input. Fatal for the current
// processing attempt but safe to retry: the bytes may have been truncated in
// transit or the extractor binary may have been transiently unavailable.
type ParseError struct {
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Detail, e.Err)
	}
	return "parse: " + e.Detail
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmptyDocumentError signals readable input with no content (zero pages,
// zero non-blank rows). Never retryable; the document routes straight to
// failed status.
type EmptyDocumentError struct {
	Detail string
}

func (e *EmptyDocumentError) Error() string {
	return "empty document: " + e.Detail
}
