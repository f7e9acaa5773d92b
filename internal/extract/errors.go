package extract

import "fmt"

// UnrecognizedKindError signals that no known document structure was found.
// Not retryable; the document routes to manual review.
type UnrecognizedKindError struct {
	Detail string
}

func (e *UnrecognizedKindError) Error() string {
	return "unrecognized document kind: " + e.Detail
}

// NoMetricsError signals a statement document that yielded zero recognized
// metrics. Per contract this is a failure, never silently accepted.
type NoMetricsError struct {
	Kind string
}

func (e *NoMetricsError) Error() string {
	return fmt.Sprintf("no recognized metrics extracted from %s", e.Kind)
}

// TooManyRowFailuresError signals that the per-row failure rate exceeded the
// configured ratio and the document was failed outright.
type TooManyRowFailuresError struct {
	Failed int
	Total  int
	Ratio  float64
}

func (e *TooManyRowFailuresError) Error() string {
	return fmt.Sprintf("row failure rate %d/%d exceeds ratio %.2f", e.Failed, e.Total, e.Ratio)
}
