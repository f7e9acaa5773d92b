package extract

import (
	"go.uber.org/zap"

	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/parser"
)

// Extractor runs kind detection and layout-strategy extraction.
type Extractor struct {
	vocab              *Vocabulary
	maxRowFailureRatio float64
}

// New creates an Extractor. A zero maxRowFailureRatio falls back to 0.2.
func New(vocab *Vocabulary, maxRowFailureRatio float64) *Extractor {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if maxRowFailureRatio <= 0 {
		maxRowFailureRatio = 0.2
	}
	return &Extractor{vocab: vocab, maxRowFailureRatio: maxRowFailureRatio}
}

// Extract detects the document kind and extracts typed records.
// Row-level failures are collected, not fatal, unless their rate exceeds
// the configured ratio.
func (e *Extractor) Extract(docID string, p *parser.Parsed) (*Result, error) {
	log := zap.L().With(zap.String("component", "extract"), zap.String("document_id", docID))

	kind := DetectKind(p, e.vocab)
	log.Debug("detected kind", zap.String("kind", string(kind)))

	switch {
	case kind == model.KindRentRoll:
		return e.extractRentRoll(docID, p, log)
	case kind.IsStatement():
		return extractStatement(docID, kind, p, e.vocab)
	default:
		return nil, &UnrecognizedKindError{Detail: "no rent-roll header or statement labels found"}
	}
}

func (e *Extractor) extractRentRoll(docID string, p *parser.Parsed, log *zap.Logger) (*Result, error) {
	strategy := selectStrategy(p, e.vocab)
	if strategy == nil {
		return nil, &UnrecognizedKindError{Detail: "rent roll structure detected but no layout strategy matched"}
	}

	res, err := strategy.Extract(docID, p, e.vocab)
	if err != nil {
		return nil, err
	}

	total := len(res.Units) + len(res.RowErrors)
	if total > 0 {
		ratio := float64(len(res.RowErrors)) / float64(total)
		if ratio > e.maxRowFailureRatio {
			return nil, &TooManyRowFailuresError{Failed: len(res.RowErrors), Total: total, Ratio: e.maxRowFailureRatio}
		}
	}

	log.Debug("rent roll extracted",
		zap.String("strategy", strategy.Name()),
		zap.Int("units", len(res.Units)),
		zap.Int("row_errors", len(res.RowErrors)),
	)
	return res, nil
}
