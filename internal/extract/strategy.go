package extract

import (
	"github.com/sells-group/propfin/internal/parser"
)

// Strategy is one named layout family implementing the extraction contract.
// Strategies are tried in registration order; the first whose Detect accepts
// the representation extracts it.
type Strategy interface {
	Name() string
	Detect(p *parser.Parsed, vocab *Vocabulary) bool
	Extract(docID string, p *parser.Parsed, vocab *Vocabulary) (*Result, error)
}

// rentRollStrategies returns the layout families recognized for rent rolls,
// most structured first.
func rentRollStrategies() []Strategy {
	return []Strategy{
		&headerGridStrategy{},
		&singleColumnStrategy{},
		&pagedTextStrategy{},
	}
}

// selectStrategy returns the first strategy that recognizes the layout.
func selectStrategy(p *parser.Parsed, vocab *Vocabulary) Strategy {
	for _, s := range rentRollStrategies() {
		if s.Detect(p, vocab) {
			return s
		}
	}
	return nil
}
