package resolve

import (
	"github.com/sells-group/propfin/internal/config"
	"github.com/sells-group/propfin/internal/model"
)

// Band classifies a resolution decision by confidence.
type Band string

const (
	// BandAuto resolves the document to the property without review.
	BandAuto Band = "auto"
	// BandReview resolves provisionally and queues the alias for review.
	BandReview Band = "review"
	// BandNone leaves the document unresolved pending manual assignment.
	BandNone Band = "none"
)

// Registry is the matching universe: canonical properties plus their
// approved aliases. Unapproved aliases are excluded so that a pending
// proposal can never influence routing.
type Registry struct {
	Properties []model.Property
	Aliases    []model.PropertyAlias
}

// Decision is the outcome of resolving one document.
type Decision struct {
	PropertyID  string
	Confidence  float64
	Band        Band
	MatchedText string // the candidate that produced the best score
	MatchedName string // the normalized registry name or alias it matched
	ViaAlias    bool
	// NewAlias is a proposed alias row when the matched text is not
	// already in the registry; nil when nothing should be inserted.
	NewAlias *model.PropertyAlias
}

// Resolver scores document name candidates against the registry and
// assigns each document to a confidence band.
type Resolver struct {
	auto   float64
	review float64
}

// New builds a Resolver from config thresholds, applying defaults for
// zero values.
func New(cfg config.ResolveConfig) *Resolver {
	r := &Resolver{auto: cfg.AutoThreshold, review: cfg.ReviewThreshold}
	if r.auto <= 0 {
		r.auto = 0.90
	}
	if r.review <= 0 {
		r.review = 0.60
	}
	return r
}

// Resolve picks the best (candidate, registry entry) pair by score and
// maps it to a band. Candidates are evaluated in order and registry
// entries in slice order, with strictly-greater comparison on score, so
// identical inputs always produce the identical decision.
func (r *Resolver) Resolve(candidates []string, reg Registry, documentID string) Decision {
	best := Decision{Band: BandNone}

	for _, cand := range candidates {
		nc := Normalize(cand)
		if nc == "" {
			continue
		}

		// Approved aliases are exact-match only: an alias is a learned
		// spelling, not a fuzzy anchor.
		for _, alias := range reg.Aliases {
			if !alias.Approved {
				continue
			}
			if nc == alias.AliasText && best.Confidence < 1.0 {
				best = Decision{
					PropertyID:  alias.PropertyID,
					Confidence:  1.0,
					MatchedText: nc,
					MatchedName: alias.AliasText,
					ViaAlias:    true,
				}
			}
		}
		if best.Confidence >= 1.0 {
			break
		}

		for _, prop := range reg.Properties {
			score := Similarity(nc, Normalize(prop.Name))
			if score > best.Confidence {
				best = Decision{
					PropertyID:  prop.ID,
					Confidence:  score,
					MatchedText: nc,
					MatchedName: Normalize(prop.Name),
				}
			}
		}
	}

	switch {
	case best.Confidence >= r.auto:
		best.Band = BandAuto
	case best.Confidence >= r.review:
		best.Band = BandReview
	default:
		best.Band = BandNone
		best.PropertyID = ""
		return best
	}

	if alias := r.proposeAlias(best, reg, documentID); alias != nil {
		best.NewAlias = alias
	}
	return best
}

// proposeAlias returns an alias row to insert for the matched text, or
// nil when the text is already known. Auto-band aliases are approved on
// insert; review-band aliases wait for a human.
func (r *Resolver) proposeAlias(d Decision, reg Registry, documentID string) *model.PropertyAlias {
	for _, alias := range reg.Aliases {
		if alias.PropertyID == d.PropertyID && alias.AliasText == d.MatchedText {
			return nil
		}
	}
	if !d.ViaAlias && d.MatchedText == d.MatchedName {
		// Candidate equals the canonical name itself.
		return nil
	}
	// The ID is assigned by the store on insert, so resolving the same
	// candidates always yields the same decision.
	return &model.PropertyAlias{
		PropertyID:       d.PropertyID,
		AliasText:        d.MatchedText,
		SourceDocumentID: documentID,
		Confidence:       d.Confidence,
		Approved:         d.Band == BandAuto,
	}
}
