// Package pipeline runs one document's full processing attempt
// (parse, extract, validate, resolve, commit) and hosts the worker pool
// that consumes the job queue.
package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/propfin/internal/extract"
	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/parser"
	"github.com/sells-group/propfin/internal/resilience"
	"github.com/sells-group/propfin/internal/resolve"
	"github.com/sells-group/propfin/internal/storage"
	"github.com/sells-group/propfin/internal/store"
	"github.com/sells-group/propfin/internal/validate"
)

// Processor orchestrates the stages of one document's processing
// attempt. Stages run strictly sequentially except identity resolution,
// which overlaps validation; nothing is persisted until the single
// commit at the end.
type Processor struct {
	store     store.Store
	blobs     storage.Blob
	parser    *parser.Parser
	extractor *extract.Extractor
	validator *validate.Validator
	resolver  *resolve.Resolver
	retry     resilience.RetryConfig
	log       *zap.Logger
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(st store.Store, blobs storage.Blob, p *parser.Parser, ex *extract.Extractor, v *validate.Validator, r *resolve.Resolver) *Processor {
	return &Processor{
		store:     st,
		blobs:     blobs,
		parser:    p,
		extractor: ex,
		validator: v,
		resolver:  r,
		retry:     resilience.DefaultRetryConfig(),
		log:       zap.L().With(zap.String("component", "pipeline")),
	}
}

// Process runs a full attempt for one claimed document. On success the
// document, its extracted rows, the validation report, and any resolution
// outcome are committed as one transaction. The returned error carries
// transient/terminal classification so the caller can decide between
// retry and dead-letter.
func (p *Processor) Process(ctx context.Context, doc *model.Document) error {
	log := p.log.With(zap.String("document_id", doc.ID), zap.String("filename", doc.OriginalFilename))

	if err := p.store.MarkProcessing(ctx, doc.ID); err != nil {
		return eris.Wrap(err, "pipeline: mark processing")
	}

	// Blob fetches ride out brief storage hiccups in-process before the
	// failure surfaces to the queue for a full redelivery.
	fetchCfg := p.retry
	fetchCfg.OnRetry = resilience.RetryLogger("pipeline", "fetch_blob")
	data, err := resilience.DoVal(ctx, fetchCfg, func(ctx context.Context) ([]byte, error) {
		b, err := p.blobs.Get(ctx, doc.StorageKey)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "pipeline: fetch blob"))
		}
		return b, nil
	})
	if err != nil {
		return err
	}

	parsed, err := p.parser.Parse(ctx, doc.OriginalFilename, data)
	if err != nil {
		return classify(err)
	}

	result, err := p.extractor.Extract(doc.ID, parsed)
	if err != nil {
		return classify(err)
	}
	log.Info("extraction complete",
		zap.String("kind", string(result.Kind)),
		zap.String("strategy", result.Strategy),
		zap.Int("units", len(result.Units)),
		zap.Int("metrics", len(result.Metrics)),
		zap.Int("row_errors", len(result.RowErrors)),
	)

	// Validation and identity resolution are independent; run them
	// concurrently within this worker.
	var report *model.ValidationReport
	var decision resolve.Decision

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report = p.validator.Validate(doc.ID, result)
		return nil
	})
	g.Go(func() error {
		var err error
		decision, err = p.resolveIdentity(gctx, doc, result)
		return err
	})
	if err := g.Wait(); err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "pipeline: resolve identity"))
	}

	commit := store.Commit{
		DocumentID:    doc.ID,
		Kind:          result.Kind,
		Status:        model.StatusValidated,
		CandidateText: decision.MatchedText,
		Units:         result.Units,
		Metrics:       result.Metrics,
		Report:        report,
		NewAlias:      decision.NewAlias,
	}

	switch decision.Band {
	case resolve.BandAuto:
		commit.ResolvedPropertyID = &decision.PropertyID
	case resolve.BandReview:
		// Resolve provisionally; attribution is held pending approval.
		commit.ResolvedPropertyID = &decision.PropertyID
		reason := "low_confidence"
		commit.ResolutionReason = &reason
	default:
		reason := "no_match"
		commit.ResolutionReason = &reason
	}

	// Metrics carry the property attribution only once it is usable for
	// aggregates.
	if decision.Band == resolve.BandAuto {
		for i := range commit.Metrics {
			commit.Metrics[i].PropertyID = decision.PropertyID
		}
	}

	commitCfg := p.retry
	commitCfg.OnRetry = resilience.RetryLogger("pipeline", "commit")
	if err := resilience.Do(ctx, commitCfg, func(ctx context.Context) error {
		if err := p.store.CommitProcessing(ctx, commit); err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "pipeline: commit"))
		}
		return nil
	}); err != nil {
		return err
	}

	log.Info("document validated",
		zap.String("match_status", string(report.MatchStatus)),
		zap.String("resolution_band", string(decision.Band)),
		zap.Float64("resolution_confidence", decision.Confidence),
	)
	return nil
}

// resolveIdentity loads the registry and scores the document's name
// candidates against it.
func (p *Processor) resolveIdentity(ctx context.Context, doc *model.Document, result *extract.Result) (resolve.Decision, error) {
	props, err := p.store.ListProperties(ctx)
	if err != nil {
		return resolve.Decision{}, eris.Wrap(err, "list properties")
	}
	aliases, err := p.store.ListAliases(ctx, true)
	if err != nil {
		return resolve.Decision{}, eris.Wrap(err, "list aliases")
	}

	candidates := resolve.Candidates(doc.OriginalFilename, result.TitleLines)
	reg := resolve.Registry{Properties: props, Aliases: aliases}
	return p.resolver.Resolve(candidates, reg, doc.ID), nil
}

// classify maps stage errors onto the retry taxonomy: structurally
// broken-but-parseable documents are worth another attempt (a partially
// written upload, a flaky text extractor), while an empty document or an
// unrecognizable layout will fail identically every time.
func classify(err error) error {
	var emptyErr *parser.EmptyDocumentError
	var kindErr *extract.UnrecognizedKindError
	var metricsErr *extract.NoMetricsError
	var rowsErr *extract.TooManyRowFailuresError
	if errors.As(err, &emptyErr) ||
		errors.As(err, &kindErr) ||
		errors.As(err, &metricsErr) ||
		errors.As(err, &rowsErr) {
		return resilience.NewTerminalError(err)
	}

	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return resilience.NewTransientError(err)
	}
	return err
}
