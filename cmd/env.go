package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/propfin/internal/anomaly"
	"github.com/sells-group/propfin/internal/extract"
	"github.com/sells-group/propfin/internal/parser"
	"github.com/sells-group/propfin/internal/pipeline"
	"github.com/sells-group/propfin/internal/queue"
	"github.com/sells-group/propfin/internal/resolve"
	"github.com/sells-group/propfin/internal/storage"
	"github.com/sells-group/propfin/internal/store"
	"github.com/sells-group/propfin/internal/validate"
)

// pipelineEnv holds the initialized store, blob backend, queue, and
// pipeline components needed by the worker/serve/enqueue commands.
type pipelineEnv struct {
	Store     store.Store
	Blobs     storage.Blob
	Queue     *queue.Queue
	Processor *pipeline.Processor
	Detector  *anomaly.Detector
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "propfin.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, blob storage, queue, and processing
// components. Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	blobs, err := storage.NewFS(cfg.Storage.Root)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init blob storage")
	}

	vocab := extract.DefaultVocabulary()
	if cfg.Extract.VocabPath != "" {
		vocab, err = extract.LoadVocabulary(cfg.Extract.VocabPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load vocabulary")
		}
	}

	proc := pipeline.NewProcessor(st, blobs,
		parser.New(parser.NewPdfToText(cfg.Parser.PdfToTextPath)),
		extract.New(vocab, cfg.Extract.MaxRowFailureRatio),
		validate.New(validate.DefaultTolerance),
		resolve.New(cfg.Resolve),
	)

	return &pipelineEnv{
		Store:     st,
		Blobs:     blobs,
		Queue:     queue.New(st, cfg.Queue),
		Processor: proc,
		Detector:  anomaly.New(st, cfg.Anomaly),
	}, nil
}
