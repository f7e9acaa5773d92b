package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <file>...",
	Short: "Register documents and queue them for processing",
	Long:  "Copies each file into blob storage, registers a document record, and enqueues a processing job. Re-enqueueing a document with an active job is a no-op.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read %s", path)
			}

			filename := filepath.Base(path)
			key := fmt.Sprintf("uploads/%s/%s/%s", time.Now().UTC().Format("2006/01"), uuid.NewString(), filename)
			if err := env.Blobs.Put(ctx, key, data); err != nil {
				return eris.Wrapf(err, "store %s", filename)
			}

			doc, err := env.Store.CreateDocument(ctx, filename, key)
			if err != nil {
				return eris.Wrapf(err, "register %s", filename)
			}
			job, err := env.Queue.Enqueue(ctx, doc.ID, doc.StorageKey)
			if err != nil {
				return eris.Wrapf(err, "enqueue %s", filename)
			}

			zap.L().Info("document enqueued",
				zap.String("document_id", doc.ID),
				zap.String("filename", filename),
				zap.Int64("job_id", job.ID),
			)
			fmt.Printf("%s  %s  job=%d\n", doc.ID, filename, job.ID)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}
