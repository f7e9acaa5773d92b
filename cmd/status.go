package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/store"
)

var (
	statusDocLimit int
	statusFilter   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue totals and recent documents",
	Long:  "Shows queue totals and recent documents. Use --status failed to review documents that failed processing; identity holds live under `review list`.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Queue.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "queue stats")
		}
		fmt.Printf("queue: pending=%d claimed=%d done=%d dead_letter=%d\n\n",
			stats.Pending, stats.Claimed, stats.Done, stats.DeadLetter)

		docs, err := env.Store.ListDocuments(ctx, store.DocumentFilter{
			Status: model.ProcessingStatus(statusFilter),
			Limit:  statusDocLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list documents")
		}
		if len(docs) == 0 {
			fmt.Println("no documents")
			return nil
		}

		formatDocuments(os.Stdout, docs)
		return nil
	},
}

func formatDocuments(out io.Writer, docs []model.Document) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILENAME\tKIND\tSTATUS\tPROPERTY")
	for _, d := range docs {
		prop := "-"
		if d.ResolvedPropertyID != nil {
			prop = *d.ResolvedPropertyID
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.OriginalFilename, d.DetectedKind, d.ProcessingStatus, prop)
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().IntVar(&statusDocLimit, "limit", 20, "documents to show")
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "filter by processing status (queued, processing, validated, failed)")
	rootCmd.AddCommand(statusCmd)
}
