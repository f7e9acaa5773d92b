package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/propfin/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process queued documents and exit",
	Long:  "Drains the job queue with a single worker, then prints queue totals. Useful for cron-style batch runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		w := pipeline.NewWorker(env.Queue, env.Store, env.Processor, cfg.Worker)
		if err := w.Drain(ctx); err != nil {
			return err
		}

		stats, err := env.Queue.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("done=%d pending=%d claimed=%d dead_letter=%d\n",
			stats.Done, stats.Pending, stats.Claimed, stats.DeadLetter)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
