package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/propfin/internal/pipeline"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the processing worker pool",
	Long:  "Continuously claims queued documents and runs them through parse, extract, validate, resolve, and commit. Runs until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		wcfg := cfg.Worker
		if workerConcurrency > 0 {
			wcfg.Concurrency = workerConcurrency
		}

		w := pipeline.NewWorker(env.Queue, env.Store, env.Processor, wcfg)
		return w.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "worker loops (default from config)")
	rootCmd.AddCommand(workerCmd)
}
