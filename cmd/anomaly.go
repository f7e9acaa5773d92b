package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/propfin/internal/model"
)

var anomalyCmd = &cobra.Command{
	Use:   "anomaly",
	Short: "Metric anomaly detection",
}

var anomalyRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan metric histories and flag anomalies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Detector.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "anomaly run")
		}

		fmt.Printf("properties=%d series=%d flags=%d skipped_short=%d failed=%d\n",
			summary.PropertiesScanned, summary.SeriesEvaluated, summary.FlagsRaised,
			summary.SkippedShort, summary.Failed)
		return nil
	},
}

var anomalyListFlaggedOnly bool

var anomalyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show anomaly evaluations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.Store.ListAnomalies(ctx, anomalyListFlaggedOnly)
		if err != nil {
			return eris.Wrap(err, "list anomalies")
		}
		if len(records) == 0 {
			fmt.Println("no anomaly records")
			return nil
		}

		formatAnomalies(os.Stdout, records)
		return nil
	},
}

func formatAnomalies(out io.Writer, records []model.AnomalyRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROPERTY\tMETRIC\tPERIOD\tMEAN\tZ\tCUSUM\tFLAGGED")
	for _, rec := range records {
		period := fmt.Sprintf("%d-%02d", rec.Period.Year, rec.Period.Month)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%.2f\t%.2f\t%v\n",
			rec.PropertyID, rec.MetricType, period, rec.Mean, rec.ZScore, rec.CUSUMStatistic, rec.Flagged)
	}
	_ = w.Flush()
}

func init() {
	anomalyListCmd.Flags().BoolVar(&anomalyListFlaggedOnly, "flagged", false, "only show flagged records")
	anomalyCmd.AddCommand(anomalyRunCmd)
	anomalyCmd.AddCommand(anomalyListCmd)
	rootCmd.AddCommand(anomalyCmd)
}
