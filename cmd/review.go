package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/propfin/internal/model"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manual review of property resolutions",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show documents awaiting resolution review",
	Long:  "Lists documents held on property identity. Documents that failed processing outright are listed by `status --status failed` instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		pending, err := env.Store.ListPendingResolutions(ctx)
		if err != nil {
			return eris.Wrap(err, "list pending resolutions")
		}
		if len(pending) == 0 {
			fmt.Println("review queue is empty")
			return nil
		}

		formatPending(os.Stdout, pending)
		return nil
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <alias-id>",
	Short: "Approve a provisional alias",
	Long:  "Marks the alias approved so future documents bearing the same name resolve automatically.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.ApproveAlias(ctx, args[0]); err != nil {
			return eris.Wrapf(err, "approve alias %s", args[0])
		}
		zap.L().Info("alias approved", zap.String("alias_id", args[0]))
		return nil
	},
}

var reviewReassignTo string

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <alias-id>",
	Short: "Reject a provisional alias",
	Long:  "Deletes the alias, or with --reassign moves it to the given property and approves it there.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.RejectAlias(ctx, args[0], reviewReassignTo); err != nil {
			return eris.Wrapf(err, "reject alias %s", args[0])
		}
		zap.L().Info("alias rejected",
			zap.String("alias_id", args[0]),
			zap.String("reassign_to", reviewReassignTo),
		)
		return nil
	},
}

var reviewWarningsCmd = &cobra.Command{
	Use:   "warnings <property-id>",
	Short: "Show validation warnings for a property's documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Store.ListValidationWarnings(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "list warnings")
		}
		if len(reports) == 0 {
			fmt.Println("no warnings")
			return nil
		}

		for _, rep := range reports {
			fmt.Printf("%s  %s  %s\n", rep.DocumentID, rep.ValidationType, rep.MatchStatus)
			for _, d := range rep.Discrepancies {
				fmt.Printf("  %s: %s\n", d.Field, d.Detail)
			}
		}
		return nil
	},
}

func formatPending(out io.Writer, pending []model.PendingResolution) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tFILENAME\tCANDIDATE\tREASON\tALIAS\tCONFIDENCE")
	for _, p := range pending {
		alias, conf := "-", "-"
		if p.AliasID != nil {
			alias = *p.AliasID
		}
		if p.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *p.Confidence)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.DocumentID, p.Filename, p.CandidateText, p.Reason, alias, conf)
	}
	_ = w.Flush()
}

func init() {
	reviewRejectCmd.Flags().StringVar(&reviewReassignTo, "reassign", "", "property ID to move the alias to")
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
	reviewCmd.AddCommand(reviewWarningsCmd)
	rootCmd.AddCommand(reviewCmd)
}
