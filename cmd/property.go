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

var propertyCmd = &cobra.Command{
	Use:   "property",
	Short: "Manage the canonical property registry",
}

var propertyClass string

var propertyAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a canonical property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		class := model.PropertyClass(propertyClass)
		switch class {
		case model.ClassStabilized, model.ClassLeaseUp:
		default:
			return eris.Errorf("unknown property class: %s", propertyClass)
		}

		prop, err := env.Store.CreateProperty(ctx, args[0], class)
		if err != nil {
			return eris.Wrap(err, "create property")
		}
		fmt.Printf("%s  %s\n", prop.ID, prop.Name)
		return nil
	},
}

var propertyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical properties and their aliases",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		props, err := env.Store.ListProperties(ctx)
		if err != nil {
			return eris.Wrap(err, "list properties")
		}
		aliases, err := env.Store.ListAliases(ctx, false)
		if err != nil {
			return eris.Wrap(err, "list aliases")
		}

		byProperty := map[string][]model.PropertyAlias{}
		for _, a := range aliases {
			byProperty[a.PropertyID] = append(byProperty[a.PropertyID], a)
		}

		formatProperties(os.Stdout, props, byProperty)
		return nil
	},
}

func formatProperties(out io.Writer, props []model.Property, aliases map[string][]model.PropertyAlias) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCLASS\tALIASES")
	for _, p := range props {
		approved, pending := 0, 0
		for _, a := range aliases[p.ID] {
			if a.Approved {
				approved++
			} else {
				pending++
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d approved, %d pending\n",
			p.ID, p.Name, p.PropertyClass, approved, pending)
	}
	_ = w.Flush()
}

func init() {
	propertyAddCmd.Flags().StringVar(&propertyClass, "class", "stabilized", "property class (stabilized or lease_up)")
	propertyCmd.AddCommand(propertyAddCmd)
	propertyCmd.AddCommand(propertyListCmd)
	rootCmd.AddCommand(propertyCmd)
}
