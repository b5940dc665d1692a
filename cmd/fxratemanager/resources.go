package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/fxratemanager/internal/app"
	"github.com/bher20/fxratemanager/internal/resource"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [RESOURCE...]",
		Short: "Reload resources from their remotes and update the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				err := a.Registry.RefreshAll(cmd.Context(), args...)
				printStats(cmd, a.Registry.AllStats(cmd.Context()))
				return err
			})
		},
	}
}

func newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List registered resources and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				printStats(cmd, a.Registry.AllStats(cmd.Context()))
				return nil
			})
		},
	}
}

func printStats(cmd *cobra.Command, stats []resource.Stats) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPOLICY\tCACHED\tLOADS\tLAST REMOTE LOAD")
	for _, s := range stats {
		last := "-"
		if !s.LastLoaded.IsZero() {
			last = s.LastLoaded.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n", s.ID, s.PolicyName, s.Cached, s.LoadCount, last)
	}
	w.Flush()
}
