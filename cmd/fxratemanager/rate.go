package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/fxratemanager/internal/app"
	"github.com/bher20/fxratemanager/internal/rates"
)

func newRateCmd() *cobra.Command {
	var (
		date    string
		dates   []string
		refresh bool
	)
	cmd := &cobra.Command{
		Use:   "rate BASE TERM",
		Short: "Print the rate converting one unit of BASE into TERM",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := rates.Query{Base: args[0], Term: args[1]}
			if date != "" {
				d, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				q.Date = d
			}
			for _, raw := range dates {
				d, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
				if err != nil {
					return fmt.Errorf("--dates: %w", err)
				}
				q.Dates = append(q.Dates, d)
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				if refresh {
					if err := a.Registry.RefreshAll(cmd.Context()); err != nil {
						fmt.Fprintln(os.Stderr, "refresh:", err)
					}
				}
				res, err := a.GetRate(q)
				if err != nil {
					return err
				}
				if !res.Found {
					return fmt.Errorf("no %s/%s rate found", strings.ToUpper(q.Base), strings.ToUpper(q.Term))
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "valuation date (YYYY-MM-DD), searched with the look-back window")
	cmd.Flags().StringSliceVar(&dates, "dates", nil, "dates searched verbatim, in order")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload every resource from its remotes first")
	return cmd
}
