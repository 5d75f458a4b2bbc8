package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/charts"
)

var (
	chartOut      string
	chartOpen     bool
	chartMaxLevel int
	chartLimit    int
)

var chartCmd = &cobra.Command{
	Use:       "chart [curve|winrates]",
	Short:     "Render an HTML chart of the stat curve or bucket win rates",
	ValidArgs: []string{"curve", "winrates"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := chartOut
		if out == "" {
			out = filepath.Join(a.DataDir, "charts", args[0]+".html")
		}
		cfg := charts.DefaultChartConfig()

		var render func(io.Writer) error
		switch args[0] {
		case "curve":
			render = func(w io.Writer) error {
				return charts.RenderCurve(w, a.Estimator, chartMaxLevel, cfg)
			}
		case "winrates":
			local := a.Local.Snapshot()
			global := aggregate.Global{Buckets: local.Buckets, Clients: 1}
			if a.Scheduler != nil {
				if global, err = a.Advisor.Refresh(ctx); err != nil {
					return fmt.Errorf("merge community data: %w", err)
				}
				cfg.Subtitle = fmt.Sprintf("%d clients", global.Clients)
			} else {
				cfg.Subtitle = "local data only"
			}
			rows := charts.BucketRows(global, local, chartLimit)
			render = func(w io.Writer) error {
				return charts.RenderWinRates(w, rows, cfg)
			}
		}

		if err := charts.WriteFile(out, render); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
		if chartOpen {
			return charts.OpenInBrowser(out)
		}
		return nil
	},
}

func init() {
	chartCmd.Flags().StringVarP(&chartOut, "output", "o", "", "Output file (default: <data dir>/charts/<kind>.html)")
	chartCmd.Flags().BoolVar(&chartOpen, "open", false, "Open the chart in the default browser")
	chartCmd.Flags().IntVar(&chartMaxLevel, "max-level", 100, "Highest level on the curve chart")
	chartCmd.Flags().IntVar(&chartLimit, "limit", 20, "Number of buckets on the win rate chart (0 = all)")
	rootCmd.AddCommand(chartCmd)
}
