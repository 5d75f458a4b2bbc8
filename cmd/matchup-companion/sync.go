package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// maxMergeRounds bounds how many bounded merge passes one sync command runs.
const maxMergeRounds = 1000

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending outcomes and merge community data now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Scheduler == nil {
			return fmt.Errorf("sharing is disabled; set remote.kind in the configuration")
		}

		out := cmd.OutOrStdout()
		if a.Local.Pending() > 0 {
			res, err := a.Scheduler.Push(ctx)
			if err != nil {
				return err
			}
			if res.Stale {
				fmt.Fprintln(out, dimStyle.Render("Server already had a newer snapshot for this client"))
			}
			fmt.Fprintf(out, "Pushed version %d (%d outcomes) in %s\n", res.Version, res.Flushed, res.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintln(out, dimStyle.Render("Nothing to push"))
		}

		for i := 0; i < maxMergeRounds; i++ {
			res, err := a.Scheduler.PullAndMerge(ctx)
			if err != nil {
				return err
			}
			if res != nil {
				fmt.Fprintf(out, "Merged %d clients into %d buckets", res.Clients, res.Buckets)
				if res.Skipped > 0 {
					fmt.Fprintf(out, " (%d skipped)", res.Skipped)
				}
				fmt.Fprintln(out)
				return nil
			}
		}
		return fmt.Errorf("merge did not complete after %d rounds", maxMergeRounds)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
