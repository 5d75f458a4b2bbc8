package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/matchup-companion/internal/app"
	"github.com/ramonehamilton/matchup-companion/internal/ipc"
	"github.com/ramonehamilton/matchup-companion/internal/version"
)

var watchAddr string

var eventStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running daemon's sync events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := app.NewLogger(os.Stderr, cfg.App.DebugMode)

		out := cmd.OutOrStdout()
		client := ipc.NewClient(ipc.URLFor(watchAddr), logger)
		client.On(ipc.AnyEvent, func(e ipc.Event) {
			if jsonOutput {
				_ = json.NewEncoder(out).Encode(e)
				return
			}
			se, err := e.SyncEvent()
			if err != nil {
				fmt.Fprintf(out, "%s %s\n", eventStyle.Render(e.Type), string(e.Data))
				return
			}
			line := se.Timestamp.Local().Format("15:04:05") + " " + eventStyle.Render(string(se.Type))
			if se.Data != nil {
				data, _ := json.Marshal(se.Data)
				line += " " + dimStyle.Render(string(data))
			}
			fmt.Fprintln(out, line)
		})

		fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", client.URL())
		return client.Run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "matchup-companion %s\n", version.GetVersion())
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", DefaultDaemonAddr, "Address of the daemon's local API")
	rootCmd.AddCommand(watchCmd, versionCmd)
	rootCmd.Version = version.GetVersion()
}
