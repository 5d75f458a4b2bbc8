package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/matchup-companion/internal/api"
)

// DefaultDaemonAddr keeps the local API off the snapshot server's port.
const DefaultDaemonAddr = "127.0.0.1:8421"

var daemonAddr string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync loop and the local scoring API",
	Long: `Run the sync scheduler in the foreground and serve the local API:

  POST /api/v1/score          score a fight
  POST /api/v1/outcomes       record an outcome
  POST /api/v1/observations   refine the stat curve
  POST /api/v1/refresh        merge community data now
  GET  /api/v1/status         local and sync status
  GET  /ws                    sync events

Stop with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context(), daemonAddr)
	},
}

func init() {
	daemonCmd.Flags().StringVar(&daemonAddr, "addr", DefaultDaemonAddr, "Listen address for the local API")
	rootCmd.AddCommand(daemonCmd)
}

// runDaemon serves until ctx is done.
func runDaemon(ctx context.Context, addr string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewServer(&api.Config{
		Addr:    addr,
		Service: "matchup-companion",
		Logger:  a.Logger,
	}, api.Deps{
		Advisor: a.Advisor,
		Ping:    func(context.Context) error { return a.DB.Ping() },
	})
	a.AttachEmitter(server.NewSyncForwarder())

	if err := server.Start(); err != nil {
		return err
	}

	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
	} else {
		a.Logger.Info("sharing disabled, serving local data only")
	}

	watchErr := make(chan error, 1)
	go func() { watchErr <- a.WatchCurve(ctx) }()

	a.Logger.Info("daemon running", "addr", addr, "client_id", a.ClientID)

	select {
	case <-ctx.Done():
	case err := <-watchErr:
		if err != nil {
			a.Logger.Error("anchor file watcher stopped", "error", err)
		}
		<-ctx.Done()
	}

	a.Logger.Info("shutting down daemon")
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown API server: %w", err)
	}
	return nil
}
