package main

import (
	"context"
	"fmt"
	"log"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// daemonProgram implements service.Interface
type daemonProgram struct {
	addr   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Start implements service.Interface
func (p *daemonProgram) Start(s service.Service) error {
	log.Println("Starting Matchup Companion daemon service...")
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

// run executes the daemon until the service is stopped
func (p *daemonProgram) run(ctx context.Context) {
	defer close(p.done)
	if err := runDaemon(ctx, p.addr); err != nil {
		log.Printf("Daemon exited: %v", err)
	}
}

// Stop implements service.Interface
func (p *daemonProgram) Stop(s service.Service) error {
	log.Println("Stopping Matchup Companion daemon service...")
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return nil
}

// getServiceConfig returns the service configuration
func getServiceConfig(addr string) *service.Config {
	args := []string{"service", "run", "--addr", addr}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return &service.Config{
		Name:        "MatchupCompanionDaemon",
		DisplayName: "Matchup Companion Daemon",
		Description: "Background service that shares fight outcomes and serves matchup scores",
		Arguments:   args,
	}
}

var serviceAddr string

var serviceCmd = &cobra.Command{
	Use:       "service [install|uninstall|start|stop|restart|status|run]",
	Short:     "Manage the daemon as a system service",
	ValidArgs: []string{"install", "uninstall", "start", "stop", "restart", "status", "run"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Long: `Manage the daemon as a system service.

Available commands:
  install    - Install the daemon as a system service
  uninstall  - Uninstall the daemon service
  start      - Start the daemon service
  stop       - Stop the daemon service
  restart    - Restart the daemon service
  status     - Show daemon service status
  run        - Run under the service manager (used by the installed service)`,
	RunE: runServiceCommand,
}

func init() {
	serviceCmd.Flags().StringVar(&serviceAddr, "addr", DefaultDaemonAddr, "Listen address for the local API")
	rootCmd.AddCommand(serviceCmd)
}

// runServiceCommand handles service management commands
func runServiceCommand(cmd *cobra.Command, args []string) error {
	action := args[0]

	prg := &daemonProgram{addr: serviceAddr}
	svcConfig := getServiceConfig(serviceAddr)
	s, err := service.New(prg, svcConfig)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	out := cmd.OutOrStdout()
	switch action {
	case "run":
		return s.Run()

	case "install":
		if err := s.Install(); err != nil {
			return fmt.Errorf("install service: %w", err)
		}
		fmt.Fprintln(out, "✓ Service installed successfully")
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "  1. Start the service: matchup-companion service start")
		fmt.Fprintln(out, "  2. Verify it's running: matchup-companion service status")
		fmt.Fprintln(out, "  3. View logs:")
		switch service.Platform() {
		case "darwin-launchd":
			fmt.Fprintf(out, "     tail -f ~/Library/Logs/%s.log\n", svcConfig.Name)
		case "windows-service":
			fmt.Fprintln(out, "     Check Event Viewer")
		default:
			fmt.Fprintf(out, "     journalctl -u %s -f\n", svcConfig.Name)
		}

	case "uninstall":
		if err := s.Uninstall(); err != nil {
			return fmt.Errorf("uninstall service: %w", err)
		}
		fmt.Fprintln(out, "✓ Service uninstalled successfully")

	case "start":
		if err := s.Start(); err != nil {
			return fmt.Errorf("start service: %w", err)
		}
		fmt.Fprintln(out, "✓ Service started successfully")
		fmt.Fprintf(out, "\nThe local API is available at http://%s\n", serviceAddr)

	case "stop":
		if err := s.Stop(); err != nil {
			return fmt.Errorf("stop service: %w", err)
		}
		fmt.Fprintln(out, "✓ Service stopped successfully")

	case "restart":
		if err := s.Restart(); err != nil {
			return fmt.Errorf("restart service: %w", err)
		}
		fmt.Fprintln(out, "✓ Service restarted successfully")

	case "status":
		status, err := s.Status()
		if err != nil {
			return fmt.Errorf("get service status: %w", err)
		}

		fmt.Fprintln(out, "Service Status:")
		switch status {
		case service.StatusRunning:
			fmt.Fprintln(out, "  Status: ✓ Running")
		case service.StatusStopped:
			fmt.Fprintln(out, "  Status: ● Stopped")
		case service.StatusUnknown:
			fmt.Fprintln(out, "  Status: ? Unknown")
		default:
			fmt.Fprintf(out, "  Status: %v\n", status)
		}

		fmt.Fprintln(out, "\nService Details:")
		fmt.Fprintf(out, "  Name: %s\n", svcConfig.Name)
		fmt.Fprintf(out, "  Display Name: %s\n", svcConfig.DisplayName)
		fmt.Fprintf(out, "  Description: %s\n", svcConfig.Description)
	}
	return nil
}
