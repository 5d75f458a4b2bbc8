// Command matchup-companion records fight outcomes, scores potential fights and
// shares anonymous bucket counts with a snapshot server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/matchup-companion/internal/app"
	"github.com/ramonehamilton/matchup-companion/internal/config"
)

var (
	configPath string
	debugMode  bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "matchup-companion",
	Short: "Score fights from your own and the community's outcomes",
	Long: `matchup-companion keeps per-bucket fight outcomes, scores potential fights
on a 0-5 scale and, when a snapshot server is configured, merges everyone's
anonymous counts into a community view.

Configuration is read from ~/.matchup-companion/config.toml unless --config is given.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default: ~/.matchup-companion/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug-mode", "d", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if config.IsConfigurationError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies global flags.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debugMode {
		cfg.App.DebugMode = true
	}
	return cfg, nil
}

// openApp loads the configuration and builds the advisor. The caller must Close it.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.Options{})
}
