package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/matchup-companion/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local and community data status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.Advisor.Status()
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
		return nil
	},
}

var observeCmd = &cobra.Command{
	Use:   "observe <level> <total-stats>",
	Short: "Fold an observed opponent's total stats into the stat curve",
	Long: `Fold an observed total battle stats value into the level curve. Each
observation moves the nearest anchor a fraction of the way, so a single outlier
cannot take over the estimate.

Examples:
  matchup-companion observe 20 8500`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.Atoi(args[0])
		if err != nil || level < 1 {
			return fmt.Errorf("invalid level %q", args[0])
		}
		total, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid total stats %q", args[1])
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		anchor, err := a.Advisor.ObserveStats(cmd.Context(), level, total)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), anchor)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Anchor L%d is now %.0f\n", anchor.Level, anchor.Total)
		return nil
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard every locally recorded outcome",
	Long: `Discard every locally recorded outcome. The emptied aggregate replaces this
client's snapshot on the next push.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("refusing to reset without --yes")
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Advisor.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Local outcomes cleared")
		return nil
	},
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the opaque client id shared with the snapshot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintln(cmd.OutOrStdout(), a.ClientID)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		if !configInitForce {
			if existing, err := config.LoadFrom(path); err == nil && *existing != *config.DefaultConfig() {
				return fmt.Errorf("%s already has settings; use --force to overwrite", path)
			}
		}
		if err := config.DefaultConfig().SaveTo(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
		return nil
	},
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.Path()
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm the reset")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configPathCmd, configValidateCmd)
	rootCmd.AddCommand(statusCmd, observeCmd, resetCmd, identityCmd, configCmd)
}
