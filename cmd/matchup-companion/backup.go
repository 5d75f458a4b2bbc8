package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/matchup-companion/internal/app"
	"github.com/ramonehamilton/matchup-companion/internal/storage"
)

var (
	backupDir  string
	backupName string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up or restore the local database",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write a verified copy of the local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		bm := storage.NewBackupManager(filepath.Join(a.DataDir, app.DatabaseFile))
		path, err := bm.Backup(cmd.Context(), a.DB, backupDir, backupName)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"path": path})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := backupManager()
		if err != nil {
			return err
		}
		backups, err := bm.ListBackups(backupDir)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), backups)
		}
		if len(backups) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No backups found"))
			return nil
		}
		for _, b := range backups {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d bytes\n",
				b.ModTime.Format("2006-01-02 15:04:05"), b.Path, b.Size)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Replace the local database with a backup",
	Long: `Replace the local database with a backup. Stop the daemon first; the
current database is kept next to it with an .old suffix.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := backupManager()
		if err != nil {
			return err
		}
		if err := bm.Restore(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[0])
		return nil
	},
}

// backupManager resolves the database path without opening it.
func backupManager() (*storage.BackupManager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	return storage.NewBackupManager(filepath.Join(dataDir, app.DatabaseFile)), nil
}

func init() {
	backupCmd.PersistentFlags().StringVar(&backupDir, "dir", "", "Backup directory (default: <data-dir>/backups)")
	backupCreateCmd.Flags().StringVar(&backupName, "name", "", "Backup file name (default: timestamped)")
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
