package cmd

import (
	"fmt"

	"dump-rotator/internal/backup"
	"dump-rotator/internal/display"

	"github.com/spf13/cobra"
)

var pruneDryRun bool

// pruneCmd deletes expired backups without taking a new one
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups older than the retention window",
	Long: `Apply the retention window to the destination directory without taking a
new backup. Entries whose modification time is older than retention_days are
deleted; a retention_days of 0 removes every backup.

Entries that cannot be deleted are reported as warnings and retried by the
next sweep; they do not change the exit status. Exit status is 1 only when
the destination directory cannot be read.

Examples:
  # Show what would be deleted
  dump-rotator prune --dry-run

  # Keep one week of backups
  dump-rotator prune --retention-days=7`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "list expired backups without deleting them")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	manager, err := backup.NewManager(cfg, logger)
	if err != nil {
		return err
	}

	result, err := manager.Prune(commandContext(cmd), pruneDryRun)
	if err != nil {
		return err
	}

	out := newOutputWriter(cmd)
	if out.Structured() {
		return out.WriteDocument("", result, nil)
	}

	verb := "Deleted"
	if result.DryRun {
		verb = "Would delete"
	}
	rows := make([][]string, 0, len(result.DeletedEntries))
	for _, name := range result.DeletedEntries {
		rows = append(rows, []string{name})
	}
	if len(rows) > 0 {
		if err := out.WriteTable([]string{"Expired"}, rows); err != nil {
			return err
		}
	}
	level := display.LevelSuccess
	if result.HasErrors() {
		level = display.LevelWarning
		for _, msg := range result.Errors {
			_ = out.WriteStatus(display.LevelWarning, msg)
		}
	}
	summary := fmt.Sprintf("%s %d of %d backups in %s (%d day window)",
		verb, result.Deleted, result.Scanned, result.Directory, result.WindowDays)
	if result.Pending > 0 {
		summary += fmt.Sprintf(", %d moved aside but not yet removed", result.Pending)
	}
	return out.WriteStatus(level, summary)
}
