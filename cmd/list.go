package cmd

import (
	"fmt"
	"time"

	"dump-rotator/internal/backup"
	"dump-rotator/internal/display"

	"github.com/spf13/cobra"
)

var listUsage bool

// listCmd shows the backups held in the destination directory
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups in the destination directory",
	Long: `List every backup in the destination directory, newest first, with its
format, size, age and whether the retention window has expired it.

Examples:
  dump-rotator list
  dump-rotator list --format=json
  dump-rotator list --usage`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listUsage, "usage", false, "print a storage usage summary instead of the backup list")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	artifacts, err := backup.ListArtifacts(cfg.DestinationDir)
	if err != nil {
		return err
	}

	now := time.Now()
	policy := backup.RetentionPolicy{WindowDays: cfg.RetentionDays}
	out := newOutputWriter(cmd)

	if listUsage {
		return printUsage(out, backup.GetStorageUsage(artifacts, policy, now))
	}
	if out.Structured() {
		return out.WriteDocument("", artifacts, nil)
	}

	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		expired := ""
		if policy.Expired(a.CreatedAt, now) {
			expired = "yes"
		}
		rows = append(rows, []string{
			a.Name,
			string(a.Format),
			display.FormatBytes(a.SizeBytes),
			display.FormatAge(a.Age(now)),
			expired,
		})
	}
	if len(rows) == 0 {
		return out.WriteStatus(display.LevelInfo, fmt.Sprintf("No backups in %s", cfg.DestinationDir))
	}
	return out.WriteTable([]string{"Name", "Format", "Size", "Age", "Expired"}, rows)
}

func printUsage(out *display.OutputWriter, report *backup.StorageUsageReport) error {
	if out.Structured() {
		return out.WriteDocument("", report, nil)
	}

	fields := []display.Field{
		{Key: "Backups", Value: fmt.Sprintf("%d (%d compressed)", report.TotalBackups, report.CompressedBackups)},
		{Key: "Total size", Value: display.FormatBytes(report.TotalSize)},
		{Key: "Average size", Value: display.FormatBytes(report.AverageBackupSize)},
		{Key: "Expired", Value: fmt.Sprintf("%d", report.Expired)},
	}
	if report.NewestBackup != nil {
		fields = append(fields, display.Field{Key: "Newest", Value: report.NewestBackup.Name})
	}
	if report.OldestBackup != nil {
		fields = append(fields, display.Field{Key: "Oldest", Value: report.OldestBackup.Name})
	}
	if err := out.WriteDocument("Storage usage", report, fields); err != nil {
		return err
	}

	rows := make([][]string, 0, len(report.StorageByAge))
	for _, group := range []string{backup.AgeGroupDaily, backup.AgeGroupWeekly, backup.AgeGroupMonthly, backup.AgeGroupOlder} {
		usage := report.StorageByAge[group]
		rows = append(rows, []string{group, fmt.Sprintf("%d", usage.BackupCount), display.FormatBytes(usage.TotalSize)})
	}
	return out.WriteTable([]string{"Age", "Backups", "Size"}, rows)
}
