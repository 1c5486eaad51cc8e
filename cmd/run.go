package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dump-rotator/internal/backup"
	"dump-rotator/internal/display"

	"github.com/spf13/cobra"
)

// runCmd is an explicit alias for the root command's default action
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the backup pipeline once",
	Long: `Dump the database, compress the dump, replicate it offsite when configured
and enforce retention. This is the same pipeline the root command runs.

Exit status is 1 when no new backup was produced and 0 otherwise, including
degraded runs where compression, upload or retention reported a problem.`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runBackup executes one pipeline run and prints its report
func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := backup.NewManager(cfg, logger)
	if err != nil {
		return err
	}

	report, runErr := manager.Run(ctx)
	if report != nil {
		if err := printRunReport(newOutputWriter(cmd), report); err != nil {
			logger.Warnf("failed to print run report: %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if report != nil && report.ExitCode() != 0 {
		return fmt.Errorf("backup run %s", report.Outcome)
	}
	return nil
}

func printRunReport(out *display.OutputWriter, report *backup.RunReport) error {
	fields := []display.Field{
		{Key: "Outcome", Value: string(report.Outcome)},
		{Key: "Run", Value: report.CorrelationID},
		{Key: "Duration", Value: report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String()},
	}
	if report.Artifact != nil {
		fields = append(fields,
			display.Field{Key: "Artifact", Value: report.Artifact.Path},
			display.Field{Key: "Size", Value: display.FormatBytes(report.Artifact.SizeBytes)},
		)
	}
	if report.Compression != nil {
		fields = append(fields, display.Field{
			Key:   "Compression",
			Value: fmt.Sprintf("%s %.1f%% of %s", report.Compression.Algorithm, report.Compression.CompressionRatio*100, display.FormatBytes(report.Compression.OriginalSize)),
		})
	}
	if report.Offsite != nil {
		fields = append(fields, display.Field{Key: "Offsite", Value: fmt.Sprintf("%s (key %s)", report.Offsite.Store, report.Offsite.Key)})
	}
	if report.Retention != nil {
		value := fmt.Sprintf("%d deleted, %d kept (%d day window)", report.Retention.Deleted, report.Retention.Kept, report.Retention.WindowDays)
		if report.Retention.Pending > 0 {
			value += fmt.Sprintf(", %d pending removal", report.Retention.Pending)
		}
		fields = append(fields, display.Field{Key: "Retention", Value: value})
	}
	if report.ReplacedLock != nil {
		fields = append(fields, display.Field{Key: "Stale lock", Value: fmt.Sprintf("pid %d on %s", report.ReplacedLock.PID, report.ReplacedLock.Hostname)})
	}
	if len(report.Warnings) > 0 {
		fields = append(fields, display.Field{Key: "Warnings", Value: strings.Join(report.Warnings, "; ")})
	}
	if report.Error != "" {
		fields = append(fields, display.Field{Key: "Error", Value: report.Error})
	}
	return out.WriteDocument("Backup run", report, fields)
}
