package cmd

import (
	"errors"
	"fmt"

	"dump-rotator/internal/backup"
	"dump-rotator/internal/display"

	"github.com/spf13/cobra"
)

// checkCmd probes everything a run depends on
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that a backup run could start",
	Long: `Check the destination directory, the dump tool, the database connection
(mysql:// URIs only) and the offsite store without taking a backup.

Exit status is 1 when any probe fails.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
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

	report := manager.Check(commandContext(cmd))
	out := newOutputWriter(cmd)

	if out.Structured() {
		if err := out.WriteDocument("", report, nil); err != nil {
			return err
		}
	} else {
		status := func(level, ok, failure string) {
			if failure != "" {
				_ = out.WriteStatus(display.LevelError, failure)
				return
			}
			_ = out.WriteStatus(level, ok)
		}
		status(display.LevelSuccess, "Destination "+report.Destination+" is writable", report.DestinationError)
		version := report.ToolVersion
		if version == "" {
			version = "version unknown"
		}
		status(display.LevelSuccess, fmt.Sprintf("Dump tool %s available (%s)", report.Tool, version), report.ToolError)
		switch {
		case !cfg.Preflight.Enabled:
			_ = out.WriteStatus(display.LevelInfo, "Connection preflight disabled")
		case !report.Preflight:
			_ = out.WriteStatus(display.LevelInfo, "Connection preflight not supported for this URI scheme")
		default:
			status(display.LevelSuccess, "Database reachable", report.PreflightError)
		}
		if report.Offsite != nil {
			status(display.LevelSuccess,
				fmt.Sprintf("Offsite store %s reachable (%d objects, %s)", report.Offsite.Store, report.Offsite.Objects, report.Offsite.Latency),
				report.Offsite.Error)
		}
	}

	if !report.Healthy() {
		return errors.New("one or more checks failed")
	}
	return nil
}
