package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dump-rotator/internal/backup"
	"dump-rotator/internal/display"
	"dump-rotator/internal/logging"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	scheduleExpr string
	scheduleNext int
)

// cronParser accepts standard five field expressions and @descriptors
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// scheduleCmd keeps the process alive and runs the pipeline on a cron schedule
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the backup pipeline on a cron schedule",
	Long: `Stay in the foreground and run the backup pipeline whenever the cron
expression fires. A run that is still going when the next one is due causes
that tick to be skipped. SIGINT or SIGTERM stops the scheduler and waits for
the current run to finish; a second signal aborts that run.

The expression comes from --cron or the schedule configuration key.

Examples:
  # Every night at 02:00
  dump-rotator schedule --cron "0 2 * * *"

  # Show the next five run times and exit
  dump-rotator schedule --cron "@every 6h" --next 5`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleExpr, "cron", "", "cron expression (default from the schedule setting)")
	scheduleCmd.Flags().IntVar(&scheduleNext, "next", 0, "print the next N run times and exit")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	expr := scheduleExpr
	if expr == "" {
		expr = cfg.Schedule
	}
	if expr == "" {
		return errors.New("no schedule given: use --cron or set the schedule setting")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	out := newOutputWriter(cmd)
	if scheduleNext > 0 {
		return printNextRuns(out, sched, time.Now(), scheduleNext)
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	manager, err := backup.NewManager(cfg, logger)
	if err != nil {
		return err
	}

	// Runs only see the command context; the first signal stops scheduling
	jobCtx := commandContext(cmd)
	stopCtx, stop := signal.NotifyContext(jobCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(map[string]interface{}{
		"schedule": expr,
		"next":     sched.Next(time.Now()).Format(time.RFC3339),
	}).Info("Scheduler started")

	serveSchedule(stopCtx, jobCtx, sched, logger, stop, func(ctx context.Context) {
		report, err := manager.Run(ctx)
		if err != nil {
			logger.Errorf("Scheduled backup failed: %v", err)
			return
		}
		logger.WithFields(map[string]interface{}{
			"outcome":        string(report.Outcome),
			"correlation_id": report.CorrelationID,
			"next":           sched.Next(time.Now()).Format(time.RFC3339),
		}).Info("Scheduled backup finished")
	})
	return nil
}

// serveSchedule runs job on sched until stopCtx is done, then waits for a
// running job to return. Jobs get jobCtx, so stopping does not cancel them.
// onStop runs once stopCtx is done, before the wait.
func serveSchedule(stopCtx, jobCtx context.Context, sched cron.Schedule, logger *logging.Logger, onStop func(), job func(context.Context)) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(sched, cron.FuncJob(func() { job(jobCtx) }))

	c.Start()
	<-stopCtx.Done()
	if onStop != nil {
		onStop()
	}
	logger.Info("Stopping scheduler, waiting for a running backup to finish (signal again to abort)")
	<-c.Stop().Done()
}

func printNextRuns(out *display.OutputWriter, sched cron.Schedule, from time.Time, n int) error {
	times := make([]string, 0, n)
	rows := make([][]string, 0, n)
	next := from
	for i := 0; i < n; i++ {
		next = sched.Next(next)
		if next.IsZero() {
			break
		}
		times = append(times, next.Format(time.RFC3339))
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), next.Format(time.RFC3339)})
	}
	if out.Structured() {
		return out.WriteDocument("", times, nil)
	}
	return out.WriteTable([]string{"#", "Next run"}, rows)
}

// cronLogger adapts the application logger to cron.Logger
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if !l.logger.IsLevelEnabled(logging.LogLevelVerbose) {
		return
	}
	l.logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

var _ cron.Logger = cronLogger{}
