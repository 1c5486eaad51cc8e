package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dump-rotator/internal/logging"
)

// RunLogger provides structured logging for one pipeline run with a
// correlation ID and an optional JSON audit trail
type RunLogger struct {
	logger        *logging.Logger
	auditLogger   *logrus.Logger
	auditFile     *os.File
	correlationID string
}

// RunLoggerConfig holds configuration for run logging
type RunLoggerConfig struct {
	Logger        *logging.Logger
	AuditLogFile  string
	CorrelationID string
}

// AuditLogEntry represents an audit trail entry
type AuditLogEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	Step          string                 `json:"step"`
	Result        string                 `json:"result"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// NewRunLogger creates a new run logger. A fresh correlation ID is generated
// unless one is supplied.
func NewRunLogger(config RunLoggerConfig) (*RunLogger, error) {
	correlationID := config.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	rl := &RunLogger{
		logger:        logger,
		correlationID: correlationID,
	}

	if config.AuditLogFile != "" {
		auditDir := filepath.Dir(config.AuditLogFile)
		if err := os.MkdirAll(auditDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}

		auditFile, err := os.OpenFile(config.AuditLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}

		auditLogger := logrus.New()
		auditLogger.SetOutput(auditFile)
		auditLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
		auditLogger.SetLevel(logrus.InfoLevel)

		rl.auditLogger = auditLogger
		rl.auditFile = auditFile
	}

	return rl, nil
}

// CorrelationID returns the ID shared by every entry of this run
func (rl *RunLogger) CorrelationID() string {
	return rl.correlationID
}

// Logger returns the underlying application logger
func (rl *RunLogger) Logger() *logging.Logger {
	return rl.logger
}

// Context returns ctx carrying the run's correlation ID
func (rl *RunLogger) Context(ctx context.Context) context.Context {
	return logging.ContextWithCorrelationID(ctx, rl.correlationID)
}

// LogStepStart logs the start of a pipeline step and returns a function
// that logs its completion. Failed steps are logged at error level when
// fatal and at warning level otherwise.
func (rl *RunLogger) LogStepStart(step string, fields map[string]interface{}) func(error) {
	startTime := time.Now()

	logFields := logrus.Fields{
		"correlation_id": rl.correlationID,
		"step":           step,
		"status":         "started",
	}
	for k, v := range fields {
		logFields[k] = v
	}
	rl.logger.WithFields(logFields).Debug("Step started")

	return func(err error) {
		duration := time.Since(startTime)
		logFields["duration"] = duration.String()

		result := "success"
		switch {
		case err == nil:
			logFields["status"] = "completed"
			rl.logger.WithFields(logFields).Debug("Step completed")
		case IsFatal(err):
			result = "failure"
			logFields["status"] = "failed"
			logFields["error"] = err.Error()
			rl.logger.WithFields(logFields).Error("Step failed")
		default:
			result = "degraded"
			logFields["status"] = "degraded"
			logFields["error"] = err.Error()
			rl.logger.WithFields(logFields).Warn("Step failed, continuing")
		}

		details := map[string]interface{}{"duration": duration.String()}
		for k, v := range fields {
			details[k] = v
		}
		if err != nil {
			details["error"] = err.Error()
		}
		rl.logAudit(step, result, details)
	}
}

// LogRunSummary logs the final report of a run
func (rl *RunLogger) LogRunSummary(report *RunReport) {
	fields := logrus.Fields{
		"correlation_id": rl.correlationID,
		"outcome":        string(report.Outcome),
		"duration":       report.FinishedAt.Sub(report.StartedAt).String(),
	}
	if report.Artifact != nil {
		fields["artifact"] = report.Artifact.Name
		fields["path"] = report.Artifact.Path
		fields["compressed"] = report.Artifact.Compressed
		fields["size_bytes"] = report.Artifact.SizeBytes
	}
	if report.Retention != nil {
		fields["retention_deleted"] = report.Retention.Deleted
		if report.Retention.Pending > 0 {
			fields["retention_pending"] = report.Retention.Pending
		}
	}
	if len(report.Warnings) > 0 {
		fields["warnings"] = len(report.Warnings)
	}
	if report.Error != "" {
		fields["error"] = report.Error
	}

	entry := rl.logger.WithFields(fields)
	switch report.Outcome {
	case OutcomeRunSuccess:
		entry.Info("Backup run completed")
	case OutcomeRunDegraded:
		entry.Warn("Backup run completed with warnings")
	default:
		entry.Error("Backup run failed")
	}

	details := map[string]interface{}{}
	for k, v := range fields {
		details[k] = v
	}
	rl.logAudit("run", string(report.Outcome), details)
}

// logAudit writes an audit trail entry when an audit log is configured
func (rl *RunLogger) logAudit(step, result string, details map[string]interface{}) {
	if rl.auditLogger == nil {
		return
	}

	entry := AuditLogEntry{
		Timestamp:     time.Now(),
		CorrelationID: rl.correlationID,
		Step:          step,
		Result:        result,
		Details:       details,
	}

	rl.auditLogger.WithFields(logrus.Fields{
		"correlation_id": entry.CorrelationID,
		"step":           entry.Step,
		"result":         entry.Result,
		"details":        entry.Details,
	}).Info("Audit log entry")
}

// Close releases the audit log file
func (rl *RunLogger) Close() error {
	if rl.auditFile == nil {
		return nil
	}
	err := rl.auditFile.Close()
	rl.auditFile = nil
	rl.auditLogger = nil
	return err
}
