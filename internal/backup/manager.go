package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"dump-rotator/internal/config"
	"dump-rotator/internal/logging"
)

// RunOutcome summarizes how a pipeline run ended
type RunOutcome string

const (
	// OutcomeRunSuccess means every step succeeded
	OutcomeRunSuccess RunOutcome = "success"
	// OutcomeRunDegraded means a backup exists but a later step failed
	OutcomeRunDegraded RunOutcome = "degraded"
	// OutcomeRunFailed means no new backup was produced
	OutcomeRunFailed RunOutcome = "failed"
)

// RunReport is the result of one pipeline run
type RunReport struct {
	CorrelationID    string            `json:"correlation_id" yaml:"correlation_id"`
	StartedAt        time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt       time.Time         `json:"finished_at" yaml:"finished_at"`
	Outcome          RunOutcome        `json:"outcome" yaml:"outcome"`
	Artifact         *Artifact         `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Compression      *CompressionStats `json:"compression,omitempty" yaml:"compression,omitempty"`
	CompressionError string            `json:"compression_error,omitempty" yaml:"compression_error,omitempty"`
	Offsite          *OffsiteResult    `json:"offsite,omitempty" yaml:"offsite,omitempty"`
	Retention        *RetentionResult  `json:"retention,omitempty" yaml:"retention,omitempty"`
	ReplacedLock     *LockInfo         `json:"replaced_lock,omitempty" yaml:"replaced_lock,omitempty"`
	Warnings         []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error            string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// ExitCode maps the outcome to a process exit status
func (r *RunReport) ExitCode() int {
	if r.Outcome == OutcomeRunFailed {
		return 1
	}
	return 0
}

func (r *RunReport) warn(step string, err error) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %v", step, err))
	if r.Outcome == OutcomeRunSuccess {
		r.Outcome = OutcomeRunDegraded
	}
}

// StoreFactory builds the offsite store for a run
type StoreFactory func(ctx context.Context, cfg config.OffsiteConfig) (OffsiteStore, error)

// Manager runs the backup pipeline against one destination directory
type Manager struct {
	cfg          *config.Config
	logger       *logging.Logger
	orchestrator *Orchestrator
	compressor   *Compressor
	retention    RetentionEnforcer
	preflight    *Preflighter
	storeFactory StoreFactory
	now          func() time.Time
}

// ManagerOption customizes a Manager
type ManagerOption func(*Manager)

// WithToolRunner replaces the runner used to launch the dump tool
func WithToolRunner(runner ToolRunner) ManagerOption {
	return func(m *Manager) {
		m.orchestrator.runner = runner
	}
}

// WithClock replaces the time source used for naming and retention
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
		m.orchestrator.now = now
	}
}

// WithPreflighter replaces the connection preflight checker
func WithPreflighter(p *Preflighter) ManagerOption {
	return func(m *Manager) {
		m.preflight = p
	}
}

// WithStoreFactory replaces how the offsite store is created
func WithStoreFactory(factory StoreFactory) ManagerOption {
	return func(m *Manager) {
		m.storeFactory = factory
	}
}

// NewManager creates a pipeline manager for a resolved configuration
func NewManager(cfg *config.Config, logger *logging.Logger, opts ...ManagerOption) (*Manager, error) {
	if cfg == nil {
		return nil, NewConfigurationError("configuration is required", nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	compressor, err := NewCompressor(cfg.Compression, logger)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          cfg,
		logger:       logger,
		orchestrator: NewOrchestrator(NewExecRunner(), logger),
		compressor:   compressor,
		retention:    NewRetentionEnforcer(logger),
		preflight:    NewPreflighter(cfg.Preflight.Timeout, logger),
		storeFactory: NewOffsiteStore,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Run performs one backup: dump, compress, replicate and sweep old artifacts.
// The returned error is non-nil only when no new backup was produced.
func (m *Manager) Run(ctx context.Context) (*RunReport, error) {
	rl, err := NewRunLogger(RunLoggerConfig{
		Logger:       m.logger,
		AuditLogFile: m.cfg.Audit.LogFile,
	})
	if err != nil {
		m.logger.Warnf("Audit log disabled: %v", err)
		rl, _ = NewRunLogger(RunLoggerConfig{Logger: m.logger})
	}
	defer rl.Close()
	ctx = rl.Context(ctx)

	report := &RunReport{
		CorrelationID: rl.CorrelationID(),
		StartedAt:     m.now(),
		Outcome:       OutcomeRunSuccess,
	}
	defer func() {
		report.FinishedAt = m.now()
		rl.LogRunSummary(report)
	}()

	fail := func(err error) (*RunReport, error) {
		report.Outcome = OutcomeRunFailed
		report.Error = err.Error()
		return report, err
	}

	m.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"destination": m.cfg.DestinationDir,
		"tool":        m.cfg.Dump.Tool,
		"source":      logging.RedactURI(m.cfg.ConnectionURI),
		"retention":   m.cfg.RetentionDays,
	}).Info("Backup run started")

	if err := config.EnsureDestination(*m.cfg); err != nil {
		return fail(NewConfigurationError("destination directory is not usable", err).
			WithContext("destination", m.cfg.DestinationDir))
	}

	if m.cfg.Lock.Enabled {
		done := rl.LogStepStart(StepLock, nil)
		lock, replaced, err := AcquireLock(m.cfg.DestinationDir, m.cfg.Lock.StaleAfter, m.now())
		done(err)
		if err != nil {
			return fail(err)
		}
		defer lock.Release()
		if replaced != nil {
			report.ReplacedLock = replaced
			m.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"pid":        replaced.PID,
				"hostname":   replaced.Hostname,
				"started_at": replaced.StartedAt.Format(time.RFC3339),
			}).Warn("Replaced stale run lock")
		}
	}

	if m.cfg.Preflight.Enabled {
		done := rl.LogStepStart(StepPreflight, nil)
		_, err := m.preflight.Check(ctx, m.cfg.ConnectionURI)
		done(err)
		if err != nil {
			return fail(err)
		}
	}

	done := rl.LogStepStart(StepDump, map[string]interface{}{"tool": m.cfg.Dump.Tool})
	artifact, err := m.orchestrator.Dump(ctx, m.cfg)
	done(err)
	if err != nil {
		return fail(err)
	}
	report.Artifact = artifact

	if m.compressor.Algorithm() != CompressionTypeNone {
		done = rl.LogStepStart(StepCompression, map[string]interface{}{"algorithm": string(m.compressor.Algorithm())})
		compressed, stats, err := m.compressor.Compress(ctx, artifact)
		done(err)
		if err != nil {
			report.CompressionError = err.Error()
			report.warn(StepCompression, err)
		} else {
			report.Artifact = compressed
			report.Compression = stats
		}
	}

	if m.cfg.Offsite.Enabled() {
		result, err := m.replicate(ctx, rl, report.Artifact)
		report.Offsite = result
		if err != nil {
			report.warn(StepOffsite, err)
		}
	}

	done = rl.LogStepStart(StepRetention, map[string]interface{}{"window_days": m.cfg.RetentionDays})
	policy := RetentionPolicy{
		WindowDays: m.cfg.RetentionDays,
		Keep:       []string{filepath.Base(report.Artifact.Path)},
	}
	retention, err := m.retention.Enforce(ctx, m.cfg.DestinationDir, policy, m.now())
	if err == nil && retention.HasErrors() {
		err = NewRetentionError(fmt.Sprintf("%d entries could not be deleted", len(retention.Errors)), nil)
	}
	done(err)
	report.Retention = retention
	if err != nil {
		report.warn(StepRetention, err)
	}

	return report, nil
}

func (m *Manager) replicate(ctx context.Context, rl *RunLogger, artifact *Artifact) (*OffsiteResult, error) {
	done := rl.LogStepStart(StepOffsite, map[string]interface{}{"provider": m.cfg.Offsite.Provider})

	store, err := m.storeFactory(ctx, m.cfg.Offsite)
	if err != nil {
		err = NewStorageError("failed to create offsite store", err)
		done(err)
		return nil, err
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	policy := RetentionPolicy{WindowDays: m.cfg.Offsite.RetentionDays}
	result, err := NewReplicator(store, m.cfg.Offsite.Prefix, m.logger).Replicate(ctx, artifact, policy, m.now())
	done(err)
	return result, err
}

// Prune applies the retention policy without taking a new backup
func (m *Manager) Prune(ctx context.Context, dryRun bool) (*RetentionResult, error) {
	if m.cfg.Lock.Enabled && !dryRun {
		lock, replaced, err := AcquireLock(m.cfg.DestinationDir, m.cfg.Lock.StaleAfter, m.now())
		if err != nil {
			return nil, err
		}
		defer lock.Release()
		if replaced != nil {
			m.logger.Warnf("Replaced stale run lock held by pid %d on %s", replaced.PID, replaced.Hostname)
		}
	}

	policy := RetentionPolicy{WindowDays: m.cfg.RetentionDays, DryRun: dryRun}
	return m.retention.Enforce(ctx, m.cfg.DestinationDir, policy, m.now())
}

// List returns the artifacts currently held in the destination directory
func (m *Manager) List() ([]Artifact, error) {
	return ListArtifacts(m.cfg.DestinationDir)
}

// Config returns the configuration the manager runs with
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// CheckReport describes whether a run could start right now
type CheckReport struct {
	Destination      string               `json:"destination" yaml:"destination"`
	DestinationError string               `json:"destination_error,omitempty" yaml:"destination_error,omitempty"`
	Tool             string               `json:"tool" yaml:"tool"`
	ToolVersion      string               `json:"tool_version,omitempty" yaml:"tool_version,omitempty"`
	ToolError        string               `json:"tool_error,omitempty" yaml:"tool_error,omitempty"`
	Preflight        bool                 `json:"preflight" yaml:"preflight"`
	PreflightError   string               `json:"preflight_error,omitempty" yaml:"preflight_error,omitempty"`
	Offsite          *StorageHealthReport `json:"offsite,omitempty" yaml:"offsite,omitempty"`
}

// Healthy reports whether every probed component is usable
func (r *CheckReport) Healthy() bool {
	if r.DestinationError != "" || r.ToolError != "" || r.PreflightError != "" {
		return false
	}
	return r.Offsite == nil || r.Offsite.Healthy
}

// Check probes the destination, the dump tool, the database and the offsite
// store without taking a backup or touching existing artifacts.
func (m *Manager) Check(ctx context.Context) *CheckReport {
	report := &CheckReport{Destination: m.cfg.DestinationDir, Tool: m.cfg.Dump.Tool}

	if err := config.EnsureDestination(*m.cfg); err != nil {
		report.DestinationError = err.Error()
	} else if err := checkWritable(m.cfg.DestinationDir); err != nil {
		report.DestinationError = fmt.Sprintf("destination directory %s is not writable: %v", m.cfg.DestinationDir, err)
	}

	binary := m.cfg.Dump.Binary
	if binary == "" {
		binary = m.cfg.Dump.Tool
	}
	outcome, err := m.orchestrator.runner.Run(ctx, ToolCommand{Binary: binary, Args: []string{"--version"}})
	switch {
	case err != nil:
		report.ToolError = err.Error()
	case !outcome.Succeeded():
		report.ToolError = fmt.Sprintf("%s --version exited with code %d", binary, outcome.ExitCode)
	default:
		report.ToolVersion = versionLine(outcome)
	}

	if m.cfg.Preflight.Enabled {
		checked, err := m.preflight.Check(ctx, m.cfg.ConnectionURI)
		report.Preflight = checked
		if err != nil {
			report.PreflightError = err.Error()
		}
	}

	if m.cfg.Offsite.Enabled() {
		store, err := m.storeFactory(ctx, m.cfg.Offsite)
		if err != nil {
			report.Offsite = &StorageHealthReport{Store: m.cfg.Offsite.Provider, Error: err.Error(), CheckedAt: m.now()}
		} else {
			if closer, ok := store.(interface{ Close() error }); ok {
				defer closer.Close()
			}
			report.Offsite = MonitorStorageHealth(ctx, store)
		}
	}
	return report
}
