package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dump-rotator/internal/config"
	"dump-rotator/internal/logging"
)

// DumpTool builds the command line of one external dump program
type DumpTool interface {
	Name() string
	Command(uri, outDir string, extraArgs []string) (ToolCommand, error)
}

// DumpToolFor returns the builder registered under name
func DumpToolFor(name string) (DumpTool, error) {
	switch name {
	case "mongodump":
		return mongoDumpTool{}, nil
	case "pg_dump":
		return pgDumpTool{}, nil
	case "mysqldump":
		return mysqlDumpTool{}, nil
	default:
		return nil, fmt.Errorf("unsupported dump tool: %s", name)
	}
}

type mongoDumpTool struct{}

func (mongoDumpTool) Name() string { return "mongodump" }

func (mongoDumpTool) Command(uri, outDir string, extraArgs []string) (ToolCommand, error) {
	args := []string{"--uri=" + uri, "--out=" + outDir}
	return ToolCommand{Binary: "mongodump", Args: append(args, extraArgs...)}, nil
}

type pgDumpTool struct{}

func (pgDumpTool) Name() string { return "pg_dump" }

// pg_dump accepts an existing empty directory for the directory format
func (pgDumpTool) Command(uri, outDir string, extraArgs []string) (ToolCommand, error) {
	args := []string{"--dbname=" + uri, "--format=directory", "--file=" + outDir}
	return ToolCommand{Binary: "pg_dump", Args: append(args, extraArgs...)}, nil
}

type mysqlDumpTool struct{}

func (mysqlDumpTool) Name() string { return "mysqldump" }

// The password travels in MYSQL_PWD so it never shows up in the process list
func (mysqlDumpTool) Command(uri, outDir string, extraArgs []string) (ToolCommand, error) {
	cfg, err := MySQLConfigFromURI(uri)
	if err != nil {
		return ToolCommand{}, err
	}
	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return ToolCommand{}, fmt.Errorf("invalid mysql address %q: %w", cfg.Addr, err)
	}

	args := []string{
		"--host=" + host,
		"--port=" + port,
		"--single-transaction",
		"--routines",
		"--triggers",
	}
	if cfg.User != "" {
		args = append(args, "--user="+cfg.User)
	}

	target := "all-databases"
	if cfg.DBName != "" {
		target = cfg.DBName
	}
	args = append(args, "--result-file="+filepath.Join(outDir, target+".sql"))
	args = append(args, extraArgs...)
	if cfg.DBName != "" {
		args = append(args, "--databases", cfg.DBName)
	} else {
		args = append(args, "--all-databases")
	}

	tc := ToolCommand{Binary: "mysqldump", Args: args}
	if cfg.Passwd != "" {
		tc.Env = []string{"MYSQL_PWD=" + cfg.Passwd}
	}
	return tc, nil
}

// DumpManifest is written into every completed dump directory
type DumpManifest struct {
	Name          string        `json:"name"`
	Tool          string        `json:"tool"`
	ToolVersion   string        `json:"tool_version,omitempty"`
	Source        string        `json:"source"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Duration      time.Duration `json:"duration"`
	ExitCode      int           `json:"exit_code"`
}

// Orchestrator produces one fresh dump directory per call
type Orchestrator struct {
	runner ToolRunner
	logger *logging.Logger
	now    func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(runner ToolRunner, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		runner: runner,
		logger: logger,
		now:    time.Now,
	}
}

// Dump runs the configured dump tool into a hidden staging directory and moves
// it to dest/<name> only when the tool exited cleanly and produced output.
// On any failure the staging directory is removed and nothing else is touched.
func (o *Orchestrator) Dump(ctx context.Context, cfg *config.Config) (*Artifact, error) {
	tool, err := DumpToolFor(cfg.Dump.Tool)
	if err != nil {
		return nil, NewConfigurationError("invalid dump tool", err)
	}

	startedAt := o.now()
	name, err := NextName(cfg.DestinationDir, startedAt)
	if err != nil {
		return nil, NewDumpError("failed to allocate artifact name", err)
	}

	staging := filepath.Join(cfg.DestinationDir, stagingName(name))
	final := filepath.Join(cfg.DestinationDir, name)
	if err := os.Mkdir(staging, 0755); err != nil {
		return nil, NewDumpError("failed to create staging directory", err).WithContext("path", staging)
	}

	cleanup := func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			o.logger.WithFields(map[string]interface{}{
				"step":  StepDump,
				"path":  staging,
				"error": rmErr.Error(),
			}).Warn("Failed to remove staging directory")
		}
	}

	tc, err := tool.Command(cfg.ConnectionURI, staging, cfg.Dump.ExtraArgs)
	if err != nil {
		cleanup()
		return nil, NewConfigurationError("cannot build dump command", err)
	}
	if cfg.Dump.Binary != "" {
		tc.Binary = cfg.Dump.Binary
	}

	dumpCtx := ctx
	if cfg.Dump.Timeout > 0 {
		var cancel context.CancelFunc
		dumpCtx, cancel = context.WithTimeout(ctx, cfg.Dump.Timeout)
		defer cancel()
	}

	o.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"step":     StepDump,
		"tool":     tool.Name(),
		"artifact": name,
		"source":   logging.RedactURI(cfg.ConnectionURI),
	}).Info("Starting database dump")

	outcome, runErr := o.runner.Run(dumpCtx, tc)
	o.logger.LogToolExecution(tool.Name(), outcome.ExitCode, outcome.Duration, runErr)

	if runErr != nil {
		cleanup()
		switch {
		case errors.Is(runErr, context.DeadlineExceeded):
			return nil, NewTimeoutError(StepDump, fmt.Sprintf("dump exceeded %s", cfg.Dump.Timeout), runErr).
				WithContext("artifact", name)
		case errors.Is(runErr, context.Canceled):
			return nil, NewDumpError("dump interrupted", runErr).WithContext("artifact", name)
		default:
			return nil, NewDumpError("failed to run dump tool", runErr).WithContext("artifact", name)
		}
	}

	if !outcome.Succeeded() {
		cleanup()
		return nil, NewDumpError(fmt.Sprintf("%s exited with status %d", tool.Name(), outcome.ExitCode), nil).
			WithContext("artifact", name).
			WithContext("exit_code", outcome.ExitCode).
			WithContext("stderr", outcome.Message)
	}

	complete, err := hasOutput(staging)
	if err != nil || !complete {
		cleanup()
		return nil, NewDumpError(fmt.Sprintf("%s reported success but produced no output", tool.Name()), err).
			WithContext("artifact", name)
	}

	if err := os.Rename(staging, final); err != nil {
		cleanup()
		return nil, NewDumpError("failed to move dump into place", err).WithContext("artifact", name)
	}

	manifest := DumpManifest{
		Name:          name,
		Tool:          tool.Name(),
		ToolVersion:   o.toolVersion(ctx, tc.Binary),
		Source:        logging.RedactURI(cfg.ConnectionURI),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		StartedAt:     startedAt,
		FinishedAt:    o.now(),
		Duration:      outcome.Duration,
		ExitCode:      outcome.ExitCode,
	}
	if err := writeManifest(final, manifest); err != nil {
		o.logger.WithFields(map[string]interface{}{
			"step":     StepDump,
			"artifact": name,
			"error":    err.Error(),
		}).Warn("Failed to write dump manifest")
	}

	artifact := &Artifact{
		Name:   name,
		Path:   final,
		Format: FormatDirectory,
	}
	if info, err := os.Stat(final); err == nil {
		artifact.CreatedAt = info.ModTime()
	}
	if size, err := dirSize(final); err == nil {
		artifact.SizeBytes = size
	}

	o.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"step":       StepDump,
		"artifact":   name,
		"size_bytes": artifact.SizeBytes,
		"duration":   outcome.Duration.String(),
	}).Info("Database dump completed")

	return artifact, nil
}

// toolVersion asks the binary for its version; an empty string means unknown
func (o *Orchestrator) toolVersion(ctx context.Context, binary string) string {
	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	outcome, err := o.runner.Run(vctx, ToolCommand{Binary: binary, Args: []string{"--version"}})
	if err != nil || !outcome.Succeeded() {
		return ""
	}
	return versionLine(outcome)
}

// versionLine returns the first line a --version invocation printed
func versionLine(outcome ExitOutcome) string {
	text := outcome.Output
	if text == "" {
		text = outcome.Message
	}
	line, _, _ := strings.Cut(text, "\n")
	return strings.TrimSpace(line)
}

// hasOutput reports whether dir exists and holds at least one entry
func hasOutput(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	names, err := f.Readdirnames(1)
	if err != nil && len(names) == 0 {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return len(names) > 0, nil
}

func writeManifest(dir string, manifest DumpManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0644)
}
