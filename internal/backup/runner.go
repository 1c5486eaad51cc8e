package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// OutcomeStatus is the tag of an ExitOutcome
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// ExitOutcome is the result of one external tool run. Status is decided by the
// process exit status alone; Message and Output are kept for diagnostics.
type ExitOutcome struct {
	Status   OutcomeStatus `json:"status"`
	ExitCode int           `json:"exit_code"`
	Message  string        `json:"message,omitempty"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the tool exited with status zero
func (o ExitOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// ToolCommand describes an external process invocation
type ToolCommand struct {
	Binary string
	Args   []string
	// Env entries are appended to the current environment
	Env []string
	Dir string
}

// String renders the command for logs. Env values are never included.
func (c ToolCommand) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// ToolRunner runs external tools. A non-nil error means the process could not
// be started or was interrupted by ctx; a process that ran to completion is
// always described by the returned ExitOutcome.
type ToolRunner interface {
	Run(ctx context.Context, cmd ToolCommand) (ExitOutcome, error)
}

const (
	defaultTailSize  = 4096
	defaultWaitDelay = 30 * time.Second
)

// ExecRunner runs tools as subprocesses with os/exec
type ExecRunner struct {
	// WaitDelay is how long a canceled process gets between SIGTERM and SIGKILL
	WaitDelay time.Duration
	TailSize  int
}

// NewExecRunner creates a runner with default settings
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		WaitDelay: defaultWaitDelay,
		TailSize:  defaultTailSize,
	}
}

// Run implements ToolRunner
func (r *ExecRunner) Run(ctx context.Context, tc ToolCommand) (ExitOutcome, error) {
	path, err := exec.LookPath(tc.Binary)
	if err != nil {
		return ExitOutcome{Status: OutcomeFailure, ExitCode: -1}, fmt.Errorf("dump tool %q not found: %w", tc.Binary, err)
	}

	cmd := exec.CommandContext(ctx, path, tc.Args...)
	cmd.Dir = tc.Dir
	if len(tc.Env) > 0 {
		cmd.Env = append(os.Environ(), tc.Env...)
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.WaitDelay

	tailSize := r.TailSize
	if tailSize <= 0 {
		tailSize = defaultTailSize
	}
	stderr := newTailBuffer(tailSize)
	stdout := newTailBuffer(tailSize)
	cmd.Stderr = stderr
	cmd.Stdout = stdout

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ExitOutcome{Status: OutcomeFailure, ExitCode: -1}, fmt.Errorf("failed to start %s: %w", tc.Binary, err)
	}
	waitErr := cmd.Wait()

	outcome := ExitOutcome{
		Status:   OutcomeSuccess,
		Message:  stderr.String(),
		Output:   stdout.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome.Status = OutcomeFailure
		return outcome, ctxErr
	}

	if waitErr != nil {
		outcome.Status = OutcomeFailure
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return outcome, fmt.Errorf("failed waiting for %s: %w", tc.Binary, waitErr)
		}
	}
	return outcome, nil
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
