package backup

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_Run_Success(t *testing.T) {
	requireShell(t)

	outcome, err := NewExecRunner().Run(context.Background(), ToolCommand{
		Binary: "sh",
		Args:   []string{"-c", "echo dumped; echo progress >&2"},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Equal(t, "dumped", outcome.Output)
	assert.Equal(t, "progress", outcome.Message)
}

func TestExecRunner_Run_NonZeroExit(t *testing.T) {
	requireShell(t)

	outcome, err := NewExecRunner().Run(context.Background(), ToolCommand{
		Binary: "sh",
		Args:   []string{"-c", "echo 'Failed: auth error' >&2; exit 3"},
	})
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded())
	assert.Equal(t, 3, outcome.ExitCode)
	assert.Equal(t, "Failed: auth error", outcome.Message)
}

func TestExecRunner_Run_StderrDoesNotDecideStatus(t *testing.T) {
	requireShell(t)

	outcome, err := NewExecRunner().Run(context.Background(), ToolCommand{
		Binary: "sh",
		Args:   []string{"-c", "echo 'error: something scary' >&2; exit 0"},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
}

func TestExecRunner_Run_Env(t *testing.T) {
	requireShell(t)

	outcome, err := NewExecRunner().Run(context.Background(), ToolCommand{
		Binary: "sh",
		Args:   []string{"-c", "echo $MYSQL_PWD"},
		Env:    []string{"MYSQL_PWD=hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", outcome.Output)
}

func TestExecRunner_Run_MissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), ToolCommand{Binary: "definitely-not-a-dump-tool"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExecRunner_Run_Timeout(t *testing.T) {
	requireShell(t)

	runner := NewExecRunner()
	runner.WaitDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	outcome, err := runner.Run(ctx, ToolCommand{Binary: "sh", Args: []string{"-c", "sleep 30"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, outcome.Succeeded())
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestTailBuffer(t *testing.T) {
	buf := newTailBuffer(8)
	_, _ = buf.Write([]byte("0123456789"))
	_, _ = buf.Write([]byte("abc"))
	assert.Equal(t, "56789abc", buf.String())
}

func TestToolCommand_String(t *testing.T) {
	tc := ToolCommand{Binary: "mongodump", Args: []string{"--out=/tmp/x"}, Env: []string{"SECRET=1"}}
	assert.Equal(t, "mongodump --out=/tmp/x", tc.String())
	assert.False(t, strings.Contains(tc.String(), "SECRET"))
}
