package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dump-rotator/internal/logging"
)

func readAuditLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestRunLogger_CorrelationID(t *testing.T) {
	rl, err := NewRunLogger(RunLoggerConfig{Logger: testLogger()})
	require.NoError(t, err)
	defer rl.Close()

	assert.Len(t, rl.CorrelationID(), 36)
	ctx := rl.Context(context.Background())
	assert.Equal(t, rl.CorrelationID(), logging.CorrelationIDFromContext(ctx))

	fixed, err := NewRunLogger(RunLoggerConfig{Logger: testLogger(), CorrelationID: "run-42"})
	require.NoError(t, err)
	assert.Equal(t, "run-42", fixed.CorrelationID())
}

func TestRunLogger_AuditTrail(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit", "runs.log")
	rl, err := NewRunLogger(RunLoggerConfig{
		Logger:        testLogger(),
		AuditLogFile:  auditPath,
		CorrelationID: "run-1",
	})
	require.NoError(t, err)

	rl.LogStepStart(StepDump, map[string]interface{}{"tool": "mongodump"})(nil)
	rl.LogStepStart(StepCompression, nil)(NewCompressionError("disk full", nil))
	rl.LogStepStart(StepPreflight, nil)(NewPreflightError("refused", errors.New("dial tcp")))

	now := time.Now()
	rl.LogRunSummary(&RunReport{
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		Outcome:    OutcomeRunDegraded,
		Artifact:   &Artifact{Name: "2024-03-01_02-00-00", Path: "/b/2024-03-01_02-00-00"},
		Warnings:   []string{"compression: disk full"},
	})
	require.NoError(t, rl.Close())
	require.NoError(t, rl.Close())

	lines := readAuditLines(t, auditPath)
	require.Len(t, lines, 4)

	results := make([]string, 0, len(lines))
	for _, line := range lines {
		assert.Equal(t, "run-1", line["correlation_id"])
		results = append(results, line["step"].(string)+"="+line["result"].(string))
	}
	assert.Equal(t, []string{
		"dump=success",
		"compression=degraded",
		"preflight=failure",
		"run=degraded",
	}, results)
}

func TestRunLogger_AuditFileUnwritable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewRunLogger(RunLoggerConfig{
		Logger:       testLogger(),
		AuditLogFile: filepath.Join(blocker, "audit.log"),
	})
	assert.Error(t, err)
}
