package backup

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackupError_Error(t *testing.T) {
	err := NewDumpError("mongodump exited with status 2", nil)
	assert.Equal(t, "DUMP_ERROR [dump]: mongodump exited with status 2", err.Error())

	cause := errors.New("disk full")
	err = NewCompressionError("failed to write archive", cause)
	assert.Equal(t, "COMPRESSION_ERROR [compression]: failed to write archive (caused by: disk full)", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestBackupError_WithContext(t *testing.T) {
	err := NewStorageError("upload failed", nil).WithContext("store", "s3://bucket").WithContext("attempts", 3)
	assert.Equal(t, "s3://bucket", err.Context["store"])
	assert.Equal(t, 3, err.Context["attempts"])
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), true},
		{"configuration", NewConfigurationError("bad", nil), true},
		{"conflict", NewConflictError("locked", nil), true},
		{"preflight", NewPreflightError("unreachable", nil), true},
		{"dump", NewDumpError("failed", nil), true},
		{"dump timeout", NewTimeoutError(StepDump, "too slow", nil), true},
		{"preflight timeout", NewTimeoutError(StepPreflight, "too slow", nil), true},
		{"compression", NewCompressionError("failed", nil), false},
		{"compression timeout", NewTimeoutError(StepCompression, "too slow", nil), false},
		{"retention", NewRetentionError("failed", nil), false},
		{"storage", NewStorageError("failed", nil), false},
		{"wrapped compression", fmt.Errorf("step: %w", NewCompressionError("failed", nil)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, BackupErrorTypeConflict, ErrorType(NewConflictError("x", nil)))
	assert.Equal(t, BackupErrorType(""), ErrorType(errors.New("x")))
}
