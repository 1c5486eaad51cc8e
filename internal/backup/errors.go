package backup

import (
	"errors"
	"fmt"
)

// BackupError represents errors that occur during a backup run
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Step    string                 `json:"step"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *BackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s (caused by: %v)", e.Type, e.Step, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Type, e.Step, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// BackupErrorType represents different types of backup errors
type BackupErrorType string

const (
	BackupErrorTypeConfiguration BackupErrorType = "CONFIGURATION_ERROR"
	BackupErrorTypeDump          BackupErrorType = "DUMP_ERROR"
	BackupErrorTypeCompression   BackupErrorType = "COMPRESSION_ERROR"
	BackupErrorTypeRetention     BackupErrorType = "RETENTION_ERROR"
	BackupErrorTypeStorage       BackupErrorType = "STORAGE_ERROR"
	BackupErrorTypeConflict      BackupErrorType = "CONFLICT_ERROR"
	BackupErrorTypePreflight     BackupErrorType = "PREFLIGHT_ERROR"
	BackupErrorTypeTimeout       BackupErrorType = "TIMEOUT_ERROR"
)

// Pipeline step names carried by errors and log entries
const (
	StepConfig      = "config"
	StepLock        = "lock"
	StepPreflight   = "preflight"
	StepDump        = "dump"
	StepCompression = "compression"
	StepOffsite     = "offsite"
	StepRetention   = "retention"
)

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, step, message string, cause error) *BackupError {
	return &BackupError{
		Type:    errorType,
		Step:    step,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors
func NewConfigurationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, StepConfig, message, cause)
}

func NewDumpError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeDump, StepDump, message, cause)
}

func NewCompressionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeCompression, StepCompression, message, cause)
}

func NewRetentionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeRetention, StepRetention, message, cause)
}

func NewStorageError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeStorage, StepOffsite, message, cause)
}

func NewConflictError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConflict, StepLock, message, cause)
}

func NewPreflightError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypePreflight, StepPreflight, message, cause)
}

func NewTimeoutError(step, message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeTimeout, step, message, cause)
}

// IsFatal reports whether err must abort the run with a failure status.
// Compression, retention and offsite failures degrade the run instead.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *BackupError
	if !errors.As(err, &be) {
		return true
	}
	switch be.Type {
	case BackupErrorTypeCompression, BackupErrorTypeRetention, BackupErrorTypeStorage:
		return false
	case BackupErrorTypeTimeout:
		return be.Step == StepDump || be.Step == StepPreflight
	default:
		return true
	}
}

// ErrorType returns the BackupErrorType carried by err, or "" when err is not a BackupError
func ErrorType(err error) BackupErrorType {
	var be *BackupError
	if errors.As(err, &be) {
		return be.Type
	}
	return ""
}
