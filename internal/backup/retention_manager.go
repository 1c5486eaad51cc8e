package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dump-rotator/internal/logging"
)

// RetentionEnforcer deletes aged entries from a destination directory
type RetentionEnforcer interface {
	// Enforce deletes every entry of dir whose age exceeds the policy window
	Enforce(ctx context.Context, dir string, policy RetentionPolicy, now time.Time) (*RetentionResult, error)
}

// RetentionResult represents the result of one retention sweep
type RetentionResult struct {
	Directory      string        `json:"directory" yaml:"directory"`
	WindowDays     int           `json:"window_days" yaml:"window_days"`
	Scanned        int           `json:"scanned" yaml:"scanned"`
	Deleted        int           `json:"deleted" yaml:"deleted"`
	Kept           int           `json:"kept" yaml:"kept"`
	DeletedEntries []string      `json:"deleted_entries,omitempty" yaml:"deleted_entries,omitempty"`
	Pending        int           `json:"pending" yaml:"pending"`
	PendingEntries []string      `json:"pending_entries,omitempty" yaml:"pending_entries,omitempty"`
	Errors         []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	ProcessingTime time.Duration `json:"processing_time" yaml:"processing_time"`
	DryRun         bool          `json:"dry_run" yaml:"dry_run"`
}

// HasErrors reports whether any entry could not be handled
func (r *RetentionResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// retentionEnforcer implements the RetentionEnforcer interface
type retentionEnforcer struct {
	logger *logging.Logger
}

// NewRetentionEnforcer creates a new retention enforcer
func NewRetentionEnforcer(logger *logging.Logger) RetentionEnforcer {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &retentionEnforcer{logger: logger}
}

// Enforce scans the direct entries of dir. Files and directories are treated
// alike; only the run lock is exempt. Per-entry failures are collected in the
// result and never stop the sweep. An unreadable dir is returned as an error.
func (re *retentionEnforcer) Enforce(ctx context.Context, dir string, policy RetentionPolicy, now time.Time) (*RetentionResult, error) {
	startTime := time.Now()

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewRetentionError("failed to read destination directory", err).WithContext("directory", dir)
	}

	result := &RetentionResult{
		Directory:  dir,
		WindowDays: policy.WindowDays,
		DryRun:     policy.DryRun,
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sweep interrupted: %v", err))
			break
		}

		name := entry.Name()
		if name == LockFileName {
			continue
		}
		result.Scanned++

		info, err := entry.Info()
		if err != nil {
			// Removed by someone else between ReadDir and now
			if os.IsNotExist(err) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		if policy.Protected(name) || !policy.Expired(info.ModTime(), now) {
			result.Kept++
			continue
		}

		if policy.DryRun {
			result.Deleted++
			result.DeletedEntries = append(result.DeletedEntries, name)
			re.logger.Infof("[dry run] Would delete %s (modified %s)", name, info.ModTime().Format(time.RFC3339))
			continue
		}

		if err := re.deleteEntry(dir, name, now); err != nil {
			result.Errors = append(result.Errors, err.Error())
			var ee *entryError
			if errors.As(err, &ee) && ee.op == "rename" {
				result.Kept++
			} else {
				// Moved aside but still on disk; the next sweep retries it
				result.Pending++
				result.PendingEntries = append(result.PendingEntries, name)
			}
			continue
		}
		result.Deleted++
		result.DeletedEntries = append(result.DeletedEntries, name)
	}

	result.ProcessingTime = time.Since(startTime)
	re.logger.LogRetentionSweep(dir, policy.WindowDays, result.Scanned, result.Deleted, len(result.Errors), policy.DryRun)
	return result, nil
}

// deleteEntry moves name out of the way with a single rename, then removes it.
// If the rename fails the entry is untouched. If the removal fails the trash
// entry keeps its old mtime and is picked up again by the next sweep.
func (re *retentionEnforcer) deleteEntry(dir, name string, now time.Time) error {
	src := filepath.Join(dir, name)
	trash := filepath.Join(dir, fmt.Sprintf("%s%s-%d", trashPrefix, name, now.UnixNano()))

	if err := os.Rename(src, trash); err != nil {
		return &entryError{op: "rename", name: name, err: err}
	}

	if err := os.RemoveAll(trash); err != nil {
		re.logger.WithFields(map[string]interface{}{
			"step":  StepRetention,
			"entry": name,
			"trash": filepath.Base(trash),
			"error": err.Error(),
		}).Warn("Entry moved aside but not fully removed")
		return &entryError{op: "remove", name: name, err: err}
	}

	re.logger.WithFields(map[string]interface{}{
		"step":  StepRetention,
		"entry": name,
	}).Debug("Deleted expired entry")
	return nil
}

// entryError describes a failure to delete one entry
type entryError struct {
	op   string
	name string
	err  error
}

func (e *entryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.op, e.name, e.err)
}

func (e *entryError) Unwrap() error {
	return e.err
}

// ListArtifacts scans dir and returns its entries, newest first. The run lock,
// in-flight staging directories and trash entries are left out.
func ListArtifacts(dir string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewRetentionError("failed to read destination directory", err).WithContext("directory", dir)
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if name == LockFileName || isStagingName(name) || isTrashName(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		format := DetectFormat(name, entry.IsDir())
		artifact := Artifact{
			Name:       strings.TrimSuffix(name, "."+format.Extension()),
			Path:       filepath.Join(dir, name),
			Compressed: format != FormatDirectory && format != "",
			Format:     format,
			CreatedAt:  info.ModTime(),
			SizeBytes:  info.Size(),
		}
		if format == "" {
			artifact.Name = name
		}
		if entry.IsDir() {
			if size, err := dirSize(artifact.Path); err == nil {
				artifact.SizeBytes = size
			}
		}
		artifacts = append(artifacts, artifact)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}
