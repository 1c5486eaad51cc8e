package backup

import (
	"context"
	"fmt"
	"time"

	"dump-rotator/internal/config"
	apperrors "dump-rotator/internal/errors"
	"dump-rotator/internal/logging"
)

// OffsiteResult describes one replication of an artifact
type OffsiteResult struct {
	Store    string        `json:"store" yaml:"store"`
	Key      string        `json:"key" yaml:"key"`
	Uploaded bool          `json:"uploaded" yaml:"uploaded"`
	Pruned   []string      `json:"pruned,omitempty" yaml:"pruned,omitempty"`
	Errors   []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Replicator copies artifacts to an offsite store and keeps its retention
type Replicator struct {
	store  OffsiteStore
	prefix string
	retry  *apperrors.RetryHandler
	logger *logging.Logger
}

// NewReplicator creates a replicator for store. Keys are built under prefix,
// which is treated as a folder whether or not it ends in a slash.
func NewReplicator(store OffsiteStore, prefix string, logger *logging.Logger) *Replicator {
	return &Replicator{
		store:  store,
		prefix: config.NormalizePrefix(prefix),
		retry:  apperrors.NewDefaultRetryHandler(),
		logger: logger,
	}
}

// WithRetryConfig replaces the retry policy used for uploads
func (r *Replicator) WithRetryConfig(cfg apperrors.RetryConfig) *Replicator {
	r.retry = apperrors.NewRetryHandler(cfg)
	return r
}

// Replicate uploads artifact, then deletes remote objects older than the
// policy window. The freshly uploaded object is never pruned.
func (r *Replicator) Replicate(ctx context.Context, artifact *Artifact, policy RetentionPolicy, now time.Time) (*OffsiteResult, error) {
	start := time.Now()
	key := ObjectKeyFor(r.prefix, artifact)
	result := &OffsiteResult{Store: r.store.Name(), Key: key}

	done := r.logger.LogOperationStart(StepOffsite, map[string]interface{}{
		"store":    result.Store,
		"artifact": artifact.Name,
		"key":      key,
	})

	err := r.retry.Retry(ctx, func() error {
		return r.store.Upload(ctx, artifact.Path, key)
	})
	done(err)
	if err != nil {
		result.Duration = time.Since(start)
		return result, NewStorageError("failed to replicate artifact", err).
			WithContext("store", result.Store).
			WithContext("artifact", artifact.Name)
	}
	result.Uploaded = true

	objects, err := r.store.List(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list: %v", err))
	}
	for _, obj := range objects {
		if obj.Key == key || !policy.Expired(obj.LastModified, now) {
			continue
		}
		if policy.DryRun {
			result.Pruned = append(result.Pruned, obj.Key)
			continue
		}
		if err := r.store.Delete(ctx, obj.Key); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", obj.Key, err))
			continue
		}
		result.Pruned = append(result.Pruned, obj.Key)
	}

	result.Duration = time.Since(start)
	r.logger.WithFields(map[string]interface{}{
		"step":    StepOffsite,
		"store":   result.Store,
		"key":     key,
		"pruned":  len(result.Pruned),
		"errors":  len(result.Errors),
		"dry_run": policy.DryRun,
	}).Info("Offsite replication finished")

	if len(result.Errors) > 0 {
		return result, NewStorageError(fmt.Sprintf("offsite retention finished with %d errors", len(result.Errors)), nil).
			WithContext("store", result.Store)
	}
	return result, nil
}
