// Package backup implements the dump-rotator pipeline: one run dumps a database
// with its native tool, packages the dump into a single compressed archive,
// optionally replicates it offsite and then deletes artifacts older than the
// retention window.
//
// Core Components:
//
// - Orchestrator: runs mongodump, pg_dump or mysqldump into a staging directory
// and publishes it under a timestamped name only after a clean exit
// - Compressor: tars the dump directory through gzip, zstd or lz4 and removes
// the directory once the archive is verified
// - RetentionEnforcer: deletes entries of the destination directory by mtime
// - Replicator: copies archives to S3, Azure Blob, GCS or a second directory
// - Manager: sequences the steps under a run lock and reports the outcome
//
// A run fails only when no new backup was produced. Compression, offsite and
// retention problems leave the run degraded and are reported as warnings.
//
// Example usage:
//
//	cfg, err := config.Resolve(v)
//	if err != nil {
//		return err
//	}
//	manager, err := backup.NewManager(cfg, logger)
//	if err != nil {
//		return err
//	}
//	report, err := manager.Run(ctx)
//	if err != nil {
//		return fmt.Errorf("backup failed: %w", err)
//	}
//	fmt.Println(report.Artifact.Path)
package backup
