package backup

import (
	"context"
	"time"
)

// StorageUsageReport summarizes the artifacts held in a destination directory
type StorageUsageReport struct {
	TotalBackups      int                       `json:"total_backups" yaml:"total_backups"`
	CompressedBackups int                       `json:"compressed_backups" yaml:"compressed_backups"`
	TotalSize         int64                     `json:"total_size" yaml:"total_size"`
	AverageBackupSize int64                     `json:"average_backup_size" yaml:"average_backup_size"`
	LargestBackup     *Artifact                 `json:"largest_backup,omitempty" yaml:"largest_backup,omitempty"`
	OldestBackup      *Artifact                 `json:"oldest_backup,omitempty" yaml:"oldest_backup,omitempty"`
	NewestBackup      *Artifact                 `json:"newest_backup,omitempty" yaml:"newest_backup,omitempty"`
	StorageByAge      map[string]*AgeGroupUsage `json:"storage_by_age" yaml:"storage_by_age"`
	Expired           int                       `json:"expired" yaml:"expired"`
	GeneratedAt       time.Time                 `json:"generated_at" yaml:"generated_at"`
}

// AgeGroupUsage represents storage usage by backup age groups
type AgeGroupUsage struct {
	AgeGroup    string `json:"age_group" yaml:"age_group"` // "daily", "weekly", "monthly", "older"
	BackupCount int    `json:"backup_count" yaml:"backup_count"`
	TotalSize   int64  `json:"total_size" yaml:"total_size"`
}

// Age group names
const (
	AgeGroupDaily   = "daily"
	AgeGroupWeekly  = "weekly"
	AgeGroupMonthly = "monthly"
	AgeGroupOlder   = "older"
)

// AgeGroupFor buckets an artifact age
func AgeGroupFor(age time.Duration) string {
	switch {
	case age <= 24*time.Hour:
		return AgeGroupDaily
	case age <= 7*24*time.Hour:
		return AgeGroupWeekly
	case age <= 30*24*time.Hour:
		return AgeGroupMonthly
	default:
		return AgeGroupOlder
	}
}

// GetStorageUsage builds a usage report for artifacts as listed by ListArtifacts.
// Expired counts the artifacts the policy would delete at now.
func GetStorageUsage(artifacts []Artifact, policy RetentionPolicy, now time.Time) *StorageUsageReport {
	report := &StorageUsageReport{
		StorageByAge: map[string]*AgeGroupUsage{},
		GeneratedAt:  now,
	}
	for _, group := range []string{AgeGroupDaily, AgeGroupWeekly, AgeGroupMonthly, AgeGroupOlder} {
		report.StorageByAge[group] = &AgeGroupUsage{AgeGroup: group}
	}

	for i := range artifacts {
		a := &artifacts[i]
		report.TotalBackups++
		report.TotalSize += a.SizeBytes
		if a.Compressed {
			report.CompressedBackups++
		}
		if policy.Expired(a.CreatedAt, now) {
			report.Expired++
		}

		group := report.StorageByAge[AgeGroupFor(a.Age(now))]
		group.BackupCount++
		group.TotalSize += a.SizeBytes

		if report.LargestBackup == nil || a.SizeBytes > report.LargestBackup.SizeBytes {
			report.LargestBackup = a
		}
		if report.OldestBackup == nil || a.CreatedAt.Before(report.OldestBackup.CreatedAt) {
			report.OldestBackup = a
		}
		if report.NewestBackup == nil || a.CreatedAt.After(report.NewestBackup.CreatedAt) {
			report.NewestBackup = a
		}
	}

	if report.TotalBackups > 0 {
		report.AverageBackupSize = report.TotalSize / int64(report.TotalBackups)
	}
	return report
}

// StorageHealthReport is the result of probing the offsite store
type StorageHealthReport struct {
	Store     string        `json:"store" yaml:"store"`
	Healthy   bool          `json:"healthy" yaml:"healthy"`
	Objects   int           `json:"objects" yaml:"objects"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Latency   time.Duration `json:"latency" yaml:"latency"`
	CheckedAt time.Time     `json:"checked_at" yaml:"checked_at"`
}

// MonitorStorageHealth runs the store health check and counts its objects
func MonitorStorageHealth(ctx context.Context, store OffsiteStore) *StorageHealthReport {
	start := time.Now()
	report := &StorageHealthReport{Store: store.Name(), CheckedAt: start}

	if err := store.HealthCheck(ctx); err != nil {
		report.Error = err.Error()
		report.Latency = time.Since(start)
		return report
	}
	objects, err := store.List(ctx)
	report.Latency = time.Since(start)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Healthy = true
	report.Objects = len(objects)
	return report
}
