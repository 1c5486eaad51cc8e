package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NameLayout is the time layout used to name artifacts. It sorts lexically
// in creation order and contains no characters unsafe for file names.
const NameLayout = "2006-01-02_15-04-05"

// LockFileName is the run lock kept in the destination directory
const LockFileName = ".dump-rotator.lock"

// ManifestFileName is written inside every completed dump directory
const ManifestFileName = "backup-manifest.json"

const (
	stagingPrefix = "."
	stagingSuffix = ".partial"
	trashPrefix   = ".trash-"
)

// CompressionType represents the compression algorithm applied to an archive
type CompressionType string

const (
	CompressionTypeNone CompressionType = "none"
	CompressionTypeGzip CompressionType = "gzip"
	CompressionTypeLZ4  CompressionType = "lz4"
	CompressionTypeZstd CompressionType = "zstd"
)

// ArchiveFormat describes how an artifact is stored on disk
type ArchiveFormat string

const (
	FormatDirectory ArchiveFormat = "dir"
	FormatTarGzip   ArchiveFormat = "tar.gz"
	FormatTarZstd   ArchiveFormat = "tar.zst"
	FormatTarLZ4    ArchiveFormat = "tar.lz4"
	FormatTar       ArchiveFormat = "tar"
)

var archiveFormats = []ArchiveFormat{FormatTarGzip, FormatTarZstd, FormatTarLZ4, FormatTar}

// Extension returns the file suffix of the format, without the leading dot
func (f ArchiveFormat) Extension() string {
	if f == FormatDirectory {
		return ""
	}
	return string(f)
}

// FormatFor returns the archive format produced by a compression algorithm
func FormatFor(algorithm CompressionType) (ArchiveFormat, error) {
	switch algorithm {
	case CompressionTypeGzip:
		return FormatTarGzip, nil
	case CompressionTypeZstd:
		return FormatTarZstd, nil
	case CompressionTypeLZ4:
		return FormatTarLZ4, nil
	case CompressionTypeNone:
		return FormatDirectory, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// DetectFormat infers the archive format from a directory entry name
func DetectFormat(name string, isDir bool) ArchiveFormat {
	if isDir {
		return FormatDirectory
	}
	for _, f := range archiveFormats {
		if strings.HasSuffix(name, "."+f.Extension()) {
			return f
		}
	}
	return ""
}

// Artifact is one backup on the destination filesystem, either the raw dump
// directory or the single archive file it was packaged into.
type Artifact struct {
	Name       string        `json:"name" yaml:"name"`
	Path       string        `json:"path" yaml:"path"`
	Compressed bool          `json:"compressed" yaml:"compressed"`
	Format     ArchiveFormat `json:"format" yaml:"format"`
	CreatedAt  time.Time     `json:"created_at" yaml:"created_at"`
	SizeBytes  int64         `json:"size_bytes" yaml:"size_bytes"`
}

// Age returns how old the artifact is relative to now
func (a Artifact) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}

// RetentionPolicy defines how long artifacts are kept
type RetentionPolicy struct {
	WindowDays int  `json:"window_days" yaml:"window_days"`
	DryRun     bool `json:"dry_run" yaml:"dry_run"`
	// Keep lists entry names that are never deleted, such as the artifact of the current run
	Keep []string `json:"keep,omitempty" yaml:"keep,omitempty"`
}

// Protected reports whether name is listed in Keep
func (p RetentionPolicy) Protected(name string) bool {
	for _, k := range p.Keep {
		if k == name {
			return true
		}
	}
	return false
}

// Window returns the retention window as a duration
func (p RetentionPolicy) Window() time.Duration {
	return time.Duration(p.WindowDays) * 24 * time.Hour
}

// Expired reports whether something last modified at mtime falls outside the window.
// An entry exactly at the boundary is kept.
func (p RetentionPolicy) Expired(mtime, now time.Time) bool {
	return now.Sub(mtime) > p.Window()
}

// Validate checks the policy bounds
func (p RetentionPolicy) Validate() error {
	if p.WindowDays < 0 {
		return NewConfigurationError("retention window must not be negative", nil).
			WithContext("window_days", p.WindowDays)
	}
	return nil
}

// NameFor derives the artifact name for a run started at t, in t's location
func NameFor(t time.Time) string {
	return t.Format(NameLayout)
}

// NextName returns NameFor(t), or NameFor(t) with the smallest _N suffix whose
// directory, staging directory and archives are all absent from dest.
func NextName(dest string, t time.Time) (string, error) {
	base := NameFor(t)
	for n := 0; n < 1000; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken, err := nameTaken(dest, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
	return "", fmt.Errorf("no free artifact name for %s in %s", base, dest)
}

func nameTaken(dest, name string) (bool, error) {
	candidates := []string{name, stagingName(name)}
	for _, f := range archiveFormats {
		candidates = append(candidates, name+"."+f.Extension())
	}
	for _, c := range candidates {
		_, err := os.Lstat(filepath.Join(dest, c))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("failed to check %s: %w", c, err)
		}
	}
	return false, nil
}

func stagingName(name string) string {
	return stagingPrefix + name + stagingSuffix
}

func isStagingName(name string) bool {
	return strings.HasPrefix(name, stagingPrefix) && strings.HasSuffix(name, stagingSuffix)
}

func isTrashName(name string) bool {
	return strings.HasPrefix(name, trashPrefix)
}

// CalculateCompressionRatio calculates the compression ratio
func CalculateCompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

// dirSize sums the sizes of regular files under root
func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
