package backup

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// VerifyResult describes one archive read back from disk
type VerifyResult struct {
	Path     string        `json:"path" yaml:"path"`
	Format   ArchiveFormat `json:"format" yaml:"format"`
	Entries  int           `json:"entries" yaml:"entries"`
	Bytes    int64         `json:"bytes" yaml:"bytes"`
	Checksum string        `json:"sha256" yaml:"sha256"`
	Manifest bool          `json:"manifest" yaml:"manifest"`
}

// VerifyArchive decompresses the archive at path end to end without writing
// anything. It fails on a truncated stream, a corrupt tar and an empty archive.
func VerifyArchive(ctx context.Context, path string) (*VerifyResult, error) {
	format := DetectFormat(filepath.Base(path), false)
	if format == "" {
		return nil, NewCompressionError("unrecognised archive format", nil).WithContext("path", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, NewCompressionError("failed to open archive", err).WithContext("path", path)
	}
	defer f.Close()

	hash := sha256.New()
	zr, err := newDecompressReader(io.TeeReader(f, hash), format)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	result := &VerifyResult{Path: path, Format: format}
	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, NewCompressionError("archive is corrupt", err).WithContext("path", path)
		}
		result.Entries++
		if filepath.Base(header.Name) == ManifestFileName {
			result.Manifest = true
		}
		n, err := io.Copy(io.Discard, tr)
		result.Bytes += n
		if err != nil {
			return nil, NewCompressionError(fmt.Sprintf("failed to read %s", header.Name), err).WithContext("path", path)
		}
	}
	if result.Entries == 0 {
		return nil, NewCompressionError("archive holds no entries", nil).WithContext("path", path)
	}

	// Hash the trailing bytes the decompressor did not need
	if _, err := io.Copy(hash, f); err != nil {
		return nil, NewCompressionError("failed to read archive", err).WithContext("path", path)
	}
	result.Checksum = hex.EncodeToString(hash.Sum(nil))
	return result, nil
}
