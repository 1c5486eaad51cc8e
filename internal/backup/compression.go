package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"dump-rotator/internal/config"
	"dump-rotator/internal/logging"
)

// CompressionStats contains statistics about compression operations
type CompressionStats struct {
	OriginalSize     int64           `json:"original_size" yaml:"original_size"`
	CompressedSize   int64           `json:"compressed_size" yaml:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio" yaml:"compression_ratio"`
	Algorithm        CompressionType `json:"algorithm" yaml:"algorithm"`
	Level            int             `json:"level" yaml:"level"`
	Checksum         string          `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Duration         time.Duration   `json:"duration" yaml:"duration"`
}

// Compressor packages a dump directory into a single archive file
type Compressor struct {
	algorithm CompressionType
	level     int
	timeout   time.Duration
	logger    *logging.Logger
}

// NewCompressor creates a compressor for the configured algorithm
func NewCompressor(cfg config.CompressionConfig, logger *logging.Logger) (*Compressor, error) {
	algorithm := CompressionType(cfg.Algorithm)
	if algorithm == "" {
		algorithm = CompressionTypeGzip
	}
	if _, err := FormatFor(algorithm); err != nil {
		return nil, NewConfigurationError("invalid compression algorithm", err)
	}
	return &Compressor{
		algorithm: algorithm,
		level:     cfg.Level,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// Algorithm returns the configured compression algorithm
func (c *Compressor) Algorithm() CompressionType {
	return c.algorithm
}

// Compress writes artifact's directory into <path>.<ext> and removes the
// directory once the archive is synced, renamed into place and reads back cleanly.
// On error the directory is left untouched and no archive exists.
func (c *Compressor) Compress(ctx context.Context, artifact *Artifact) (*Artifact, *CompressionStats, error) {
	if c.algorithm == CompressionTypeNone {
		return artifact, nil, nil
	}
	if artifact.Format != FormatDirectory {
		return nil, nil, NewCompressionError("artifact is not a directory", nil).WithContext("artifact", artifact.Name)
	}

	format, _ := FormatFor(c.algorithm)
	archivePath := artifact.Path + "." + format.Extension()
	tmpPath := archivePath + ".tmp"

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	originalSize, err := c.writeArchive(ctx, artifact.Path, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		c.logger.LogCompression(artifact.Path, string(c.algorithm), 0, 0, time.Since(start), err)
		return nil, nil, NewCompressionError("failed to write archive", err).WithContext("artifact", artifact.Name)
	}

	if err := os.Rename(tmpPath, archivePath); err != nil {
		os.Remove(tmpPath)
		c.logger.LogCompression(artifact.Path, string(c.algorithm), 0, 0, time.Since(start), err)
		return nil, nil, NewCompressionError("failed to move archive into place", err).WithContext("artifact", artifact.Name)
	}

	info, err := os.Stat(archivePath)
	if err == nil && info.Size() == 0 {
		err = errors.New("archive is empty")
	}
	var verified *VerifyResult
	if err == nil {
		verified, err = VerifyArchive(ctx, archivePath)
	}
	if err != nil {
		os.Remove(archivePath)
		c.logger.LogCompression(artifact.Path, string(c.algorithm), 0, 0, time.Since(start), err)
		return nil, nil, NewCompressionError("archive verification failed", err).WithContext("artifact", artifact.Name)
	}

	stats := &CompressionStats{
		OriginalSize:     originalSize,
		CompressedSize:   info.Size(),
		CompressionRatio: CalculateCompressionRatio(originalSize, info.Size()),
		Algorithm:        c.algorithm,
		Level:            c.level,
		Checksum:         verified.Checksum,
		Duration:         time.Since(start),
	}
	c.logger.LogCompression(archivePath, string(c.algorithm), stats.OriginalSize, stats.CompressedSize, stats.Duration, nil)

	// Both copies exist if this fails, so it is only worth a warning
	if err := os.RemoveAll(artifact.Path); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"step":     StepCompression,
			"artifact": artifact.Name,
			"error":    err.Error(),
		}).Warn("Archive written but dump directory could not be removed")
	}

	return &Artifact{
		Name:       artifact.Name,
		Path:       archivePath,
		Compressed: true,
		Format:     format,
		CreatedAt:  info.ModTime(),
		SizeBytes:  info.Size(),
	}, stats, nil
}

// writeArchive streams srcDir through tar and the compressor into path, then
// syncs the file. It returns the number of content bytes archived.
func (c *Compressor) writeArchive(ctx context.Context, srcDir, path string) (int64, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive file: %w", err)
	}

	zw, err := newCompressWriter(out, c.algorithm, c.level)
	if err != nil {
		out.Close()
		return 0, err
	}

	written, err := WriteTar(ctx, zw, srcDir)
	if err != nil {
		zw.Close()
		out.Close()
		return 0, err
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to finish %s stream: %w", c.algorithm, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close archive: %w", err)
	}
	return written, nil
}

// WriteTar writes the tree rooted at srcDir to w as an uncompressed tar stream.
// Entries are stored under the base name of srcDir. ctx is checked between entries.
func WriteTar(ctx context.Context, w io.Writer, srcDir string) (int64, error) {
	tw := tar.NewWriter(w)
	root := filepath.Base(srcDir)
	var written int64

	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("failed to build tar header for %s: %w", path, err)
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(root, rel))
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		n, err := io.Copy(tw, f)
		f.Close()
		written += n
		if err != nil {
			return fmt.Errorf("failed to archive %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return written, err
	}

	if err := tw.Close(); err != nil {
		return written, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	return written, nil
}

// Extract unpacks an archive produced by Compress into destDir
func Extract(ctx context.Context, archivePath, destDir string) error {
	format := DetectFormat(filepath.Base(archivePath), false)
	if format == "" {
		return NewCompressionError("unrecognised archive format", nil).WithContext("path", archivePath)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return NewCompressionError("failed to open archive", err)
	}
	defer f.Close()

	zr, err := newDecompressReader(f, format)
	if err != nil {
		return err
	}
	defer zr.Close()

	cleanDest := filepath.Clean(destDir)
	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return NewCompressionError("failed to read archive entry", err)
		}

		target := filepath.Join(cleanDest, filepath.FromSlash(header.Name))
		if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return NewCompressionError("archive entry escapes destination", nil).WithContext("entry", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)|0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return NewCompressionError("failed to extract "+header.Name, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func newCompressWriter(w io.Writer, algorithm CompressionType, level int) (io.WriteCloser, error) {
	switch algorithm {
	case CompressionTypeGzip:
		if level < gzip.BestSpeed || level > gzip.BestCompression {
			level = gzip.DefaultCompression
		}
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gw, nil
	case CompressionTypeZstd:
		if level == 0 {
			level = 3
		}
		encoderLevel := zstd.SpeedFastest
		switch {
		case level <= 1:
			encoderLevel = zstd.SpeedFastest
		case level <= 3:
			encoderLevel = zstd.SpeedDefault
		case level <= 6:
			encoderLevel = zstd.SpeedBetterCompression
		default:
			encoderLevel = zstd.SpeedBestCompression
		}
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(encoderLevel))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return zw, nil
	case CompressionTypeLZ4:
		lw := lz4.NewWriter(w)
		// LZ4 has limited level options - use fast or high compression
		if level > 6 {
			if err := lw.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
				return nil, fmt.Errorf("failed to set LZ4 high compression: %w", err)
			}
		}
		return lw, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

func newDecompressReader(r io.Reader, format ArchiveFormat) (io.ReadCloser, error) {
	switch format {
	case FormatTarGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, NewCompressionError("failed to create gzip reader", err)
		}
		return gr, nil
	case FormatTarZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, NewCompressionError("failed to create zstd decoder", err)
		}
		return zr.IOReadCloser(), nil
	case FormatTarLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case FormatTar:
		return io.NopCloser(r), nil
	default:
		return nil, NewCompressionError(fmt.Sprintf("unsupported archive format: %s", format), nil)
	}
}
