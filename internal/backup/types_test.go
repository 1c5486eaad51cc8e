package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameFor(t *testing.T) {
	ts := time.Date(2024, 12, 31, 23, 59, 7, 0, time.UTC)
	assert.Equal(t, "2024-12-31_23-59-07", NameFor(ts))

	// Lexical order follows time order
	assert.Less(t, NameFor(ts), NameFor(ts.Add(time.Second)))
}

func TestNextName(t *testing.T) {
	dest := t.TempDir()
	ts := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	name, err := NextName(dest, ts)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01_02-00-00", name)

	tests := []struct {
		name     string
		existing string
		isDir    bool
		want     string
	}{
		{"directory", "2024-03-01_02-00-00", true, "2024-03-01_02-00-00_1"},
		{"staging directory", ".2024-03-01_02-00-00.partial", true, "2024-03-01_02-00-00_1"},
		{"gzip archive", "2024-03-01_02-00-00.tar.gz", false, "2024-03-01_02-00-00_1"},
		{"zstd archive", "2024-03-01_02-00-00.tar.zst", false, "2024-03-01_02-00-00_1"},
		{"lz4 archive", "2024-03-01_02-00-00.tar.lz4", false, "2024-03-01_02-00-00_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			path := filepath.Join(dest, tt.existing)
			if tt.isDir {
				require.NoError(t, os.Mkdir(path, 0755))
			} else {
				require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
			}

			got, err := NextName(dest, ts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextName_SkipsTakenSuffixes(t *testing.T) {
	dest := t.TempDir()
	ts := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	writeTree(t, dest, map[string]string{
		"2024-03-01_02-00-00.tar.gz":   "x",
		"2024-03-01_02-00-00_1.tar.gz": "x",
		"2024-03-01_02-00-00_2/a":      "x",
	})

	got, err := NextName(dest, ts)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01_02-00-00_3", got)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatDirectory, DetectFormat("2024-03-01_02-00-00", true))
	assert.Equal(t, FormatTarGzip, DetectFormat("a.tar.gz", false))
	assert.Equal(t, FormatTarZstd, DetectFormat("a.tar.zst", false))
	assert.Equal(t, FormatTarLZ4, DetectFormat("a.tar.lz4", false))
	assert.Equal(t, FormatTar, DetectFormat("a.tar", false))
	assert.Equal(t, ArchiveFormat(""), DetectFormat("notes.txt", false))
}

func TestFormatFor(t *testing.T) {
	f, err := FormatFor(CompressionTypeZstd)
	require.NoError(t, err)
	assert.Equal(t, "tar.zst", f.Extension())

	f, err = FormatFor(CompressionTypeNone)
	require.NoError(t, err)
	assert.Equal(t, "", f.Extension())

	_, err = FormatFor("xz")
	assert.Error(t, err)
}

func TestRetentionPolicy_Expired(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	p := RetentionPolicy{WindowDays: 30}

	assert.False(t, p.Expired(now, now))
	assert.False(t, p.Expired(now.Add(-29*day), now))
	assert.False(t, p.Expired(now.Add(-30*day), now))
	assert.True(t, p.Expired(now.Add(-30*day-time.Nanosecond), now))
	assert.True(t, p.Expired(now.Add(-31*day), now))

	// Future mtimes are never expired
	assert.False(t, p.Expired(now.Add(time.Hour), now))
}

func TestRetentionPolicy_Validate(t *testing.T) {
	assert.NoError(t, RetentionPolicy{WindowDays: 0}.Validate())
	assert.NoError(t, RetentionPolicy{WindowDays: 365}.Validate())
	assert.Error(t, RetentionPolicy{WindowDays: -3}.Validate())
}

func TestRetentionPolicy_Protected(t *testing.T) {
	p := RetentionPolicy{Keep: []string{"a.tar.gz"}}
	assert.True(t, p.Protected("a.tar.gz"))
	assert.False(t, p.Protected("b.tar.gz"))
}
