package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestResolve_Defaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Resolve(MapProvider{
		KeyConnectionURI: "mongodb://localhost:27017/club",
		KeyInstallRoot:   root,
	})
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017/club", cfg.ConnectionURI)
	assert.Equal(t, filepath.Join(root, "backups"), cfg.DestinationDir)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, "mongodump", cfg.Dump.Tool)
	assert.Equal(t, "mongodump", cfg.Dump.Binary)
	assert.Equal(t, 2*time.Hour, cfg.Dump.Timeout)
	assert.Equal(t, "gzip", cfg.Compression.Algorithm)
	assert.Equal(t, time.Hour, cfg.Compression.Timeout)
	assert.True(t, cfg.Lock.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Lock.StaleAfter)
	assert.True(t, cfg.Preflight.Enabled)
	assert.False(t, cfg.Offsite.Enabled())
	assert.Equal(t, 30, cfg.Offsite.RetentionDays)
}

func TestResolve_MissingURI(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(MapProvider{
		KeyInstallRoot:   root,
		KeyRetentionDays: "not-a-number",
	})
	require.ErrorIs(t, err, ErrMissingConnectionURI)

	entries, readErr := os.ReadDir(root)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "resolution must not touch the filesystem")
}

func TestResolve_LegacyURIKeys(t *testing.T) {
	cfg, err := Resolve(MapProvider{KeyLegacyMongoURI: "mongodb://legacy/db", KeyInstallRoot: "/opt/app"})
	require.NoError(t, err)
	assert.Equal(t, "mongodb://legacy/db", cfg.ConnectionURI)

	cfg, err = Resolve(MapProvider{
		KeyConnectionURI:     "postgres://primary/db",
		KeyLegacyDatabaseURL: "postgres://legacy/db",
		KeyInstallRoot:       "/opt/app",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary/db", cfg.ConnectionURI)
}

func TestResolve_RetentionDays(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int
		wantErr bool
	}{
		{"zero", "0", 0, false},
		{"explicit", "14", 14, false},
		{"padded", " 7 ", 7, false},
		{"negative", "-1", 0, true},
		{"not a number", "thirty", 0, true},
		{"fraction", "1.5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(MapProvider{
				KeyConnectionURI: "mongodb://localhost/db",
				KeyInstallRoot:   "/opt/app",
				KeyRetentionDays: tt.value,
			})
			if tt.wantErr {
				require.Error(t, err)
				var verrs ValidationErrors
				require.ErrorAs(t, err, &verrs)
				assert.True(t, verrs.Has(KeyRetentionDays))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.RetentionDays)
		})
	}
}

func TestResolve_DestinationDir(t *testing.T) {
	cfg, err := Resolve(MapProvider{
		KeyConnectionURI:  "mongodb://localhost/db",
		KeyInstallRoot:    "/opt/app",
		KeyDestinationDir: "var/dumps",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/opt/app/var/dumps"), cfg.DestinationDir)

	abs := filepath.Join(t.TempDir(), "dumps")
	cfg, err = Resolve(MapProvider{
		KeyConnectionURI:  "mongodb://localhost/db",
		KeyDestinationDir: abs,
	})
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.DestinationDir)
	assert.NotEmpty(t, cfg.InstallRoot)
}

func TestResolve_InvalidSettings(t *testing.T) {
	_, err := Resolve(MapProvider{
		KeyConnectionURI:        "mongodb://localhost/db",
		KeyInstallRoot:          "/opt/app",
		KeyDumpTool:             "pg_dumpall",
		KeyDumpTimeout:          "-5m",
		KeyCompressionAlgorithm: "bzip2",
		KeyLockEnabled:          "sometimes",
		KeyOffsiteProvider:      "s3",
	})
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	for _, field := range []string{KeyDumpTool, KeyDumpTimeout, KeyCompressionAlgorithm, KeyLockEnabled, KeyOffsiteProvider} {
		assert.True(t, verrs.Has(field), "expected validation error for %s", field)
	}
	assert.Contains(t, err.Error(), "validation errors")
}

func TestResolve_Offsite(t *testing.T) {
	cfg, err := Resolve(MapProvider{
		KeyConnectionURI:        "mongodb://localhost/db",
		KeyInstallRoot:          "/opt/app",
		KeyOffsiteProvider:      "S3",
		KeyS3Bucket:             "club-backups",
		KeyS3Region:             "eu-west-1",
		KeyS3SecretKey:          "top-secret",
		KeyOffsiteRetentionDays: "90",
	})
	require.NoError(t, err)
	assert.True(t, cfg.Offsite.Enabled())
	assert.Equal(t, "s3", cfg.Offsite.Provider)
	assert.Equal(t, 90, cfg.Offsite.RetentionDays)
	assert.Equal(t, "backups/", cfg.Offsite.Prefix)
}

func TestResolve_OffsitePrefixIsFolder(t *testing.T) {
	cfg, err := Resolve(MapProvider{
		KeyConnectionURI:   "mongodb://localhost/db",
		KeyInstallRoot:     "/opt/app",
		KeyOffsiteProvider: "local",
		KeyLocalPath:       "/mnt/mirror",
		KeyOffsitePrefix:   "/nightly",
	})
	require.NoError(t, err)
	assert.Equal(t, "nightly/", cfg.Offsite.Prefix)
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"/":              "",
		"nightly":        "nightly/",
		"nightly/":       "nightly/",
		"/a/b//":         "a/b/",
		"  backups/db  ": "backups/db/",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePrefix(in), "prefix %q", in)
	}
}

func TestResolve_Viper(t *testing.T) {
	v := viper.New()
	v.SetEnvPrefix("DUMP_ROTATOR_TEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyRetentionDays, DefaultRetentionDays)
	v.SetDefault(KeyInstallRoot, "/opt/app")

	t.Setenv("DUMP_ROTATOR_TEST_CONNECTION_URI", "mongodb://env/db")
	t.Setenv("DUMP_ROTATOR_TEST_RETENTION_DAYS", "7")
	t.Setenv("DUMP_ROTATOR_TEST_DUMP_TOOL", "pg_dump")

	cfg, err := Resolve(v)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://env/db", cfg.ConnectionURI)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, "pg_dump", cfg.Dump.Tool)
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Config{
		ConnectionURI: "mongodb://admin:hunter2@db:27017/club",
		Offsite: OffsiteConfig{
			S3:    S3Config{SecretKey: "abc"},
			Azure: AzureConfig{AccountKey: "def"},
		},
	}

	redacted := cfg.Redacted()
	assert.NotContains(t, redacted.ConnectionURI, "hunter2")
	assert.Equal(t, "xxxxx", redacted.Offsite.S3.SecretKey)
	assert.Equal(t, "xxxxx", redacted.Offsite.Azure.AccountKey)
	assert.Equal(t, "mongodb://admin:hunter2@db:27017/club", cfg.ConnectionURI)
}

func TestEnsureDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a", "b", "backups")
	require.NoError(t, EnsureDestination(Config{DestinationDir: dest}))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, EnsureDestination(Config{DestinationDir: dest}), "existing directory is fine")
	assert.Error(t, EnsureDestination(Config{}))
}

func TestOffsiteConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  OffsiteConfig
		wantErr bool
	}{
		{"disabled", OffsiteConfig{}, false},
		{"s3 ok", OffsiteConfig{Provider: "s3", S3: S3Config{Bucket: "b", Region: "r"}}, false},
		{"s3 missing region", OffsiteConfig{Provider: "s3", S3: S3Config{Bucket: "b"}}, true},
		{"azure ok", OffsiteConfig{Provider: "azure", Azure: AzureConfig{AccountName: "a", AccountKey: "k", ContainerName: "c"}}, false},
		{"azure missing key", OffsiteConfig{Provider: "azure", Azure: AzureConfig{AccountName: "a", ContainerName: "c"}}, true},
		{"gcs ok", OffsiteConfig{Provider: "gcs", GCS: GCSConfig{Bucket: "b"}}, false},
		{"gcs missing bucket", OffsiteConfig{Provider: "gcs"}, true},
		{"unknown", OffsiteConfig{Provider: "ftp"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "dump-rotator.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# dump-rotator configuration"))

	var fc FileConfig
	require.NoError(t, yaml.Unmarshal(data, &fc))
	assert.Equal(t, DefaultFileConfig(), fc)

	assert.Error(t, WriteDefaultConfig(path, false), "existing file must not be overwritten")
	assert.NoError(t, WriteDefaultConfig(path, true))
}

func TestWriteDefaultConfig_ReadableByViper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump-rotator.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	v.Set(KeyInstallRoot, "/opt/app")

	cfg, err := Resolve(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, DefaultDumpTool, cfg.Dump.Tool)
	assert.Equal(t, DefaultDumpTimeout, cfg.Dump.Timeout)
}
