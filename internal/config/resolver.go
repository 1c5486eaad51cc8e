package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Provider is a key/value configuration source. *viper.Viper satisfies it.
type Provider interface {
	GetString(key string) string
	GetStringSlice(key string) []string
}

// Supported dump tools and compression algorithms
var (
	SupportedDumpTools   = []string{"mongodump", "pg_dump", "mysqldump"}
	SupportedAlgorithms  = []string{"gzip", "zstd", "lz4", "none"}
	SupportedOffsiteKind = []string{"s3", "azure", "gcs", "local"}
)

// Resolve builds the run configuration from p, applying defaults.
// A missing connection URI fails before anything else is looked at.
func Resolve(p Provider) (*Config, error) {
	uri := firstNonEmpty(p, KeyConnectionURI, KeyLegacyMongoURI, KeyLegacyDatabaseURL)
	if uri == "" {
		return nil, ErrMissingConnectionURI
	}

	var errs ValidationErrors
	cfg := &Config{ConnectionURI: uri}

	cfg.InstallRoot = strings.TrimSpace(p.GetString(KeyInstallRoot))
	if cfg.InstallRoot == "" {
		cfg.InstallRoot = defaultInstallRoot()
	}

	cfg.DestinationDir = strings.TrimSpace(p.GetString(KeyDestinationDir))
	switch {
	case cfg.DestinationDir == "":
		cfg.DestinationDir = filepath.Join(cfg.InstallRoot, DefaultDestinationSubdir)
	case !filepath.IsAbs(cfg.DestinationDir):
		cfg.DestinationDir = filepath.Join(cfg.InstallRoot, cfg.DestinationDir)
	}
	cfg.DestinationDir = filepath.Clean(cfg.DestinationDir)

	cfg.RetentionDays = parseNonNegativeInt(p, KeyRetentionDays, DefaultRetentionDays, &errs)

	cfg.Dump = DumpConfig{
		Tool:      stringOr(p, KeyDumpTool, DefaultDumpTool),
		Binary:    strings.TrimSpace(p.GetString(KeyDumpBinary)),
		Timeout:   parseDuration(p, KeyDumpTimeout, DefaultDumpTimeout, &errs),
		ExtraArgs: p.GetStringSlice(KeyDumpExtraArgs),
	}
	if !contains(SupportedDumpTools, cfg.Dump.Tool) {
		errs.Add(KeyDumpTool, fmt.Sprintf("must be one of %s", strings.Join(SupportedDumpTools, ", ")), cfg.Dump.Tool)
	}
	if cfg.Dump.Binary == "" {
		cfg.Dump.Binary = cfg.Dump.Tool
	}

	cfg.Compression = CompressionConfig{
		Algorithm: strings.ToLower(stringOr(p, KeyCompressionAlgorithm, DefaultCompression)),
		Level:     parseNonNegativeInt(p, KeyCompressionLevel, 0, &errs),
		Timeout:   parseDuration(p, KeyCompressionTimeout, DefaultCompressionTimeout, &errs),
	}
	if !contains(SupportedAlgorithms, cfg.Compression.Algorithm) {
		errs.Add(KeyCompressionAlgorithm, fmt.Sprintf("must be one of %s", strings.Join(SupportedAlgorithms, ", ")), cfg.Compression.Algorithm)
	}

	cfg.Lock = LockConfig{
		Enabled:    parseBool(p, KeyLockEnabled, true, &errs),
		StaleAfter: parseDuration(p, KeyLockStaleAfter, DefaultLockStaleAfter, &errs),
	}
	cfg.Preflight = PreflightConfig{
		Enabled: parseBool(p, KeyPreflightEnabled, true, &errs),
		Timeout: parseDuration(p, KeyPreflightTimeout, DefaultPreflightTimeout, &errs),
	}
	cfg.Schedule = strings.TrimSpace(p.GetString(KeySchedule))
	cfg.Audit = AuditConfig{LogFile: strings.TrimSpace(p.GetString(KeyAuditLogFile))}

	cfg.Offsite = OffsiteConfig{
		Provider:      strings.ToLower(strings.TrimSpace(p.GetString(KeyOffsiteProvider))),
		Prefix:        NormalizePrefix(stringOr(p, KeyOffsitePrefix, DefaultOffsitePrefix)),
		RetentionDays: parseNonNegativeInt(p, KeyOffsiteRetentionDays, cfg.RetentionDays, &errs),
		S3: S3Config{
			Bucket:    p.GetString(KeyS3Bucket),
			Region:    p.GetString(KeyS3Region),
			AccessKey: p.GetString(KeyS3AccessKey),
			SecretKey: p.GetString(KeyS3SecretKey),
			Endpoint:  p.GetString(KeyS3Endpoint),
		},
		Azure: AzureConfig{
			AccountName:   p.GetString(KeyAzureAccountName),
			AccountKey:    p.GetString(KeyAzureAccountKey),
			ContainerName: p.GetString(KeyAzureContainerName),
		},
		GCS: GCSConfig{
			Bucket:          p.GetString(KeyGCSBucket),
			CredentialsPath: p.GetString(KeyGCSCredentialsPath),
			ProjectID:       p.GetString(KeyGCSProjectID),
		},
		Local: LocalConfig{Path: strings.TrimSpace(p.GetString(KeyLocalPath))},
	}
	if err := cfg.Offsite.Validate(); err != nil {
		errs.Add(KeyOffsiteProvider, err.Error(), cfg.Offsite.Provider)
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return cfg, nil
}

func defaultInstallRoot() string {
	exe, err := os.Executable()
	if err != nil {
		if wd, wdErr := os.Getwd(); wdErr == nil {
			return wd
		}
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func firstNonEmpty(p Provider, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(p.GetString(key)); v != "" {
			return v
		}
	}
	return ""
}

func stringOr(p Provider, key, def string) string {
	if v := strings.TrimSpace(p.GetString(key)); v != "" {
		return v
	}
	return def
}

func parseNonNegativeInt(p Provider, key string, def int, errs *ValidationErrors) int {
	raw := strings.TrimSpace(p.GetString(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		errs.Add(key, "must be an integer", raw)
		return def
	}
	if n < 0 {
		errs.Add(key, "must not be negative", raw)
		return def
	}
	return n
}

func parseDuration(p Provider, key string, def time.Duration, errs *ValidationErrors) time.Duration {
	raw := strings.TrimSpace(p.GetString(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		errs.Add(key, "must be a duration such as 90m or 2h", raw)
		return def
	}
	if d <= 0 {
		errs.Add(key, "must be positive", raw)
		return def
	}
	return d
}

func parseBool(p Provider, key string, def bool, errs *ValidationErrors) bool {
	raw := strings.TrimSpace(p.GetString(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		errs.Add(key, "must be true or false", raw)
		return def
	}
	return b
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// MapProvider is a Provider backed by a plain map, keyed by dotted config keys
type MapProvider map[string]string

// GetString returns the value stored under key
func (m MapProvider) GetString(key string) string {
	return m[key]
}

// GetStringSlice splits the value stored under key on whitespace
func (m MapProvider) GetStringSlice(key string) []string {
	v, ok := m[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	return strings.Fields(v)
}

