package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dump-rotator/internal/logging"
)

// Configuration keys understood by the resolver. Nested keys use viper's dot notation.
const (
	KeyConnectionURI        = "connection_uri"
	KeyLegacyMongoURI       = "mongodb_uri"
	KeyLegacyDatabaseURL    = "database_url"
	KeyInstallRoot          = "install_root"
	KeyDestinationDir       = "destination_dir"
	KeyRetentionDays        = "retention_days"
	KeyDumpTool             = "dump.tool"
	KeyDumpBinary           = "dump.binary"
	KeyDumpTimeout          = "dump.timeout"
	KeyDumpExtraArgs        = "dump.extra_args"
	KeyCompressionAlgorithm = "compression.algorithm"
	KeyCompressionLevel     = "compression.level"
	KeyCompressionTimeout   = "compression.timeout"
	KeyLockEnabled          = "lock.enabled"
	KeyLockStaleAfter       = "lock.stale_after"
	KeyPreflightEnabled     = "preflight.enabled"
	KeyPreflightTimeout     = "preflight.timeout"
	KeyAuditLogFile         = "audit.log_file"
	KeyOffsiteProvider      = "offsite.provider"
	KeyOffsitePrefix        = "offsite.prefix"
	KeyOffsiteRetentionDays = "offsite.retention_days"
	KeyS3Bucket             = "offsite.s3.bucket"
	KeyS3Region             = "offsite.s3.region"
	KeyS3AccessKey          = "offsite.s3.access_key"
	KeyS3SecretKey          = "offsite.s3.secret_key"
	KeyS3Endpoint           = "offsite.s3.endpoint"
	KeyAzureAccountName     = "offsite.azure.account_name"
	KeyAzureAccountKey      = "offsite.azure.account_key"
	KeyAzureContainerName   = "offsite.azure.container_name"
	KeyGCSBucket            = "offsite.gcs.bucket"
	KeyGCSCredentialsPath   = "offsite.gcs.credentials_path"
	KeyGCSProjectID         = "offsite.gcs.project_id"
	KeyLocalPath            = "offsite.local.path"
	KeySchedule             = "schedule"
)

// Defaults applied when a key is absent
const (
	DefaultRetentionDays      = 30
	DefaultDestinationSubdir  = "backups"
	DefaultDumpTool           = "mongodump"
	DefaultDumpTimeout        = 2 * time.Hour
	DefaultCompression        = "gzip"
	DefaultCompressionTimeout = time.Hour
	DefaultLockStaleAfter     = 24 * time.Hour
	DefaultPreflightTimeout   = 10 * time.Second
	DefaultOffsitePrefix      = "backups/"
)

// ErrMissingConnectionURI is returned when no connection URI could be resolved
var ErrMissingConnectionURI = errors.New("connection URI is required")

// Config is the resolved configuration of one run. It is built once by Resolve
// and handed by value to every component; nothing downstream reads the environment.
type Config struct {
	ConnectionURI  string
	InstallRoot    string
	DestinationDir string
	RetentionDays  int
	Schedule       string

	Dump        DumpConfig
	Compression CompressionConfig
	Lock        LockConfig
	Preflight   PreflightConfig
	Offsite     OffsiteConfig
	Audit       AuditConfig
}

// DumpConfig selects and bounds the external dump tool
type DumpConfig struct {
	Tool      string
	Binary    string
	Timeout   time.Duration
	ExtraArgs []string
}

// CompressionConfig defines how artifacts are packaged
type CompressionConfig struct {
	Algorithm string
	Level     int
	Timeout   time.Duration
}

// LockConfig controls the run lock kept in the destination directory
type LockConfig struct {
	Enabled    bool
	StaleAfter time.Duration
}

// PreflightConfig controls the connection check performed before dumping
type PreflightConfig struct {
	Enabled bool
	Timeout time.Duration
}

// AuditConfig controls the JSON audit trail
type AuditConfig struct {
	LogFile string
}

// OffsiteConfig describes the optional remote copy of each artifact
type OffsiteConfig struct {
	Provider      string
	Prefix        string
	RetentionDays int
	S3            S3Config
	Azure         AzureConfig
	GCS           GCSConfig
	Local         LocalConfig
}

// NormalizePrefix turns an object key prefix into a folder form: no leading
// slash and exactly one trailing slash. An empty prefix stays empty.
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// S3Config for Amazon S3 storage
type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string
	CredentialsPath string
	ProjectID       string
}

// LocalConfig for a second directory, typically a network mount
type LocalConfig struct {
	Path string
}

// Enabled reports whether an offsite provider is configured
func (oc OffsiteConfig) Enabled() bool {
	return oc.Provider != ""
}

// Validate validates the S3 storage configuration
func (s3c S3Config) Validate() error {
	if s3c.Bucket == "" {
		return errors.New("bucket is required for S3 storage")
	}
	if s3c.Region == "" {
		return errors.New("region is required for S3 storage")
	}
	return nil
}

// Validate validates the Azure storage configuration
func (ac AzureConfig) Validate() error {
	if ac.AccountName == "" {
		return errors.New("account name is required for Azure storage")
	}
	if ac.AccountKey == "" {
		return errors.New("account key is required for Azure storage")
	}
	if ac.ContainerName == "" {
		return errors.New("container name is required for Azure storage")
	}
	return nil
}

// Validate validates the GCS storage configuration
func (gc GCSConfig) Validate() error {
	if gc.Bucket == "" {
		return errors.New("bucket is required for GCS storage")
	}
	return nil
}

// Validate validates the local mirror configuration
func (lc LocalConfig) Validate() error {
	if lc.Path == "" {
		return errors.New("path is required for local storage")
	}
	return nil
}

// Validate validates the offsite configuration for the selected provider
func (oc OffsiteConfig) Validate() error {
	switch oc.Provider {
	case "":
		return nil
	case "s3":
		return oc.S3.Validate()
	case "azure":
		return oc.Azure.Validate()
	case "gcs":
		return oc.GCS.Validate()
	case "local":
		return oc.Local.Validate()
	default:
		return fmt.Errorf("unsupported offsite provider: %s", oc.Provider)
	}
}

// Redacted returns a copy safe to log: credentials in the URI and offsite secrets are masked
func (c Config) Redacted() Config {
	out := c
	out.ConnectionURI = logging.RedactURI(c.ConnectionURI)
	if out.Offsite.S3.SecretKey != "" {
		out.Offsite.S3.SecretKey = "xxxxx"
	}
	if out.Offsite.Azure.AccountKey != "" {
		out.Offsite.Azure.AccountKey = "xxxxx"
	}
	out.Dump.ExtraArgs = append([]string(nil), c.Dump.ExtraArgs...)
	return out
}

// EnsureDestination creates the destination directory when absent
func EnsureDestination(cfg Config) error {
	if cfg.DestinationDir == "" {
		return &ValidationError{Field: KeyDestinationDir, Message: "destination directory is empty"}
	}
	if err := os.MkdirAll(cfg.DestinationDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", cfg.DestinationDir, err)
	}
	return nil
}

// ValidationError represents a single invalid setting
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Has reports whether the collection contains an error for field
func (e ValidationErrors) Has(field string) bool {
	for _, ve := range e {
		if ve.Field == field {
			return true
		}
	}
	return false
}
