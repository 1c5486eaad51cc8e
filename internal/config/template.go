package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the YAML config file layout read by viper
type FileConfig struct {
	ConnectionURI  string            `yaml:"connection_uri" mapstructure:"connection_uri"`
	DestinationDir string            `yaml:"destination_dir,omitempty" mapstructure:"destination_dir"`
	RetentionDays  int               `yaml:"retention_days" mapstructure:"retention_days"`
	Schedule       string            `yaml:"schedule,omitempty" mapstructure:"schedule"`
	Dump           FileDumpConfig    `yaml:"dump" mapstructure:"dump"`
	Compression    FileCompression   `yaml:"compression" mapstructure:"compression"`
	Lock           FileLockConfig    `yaml:"lock" mapstructure:"lock"`
	Preflight      FilePreflight     `yaml:"preflight" mapstructure:"preflight"`
	Offsite        FileOffsiteConfig `yaml:"offsite" mapstructure:"offsite"`
}

// FileDumpConfig is the dump section of the config file
type FileDumpConfig struct {
	Tool      string   `yaml:"tool" mapstructure:"tool"`
	Timeout   string   `yaml:"timeout" mapstructure:"timeout"`
	ExtraArgs []string `yaml:"extra_args,omitempty" mapstructure:"extra_args"`
}

// FileCompression is the compression section of the config file
type FileCompression struct {
	Algorithm string `yaml:"algorithm" mapstructure:"algorithm"`
	Level     int    `yaml:"level,omitempty" mapstructure:"level"`
	Timeout   string `yaml:"timeout" mapstructure:"timeout"`
}

// FileLockConfig is the lock section of the config file
type FileLockConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	StaleAfter string `yaml:"stale_after" mapstructure:"stale_after"`
}

// FilePreflight is the preflight section of the config file
type FilePreflight struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
}

// FileOffsiteConfig is the offsite section of the config file
type FileOffsiteConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
	RetentionDays int    `yaml:"retention_days,omitempty" mapstructure:"retention_days"`
}

// DefaultFileConfig returns the settings written by `config init`
func DefaultFileConfig() FileConfig {
	return FileConfig{
		ConnectionURI: "mongodb://localhost:27017/app",
		RetentionDays: DefaultRetentionDays,
		Dump: FileDumpConfig{
			Tool:    DefaultDumpTool,
			Timeout: DefaultDumpTimeout.String(),
		},
		Compression: FileCompression{
			Algorithm: DefaultCompression,
			Timeout:   DefaultCompressionTimeout.String(),
		},
		Lock: FileLockConfig{
			Enabled:    true,
			StaleAfter: DefaultLockStaleAfter.String(),
		},
		Preflight: FilePreflight{
			Enabled: true,
			Timeout: DefaultPreflightTimeout.String(),
		},
		Offsite: FileOffsiteConfig{
			Prefix: DefaultOffsitePrefix,
		},
	}
}

const templateHeader = `# dump-rotator configuration
#
# Every key can be overridden with an environment variable prefixed by
# DUMP_ROTATOR_, e.g. DUMP_ROTATOR_RETENTION_DAYS=14 or DUMP_ROTATOR_DUMP_TOOL=pg_dump.
# destination_dir defaults to <install-root>/backups when empty.
# offsite.provider accepts s3, azure, gcs or local; settings go in offsite.<provider>.*
# offsite.prefix is a folder; a missing trailing slash is added
# schedule is a cron expression used by "dump-rotator schedule", e.g. "0 2 * * *".
`

// WriteDefaultConfig writes the default YAML config file to path.
// An existing file is only replaced when force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check configuration file: %w", err)
		}
	}

	data, err := yaml.Marshal(DefaultFileConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default configuration: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create configuration directory: %w", err)
		}
	}

	if err := os.WriteFile(path, append([]byte(templateHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}
