package cmd

import (
	"fmt"

	"dump-rotator/internal/config"
	"dump-rotator/internal/display"

	"github.com/spf13/cobra"
)

var configForce bool

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or inspect the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Long: `Write a configuration file holding every setting with its default value.
The file is written to ./dump-rotator.yaml unless a path is given. An existing
file is only replaced with --force.

Examples:
  dump-rotator config init
  dump-rotator config init /etc/dump-rotator/dump-rotator.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "dump-rotator.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefaultConfig(path, configForce); err != nil {
			return err
		}
		return newOutputWriter(cmd).WriteStatus(display.LevelSuccess, "Wrote "+path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		redacted := cfg.Redacted()

		fields := []display.Field{
			{Key: "Connection URI", Value: redacted.ConnectionURI},
			{Key: "Destination", Value: redacted.DestinationDir},
			{Key: "Retention days", Value: fmt.Sprintf("%d", redacted.RetentionDays)},
			{Key: "Dump tool", Value: fmt.Sprintf("%s (timeout %s)", redacted.Dump.Tool, redacted.Dump.Timeout)},
			{Key: "Compression", Value: redacted.Compression.Algorithm},
			{Key: "Lock", Value: fmt.Sprintf("%t (stale after %s)", redacted.Lock.Enabled, redacted.Lock.StaleAfter)},
			{Key: "Preflight", Value: fmt.Sprintf("%t", redacted.Preflight.Enabled)},
		}
		if redacted.Offsite.Enabled() {
			fields = append(fields, display.Field{Key: "Offsite", Value: redacted.Offsite.Provider + " " + redacted.Offsite.Prefix})
		}
		if redacted.Audit.LogFile != "" {
			fields = append(fields, display.Field{Key: "Audit log", Value: redacted.Audit.LogFile})
		}
		return newOutputWriter(cmd).WriteDocument("Configuration", configView(redacted), fields)
	},
}

// configView is the structured form of config show
func configView(cfg config.Config) map[string]interface{} {
	view := map[string]interface{}{
		"connection_uri":  cfg.ConnectionURI,
		"install_root":    cfg.InstallRoot,
		"destination_dir": cfg.DestinationDir,
		"retention_days":  cfg.RetentionDays,
		"dump": map[string]interface{}{
			"tool":       cfg.Dump.Tool,
			"binary":     cfg.Dump.Binary,
			"timeout":    cfg.Dump.Timeout.String(),
			"extra_args": cfg.Dump.ExtraArgs,
		},
		"compression": map[string]interface{}{
			"algorithm": cfg.Compression.Algorithm,
			"level":     cfg.Compression.Level,
			"timeout":   cfg.Compression.Timeout.String(),
		},
		"lock": map[string]interface{}{
			"enabled":     cfg.Lock.Enabled,
			"stale_after": cfg.Lock.StaleAfter.String(),
		},
		"preflight": map[string]interface{}{
			"enabled": cfg.Preflight.Enabled,
			"timeout": cfg.Preflight.Timeout.String(),
		},
	}
	if cfg.Offsite.Enabled() {
		view["offsite"] = map[string]interface{}{
			"provider":       cfg.Offsite.Provider,
			"prefix":         cfg.Offsite.Prefix,
			"retention_days": cfg.Offsite.RetentionDays,
		}
	}
	if cfg.Audit.LogFile != "" {
		view["audit"] = map[string]interface{}{"log_file": cfg.Audit.LogFile}
	}
	return view
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing configuration file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
