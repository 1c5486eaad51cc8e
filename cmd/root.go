package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"dump-rotator/internal/config"
	"dump-rotator/internal/display"
	"dump-rotator/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// CLI flag variables
var (
	// Operation flags
	verbose   bool
	quiet     bool
	logFile   string
	logFormat string

	// Display flags
	noColor      bool
	theme        string
	outputFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dump-rotator",
	Short: "Dump a database, compress the dump and prune old backups",
	Long: `dump-rotator runs one backup pipeline: it dumps the configured database
with its native dump tool into a timestamped directory, packages that directory
into a single compressed archive, optionally copies the archive offsite, and
deletes backups older than the retention window.

A failed dump stops the run and leaves older backups untouched. A failed
compression, upload or retention sweep keeps the new backup and marks the run
as degraded.

Examples:
  # Back up using the connection URI from the environment
  DUMP_ROTATOR_CONNECTION_URI=mongodb://localhost:27017/app dump-rotator

  # Use a configuration file and keep two weeks of backups
  dump-rotator --config=dump-rotator.yaml --retention-days=14

  # PostgreSQL with zstd and a JSON run report
  dump-rotator --dump-tool=pg_dump --compression=zstd --format=json

  # Remove expired backups without taking a new one
  dump-rotator prune --dry-run`,
	SilenceUsage: true,
	RunE:         runBackup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dump-rotator.yaml or $HOME/dump-rotator.yaml)")

	// Operation flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Display flags
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "dark", "color theme (dark, light, auto)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "output format (table, json, yaml, compact)")

	// Settings overridable per invocation; bound to viper in initConfig
	rootCmd.PersistentFlags().String("connection-uri", "", "database connection URI")
	rootCmd.PersistentFlags().String("dest", "", "destination directory for backups")
	rootCmd.PersistentFlags().Int("retention-days", config.DefaultRetentionDays, "delete backups older than this many days")
	rootCmd.PersistentFlags().String("dump-tool", config.DefaultDumpTool, "dump tool (mongodump, pg_dump, mysqldump)")
	rootCmd.PersistentFlags().String("compression", config.DefaultCompression, "compression algorithm (gzip, zstd, lz4, none)")
	rootCmd.PersistentFlags().String("audit-log", "", "append a JSON audit trail of each run to this file")

	rootCmd.SetUsageTemplate(getUsageTemplate())
}

// flagBindings maps persistent flags to configuration keys
var flagBindings = map[string]string{
	"connection-uri": config.KeyConnectionURI,
	"dest":           config.KeyDestinationDir,
	"retention-days": config.KeyRetentionDays,
	"dump-tool":      config.KeyDumpTool,
	"compression":    config.KeyCompressionAlgorithm,
	"audit-log":      config.KeyAuditLogFile,
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("dump-rotator")
	}

	// DUMP_ROTATOR_DUMP_TOOL maps to dump.tool
	viper.SetEnvPrefix("DUMP_ROTATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Unprefixed variables older deployments set
	_ = viper.BindEnv(config.KeyLegacyMongoURI, "MONGODB_URI")
	_ = viper.BindEnv(config.KeyLegacyDatabaseURL, "DATABASE_URL")

	for flag, key := range flagBindings {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config file %s: %v\n", cfgFile, err)
	}
}

// validateFlags checks flag combinations before any work starts
func validateFlags() error {
	if verbose && quiet {
		return fmt.Errorf("--verbose and --quiet cannot be used together")
	}
	if !contains([]string{"text", "json"}, logFormat) {
		return fmt.Errorf("invalid log format %q (valid: text, json)", logFormat)
	}
	if _, err := display.ParseOutputFormat(outputFormat); err != nil {
		return err
	}
	if !contains([]string{"dark", "light", "auto"}, theme) {
		return fmt.Errorf("invalid theme %q (valid: dark, light, auto)", theme)
	}
	return nil
}

// loadConfig resolves the run configuration from flags, environment and config file
func loadConfig() (*config.Config, error) {
	if err := validateFlags(); err != nil {
		return nil, err
	}
	cfg, err := config.Resolve(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the output flags
func newLogger() (*logging.Logger, error) {
	level := logging.LogLevelNormal
	switch {
	case quiet:
		level = logging.LogLevelQuiet
	case verbose:
		level = logging.LogLevelVerbose
	}
	return logging.NewLogger(logging.Config{
		Level:   level,
		Format:  logFormat,
		LogFile: logFile,
	})
}

// newOutputWriter returns a writer for command results on the command's stdout
func newOutputWriter(cmd *cobra.Command) *display.OutputWriter {
	format, _ := display.ParseOutputFormat(outputFormat)
	colors := display.NewColorSystem(display.GetThemeByName(theme), !noColor && format == display.FormatTable)
	return display.NewOutputWriter(format, cmd.OutOrStdout(), colors)
}

// commandContext returns the command context or a background context
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// getUsageTemplate returns a custom usage template listing configuration sources
func getUsageTemplate() string {
	return `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}

Configuration:
  Settings are read from flags, then DUMP_ROTATOR_* environment variables,
  then the config file. Generate a config file with: dump-rotator config init

Environment Variables:
  DUMP_ROTATOR_CONNECTION_URI    database connection URI
  MONGODB_URI, DATABASE_URL      accepted when DUMP_ROTATOR_CONNECTION_URI is unset
  DUMP_ROTATOR_DESTINATION_DIR   destination directory (default <install-root>/backups)
  DUMP_ROTATOR_RETENTION_DAYS    retention window in days (default 30)
  DUMP_ROTATOR_DUMP_TOOL         mongodump, pg_dump or mysqldump
  DUMP_ROTATOR_COMPRESSION_ALGORITHM  gzip, zstd, lz4 or none
`
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for dump-rotator",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dump-rotator version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}

func init() {
	rootCmd.AddCommand(createVersionCommand())
}
