package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/turbo/internal/config"
	"github.com/zjrosen/turbo/internal/log"
)

const defaultConfigPath = ".turbo/config.yaml"

var (
	version      = "dev"
	cfgFile      string
	cfg          config.Config
	outputFormat string
	debugFlag    bool

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "turbo",
	Short: "Path-indexed resource registry and job instance materialization",
	Long: `turbo keeps resources in a path-indexed registry and materializes job
instances from job definitions. Run 'turbo serve' for the HTTP API, or use the
subcommands to inspect and change the local registry directly.`,
	Version:            version,
	SilenceUsage:       true,
	PersistentPreRunE:  setupLogging,
	PersistentPostRunE: teardownLogging,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .turbo/config.yaml, then ~/.config/turbo/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table",
		"output format: table or json")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs to stderr (or log.path)")
	rootCmd.PersistentFlags().String("db", "", "path to the sqlite database (overrides storage.path)")
	rootCmd.PersistentFlags().String("definitions", "", "job definitions file (overrides definitions.path)")

	// Bind flags to viper
	_ = viper.BindPFlag("storage.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("definitions.path", rootCmd.PersistentFlags().Lookup("definitions"))
}

func initConfig() {
	setDefaults(viper.GetViper(), config.Defaults())

	viper.SetEnvPrefix("TURBO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .turbo/config.yaml (current directory)
		// 2. ~/.config/turbo/config.yaml (user config)
		if _, err := os.Stat(defaultConfigPath); err == nil {
			viper.SetConfigFile(defaultConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "turbo"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .turbo/config.yaml
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(defaultConfigPath); writeErr == nil {
				viper.SetConfigFile(defaultConfigPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// setDefaults registers every key so that environment variables and
// Unmarshal see the whole tree even when the file omits a section.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.disabled", d.Storage.Disabled)
	v.SetDefault("cache.api_ttl", d.Cache.APITTL)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)
	v.SetDefault("cache.object_store", d.Cache.ObjectStore)
	v.SetDefault("definitions.path", d.Definitions.Path)
	v.SetDefault("definitions.watch", d.Definitions.Watch)
	v.SetDefault("definitions.debounce", d.Definitions.Debounce)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.queue_capacity", d.Server.QueueCapacity)
	v.SetDefault("server.dedup_ttl", d.Server.DedupTTL)
	v.SetDefault("server.slow_command_threshold", d.Server.SlowCommandThreshold)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("flags", d.Flags)
}

func setupLogging(_ *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := log.ParseLevel(cfg.Log.Level)
	switch {
	case cfg.Log.Path != "":
		cleanup, err := log.Init(cfg.Log.Path)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
	case debugFlag:
		log.InitWriter(os.Stderr)
	default:
		return nil
	}

	if debugFlag {
		level = log.LevelDebug
	}
	log.SetMinLevel(level)
	log.Debug(log.CatConfig, "Configuration loaded", "file", viper.ConfigFileUsed())
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
