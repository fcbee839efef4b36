// Package cmd implements the lanes command line.
package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/lanes/internal/config"
	"github.com/Iron-Ham/lanes/internal/logging"
	"github.com/Iron-Ham/lanes/internal/pool"
)

var rootCmd = &cobra.Command{
	Use:   "lanes",
	Short: "Run work on IO, Compute and Sequential lanes",
	Long: `Lanes runs units of work on three specialized worker pools (IO, Compute
and Sequential) and delivers every result to a single coordinator, whichever
lane ran the work.`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	logLevel string
	logDir   string
)

// shutdownGrace is added to the drain timeout when bounding registry shutdown.
const shutdownGrace = 5 * time.Second

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/lanes/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "override logging.dir")
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("LANES")
	// Replace dots with underscores for nested keys in env vars
	// e.g., LANES_LANES_IO_MAX_WORKERS for lanes.io.max_workers
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig returns the validated configuration with command line overrides
// applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logDir != "" {
		cfg.Logging.Dir = logDir
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
}

func newRegistry(cfg *config.Config, logger *logging.Logger, opts ...pool.Option) (*pool.Registry, error) {
	opts = append([]pool.Option{
		pool.WithConfig(cfg.PoolConfig()),
		pool.WithLogger(logger),
	}, opts...)
	return pool.New(opts...)
}

// shutdownRegistry drains the registry, bounded by the configured drain
// timeout. It runs even if ctx is already cancelled.
func shutdownRegistry(ctx context.Context, reg *pool.Registry, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Shutdown.DrainTimeout()+shutdownGrace)
	defer cancel()
	return reg.Shutdown(ctx)
}

// watchConfig applies logging.level from config file edits while a
// long-running command is active.
func watchConfig(logger *logging.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	config.OnChange(func(cfg *config.Config) {
		if logLevel != "" {
			return
		}
		logger.SetLevel(cfg.Logging.Level)
		logger.Info("config reloaded", "level", logger.Level())
	}, func(err error) {
		logger.Warn("ignoring invalid config edit", "error", err)
	})
}
