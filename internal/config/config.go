package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/lanes/internal/admission"
	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/pool"
)

// Config represents the complete lanes configuration
type Config struct {
	Lanes    LanesConfig    `mapstructure:"lanes" yaml:"lanes"`
	Shutdown ShutdownConfig `mapstructure:"shutdown" yaml:"shutdown"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
}

// LanesConfig holds one section per lane
type LanesConfig struct {
	IO         LaneConfig `mapstructure:"io" yaml:"io"`
	Compute    LaneConfig `mapstructure:"compute" yaml:"compute"`
	Sequential LaneConfig `mapstructure:"sequential" yaml:"sequential"`
}

// LaneConfig controls the sizing and overflow behavior of one lane
type LaneConfig struct {
	// MinWorkers is the number of workers kept alive while idle
	MinWorkers int `mapstructure:"min_workers" yaml:"min_workers"`
	// MaxWorkers caps the pool when the queue is full
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers"`
	// KeepAliveSeconds is how long a worker above MinWorkers may idle (0 = forever)
	KeepAliveSeconds int `mapstructure:"keep_alive_seconds" yaml:"keep_alive_seconds"`
	// QueueCapacity is the fixed size of the lane queue
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	// Overflow is what happens when workers and queue are saturated
	// Options: "run_inline", "reject"
	Overflow string `mapstructure:"overflow" yaml:"overflow"`
}

// ShutdownConfig controls registry shutdown
type ShutdownConfig struct {
	// DrainTimeoutSeconds bounds the wait for each lane to finish queued work
	DrainTimeoutSeconds int `mapstructure:"drain_timeout_seconds" yaml:"drain_timeout_seconds"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the minimum level written. Options: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where lanes.log is written. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// MetricsConfig controls the Prometheus exporter
type MetricsConfig struct {
	// Namespace prefixes every metric name
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	// ListenAddr is the default address for `lanes serve` and `lanes run --metrics-addr`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// WatchConfig controls the live view
type WatchConfig struct {
	// RefreshMs is the redraw interval in milliseconds
	RefreshMs int `mapstructure:"refresh_ms" yaml:"refresh_ms"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Lanes: LanesConfig{
			IO:         fromLane(lane.DefaultConfig(lane.KindIO)),
			Compute:    fromLane(lane.DefaultConfig(lane.KindCompute)),
			Sequential: fromLane(lane.DefaultConfig(lane.KindSequential)),
		},
		Shutdown: ShutdownConfig{
			DrainTimeoutSeconds: int(pool.DefaultDrainTimeout / time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
		Metrics: MetricsConfig{
			Namespace:  "lanes",
			ListenAddr: "127.0.0.1:9464",
		},
		Watch: WatchConfig{
			RefreshMs: 100,
		},
	}
}

func fromLane(c lane.Config) LaneConfig {
	return LaneConfig{
		MinWorkers:       c.MinWorkers,
		MaxWorkers:       c.MaxWorkers,
		KeepAliveSeconds: int(c.KeepAlive / time.Second),
		QueueCapacity:    c.QueueCapacity,
		Overflow:         string(c.Overflow),
	}
}

// KeepAlive returns the keep-alive as a time.Duration (0 means never expire)
func (c *LaneConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// DrainTimeout returns the drain timeout as a time.Duration
func (c *ShutdownConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSeconds) * time.Second
}

// RefreshInterval returns the refresh interval as a time.Duration
func (c *WatchConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

// Lane returns the section for kind
func (c *LanesConfig) Lane(kind lane.Kind) LaneConfig {
	switch kind {
	case lane.KindCompute:
		return c.Compute
	case lane.KindSequential:
		return c.Sequential
	default:
		return c.IO
	}
}

// LaneConfig converts the section for kind into a lane.Config, keeping the
// default priority and name prefix
func (c *Config) LaneConfig(kind lane.Kind) lane.Config {
	section := c.Lanes.Lane(kind)
	lc := lane.DefaultConfig(kind)
	lc.MinWorkers = section.MinWorkers
	lc.MaxWorkers = section.MaxWorkers
	lc.KeepAlive = section.KeepAlive()
	lc.QueueCapacity = section.QueueCapacity
	lc.Overflow = admission.Overflow(section.Overflow)
	return lc
}

// PoolConfig converts the configuration into a pool.Config
func (c *Config) PoolConfig() pool.Config {
	cfg := pool.Config{
		Lanes:        make(map[lane.Kind]lane.Config, 3),
		DrainTimeout: c.Shutdown.DrainTimeout(),
	}
	for _, k := range lane.Kinds() {
		cfg.Lanes[k] = c.LaneConfig(k)
	}
	return cfg
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	for _, k := range lane.Kinds() {
		section := defaults.Lanes.Lane(k)
		prefix := "lanes." + string(k) + "."
		viper.SetDefault(prefix+"min_workers", section.MinWorkers)
		viper.SetDefault(prefix+"max_workers", section.MaxWorkers)
		viper.SetDefault(prefix+"keep_alive_seconds", section.KeepAliveSeconds)
		viper.SetDefault(prefix+"queue_capacity", section.QueueCapacity)
		viper.SetDefault(prefix+"overflow", section.Overflow)
	}

	// Shutdown defaults
	viper.SetDefault("shutdown.drain_timeout_seconds", defaults.Shutdown.DrainTimeoutSeconds)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Metrics defaults
	viper.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	viper.SetDefault("metrics.listen_addr", defaults.Metrics.ListenAddr)

	// Watch defaults
	viper.SetDefault("watch.refresh_ms", defaults.Watch.RefreshMs)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// OnChange watches the config file and calls fn with each valid reloaded
// configuration. Invalid edits are passed to onError and otherwise ignored.
func OnChange(fn func(*Config), onError func(error)) {
	viper.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Load()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		fn(cfg)
	})
	viper.WatchConfig()
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lanes")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lanes"
	}
	return filepath.Join(home, ".config", "lanes")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
