// Package config loads lanes configuration through viper.
//
// Values come from, in increasing priority: built-in defaults ([SetDefaults]),
// the YAML file at [ConfigFile], and LANES_* environment variables (for
// example LANES_LANES_IO_MAX_WORKERS). [Load] unmarshals and validates;
// [Config.PoolConfig] converts the result into the form the pool registry
// takes.
//
// [OnChange] re-reads the file when it is edited. Lane sizing is fixed once a
// registry is built, so only settings read on demand (such as logging.level)
// take effect without a restart.
package config
