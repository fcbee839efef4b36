package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Iron-Ham/lanes/internal/admission"
	"github.com/Iron-Ham/lanes/internal/lane"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lanes.io.max_workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// metricNamespaceRegex matches valid Prometheus metric name prefixes
var metricNamespaceRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidOverflows returns the list of valid lane overflow policies
func ValidOverflows() []string {
	return []string{string(admission.OverflowRunInline), string(admission.OverflowReject)}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	for _, k := range lane.Kinds() {
		errors = append(errors, c.validateLane(k)...)
	}
	errors = append(errors, c.validateShutdown()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateWatch()...)

	return errors
}

// validateLane validates one lane section
func (c *Config) validateLane(kind lane.Kind) []ValidationError {
	var errors []ValidationError
	section := c.Lanes.Lane(kind)
	prefix := "lanes." + string(kind) + "."

	if section.MinWorkers < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + "min_workers",
			Value:   section.MinWorkers,
			Message: "must be non-negative",
		})
	}
	if section.MaxWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   prefix + "max_workers",
			Value:   section.MaxWorkers,
			Message: "must be at least 1",
		})
	}
	if section.MinWorkers > section.MaxWorkers {
		errors = append(errors, ValidationError{
			Field:   prefix + "min_workers",
			Value:   section.MinWorkers,
			Message: fmt.Sprintf("must not exceed max_workers (%d)", section.MaxWorkers),
		})
	}

	// Reasonable upper bound so a typo cannot start thousands of goroutines
	const maxWorkersLimit = 1024
	if section.MaxWorkers > maxWorkersLimit {
		errors = append(errors, ValidationError{
			Field:   prefix + "max_workers",
			Value:   section.MaxWorkers,
			Message: fmt.Sprintf("exceeds maximum of %d", maxWorkersLimit),
		})
	}

	if section.QueueCapacity < 1 {
		errors = append(errors, ValidationError{
			Field:   prefix + "queue_capacity",
			Value:   section.QueueCapacity,
			Message: "must be at least 1",
		})
	}
	if section.KeepAliveSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + "keep_alive_seconds",
			Value:   section.KeepAliveSeconds,
			Message: "must be non-negative (0 disables expiry)",
		})
	}
	if !slices.Contains(ValidOverflows(), section.Overflow) {
		errors = append(errors, ValidationError{
			Field:   prefix + "overflow",
			Value:   section.Overflow,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidOverflows(), ", ")),
		})
	}

	if kind == lane.KindSequential {
		if section.MinWorkers != 1 || section.MaxWorkers != 1 {
			errors = append(errors, ValidationError{
				Field:   prefix + "max_workers",
				Value:   section.MaxWorkers,
				Message: "sequential lane must have exactly one worker (min_workers and max_workers = 1)",
			})
		}
		if section.Overflow == string(admission.OverflowRunInline) {
			errors = append(errors, ValidationError{
				Field:   prefix + "overflow",
				Value:   section.Overflow,
				Message: "run_inline would break submission order; use reject",
			})
		}
	}

	return errors
}

// validateShutdown validates the ShutdownConfig
func (c *Config) validateShutdown() []ValidationError {
	if c.Shutdown.DrainTimeoutSeconds <= 0 {
		return []ValidationError{{
			Field:   "shutdown.drain_timeout_seconds",
			Value:   c.Shutdown.DrainTimeoutSeconds,
			Message: "must be positive",
		}}
	}
	return nil
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if !metricNamespaceRegex.MatchString(c.Metrics.Namespace) {
		errors = append(errors, ValidationError{
			Field:   "metrics.namespace",
			Value:   c.Metrics.Namespace,
			Message: "must start with a letter or underscore and contain only letters, digits and underscores",
		})
	}
	if c.Metrics.ListenAddr != "" && !strings.Contains(c.Metrics.ListenAddr, ":") {
		errors = append(errors, ValidationError{
			Field:   "metrics.listen_addr",
			Value:   c.Metrics.ListenAddr,
			Message: "must be host:port",
		})
	}

	return errors
}

// validateWatch validates the WatchConfig
func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	const minRefreshMs, maxRefreshMs = 16, 10000
	if c.Watch.RefreshMs < minRefreshMs || c.Watch.RefreshMs > maxRefreshMs {
		errors = append(errors, ValidationError{
			Field:   "watch.refresh_ms",
			Value:   c.Watch.RefreshMs,
			Message: fmt.Sprintf("must be between %d and %d", minRefreshMs, maxRefreshMs),
		})
	}

	return errors
}
