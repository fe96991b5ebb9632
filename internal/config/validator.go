package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "backend.port")
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

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidStreamPolicies returns the accepted values for backend.stderr
func ValidStreamPolicies() []string {
	return []string{"discard", "inherit", "pipe"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLauncher()...)
	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateEnvironment()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateLauncher validates the LauncherConfig
func (c *Config) validateLauncher() []ValidationError {
	var errors []ValidationError

	if c.Launcher.BackendRequired && strings.TrimSpace(c.Launcher.ReadySentinel) == "" {
		errors = append(errors, ValidationError{
			Field:   "launcher.ready_sentinel",
			Value:   c.Launcher.ReadySentinel,
			Message: "must not be empty when the backend is required",
		})
	}

	if c.Launcher.ReadyTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "launcher.ready_timeout",
			Value:   c.Launcher.ReadyTimeout,
			Message: "must be non-negative (0 disables the bound)",
		})
	}

	const maxGrace = 5 * time.Minute
	if c.Launcher.StopGracePeriod < 0 || c.Launcher.StopGracePeriod > maxGrace {
		errors = append(errors, ValidationError{
			Field:   "launcher.stop_grace_period",
			Value:   c.Launcher.StopGracePeriod,
			Message: fmt.Sprintf("must be between 0 and %s", maxGrace),
		})
	}

	return errors
}

// validateBackend validates the BackendConfig
func (c *Config) validateBackend() []ValidationError {
	var errors []ValidationError

	if c.Launcher.BackendRequired && strings.TrimSpace(c.Backend.Script) == "" {
		errors = append(errors, ValidationError{
			Field:   "backend.script",
			Value:   c.Backend.Script,
			Message: "must not be empty when the backend is required",
		})
	}

	if c.Backend.Port < 1 || c.Backend.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "backend.port",
			Value:   c.Backend.Port,
			Message: "must be between 1 and 65535",
		})
	}

	if c.Backend.Stderr != "" && !slices.Contains(ValidStreamPolicies(), c.Backend.Stderr) {
		errors = append(errors, ValidationError{
			Field:   "backend.stderr",
			Value:   c.Backend.Stderr,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStreamPolicies(), ", ")),
		})
	}

	return errors
}

// validateEnvironment validates the EnvironmentConfig
func (c *Config) validateEnvironment() []ValidationError {
	var errors []ValidationError

	if c.Environment.Path == "" && strings.TrimSpace(c.Environment.DefaultPath) == "" {
		errors = append(errors, ValidationError{
			Field:   "environment.default_path",
			Value:   c.Environment.DefaultPath,
			Message: "must be set when environment.path is empty",
		})
	}

	if c.Launcher.ProvisioningRequired && strings.TrimSpace(c.Environment.Python) == "" {
		errors = append(errors, ValidationError{
			Field:   "environment.python",
			Value:   c.Environment.Python,
			Message: "must not be empty when provisioning is required",
		})
	}

	for i, tool := range c.Environment.BuildTools {
		if strings.TrimSpace(tool) == "" || strings.HasPrefix(tool, "-") {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("environment.build_tools[%d]", i),
				Value:   tool,
				Message: "must be a package name",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	if c.Logging.Enabled && strings.TrimSpace(c.Logging.Dir) == "" {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "must be set when logging is enabled",
		})
	}

	return errors
}
