package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "proxy.bind_address")
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

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateProxy()...)
	errors = append(errors, c.validatePairing()...)
	errors = append(errors, c.validateHeartbeat()...)
	errors = append(errors, c.validateConnection()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateProxy validates the ProxyConfig
func (c *Config) validateProxy() []ValidationError {
	var errors []ValidationError

	if !c.Proxy.Enabled {
		return nil
	}

	host, port, err := net.SplitHostPort(c.Proxy.BindAddress)
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   "proxy.bind_address",
			Value:   c.Proxy.BindAddress,
			Message: "must be a host:port address",
		})
	} else {
		if !isLoopbackHost(host) {
			errors = append(errors, ValidationError{
				Field:   "proxy.bind_address",
				Value:   c.Proxy.BindAddress,
				Message: "must be a loopback address",
			})
		}
		if port == "" {
			errors = append(errors, ValidationError{
				Field:   "proxy.bind_address",
				Value:   c.Proxy.BindAddress,
				Message: "port is required",
			})
		}
	}

	if c.Proxy.Upstream != "" {
		if _, _, err := net.SplitHostPort(c.Proxy.Upstream); err != nil {
			errors = append(errors, ValidationError{
				Field:   "proxy.upstream",
				Value:   c.Proxy.Upstream,
				Message: "must be a host:port address",
			})
		}
	}

	return errors
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// validatePairing validates the PairingConfig
func (c *Config) validatePairing() []ValidationError {
	var errors []ValidationError

	name := c.Pairing.Filename
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		errors = append(errors, ValidationError{
			Field:   "pairing.filename",
			Value:   name,
			Message: "must be a plain file name",
		})
	}

	if len(c.Pairing.AllowedExtensions) == 0 {
		errors = append(errors, ValidationError{
			Field:   "pairing.allowed_extensions",
			Value:   c.Pairing.AllowedExtensions,
			Message: "must list at least one extension",
		})
	}
	for i, ext := range c.Pairing.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("pairing.allowed_extensions[%d]", i),
				Value:   ext,
				Message: "must start with a dot",
			})
		}
	}

	for field, path := range map[string]string{
		"pairing.dir":       c.Pairing.Dir,
		"pairing.inbox_dir": c.Pairing.InboxDir,
	} {
		if strings.ContainsRune(path, '\x00') {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   path,
				Message: "path contains invalid null character",
			})
		}
	}

	return errors
}

// validateHeartbeat validates the HeartbeatConfig
func (c *Config) validateHeartbeat() []ValidationError {
	var errors []ValidationError

	if _, _, err := net.SplitHostPort(c.Heartbeat.HostAddress); err != nil {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.host_address",
			Value:   c.Heartbeat.HostAddress,
			Message: "must be a host:port address",
		})
	}

	if c.Heartbeat.DialTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.dial_timeout",
			Value:   c.Heartbeat.DialTimeout,
			Message: "must be positive",
		})
	}

	return errors
}

// validateConnection validates the ConnectionConfig
func (c *Config) validateConnection() []ValidationError {
	if c.Connection.EstablishTimeout <= 0 {
		return []ValidationError{{
			Field:   "connection.establish_timeout",
			Value:   c.Connection.EstablishTimeout,
			Message: "must be positive",
		}}
	}
	return nil
}

// validateRetry validates the RetryConfig
func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError
	r := c.Retry

	if r.InitialBackoff < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.initial_backoff",
			Value:   r.InitialBackoff,
			Message: "must be non-negative",
		})
	}
	if r.MaxBackoff < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_backoff",
			Value:   r.MaxBackoff,
			Message: "must be non-negative (0 = no cap)",
		})
	}
	if r.MaxBackoff > 0 && r.InitialBackoff > r.MaxBackoff {
		errors = append(errors, ValidationError{
			Field:   "retry.initial_backoff",
			Value:   r.InitialBackoff,
			Message: fmt.Sprintf("must not exceed retry.max_backoff (%s)", r.MaxBackoff),
		})
	}
	if r.Multiplier < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.multiplier",
			Value:   r.Multiplier,
			Message: "must be at least 1",
		})
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.jitter",
			Value:   r.Jitter,
			Message: "must be between 0 and 1",
		})
	}
	if r.MaxAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_attempts",
			Value:   r.MaxAttempts,
			Message: "must be non-negative (0 = unlimited)",
		})
	}
	if r.MaxElapsed < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_elapsed",
			Value:   r.MaxElapsed,
			Message: "must be non-negative (0 = unlimited)",
		})
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

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
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

	return errors
}
