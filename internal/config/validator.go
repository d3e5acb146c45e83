package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pixperk/sharelock/pkg/manager"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lock.stale_after")
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

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Database.Path) == "" {
		errors = append(errors, ValidationError{
			Field:   "database.path",
			Value:   c.Database.Path,
			Message: "must not be empty",
		})
	}

	if c.Database.IOTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "database.io_timeout",
			Value:   c.Database.IOTimeout,
			Message: "must be positive",
		})
	} else if c.Lock.HeartbeatInterval > 0 && c.Database.IOTimeout >= c.Lock.HeartbeatInterval {
		// a heartbeat stuck on the share must finish before the next one is due
		errors = append(errors, ValidationError{
			Field:   "database.io_timeout",
			Value:   c.Database.IOTimeout,
			Message: fmt.Sprintf("must be shorter than lock.heartbeat_interval (%s)", c.Lock.HeartbeatInterval),
		})
	}

	if c.Lock.HeartbeatInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.heartbeat_interval",
			Value:   c.Lock.HeartbeatInterval,
			Message: "must be positive",
		})
	} else if err := c.Manager().Validate(); err != nil {
		errors = append(errors, ValidationError{
			Field:   "lock.stale_after",
			Value:   c.Lock.StaleAfter,
			Message: fmt.Sprintf("must cover at least %d heartbeat intervals (%s)", manager.MinStaleRatio, manager.MinStaleRatio*c.Lock.HeartbeatInterval),
		})
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Log.Level)) {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Log.Format)) {
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Value:   c.Log.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errors
}
