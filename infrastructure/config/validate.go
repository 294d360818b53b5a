package config

import (
	"fmt"
	"net/url"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateRequired checks that a string field is not empty.
func ValidateRequired(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidatePort checks that a port number is valid.
func ValidatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: field, Message: "must be between 1 and 65535"}
	}
	return nil
}

// ValidateURL checks that value parses as an absolute http(s) URL.
func ValidateURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Field: field, Message: "must be an absolute http(s) URL"}
	}
	return nil
}

// ValidateLogLevel checks that a log level is valid.
func ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "warning", "error", "fatal":
		return nil
	default:
		return &ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error, fatal"}
	}
}

// Validate validates a DatabaseConfig.
func (c *DatabaseConfig) Validate() error {
	if c.URL != "" {
		return nil
	}
	if c.Host == "" {
		return &ValidationError{Field: "database.host", Message: "is required"}
	}
	if err := ValidatePort("database.port", c.Port); err != nil {
		return err
	}
	if c.User == "" {
		return &ValidationError{Field: "database.user", Message: "is required"}
	}
	if c.Database == "" {
		return &ValidationError{Field: "database.database", Message: "is required"}
	}
	return nil
}

// Validate validates a LoggingConfig.
func (c *LoggingConfig) Validate() error {
	if c.Level != "" {
		return ValidateLogLevel(c.Level)
	}
	return nil
}
