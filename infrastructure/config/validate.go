package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateRequired fails when value is empty.
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidatePort fails when port is outside 1-65535.
func ValidatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: field, Message: "must be between 1 and 65535"}
	}
	return nil
}

// ValidatePositive fails when n is not strictly positive.
func ValidatePositive(field string, n int) error {
	if n <= 0 {
		return &ValidationError{Field: field, Message: "must be positive"}
	}
	return nil
}

// ValidateOneOf fails when value is not one of allowed.
func ValidateOneOf(field, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return &ValidationError{
		Field:   field,
		Message: "must be one of: " + strings.Join(allowed, ", "),
	}
}

// ValidateLogLevel checks a logger level name.
func ValidateLogLevel(field, level string) error {
	return ValidateOneOf(field, level, "debug", "info", "warn", "warning", "error", "fatal")
}
