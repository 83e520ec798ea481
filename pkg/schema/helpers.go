package schema

import (
	"strings"

	"github.com/harun/toolhub/pkg/tool"
)

// The helpers below are stricter than Validate and are meant for
// in-process handlers. A key holding nil counts as missing.

// RequirePresent fails when any of fields is absent or nil.
func RequirePresent(input map[string]interface{}, fields ...string) error {
	for _, field := range fields {
		if v, ok := input[field]; !ok || v == nil {
			return tool.InvalidInput("Missing required parameter: %s", field)
		}
	}
	return nil
}

// RequireNumber returns field as float64 or fails when it is not numeric.
func RequireNumber(input map[string]interface{}, field string) (float64, error) {
	if err := RequirePresent(input, field); err != nil {
		return 0, err
	}
	f, ok := ToFloat(input[field])
	if !ok {
		return 0, tool.InvalidInput("Parameter '%s' must be numeric", field)
	}
	return f, nil
}

// RequireString returns field as a string or fails when it is not one.
func RequireString(input map[string]interface{}, field string) (string, error) {
	if err := RequirePresent(input, field); err != nil {
		return "", err
	}
	s, ok := input[field].(string)
	if !ok {
		return "", tool.InvalidInput("Parameter '%s' must be a string", field)
	}
	return s, nil
}

// RequireEnum returns field when it is one of allowed.
func RequireEnum(input map[string]interface{}, field string, allowed ...string) (string, error) {
	s, err := RequireString(input, field)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", tool.InvalidInput("Parameter '%s' must be one of: %s", field, strings.Join(allowed, ", "))
}

// OptionalString returns field as a string, or fallback when it is absent
// or empty.
func OptionalString(input map[string]interface{}, field, fallback string) string {
	if s, ok := input[field].(string); ok && s != "" {
		return s
	}
	return fallback
}
