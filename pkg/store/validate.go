package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harun/toolhub/pkg/schema"
	"github.com/harun/toolhub/pkg/tool"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateTool applies authoring checks to a tool record
func ValidateTool(t *tool.Tool) error {
	if t == nil {
		return fmt.Errorf("%w: tool is nil", ErrInvalidRecord)
	}
	if !namePattern.MatchString(t.Name) {
		return fmt.Errorf("%w: tool name %q must be lowercase letters, digits and underscores", ErrInvalidRecord, t.Name)
	}
	if strings.TrimSpace(t.Handler) == "" {
		return fmt.Errorf("%w: tool %s has no handler", ErrInvalidRecord, t.Name)
	}
	if err := schema.CheckWellFormed(t.InputSchema); err != nil {
		return fmt.Errorf("%w: tool %s: %v", ErrInvalidRecord, t.Name, err)
	}
	return nil
}

// ValidateHandler applies authoring checks to a handler record
func ValidateHandler(h *tool.Handler) error {
	if h == nil {
		return fmt.Errorf("%w: handler is nil", ErrInvalidRecord)
	}
	if !namePattern.MatchString(h.Name) {
		return fmt.Errorf("%w: handler name %q must be lowercase letters, digits and underscores", ErrInvalidRecord, h.Name)
	}

	switch h.Kind {
	case tool.KindScript:
		if h.TimeoutSeconds != 0 && (h.TimeoutSeconds < tool.MinTimeoutSeconds || h.TimeoutSeconds > tool.MaxTimeoutSeconds) {
			return fmt.Errorf("%w: handler %s timeout must be between %d and %d seconds",
				ErrInvalidRecord, h.Name, tool.MinTimeoutSeconds, tool.MaxTimeoutSeconds)
		}
		for key := range h.Env {
			if key == "" || strings.ContainsAny(key, "=\x00") {
				return fmt.Errorf("%w: handler %s has invalid env name %q", ErrInvalidRecord, h.Name, key)
			}
		}
	case tool.KindInProcess:
		if h.TypeName == "" {
			return fmt.Errorf("%w: in-process handler %s has no type name", ErrInvalidRecord, h.Name)
		}
	default:
		return fmt.Errorf("%w: handler %s has unknown kind %q", ErrInvalidRecord, h.Name, h.Kind)
	}

	if err := schema.CheckWellFormed(h.InputSchemaTemplate); err != nil {
		return fmt.Errorf("%w: handler %s: %v", ErrInvalidRecord, h.Name, err)
	}
	return nil
}

// normalizeHandler fills authoring defaults on a copy of h
func normalizeHandler(h *tool.Handler) *tool.Handler {
	n := cloneHandler(h)
	if n.Version == "" {
		n.Version = tool.DefaultVersion
	}
	if n.Kind == tool.KindScript && n.TimeoutSeconds == 0 {
		n.TimeoutSeconds = tool.DefaultTimeoutSeconds
	}
	return n
}
