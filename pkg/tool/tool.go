package tool

import (
	"context"
	"strings"
)

// HandlerKind selects how a handler is executed. It is fixed when the
// handler is created.
type HandlerKind string

const (
	// KindInProcess handlers run compiled Go code registered at start-up
	KindInProcess HandlerKind = "in_process"
	// KindScript handlers run a stored script as a subprocess
	KindScript HandlerKind = "script"
)

// ScriptRefPrefix prefixes the reference of every script handler.
const ScriptRefPrefix = "script:"

const (
	// DefaultTimeoutSeconds applies to script handlers with no timeout set
	DefaultTimeoutSeconds = 30
	// MinTimeoutSeconds is the lowest accepted script timeout
	MinTimeoutSeconds = 1
	// MaxTimeoutSeconds is the highest accepted script timeout
	MaxTimeoutSeconds = 300
	// DefaultVersion is assigned to handlers authored without a version
	DefaultVersion = "1.0.0"
)

// Tool is a named, callable capability exposed to callers.
type Tool struct {
	Name        string                 `json:"name" yaml:"name"`
	DisplayName string                 `json:"display_name" yaml:"display_name"`
	Description string                 `json:"description" yaml:"description"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	Handler     string                 `json:"handler" yaml:"handler"`
	Active      bool                   `json:"active" yaml:"active"`
	Settings    map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`
	SortOrder   int                    `json:"sort_order" yaml:"sort_order"`
}

// Label returns the display name, falling back to the tool name.
func (t *Tool) Label() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Name
}

// Handler describes an implementation that tools point at.
type Handler struct {
	Name                string                 `json:"name" yaml:"name"`
	Kind                HandlerKind            `json:"kind" yaml:"kind"`
	DisplayName         string                 `json:"display_name" yaml:"display_name"`
	Description         string                 `json:"description" yaml:"description"`
	Version             string                 `json:"version" yaml:"version"`
	Author              string                 `json:"author,omitempty" yaml:"author,omitempty"`
	Namespace           string                 `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	TypeName            string                 `json:"type_name,omitempty" yaml:"type_name,omitempty"`
	Script              string                 `json:"script,omitempty" yaml:"script,omitempty"`
	Env                 map[string]string      `json:"env,omitempty" yaml:"env,omitempty"`
	TimeoutSeconds      int                    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Dependencies        []string               `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	InputSchemaTemplate map[string]interface{} `json:"input_schema_template,omitempty" yaml:"input_schema_template,omitempty"`
	BuiltIn             bool                   `json:"built_in" yaml:"built_in"`
	Active              bool                   `json:"active" yaml:"active"`
	SortOrder           int                    `json:"sort_order" yaml:"sort_order"`
}

// Ref returns the identifier tools use to point at this handler:
// "script:<name>" for script handlers and "<namespace>.<type>" for
// in-process handlers.
func (h *Handler) Ref() string {
	if h.Kind == KindScript {
		return ScriptRefPrefix + h.Name
	}
	if h.Namespace == "" {
		return h.TypeName
	}
	return h.Namespace + "." + h.TypeName
}

// Label returns the display name, falling back to the handler name.
func (h *Handler) Label() string {
	if h.DisplayName != "" {
		return h.DisplayName
	}
	return h.Name
}

// Timeout returns the effective script timeout in seconds.
func (h *Handler) Timeout() int {
	if h.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds
	}
	return h.TimeoutSeconds
}

// IsScriptRef reports whether ref names a script handler.
func IsScriptRef(ref string) bool {
	return strings.HasPrefix(ref, ScriptRefPrefix)
}

// Executor is the contract every executable tool satisfies, whether it
// runs in-process or as a script.
type Executor interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Settings() map[string]interface{}

	// ValidateInput returns an *Error of KindInvalidInput when input does
	// not satisfy the tool's declared schema.
	ValidateInput(ctx context.Context, input map[string]interface{}) error

	// Execute runs the tool. A failure that is the caller's fault should be
	// returned as an *Error of KindInvalidInput.
	Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Factory builds an in-process executor bound to a tool record.
type Factory func(t *Tool) (Executor, error)
