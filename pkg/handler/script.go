package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/toolhub/pkg/sandbox"
	"github.com/harun/toolhub/pkg/schema"
	"github.com/harun/toolhub/pkg/tool"
)

// ScriptExecutor runs a script handler on behalf of a tool.
type ScriptExecutor struct {
	record  *tool.Tool
	handler *tool.Handler
	runner  sandbox.Runner
}

// NewScriptExecutor binds a script handler to a tool record
func NewScriptExecutor(t *tool.Tool, h *tool.Handler, runner sandbox.Runner) *ScriptExecutor {
	return &ScriptExecutor{record: t, handler: h, runner: runner}
}

// Name returns the bound tool name
func (s *ScriptExecutor) Name() string {
	return s.record.Name
}

// Description returns the bound tool description
func (s *ScriptExecutor) Description() string {
	return s.record.Description
}

// InputSchema returns the tool schema, or the handler template when the
// tool declares none
func (s *ScriptExecutor) InputSchema() map[string]interface{} {
	if len(s.record.InputSchema) > 0 {
		return s.record.InputSchema
	}
	return s.handler.InputSchemaTemplate
}

// Settings returns the tool settings
func (s *ScriptExecutor) Settings() map[string]interface{} {
	if s.record.Settings == nil {
		return map[string]interface{}{}
	}
	return s.record.Settings
}

// Handler returns the bound handler record
func (s *ScriptExecutor) Handler() *tool.Handler {
	return s.handler
}

// ValidateInput checks input against the tool schema and then the
// handler's template.
func (s *ScriptExecutor) ValidateInput(ctx context.Context, input map[string]interface{}) error {
	if err := schema.Validate(input, s.record.InputSchema); err != nil {
		return err
	}
	return schema.Validate(input, s.handler.InputSchemaTemplate)
}

// Execute validates input and runs the script. Invalid input never reaches
// the runner.
func (s *ScriptExecutor) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := s.ValidateInput(ctx, input); err != nil {
		return nil, err
	}

	result, err := s.runner.Run(ctx, sandbox.ScriptRequest{
		ToolName:    s.record.Name,
		HandlerName: s.handler.Name,
		Script:      s.handler.Script,
		Env:         s.handler.Env,
		Input:       input,
		Timeout:     time.Duration(s.handler.Timeout()) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("script handler %s: %w", s.handler.Name, err)
	}

	return result.Map(), nil
}
