package coretools

import (
	"context"

	"github.com/harun/toolhub/pkg/schema"
	"github.com/harun/toolhub/pkg/tool"
)

// Base carries the metadata half of the executor contract for in-process
// tools. Embedders supply Execute and may extend ValidateInput.
type Base struct {
	record        *tool.Tool
	defaultSchema map[string]interface{}
}

func newBase(t *tool.Tool, defaultSchema map[string]interface{}) Base {
	if t == nil {
		t = &tool.Tool{}
	}
	return Base{record: t, defaultSchema: defaultSchema}
}

// Name returns the bound tool name
func (b *Base) Name() string {
	return b.record.Name
}

// Description returns the bound tool description
func (b *Base) Description() string {
	return b.record.Description
}

// InputSchema returns the tool's schema, or the handler default when the
// tool record declares none.
func (b *Base) InputSchema() map[string]interface{} {
	if len(b.record.InputSchema) > 0 {
		return b.record.InputSchema
	}
	return b.defaultSchema
}

// Settings returns the tool's settings
func (b *Base) Settings() map[string]interface{} {
	if b.record.Settings == nil {
		return map[string]interface{}{}
	}
	return b.record.Settings
}

// ValidateInput checks input against InputSchema.
func (b *Base) ValidateInput(ctx context.Context, input map[string]interface{}) error {
	return schema.Validate(input, b.InputSchema())
}

// SettingFloat returns a numeric setting, or fallback when absent.
func (b *Base) SettingFloat(key string, fallback float64) float64 {
	if f, ok := schema.ToFloat(b.Settings()[key]); ok {
		return f
	}
	return fallback
}
