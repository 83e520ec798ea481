package store

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/harun/toolhub/pkg/tool"
)

// Definitions is the on-disk catalog format used for seeding:
//
//	handlers:
//	  - name: disk_usage
//	    kind: script
//	    script: |
//	      df -h "$MCP_INPUT_PATH"
//	tools:
//	  - name: disk_usage
//	    handler: script:disk_usage
//
// Records are active unless they say otherwise.
type Definitions struct {
	Handlers []HandlerDefinition `yaml:"handlers"`
	Tools    []ToolDefinition    `yaml:"tools"`
}

// HandlerDefinition is a handler record read from a definitions file
type HandlerDefinition tool.Handler

// UnmarshalYAML decodes a handler with Active defaulting to true
func (d *HandlerDefinition) UnmarshalYAML(value *yaml.Node) error {
	type plain tool.Handler
	h := plain{Active: true}
	if err := value.Decode(&h); err != nil {
		return err
	}
	*d = HandlerDefinition(h)
	return nil
}

// ToolDefinition is a tool record read from a definitions file
type ToolDefinition tool.Tool

// UnmarshalYAML decodes a tool with Active defaulting to true
func (d *ToolDefinition) UnmarshalYAML(value *yaml.Node) error {
	type plain tool.Tool
	t := plain{Active: true}
	if err := value.Decode(&t); err != nil {
		return err
	}
	*d = ToolDefinition(t)
	return nil
}

// SeedResult counts records written by Seed
type SeedResult struct {
	Handlers int `json:"handlers"`
	Tools    int `json:"tools"`
}

// ParseDefinitions decodes a definitions document
func ParseDefinitions(data []byte) (*Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}

	seen := make(map[string]bool)
	for _, h := range defs.Handlers {
		if seen["handler:"+h.Name] {
			return nil, fmt.Errorf("%w: duplicate handler %q", ErrInvalidRecord, h.Name)
		}
		seen["handler:"+h.Name] = true
	}
	for _, t := range defs.Tools {
		if seen["tool:"+t.Name] {
			return nil, fmt.Errorf("%w: duplicate tool %q", ErrInvalidRecord, t.Name)
		}
		seen["tool:"+t.Name] = true
	}
	return &defs, nil
}

// LoadDefinitions reads and decodes the definitions file at path
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Seed upserts every handler and then every tool in defs. Handlers go
// first so tools can reference them.
func Seed(ctx context.Context, st Store, defs *Definitions) (SeedResult, error) {
	var result SeedResult
	if defs == nil {
		return result, nil
	}

	for i := range defs.Handlers {
		h := tool.Handler(defs.Handlers[i])
		if err := st.SaveHandler(ctx, &h); err != nil {
			return result, fmt.Errorf("seed handler %s: %w", h.Name, err)
		}
		result.Handlers++
	}
	for i := range defs.Tools {
		t := tool.Tool(defs.Tools[i])
		if err := st.SaveTool(ctx, &t); err != nil {
			return result, fmt.Errorf("seed tool %s: %w", t.Name, err)
		}
		result.Tools++
	}

	log.Info().
		Int("handlers", result.Handlers).
		Int("tools", result.Tools).
		Msg("Definitions seeded")
	return result, nil
}
