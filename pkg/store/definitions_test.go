package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhub/pkg/tool"
)

const sampleDefinitions = `
handlers:
  - name: disk_usage
    kind: script
    description: Report disk usage for a path
    timeout_seconds: 10
    env:
      LC_ALL: C
    script: |
      df -h "${MCP_INPUT_PATH:-/}" | tail -n 1
  - name: retired
    kind: script
    script: "true"
    active: false
tools:
  - name: disk_usage
    description: Show disk usage
    handler: script:disk_usage
    input_schema:
      type: object
      properties:
        path:
          type: string
      required: [path]
  - name: add
    handler: coretools.Calculator
    sort_order: 3
    active: false
`

func TestParseDefinitions(t *testing.T) {
	defs, err := ParseDefinitions([]byte(sampleDefinitions))
	require.NoError(t, err)
	require.Len(t, defs.Handlers, 2)
	require.Len(t, defs.Tools, 2)

	disk := tool.Handler(defs.Handlers[0])
	assert.Equal(t, tool.KindScript, disk.Kind)
	assert.Equal(t, 10, disk.TimeoutSeconds)
	assert.Equal(t, "C", disk.Env["LC_ALL"])
	assert.True(t, disk.Active, "handlers default to active")
	assert.Contains(t, disk.Script, "MCP_INPUT_PATH")

	assert.False(t, defs.Handlers[1].Active)

	diskTool := tool.Tool(defs.Tools[0])
	assert.True(t, diskTool.Active, "tools default to active")
	assert.Equal(t, "script:disk_usage", diskTool.Handler)
	assert.Equal(t, []interface{}{"path"}, diskTool.InputSchema["required"])

	add := tool.Tool(defs.Tools[1])
	assert.False(t, add.Active)
	assert.Equal(t, 3, add.SortOrder)
}

func TestParseDefinitions_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "malformed yaml", doc: "handlers: [name: {"},
		{name: "duplicate handler", doc: "handlers:\n  - name: a\n  - name: a\n"},
		{name: "duplicate tool", doc: "tools:\n  - name: a\n  - name: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinitions([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefinitions), 0o644))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	assert.Len(t, defs.Tools, 2)

	_, err = LoadDefinitions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		defs, err := ParseDefinitions([]byte(sampleDefinitions))
		require.NoError(t, err)

		result, err := Seed(ctx, st, defs)
		require.NoError(t, err)
		assert.Equal(t, SeedResult{Handlers: 2, Tools: 2}, result)

		h, err := st.GetHandler(ctx, "disk_usage")
		require.NoError(t, err)
		assert.Equal(t, 10, h.TimeoutSeconds)

		active, err := st.ListActiveTools(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "disk_usage", active[0].Name)

		again, err := Seed(ctx, st, defs)
		require.NoError(t, err)
		assert.Equal(t, result, again, "seeding is an idempotent upsert")
	})
}

func TestSeed_StopsOnInvalidRecord(t *testing.T) {
	st := NewMemoryStore()
	defs, err := ParseDefinitions([]byte("tools:\n  - name: Bad\n    handler: x\n"))
	require.NoError(t, err)

	_, err = Seed(context.Background(), st, defs)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	result, err := Seed(context.Background(), st, nil)
	require.NoError(t, err)
	assert.Zero(t, result)
}
