package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhub/internal/config"
	"github.com/harun/toolhub/pkg/store"
)

// resetFlags restores command flag variables, which cobra keeps between
// Execute calls on the shared root command.
func resetFlags() {
	runInput = "{}"
	runInputFile = ""
	toolsJSON = false
	toolsAll = false
	handlersValidate = false
	runsTool = ""
	runsErrors = false
	runsLimit = store.DefaultRecentLimit
	runsSince = 0
	runsJSON = false
	configForce = false
}

// writeTestConfig saves a config rooted in a temp dir and returns its path
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.DatabasePath = filepath.Join(dir, "toolhub.db")
	cfg.Audit.File = filepath.Join(dir, "audit.log")
	cfg.Logging.File = filepath.Join(dir, "toolhub.log")
	cfg.Logging.Pretty = false

	path := filepath.Join(dir, "toolhub.json")
	require.NoError(t, config.NewLoader(path).Save(cfg))
	return path
}

func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	cmd := GetRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", configPath}, args...))

	err := cmd.Execute()
	return output.String(), err
}

func TestToolsCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, path, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "coretools.Echo")
	assert.Contains(t, out, "yes")

	out, err = execute(t, path, "tools", "--json")
	require.NoError(t, err)
	var discovery map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &discovery))
	assert.Contains(t, discovery, "calculator")
}

func TestRunCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, path, "run", "echo", "--input", `{"message":"hello"}`)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "hello", result["echoed_message"])
	assert.Equal(t, float64(5), result["length"])
}

func TestRunCommandFailures(t *testing.T) {
	path := writeTestConfig(t)

	tests := []struct {
		name     string
		args     []string
		wantKind string
	}{
		{"unknown tool", []string{"run", "nope"}, "unknown_tool"},
		{"invalid input", []string{"run", "echo", "--input", `{}`}, "invalid_tool_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, path, tt.args...)
			require.Error(t, err)

			var result map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(out), &result))
			assert.Equal(t, tt.wantKind, result["error_type"])
			assert.NotEmpty(t, result["error_message"])
		})
	}

	t.Run("non-object input", func(t *testing.T) {
		_, err := execute(t, path, "run", "echo", "--input", `[1]`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JSON object")
	})
}

func TestRunCommandInputFile(t *testing.T) {
	path := writeTestConfig(t)

	inputFile := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(inputFile, []byte(`{"message":"from file"}`), 0o644))

	out, err := execute(t, path, "run", "echo", "--input-file", inputFile)
	require.NoError(t, err)
	assert.Contains(t, out, "from file")
}

func TestRunsCommand(t *testing.T) {
	path := writeTestConfig(t)

	_, err := execute(t, path, "run", "echo", "--input", `{"message":"a"}`)
	require.NoError(t, err)
	_, err = execute(t, path, "run", "echo", "--input", `{}`)
	require.Error(t, err)

	out, err := execute(t, path, "runs", "--tool", "echo")
	require.NoError(t, err)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "failure")
	assert.Contains(t, out, "cli")
	assert.Contains(t, out, "echo: 2 runs, 50.0% successful")

	out, err = execute(t, path, "runs", "--errors", "--json")
	require.NoError(t, err)
	var runs []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "invalid_tool_input", runs[0]["error_type"])
}

func TestHandlersCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, path, "handlers")
	require.NoError(t, err)
	assert.Contains(t, out, "system_info")
	assert.Contains(t, out, "script")
	assert.Contains(t, out, "BUILT-IN")

	out, err = execute(t, path, "handlers", "--validate")
	require.NoError(t, err)
	assert.Contains(t, out, "VALID")
}

func TestSeedCommand(t *testing.T) {
	path := writeTestConfig(t)

	defs := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(defs, []byte(`
tools:
  - name: repeat
    description: Echo under another name
    handler: coretools.Echo
`), 0o644))

	out, err := execute(t, path, "seed", defs)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 0 handler(s) and 1 tool(s)")

	out, err = execute(t, path, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "repeat")

	_, err = execute(t, path, "seed")
	require.Error(t, err, "no file and none configured")
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "toolhub.json")

	out, err := execute(t, path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = execute(t, path, "config", "init")
	require.Error(t, err, "existing file is kept without --force")

	_, err = execute(t, path, "config", "init", "--force")
	require.NoError(t, err)

	out, err = execute(t, path, "config", "show")
	require.NoError(t, err)
	var shown map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Contains(t, shown, "server")
}

func TestStatusStopped(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: stopped")

	_, err = execute(t, path, "stop")
	require.Error(t, err)
}
