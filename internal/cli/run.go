package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/toolhub/internal/tracing"
	"github.com/harun/toolhub/pkg/tool"
	"github.com/harun/toolhub/pkg/toolexecutor"
)

var (
	runInput     string
	runInputFile string
)

var runCmd = &cobra.Command{
	Use:   "run <tool>",
	Short: "Run a tool once and print its output",
	Long: `Run a tool once against the local catalog and print its output as JSON.
The run is validated, executed and recorded exactly as an HTTP call would be.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "{}", "tool input as a JSON object")
	runCmd.Flags().StringVar(&runInputFile, "input-file", "", "read tool input from a JSON file ('-' for stdin)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	raw, err := readRunInput(cmd)
	if err != nil {
		return err
	}

	var input map[string]interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("input must be a JSON object: %w", err)
	}

	a, cleanup, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := tracing.WithSource(commandContext(cmd), "cli")
	ctx = toolexecutor.ContextWithRequestInfo(ctx, &toolexecutor.RequestInfo{
		Source:     "cli",
		RawRequest: string(raw),
	})

	name := args[0]
	output, err := a.Registry().ExecuteTool(ctx, name, input)
	if err != nil {
		te, ok := tool.AsError(err)
		if !ok {
			te = tool.ExecutionError(name, err)
		}
		_ = printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"error_type":    string(te.Kind),
			"error_message": te.Message,
		})
		return fmt.Errorf("tool %s failed: %s", name, te.Kind)
	}

	return printJSON(cmd.OutOrStdout(), output)
}

func readRunInput(cmd *cobra.Command) ([]byte, error) {
	switch runInputFile {
	case "":
		return []byte(runInput), nil
	case "-":
		var raw json.RawMessage
		if err := json.NewDecoder(cmd.InOrStdin()).Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to read input from stdin: %w", err)
		}
		return raw, nil
	default:
		data, err := os.ReadFile(runInputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		return data, nil
	}
}
