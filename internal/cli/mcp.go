package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the catalog to one MCP client over stdio",
	Long: `Serve the catalog to one MCP client over stdin and stdout.
Logs go to stderr and the log file so stdout carries only protocol frames.
Point an MCP client's command at "toolhub mcp".`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge, err := a.Bridge(ctx)
	if err != nil {
		return err
	}
	return bridge.ServeStdio(ctx)
}
