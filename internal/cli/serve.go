package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolhub/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the toolhub server in the foreground",
	Long: `Run the toolhub server in the foreground.
Serves the HTTP API, the WebSocket gateway and MCP over SSE until
SIGINT or SIGTERM is received.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}

	pidFile := app.PIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("toolhub is already running (PID file: %s)", pidFile)
	}

	a, cleanup, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := commandContext(cmd)
	if err := a.Start(ctx); err != nil {
		return err
	}
	return a.Wait(ctx)
}

// pidFilePath resolves the PID file from the configured data directory
func pidFilePath(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return "", err
	}
	return app.PIDFilePath(cfg.DataDir), nil
}

func isRunning(pidFile string) bool {
	pid, err := app.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return app.ProcessAlive(pid)
}
