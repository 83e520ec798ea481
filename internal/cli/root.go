package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolhub/internal/app"
	"github.com/harun/toolhub/internal/config"
	"github.com/harun/toolhub/internal/logger"
)

// version is overridden at build time with -ldflags "-X ...cli.version=..."
var version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "toolhub",
	Short: "Toolhub - a catalog of executable tools for MCP clients",
	Long: `Toolhub keeps a catalog of tools backed by built-in handlers or
operator-authored shell scripts, validates their input against JSON Schema
and serves them over HTTP, WebSocket JSON-RPC and the Model Context Protocol.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.toolhub/toolhub.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig reads the config file and applies --log-level. One-shot
// commands pass quiet so start-up chatter stays out of their output
// unless the flag was given explicitly.
func loadConfig(cmd *cobra.Command, quiet bool) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	switch {
	case cmd.Flags().Changed("log-level"):
		cfg.Logging.Level = logLevel
	case quiet:
		cfg.Logging.Level = "warn"
	}
	return cfg, nil
}

// openApp loads config, installs the logger and assembles the app without
// starting any listener. The returned cleanup closes both.
func openApp(cmd *cobra.Command, quiet bool) (*app.App, func(), error) {
	cfg, err := loadConfig(cmd, quiet)
	if err != nil {
		return nil, nil, err
	}
	return newApp(cmd, cfg)
}

func newApp(cmd *cobra.Command, cfg *config.Config) (*app.App, func(), error) {
	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a, err := app.New(commandContext(cmd), cfg, version)
	if err != nil {
		log.Close()
		return nil, nil, err
	}

	return a, func() {
		_ = a.Close()
		_ = log.Close()
	}, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
