package sandbox

import (
	"context"
	"math"
	"path/filepath"
	"time"
)

const (
	// InputEnvPrefix prefixes every input value exported to a script
	InputEnvPrefix = "MCP_INPUT_"
	// ToolNameEnv carries the invoked tool's name
	ToolNameEnv = "MCP_TOOL_NAME"
	// ToolTypeEnv declares the handler kind to the script
	ToolTypeEnv = "MCP_TOOL_TYPE"
	// ToolTypeScript is the value of ToolTypeEnv for every script run
	ToolTypeScript = "script"
)

// Config defines script runner configuration
type Config struct {
	// TempDir is where scripts are staged. Empty means os.TempDir().
	TempDir string `json:"temp_dir" mapstructure:"temp_dir"`

	// Interpreter is prepended as "#!<Interpreter>" to scripts without one
	Interpreter string `json:"interpreter" mapstructure:"interpreter"`

	// DefaultTimeout applies when a request carries no timeout
	DefaultTimeout time.Duration `json:"default_timeout" mapstructure:"default_timeout"`

	// MaxTimeout caps any requested timeout
	MaxTimeout time.Duration `json:"max_timeout" mapstructure:"max_timeout"`

	// KillGrace bounds how long output pipes are drained after the
	// process group has been killed
	KillGrace time.Duration `json:"kill_grace" mapstructure:"kill_grace"`

	// PassEnv lists host variables copied into every script environment
	PassEnv []string `json:"pass_env" mapstructure:"pass_env"`
}

// ScriptRequest describes one script invocation
type ScriptRequest struct {
	// ToolName is exported as MCP_TOOL_NAME
	ToolName string

	// HandlerName is used in the staged file name and in logs
	HandlerName string

	// Script is the script body
	Script string

	// Env is the handler's static environment
	Env map[string]string

	// Input is the validated tool input
	Input map[string]interface{}

	// Timeout is the execution timeout; zero uses the configured default
	Timeout time.Duration
}

// ExecutionResult is the outcome of a successful script run
type ExecutionResult struct {
	// Result is the decoded stdout when it is JSON, otherwise the trimmed text
	Result interface{} `json:"result"`

	// Parsed reports whether stdout decoded as JSON
	Parsed bool `json:"-"`

	// RawOutput is the trimmed stdout
	RawOutput string `json:"raw_output"`

	// ErrorOutput is the trimmed stderr
	ErrorOutput string `json:"error_output,omitempty"`

	// ExitCode is the process exit code
	ExitCode int `json:"exit_code"`

	// Duration is the wall-clock time of the subprocess
	Duration time.Duration `json:"-"`
}

// ExecutionTime returns Duration in seconds, rounded to milliseconds
func (r *ExecutionResult) ExecutionTime() float64 {
	return math.Round(r.Duration.Seconds()*1000) / 1000
}

// Map renders the result in the shape returned to callers. error_output is
// only present when stdout was not JSON.
func (r *ExecutionResult) Map() map[string]interface{} {
	out := map[string]interface{}{
		"result":         r.Result,
		"raw_output":     r.RawOutput,
		"exit_code":      r.ExitCode,
		"execution_time": r.ExecutionTime(),
	}
	if !r.Parsed {
		out["error_output"] = r.ErrorOutput
	}
	return out
}

// Runner executes scripts
type Runner interface {
	// Run stages and executes a script, returning its parsed output
	Run(ctx context.Context, req ScriptRequest) (*ExecutionResult, error)
}

// DefaultConfig returns a default script runner configuration
func DefaultConfig() Config {
	return Config{
		TempDir:        "",
		Interpreter:    "/bin/bash",
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     300 * time.Second,
		KillGrace:      2 * time.Second,
		PassEnv:        []string{},
	}
}

// ValidateConfig validates a script runner configuration
func ValidateConfig(cfg Config) error {
	if cfg.Interpreter == "" || !filepath.IsAbs(cfg.Interpreter) {
		return ErrInvalidInterpreter
	}

	if cfg.DefaultTimeout < 0 || cfg.MaxTimeout < 0 || cfg.KillGrace < 0 {
		return ErrInvalidTimeout
	}

	if cfg.MaxTimeout > 0 && cfg.DefaultTimeout > cfg.MaxTimeout {
		return ErrInvalidTimeout
	}

	return nil
}
