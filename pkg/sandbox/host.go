package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// HostRunner runs scripts as host subprocesses, one temp file and one
// process group per call
type HostRunner struct {
	config Config
	mu     sync.RWMutex
}

// NewHostRunner creates a new host script runner
func NewHostRunner(config Config) (*HostRunner, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HostRunner{config: config}, nil
}

// GetConfig returns the runner configuration
func (h *HostRunner) GetConfig() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// SetConfig updates the runner configuration
func (h *HostRunner) SetConfig(config Config) error {
	if err := ValidateConfig(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.config = config
	return nil
}

// Run stages req.Script, executes it with the composed environment and
// parses its output. The staged file is removed on every path.
func (h *HostRunner) Run(ctx context.Context, req ScriptRequest) (*ExecutionResult, error) {
	cfg := h.GetConfig()

	if strings.TrimSpace(req.Script) == "" {
		return nil, ErrEmptyScript
	}

	path, body, err := stage(cfg, req.HandlerName, req.Script)
	if err != nil {
		return nil, err
	}
	defer removeStaged(path)

	interpreter, args := parseShebang(body)
	args = append(args, path)

	timeout := h.effectiveTimeout(cfg, req.Timeout)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, interpreter, args...)
	cmd.Env = buildEnvironment(cfg, req)
	cmd.WaitDelay = cfg.KillGrace
	configureProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	// A run that was interrupted is never reported as a success.
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			log.Warn().
				Str("handler", req.HandlerName).
				Str("tool", req.ToolName).
				Dur("timeout", timeout).
				Msg("Script timed out, process group killed")
			return nil, fmt.Errorf("%w after %s", ErrExecutionTimeout, timeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrExecutionCanceled, ctx.Err())
		}
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %v", ErrStartFailed, err)
		}
		exitCode = exitErr.ExitCode()
	}

	log.Debug().
		Str("handler", req.HandlerName).
		Str("tool", req.ToolName).
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("Script executed")

	if exitCode != 0 {
		return nil, &ExitError{
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}

	return parseOutput(stdout.Bytes(), stderr.Bytes(), duration), nil
}

func (h *HostRunner) effectiveTimeout(cfg Config, requested time.Duration) time.Duration {
	timeout := requested
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	if cfg.MaxTimeout > 0 && timeout > cfg.MaxTimeout {
		timeout = cfg.MaxTimeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return timeout
}

// stage writes the script to a uniquely named executable temp file. Scripts
// without an interpreter directive get the default one plus "set -e".
func stage(cfg Config, handlerName, script string) (string, string, error) {
	body := script
	if !strings.HasPrefix(body, "#!") {
		body = "#!" + cfg.Interpreter + "\nset -e\n" + body
	}

	name := unsafeNameChars.ReplaceAllString(handlerName, "_")
	f, err := os.CreateTemp(cfg.TempDir, "toolhub_script_"+name+"_*")
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStageFailed, err)
	}
	path := f.Name()

	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		removeStaged(path)
		return "", "", fmt.Errorf("%w: %v", ErrStageFailed, err)
	}
	if err := f.Close(); err != nil {
		removeStaged(path)
		return "", "", fmt.Errorf("%w: %v", ErrStageFailed, err)
	}
	if err := os.Chmod(path, 0o700); err != nil {
		removeStaged(path)
		return "", "", fmt.Errorf("%w: %v", ErrStageFailed, err)
	}

	return path, body, nil
}

func removeStaged(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove staged script")
	}
}

// parseShebang splits the interpreter directive the way the kernel does:
// the interpreter path, then at most one argument holding the rest of the
// line. The staged file is passed to the interpreter rather than executed
// directly so a concurrent fork cannot hit ETXTBSY on a file still open
// for writing elsewhere in the process.
func parseShebang(body string) (string, []string) {
	line := body
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "#!"))

	interpreter, rest, found := strings.Cut(line, " ")
	if !found {
		interpreter, rest, _ = strings.Cut(line, "\t")
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return interpreter, nil
	}
	return interpreter, []string{rest}
}
