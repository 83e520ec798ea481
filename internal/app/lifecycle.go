package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// PIDFileName is written to the data directory while serving
const PIDFileName = "toolhub.pid"

// Lifecycle manages the PID file of a serving process
type Lifecycle struct {
	dataDir string
	pidFile string
}

// NewLifecycle creates a lifecycle for dataDir
func NewLifecycle(dataDir string) *Lifecycle {
	return &Lifecycle{
		dataDir: dataDir,
		pidFile: PIDFilePath(dataDir),
	}
}

// PIDFilePath returns the PID file location for dataDir
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, PIDFileName)
}

// Start writes the PID file. It fails if another live process owns it;
// a stale file is replaced.
func (l *Lifecycle) Start() error {
	if err := os.MkdirAll(l.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if pid, err := ReadPID(l.pidFile); err == nil && pid != os.Getpid() && ProcessAlive(pid) {
		return fmt.Errorf("toolhub is already running (PID %d)", pid)
	}

	if err := l.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	log.Info().
		Str("pid_file", l.pidFile).
		Int("pid", os.Getpid()).
		Msg("Lifecycle started")

	return nil
}

// Stop removes the PID file
func (l *Lifecycle) Stop() error {
	if err := os.Remove(l.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	log.Info().Msg("Lifecycle stopped")
	return nil
}

func (l *Lifecycle) writePIDFile() error {
	return os.WriteFile(l.pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// PIDFile returns the PID file path
func (l *Lifecycle) PIDFile() string {
	return l.pidFile
}

// Uptime is measured from the PID file's modification time
func (l *Lifecycle) Uptime() (time.Duration, error) {
	info, err := os.Stat(l.pidFile)
	if err != nil {
		return 0, err
	}
	return time.Since(info.ModTime()), nil
}

// GetPID returns the PID recorded in the PID file
func (l *Lifecycle) GetPID() (int, error) {
	return ReadPID(l.pidFile)
}

// IsRunning reports whether the recorded process is alive
func (l *Lifecycle) IsRunning() bool {
	pid, err := l.GetPID()
	if err != nil {
		return false
	}
	return ProcessAlive(pid)
}

// ReadPID parses a PID file
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID file: %d", pid)
	}
	return pid, nil
}

// ProcessAlive sends signal 0 to pid
func ProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds
	return process.Signal(syscall.Signal(0)) == nil
}
