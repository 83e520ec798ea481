package config

import (
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/harun/toolhub/internal/logger"
	"github.com/harun/toolhub/pkg/sandbox"
)

// Config represents the toolhub configuration
type Config struct {
	// Data directory for the database, logs and audit trail
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// DatabasePath is the SQLite file. Empty means <data_dir>/toolhub.db.
	DatabasePath string `json:"database_path" mapstructure:"database_path"`

	// DefinitionsFile is an optional YAML catalog seeded at start-up
	DefinitionsFile string `json:"definitions_file" mapstructure:"definitions_file"`

	// WatchDefinitions reseeds when DefinitionsFile changes
	WatchDefinitions bool `json:"watch_definitions" mapstructure:"watch_definitions"`

	Cache   CacheConfig   `json:"cache" mapstructure:"cache"`
	Script  ScriptConfig  `json:"script" mapstructure:"script"`
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Audit   AuditConfig   `json:"audit" mapstructure:"audit"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// CacheConfig holds registry and resolver cache settings
type CacheConfig struct {
	ToolTTL         int    `json:"tool_ttl" mapstructure:"tool_ttl"`                 // seconds
	HandlerTTL      int    `json:"handler_ttl" mapstructure:"handler_ttl"`           // seconds
	RefreshSchedule string `json:"refresh_schedule" mapstructure:"refresh_schedule"` // cron spec, empty disables
}

// ScriptConfig holds script engine settings
type ScriptConfig struct {
	TempDir               string   `json:"temp_dir" mapstructure:"temp_dir"`
	Interpreter           string   `json:"interpreter" mapstructure:"interpreter"`
	DefaultTimeoutSeconds int      `json:"default_timeout_seconds" mapstructure:"default_timeout_seconds"`
	MaxTimeoutSeconds     int      `json:"max_timeout_seconds" mapstructure:"max_timeout_seconds"`
	KillGraceSeconds      int      `json:"kill_grace_seconds" mapstructure:"kill_grace_seconds"`
	PassEnv               []string `json:"pass_env" mapstructure:"pass_env"`
}

// ServerConfig holds HTTP, websocket and SSE listener settings
type ServerConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"` // per client IP, 0 disables
	SharedSecret       string `json:"shared_secret" mapstructure:"shared_secret"`
	ReadTimeout        int    `json:"read_timeout" mapstructure:"read_timeout"` // seconds
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// AuditConfig holds run audit settings
type AuditConfig struct {
	File          string `json:"file" mapstructure:"file"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"` // 0 keeps everything
	PruneSchedule string `json:"prune_schedule" mapstructure:"prune_schedule"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"` // 0 or 1 samples every run
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			ToolTTL:    300,
			HandlerTTL: 3600,
		},
		Script: ScriptConfig{
			Interpreter:           "/bin/bash",
			DefaultTimeoutSeconds: 30,
			MaxTimeoutSeconds:     300,
			KillGraceSeconds:      2,
			PassEnv:               []string{},
		},
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               8080,
			RateLimitPerMinute: 120,
			ReadTimeout:        30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Audit: AuditConfig{
			RetentionDays: 30,
			PruneSchedule: "0 3 * * *",
		},
		Tracing: TracingConfig{
			ServiceName: "toolhub",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks the configuration and joins every problem found
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}

// SandboxConfig converts the script settings for the script runner
func (c *Config) SandboxConfig() sandbox.Config {
	return sandbox.Config{
		TempDir:        c.Script.TempDir,
		Interpreter:    c.Script.Interpreter,
		DefaultTimeout: time.Duration(c.Script.DefaultTimeoutSeconds) * time.Second,
		MaxTimeout:     time.Duration(c.Script.MaxTimeoutSeconds) * time.Second,
		KillGrace:      time.Duration(c.Script.KillGraceSeconds) * time.Second,
		PassEnv:        append([]string(nil), c.Script.PassEnv...),
	}
}

// LoggerConfig converts the logging settings for the logger
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:     c.Logging.Level,
		File:      c.Logging.File,
		Console:   true,
		Pretty:    c.Logging.Pretty,
		Redaction: c.Logging.Redaction,
		MaxSize:   c.Logging.MaxSize,
		MaxAge:    c.Logging.MaxAge,
		Compress:  c.Logging.Compress,
	}
}

// ToolCacheTTL returns the tool snapshot lifetime
func (c *Config) ToolCacheTTL() time.Duration {
	return time.Duration(c.Cache.ToolTTL) * time.Second
}

// HandlerCacheTTL returns the handler snapshot lifetime
func (c *Config) HandlerCacheTTL() time.Duration {
	return time.Duration(c.Cache.HandlerTTL) * time.Second
}

// ListenAddr returns host:port for the server
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
