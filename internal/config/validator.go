package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/harun/toolhub/pkg/tool"
)

// Validator validates configuration values
type Validator struct {
	parser cron.Parser
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidatePort validates a listener port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateSchedule validates an optional cron expression
func (v *Validator) ValidateSchedule(field, spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	if _, err := v.parser.Parse(spec); err != nil {
		return fmt.Errorf("%s: invalid cron expression %q: %w", field, spec, err)
	}
	return nil
}

// ValidateScript validates script engine settings
func (v *Validator) ValidateScript(s ScriptConfig) []error {
	var errs []error
	if strings.TrimSpace(s.Interpreter) == "" {
		errs = append(errs, fmt.Errorf("script.interpreter is required"))
	} else if !strings.HasPrefix(s.Interpreter, "/") {
		errs = append(errs, fmt.Errorf("script.interpreter must be an absolute path, got %s", s.Interpreter))
	}
	if s.MaxTimeoutSeconds < tool.MinTimeoutSeconds || s.MaxTimeoutSeconds > tool.MaxTimeoutSeconds {
		errs = append(errs, fmt.Errorf("script.max_timeout_seconds must be between %d and %d",
			tool.MinTimeoutSeconds, tool.MaxTimeoutSeconds))
	}
	if s.DefaultTimeoutSeconds < tool.MinTimeoutSeconds || s.DefaultTimeoutSeconds > s.MaxTimeoutSeconds {
		errs = append(errs, fmt.Errorf("script.default_timeout_seconds must be between %d and max_timeout_seconds",
			tool.MinTimeoutSeconds))
	}
	if s.KillGraceSeconds < 0 {
		errs = append(errs, fmt.Errorf("script.kill_grace_seconds must be >= 0"))
	}
	for _, name := range s.PassEnv {
		if name == "" || strings.ContainsAny(name, "=\x00") {
			errs = append(errs, fmt.Errorf("script.pass_env contains invalid name %q", name))
		}
	}
	return errs
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Cache.ToolTTL < 0 {
		errors = append(errors, fmt.Errorf("cache.tool_ttl must be >= 0"))
	}
	if cfg.Cache.HandlerTTL < 0 {
		errors = append(errors, fmt.Errorf("cache.handler_ttl must be >= 0"))
	}
	if err := v.ValidateSchedule("cache.refresh_schedule", cfg.Cache.RefreshSchedule); err != nil {
		errors = append(errors, err)
	}

	errors = append(errors, v.ValidateScript(cfg.Script)...)

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Errorf("server.rate_limit_per_minute must be >= 0"))
	}
	if cfg.Server.ReadTimeout < 0 {
		errors = append(errors, fmt.Errorf("server.read_timeout must be >= 0"))
	}

	if cfg.Audit.RetentionDays < 0 {
		errors = append(errors, fmt.Errorf("audit.retention_days must be >= 0"))
	}
	if err := v.ValidateSchedule("audit.prune_schedule", cfg.Audit.PruneSchedule); err != nil {
		errors = append(errors, err)
	}

	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.ServiceName) == "" {
		errors = append(errors, fmt.Errorf("tracing.service_name is required when tracing is enabled"))
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
