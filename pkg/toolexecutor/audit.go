package toolexecutor

import (
	"context"
	"errors"
	"time"
)

// RunRecord describes one invocation attempt for audit sinks. ErrorDetail
// holds the internal cause and is never returned to callers.
type RunRecord struct {
	ID              string                 `json:"id"`
	ToolName        string                 `json:"tool_name"`
	ToolInput       map[string]interface{} `json:"tool_input"`
	ToolOutput      map[string]interface{} `json:"tool_output,omitempty"`
	IsError         bool                   `json:"is_error"`
	ErrorType       string                 `json:"error_type,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	ErrorDetail     string                 `json:"error_detail,omitempty"`
	RawRequest      string                 `json:"raw_request,omitempty"`
	RequestIP       string                 `json:"request_ip,omitempty"`
	Source          string                 `json:"source,omitempty"`
	TraceID         string                 `json:"trace_id,omitempty"`
	ExecutionTimeMS float64                `json:"execution_time_ms"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Status returns "success" or "failure"
func (r *RunRecord) Status() string {
	if r.IsError {
		return "failure"
	}
	return "success"
}

// Auditor receives one record per invocation
type Auditor interface {
	Record(ctx context.Context, rec *RunRecord) error
}

// AuditorFunc adapts a function to Auditor
type AuditorFunc func(ctx context.Context, rec *RunRecord) error

// Record calls f
func (f AuditorFunc) Record(ctx context.Context, rec *RunRecord) error {
	return f(ctx, rec)
}

// MultiAuditor fans a record out to several auditors. Every auditor is
// called even if an earlier one fails.
type MultiAuditor []Auditor

// Record forwards rec to every auditor and joins their errors
func (m MultiAuditor) Record(ctx context.Context, rec *RunRecord) error {
	var errs []error
	for _, a := range m {
		if a == nil {
			continue
		}
		if err := a.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
