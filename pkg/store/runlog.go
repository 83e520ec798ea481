package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harun/toolhub/pkg/toolexecutor"
)

const runLogSchema = `
	CREATE TABLE IF NOT EXISTS tool_run_logs (
		id TEXT PRIMARY KEY,
		tool_name TEXT NOT NULL,
		tool_input TEXT NOT NULL DEFAULT '{}',
		tool_output TEXT NOT NULL DEFAULT 'null',
		is_error INTEGER NOT NULL DEFAULT 0,
		error_type TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		error_detail TEXT NOT NULL DEFAULT '',
		raw_request TEXT NOT NULL DEFAULT '',
		request_ip TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		trace_id TEXT NOT NULL DEFAULT '',
		execution_time_ms REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_run_logs_tool ON tool_run_logs(tool_name, created_at);
	CREATE INDEX IF NOT EXISTS idx_tool_run_logs_created ON tool_run_logs(created_at);
`

const runLogColumns = `id, tool_name, tool_input, tool_output, is_error, error_type, error_message,
	error_detail, raw_request, request_ip, source, trace_id, execution_time_ms, created_at`

// DefaultRecentLimit caps Recent when no limit is given
const DefaultRecentLimit = 50

// RunFilter narrows Recent
type RunFilter struct {
	ToolName   string
	ErrorsOnly bool
	Since      time.Time
	Limit      int
}

// ToolUsage summarizes the run history of one tool
type ToolUsage struct {
	ToolName      string    `json:"tool_name"`
	Total         int       `json:"total"`
	Successful    int       `json:"successful"`
	Errors        int       `json:"errors"`
	SuccessRate   float64   `json:"success_rate"`
	AverageTimeMS float64   `json:"average_time_ms"`
	LastRun       time.Time `json:"last_run,omitempty"`
}

// RunLogStore persists tool run records. It implements
// toolexecutor.Auditor.
type RunLogStore struct {
	db *sql.DB
}

// NewRunLogStore applies the run log schema to db
func NewRunLogStore(db *sql.DB) (*RunLogStore, error) {
	if _, err := db.Exec(runLogSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize run log schema: %w", err)
	}
	return &RunLogStore{db: db}, nil
}

// Record inserts rec
func (s *RunLogStore) Record(ctx context.Context, rec *toolexecutor.RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	input, err := json.Marshal(rec.ToolInput)
	if err != nil {
		return fmt.Errorf("failed to encode tool input: %w", err)
	}
	output, err := json.Marshal(rec.ToolOutput)
	if err != nil {
		return fmt.Errorf("failed to encode tool output: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_run_logs (`+runLogColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ToolName, string(input), string(output), rec.IsError,
		rec.ErrorType, rec.ErrorMessage, rec.ErrorDetail, rec.RawRequest, rec.RequestIP,
		rec.Source, rec.TraceID, rec.ExecutionTimeMS, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record tool run: %w", err)
	}
	return nil
}

// Recent returns the newest runs matching filter, newest first
func (s *RunLogStore) Recent(ctx context.Context, filter RunFilter) ([]*toolexecutor.RunRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ToolName != "" {
		where = append(where, "tool_name = ?")
		args = append(args, filter.ToolName)
	}
	if filter.ErrorsOnly {
		where = append(where, "is_error = 1")
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `SELECT ` + runLogColumns + ` FROM tool_run_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}
	defer rows.Close()

	var out []*toolexecutor.RunRecord
	for rows.Next() {
		rec, err := scanRunRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRunRecord(row rowScanner) (*toolexecutor.RunRecord, error) {
	var (
		rec           toolexecutor.RunRecord
		input, output string
		createdAt     int64
	)
	err := row.Scan(&rec.ID, &rec.ToolName, &input, &output, &rec.IsError, &rec.ErrorType,
		&rec.ErrorMessage, &rec.ErrorDetail, &rec.RawRequest, &rec.RequestIP, &rec.Source,
		&rec.TraceID, &rec.ExecutionTimeMS, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run log: %w", err)
	}
	if err := json.Unmarshal([]byte(input), &rec.ToolInput); err != nil {
		return nil, fmt.Errorf("failed to decode tool input for run %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(output), &rec.ToolOutput); err != nil {
		return nil, fmt.Errorf("failed to decode tool output for run %s: %w", rec.ID, err)
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &rec, nil
}

// StatsForTool aggregates the run history of name
func (s *RunLogStore) StatsForTool(ctx context.Context, name string) (ToolUsage, error) {
	usage := ToolUsage{ToolName: name}

	var (
		errorsCount sql.NullInt64
		avg         sql.NullFloat64
		last        sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(is_error), AVG(execution_time_ms), MAX(created_at)
		FROM tool_run_logs WHERE tool_name = ?`, name,
	).Scan(&usage.Total, &errorsCount, &avg, &last)
	if err != nil {
		return usage, fmt.Errorf("failed to aggregate run logs: %w", err)
	}

	usage.Errors = int(errorsCount.Int64)
	usage.Successful = usage.Total - usage.Errors
	if usage.Total > 0 {
		usage.SuccessRate = float64(usage.Successful) / float64(usage.Total) * 100
	}
	if avg.Valid {
		usage.AverageTimeMS = avg.Float64
	}
	if last.Valid {
		usage.LastRun = time.UnixMilli(last.Int64).UTC()
	}
	return usage, nil
}

// Prune deletes runs created before cutoff and returns how many were removed
func (s *RunLogStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_run_logs WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune run logs: %w", err)
	}
	return res.RowsAffected()
}
