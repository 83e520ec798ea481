package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolhub/pkg/tool"
)

const recordSchema = `
	CREATE TABLE IF NOT EXISTS handlers (
		name TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '1.0.0',
		author TEXT NOT NULL DEFAULT '',
		namespace TEXT NOT NULL DEFAULT '',
		type_name TEXT NOT NULL DEFAULT '',
		script TEXT NOT NULL DEFAULT '',
		env TEXT NOT NULL DEFAULT '{}',
		timeout_seconds INTEGER NOT NULL DEFAULT 30,
		dependencies TEXT NOT NULL DEFAULT '[]',
		input_schema_template TEXT NOT NULL DEFAULT 'null',
		built_in INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_handlers_active ON handlers(active, sort_order);

	CREATE TABLE IF NOT EXISTS tools (
		name TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		input_schema TEXT NOT NULL DEFAULT 'null',
		handler TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		settings TEXT NOT NULL DEFAULT 'null',
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tools_active ON tools(active, sort_order);
	CREATE INDEX IF NOT EXISTS idx_tools_handler ON tools(handler);
`

const (
	toolColumns = `name, display_name, description, input_schema, handler, active, settings, sort_order`

	handlerColumns = `name, kind, display_name, description, version, author, namespace, type_name,
		script, env, timeout_seconds, dependencies, input_schema_template, built_in, active, sort_order`

	labelOrder = `ORDER BY sort_order, CASE WHEN display_name = '' THEN name ELSE display_name END`
)

// SQLiteStore persists records in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(recordSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Record store opened")
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying database handle
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// GetTool returns a tool by name
func (s *SQLiteStore) GetTool(ctx context.Context, name string) (*tool.Tool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE name = ?`, name)
	t, err := scanTool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tool %s", ErrNotFound, name)
	}
	return t, err
}

// ListTools returns every tool
func (s *SQLiteStore) ListTools(ctx context.Context) ([]*tool.Tool, error) {
	return s.queryTools(ctx, `SELECT `+toolColumns+` FROM tools `+labelOrder)
}

// ListActiveTools returns active tools
func (s *SQLiteStore) ListActiveTools(ctx context.Context) ([]*tool.Tool, error) {
	return s.queryTools(ctx, `SELECT `+toolColumns+` FROM tools WHERE active = 1 `+labelOrder)
}

func (s *SQLiteStore) queryTools(ctx context.Context, query string) ([]*tool.Tool, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools: %w", err)
	}
	defer rows.Close()

	var out []*tool.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTool(row rowScanner) (*tool.Tool, error) {
	var (
		t                     tool.Tool
		inputSchema, settings string
		active                bool
	)
	if err := row.Scan(&t.Name, &t.DisplayName, &t.Description, &inputSchema, &t.Handler,
		&active, &settings, &t.SortOrder); err != nil {
		return nil, err
	}
	t.Active = active
	if err := json.Unmarshal([]byte(inputSchema), &t.InputSchema); err != nil {
		return nil, fmt.Errorf("tool %s: corrupt input_schema: %w", t.Name, err)
	}
	if err := json.Unmarshal([]byte(settings), &t.Settings); err != nil {
		return nil, fmt.Errorf("tool %s: corrupt settings: %w", t.Name, err)
	}
	return &t, nil
}

// SaveTool inserts or updates a tool by name
func (s *SQLiteStore) SaveTool(ctx context.Context, t *tool.Tool) error {
	if err := ValidateTool(t); err != nil {
		return err
	}

	inputSchema, err := json.Marshal(t.InputSchema)
	if err != nil {
		return fmt.Errorf("failed to encode input_schema: %w", err)
	}
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tools (`+toolColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			input_schema = excluded.input_schema,
			handler = excluded.handler,
			active = excluded.active,
			settings = excluded.settings,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at`,
		t.Name, t.DisplayName, t.Description, string(inputSchema), t.Handler,
		t.Active, string(settings), t.SortOrder, now, now)
	if err != nil {
		return fmt.Errorf("failed to save tool %s: %w", t.Name, err)
	}
	return nil
}

// DeleteTool removes a tool
func (s *SQLiteStore) DeleteTool(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete tool %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: tool %s", ErrNotFound, name)
	}
	return nil
}

// GetHandler returns a handler by name
func (s *SQLiteStore) GetHandler(ctx context.Context, name string) (*tool.Handler, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+handlerColumns+` FROM handlers WHERE name = ?`, name)
	h, err := scanHandler(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: handler %s", ErrNotFound, name)
	}
	return h, err
}

// ListHandlers returns every handler
func (s *SQLiteStore) ListHandlers(ctx context.Context) ([]*tool.Handler, error) {
	return s.queryHandlers(ctx, `SELECT `+handlerColumns+` FROM handlers `+labelOrder)
}

// ListActiveHandlers returns active handlers
func (s *SQLiteStore) ListActiveHandlers(ctx context.Context) ([]*tool.Handler, error) {
	return s.queryHandlers(ctx, `SELECT `+handlerColumns+` FROM handlers WHERE active = 1 `+labelOrder)
}

func (s *SQLiteStore) queryHandlers(ctx context.Context, query string) ([]*tool.Handler, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query handlers: %w", err)
	}
	defer rows.Close()

	var out []*tool.Handler
	for rows.Next() {
		h, err := scanHandler(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHandler(row rowScanner) (*tool.Handler, error) {
	var (
		h                         tool.Handler
		kind, env, deps, template string
		builtIn, active           bool
	)
	if err := row.Scan(&h.Name, &kind, &h.DisplayName, &h.Description, &h.Version, &h.Author,
		&h.Namespace, &h.TypeName, &h.Script, &env, &h.TimeoutSeconds, &deps, &template,
		&builtIn, &active, &h.SortOrder); err != nil {
		return nil, err
	}
	h.Kind = tool.HandlerKind(kind)
	h.BuiltIn = builtIn
	h.Active = active
	if err := json.Unmarshal([]byte(env), &h.Env); err != nil {
		return nil, fmt.Errorf("handler %s: corrupt env: %w", h.Name, err)
	}
	if err := json.Unmarshal([]byte(deps), &h.Dependencies); err != nil {
		return nil, fmt.Errorf("handler %s: corrupt dependencies: %w", h.Name, err)
	}
	if err := json.Unmarshal([]byte(template), &h.InputSchemaTemplate); err != nil {
		return nil, fmt.Errorf("handler %s: corrupt input_schema_template: %w", h.Name, err)
	}
	return &h, nil
}

// SaveHandler inserts or updates a handler by name. The kind of an
// existing handler cannot change.
func (s *SQLiteStore) SaveHandler(ctx context.Context, h *tool.Handler) error {
	if err := ValidateHandler(h); err != nil {
		return err
	}
	n := normalizeHandler(h)

	env := n.Env
	if env == nil {
		env = map[string]string{}
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode env: %w", err)
	}
	deps := n.Dependencies
	if deps == nil {
		deps = []string{}
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return fmt.Errorf("failed to encode dependencies: %w", err)
	}
	templateJSON, err := json.Marshal(n.InputSchemaTemplate)
	if err != nil {
		return fmt.Errorf("failed to encode input_schema_template: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingKind string
	err = tx.QueryRowContext(ctx, `SELECT kind FROM handlers WHERE name = ?`, n.Name).Scan(&existingKind)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read handler %s: %w", n.Name, err)
	case existingKind != string(n.Kind):
		return fmt.Errorf("%w: %s is %s", ErrKindChange, n.Name, existingKind)
	}

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO handlers (`+handlerColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			version = excluded.version,
			author = excluded.author,
			namespace = excluded.namespace,
			type_name = excluded.type_name,
			script = excluded.script,
			env = excluded.env,
			timeout_seconds = excluded.timeout_seconds,
			dependencies = excluded.dependencies,
			input_schema_template = excluded.input_schema_template,
			built_in = excluded.built_in,
			active = excluded.active,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at`,
		n.Name, string(n.Kind), n.DisplayName, n.Description, n.Version, n.Author,
		n.Namespace, n.TypeName, n.Script, string(envJSON), n.TimeoutSeconds, string(depsJSON),
		string(templateJSON), n.BuiltIn, n.Active, n.SortOrder, now, now)
	if err != nil {
		return fmt.Errorf("failed to save handler %s: %w", n.Name, err)
	}

	return tx.Commit()
}

// DeleteHandler removes a custom handler no tool references
func (s *SQLiteStore) DeleteHandler(ctx context.Context, name string) error {
	h, err := s.GetHandler(ctx, name)
	if err != nil {
		return err
	}
	if h.BuiltIn {
		return fmt.Errorf("%w: %s", ErrBuiltInHandler, name)
	}

	var user string
	err = s.db.QueryRowContext(ctx, `SELECT name FROM tools WHERE handler = ? LIMIT 1`, h.Ref()).Scan(&user)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to check handler usage: %w", err)
	default:
		return fmt.Errorf("%w: %s used by %s", ErrHandlerInUse, name, user)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM handlers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete handler %s: %w", name, err)
	}
	return nil
}
