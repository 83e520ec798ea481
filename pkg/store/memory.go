package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/harun/toolhub/pkg/tool"
)

// MemoryStore keeps records in process memory. Records are copied on the
// way in and out.
type MemoryStore struct {
	tools    map[string]*tool.Tool
	handlers map[string]*tool.Handler
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tools:    make(map[string]*tool.Tool),
		handlers: make(map[string]*tool.Handler),
	}
}

// GetTool returns a tool by name
func (m *MemoryStore) GetTool(ctx context.Context, name string) (*tool.Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: tool %s", ErrNotFound, name)
	}
	return cloneTool(t), nil
}

// ListTools returns every tool
func (m *MemoryStore) ListTools(ctx context.Context) ([]*tool.Tool, error) {
	return m.listTools(false), nil
}

// ListActiveTools returns active tools
func (m *MemoryStore) ListActiveTools(ctx context.Context) ([]*tool.Tool, error) {
	return m.listTools(true), nil
}

func (m *MemoryStore) listTools(activeOnly bool) []*tool.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*tool.Tool, 0, len(m.tools))
	for _, t := range m.tools {
		if activeOnly && !t.Active {
			continue
		}
		out = append(out, cloneTool(t))
	}
	sortTools(out)
	return out
}

// SaveTool inserts or replaces a tool
func (m *MemoryStore) SaveTool(ctx context.Context, t *tool.Tool) error {
	if err := ValidateTool(t); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[t.Name] = cloneTool(t)
	return nil
}

// DeleteTool removes a tool
func (m *MemoryStore) DeleteTool(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tools[name]; !ok {
		return fmt.Errorf("%w: tool %s", ErrNotFound, name)
	}
	delete(m.tools, name)
	return nil
}

// GetHandler returns a handler by name
func (m *MemoryStore) GetHandler(ctx context.Context, name string) (*tool.Handler, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: handler %s", ErrNotFound, name)
	}
	return cloneHandler(h), nil
}

// ListHandlers returns every handler
func (m *MemoryStore) ListHandlers(ctx context.Context) ([]*tool.Handler, error) {
	return m.listHandlers(false), nil
}

// ListActiveHandlers returns active handlers
func (m *MemoryStore) ListActiveHandlers(ctx context.Context) ([]*tool.Handler, error) {
	return m.listHandlers(true), nil
}

func (m *MemoryStore) listHandlers(activeOnly bool) []*tool.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*tool.Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		if activeOnly && !h.Active {
			continue
		}
		out = append(out, cloneHandler(h))
	}
	sortHandlers(out)
	return out
}

// SaveHandler inserts or replaces a handler. The kind of an existing
// handler cannot change.
func (m *MemoryStore) SaveHandler(ctx context.Context, h *tool.Handler) error {
	if err := ValidateHandler(h); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.handlers[h.Name]; ok && existing.Kind != h.Kind {
		return fmt.Errorf("%w: %s is %s", ErrKindChange, h.Name, existing.Kind)
	}
	m.handlers[h.Name] = normalizeHandler(h)
	return nil
}

// DeleteHandler removes a custom handler no tool references
func (m *MemoryStore) DeleteHandler(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handlers[name]
	if !ok {
		return fmt.Errorf("%w: handler %s", ErrNotFound, name)
	}
	if h.BuiltIn {
		return fmt.Errorf("%w: %s", ErrBuiltInHandler, name)
	}
	ref := h.Ref()
	for _, t := range m.tools {
		if t.Handler == ref {
			return fmt.Errorf("%w: %s used by %s", ErrHandlerInUse, name, t.Name)
		}
	}
	delete(m.handlers, name)
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
