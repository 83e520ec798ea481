package store

import (
	"context"
	"errors"
	"sort"

	"github.com/harun/toolhub/pkg/tool"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned when a record fails authoring checks
	ErrInvalidRecord = errors.New("invalid record")

	// ErrKindChange is returned when an update would change a handler's kind
	ErrKindChange = errors.New("handler kind cannot change")

	// ErrBuiltInHandler is returned when deleting a built-in handler
	ErrBuiltInHandler = errors.New("built-in handlers cannot be deleted")

	// ErrHandlerInUse is returned when deleting a handler tools still reference
	ErrHandlerInUse = errors.New("handler is referenced by tools")
)

// Store persists tool and handler records. List methods return records
// ordered by sort order, then display name.
type Store interface {
	GetTool(ctx context.Context, name string) (*tool.Tool, error)
	ListTools(ctx context.Context) ([]*tool.Tool, error)
	ListActiveTools(ctx context.Context) ([]*tool.Tool, error)
	SaveTool(ctx context.Context, t *tool.Tool) error
	DeleteTool(ctx context.Context, name string) error

	GetHandler(ctx context.Context, name string) (*tool.Handler, error)
	ListHandlers(ctx context.Context) ([]*tool.Handler, error)
	ListActiveHandlers(ctx context.Context) ([]*tool.Handler, error)
	SaveHandler(ctx context.Context, h *tool.Handler) error
	DeleteHandler(ctx context.Context, name string) error

	Close() error
}

func sortTools(tools []*tool.Tool) {
	sort.SliceStable(tools, func(i, j int) bool {
		if tools[i].SortOrder != tools[j].SortOrder {
			return tools[i].SortOrder < tools[j].SortOrder
		}
		return tools[i].Label() < tools[j].Label()
	})
}

func sortHandlers(handlers []*tool.Handler) {
	sort.SliceStable(handlers, func(i, j int) bool {
		if handlers[i].SortOrder != handlers[j].SortOrder {
			return handlers[i].SortOrder < handlers[j].SortOrder
		}
		return handlers[i].Label() < handlers[j].Label()
	})
}
