package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolhub/pkg/cache"
	"github.com/harun/toolhub/pkg/tool"
)

// DefaultCacheTTL is how long the active handler listing is reused
const DefaultCacheTTL = time.Hour

// Store is the record store the resolver reads from
type Store interface {
	// ListHandlers returns every handler, active or not, ordered by sort
	// order then display name
	ListHandlers(ctx context.Context) ([]*tool.Handler, error)

	// ListActiveHandlers returns active handlers in the same order
	ListActiveHandlers(ctx context.Context) ([]*tool.Handler, error)

	// SaveHandler inserts or updates a handler by name
	SaveHandler(ctx context.Context, h *tool.Handler) error

	// ListTools returns every tool, active or not
	ListTools(ctx context.Context) ([]*tool.Tool, error)

	// SaveTool inserts or updates a tool by name
	SaveTool(ctx context.Context, t *tool.Tool) error
}

type handlerIndex struct {
	ordered []*tool.Handler
	byRef   map[string]*tool.Handler
}

// Resolver maps handler references to handler records. It never builds
// executors; see Builder for that.
type Resolver struct {
	store     Store
	factories *Factories
	cache     *cache.Snapshot[*handlerIndex]
}

// NewResolver creates a resolver with a cached active-handler listing
func NewResolver(store Store, factories *Factories, ttl time.Duration) *Resolver {
	if factories == nil {
		factories = NewFactories()
	}
	r := &Resolver{store: store, factories: factories}
	r.cache = cache.NewSnapshot("handlers", ttl, r.load)
	return r
}

// Factories returns the in-process factory table
func (r *Resolver) Factories() *Factories {
	return r.factories
}

func (r *Resolver) load(ctx context.Context) (*handlerIndex, error) {
	handlers, err := r.store.ListActiveHandlers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active handlers: %w", err)
	}

	idx := &handlerIndex{
		ordered: handlers,
		byRef:   make(map[string]*tool.Handler, len(handlers)),
	}
	for _, h := range handlers {
		ref := h.Ref()
		if _, dup := idx.byRef[ref]; dup {
			log.Warn().Str("ref", ref).Str("handler", h.Name).Msg("Duplicate handler reference, keeping first")
			continue
		}
		idx.byRef[ref] = h
	}

	log.Debug().Int("count", len(handlers)).Msg("Handler cache loaded")
	return idx, nil
}

// Resolve returns the active handler with the exact reference ref, or
// ErrHandlerNotFound.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*tool.Handler, error) {
	idx, err := r.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	h, ok := idx.byRef[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, ref)
	}

	clone := *h
	return &clone, nil
}

// ListActive returns active handlers ordered by sort order then display name
func (r *Resolver) ListActive(ctx context.Context) ([]*tool.Handler, error) {
	idx, err := r.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*tool.Handler, len(idx.ordered))
	for i, h := range idx.ordered {
		clone := *h
		out[i] = &clone
	}
	return out, nil
}

// InvalidateCache drops the cached handler listing
func (r *Resolver) InvalidateCache() {
	r.cache.Invalidate()
	log.Debug().Msg("Handler cache invalidated")
}

// IsValid reports whether h can be executed, with a diagnostic when not.
// It never panics, even if a factory does.
func (r *Resolver) IsValid(h *tool.Handler) (valid bool, diagnostic string) {
	if h == nil {
		return false, "handler is nil"
	}

	if h.Version != "" {
		if _, err := semver.NewVersion(h.Version); err != nil {
			return false, fmt.Sprintf("invalid version %q: %v", h.Version, err)
		}
	}

	switch h.Kind {
	case tool.KindScript:
		if strings.TrimSpace(h.Script) == "" {
			return false, ErrEmptyScript.Error()
		}
		if err := checkTimeout(h); err != nil {
			return false, err.Error()
		}
		return true, ""

	case tool.KindInProcess:
		if h.TypeName == "" {
			return false, "in-process handler has no type name"
		}
		factory, ok := r.factories.Lookup(h.Ref())
		if !ok {
			return false, fmt.Sprintf("%s: %s", ErrFactoryNotRegistered, h.Ref())
		}
		if err := probe(factory, h); err != nil {
			return false, err.Error()
		}
		return true, ""

	default:
		return false, fmt.Sprintf("%s: %q", ErrUnknownKind, h.Kind)
	}
}

// checkTimeout rejects script timeouts outside the accepted range. Zero
// means the runner default.
func checkTimeout(h *tool.Handler) error {
	if h.TimeoutSeconds != 0 && (h.TimeoutSeconds < tool.MinTimeoutSeconds || h.TimeoutSeconds > tool.MaxTimeoutSeconds) {
		return fmt.Errorf("%w: %ds outside %d-%d", ErrTimeoutOutOfRange, h.TimeoutSeconds, tool.MinTimeoutSeconds, tool.MaxTimeoutSeconds)
	}
	return nil
}

// probe builds a throwaway executor to prove the factory yields one.
func probe(factory tool.Factory, h *tool.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("factory panicked: %v", rec)
		}
	}()

	exec, err := factory(&tool.Tool{
		Name:        h.Name,
		Description: h.Description,
		InputSchema: h.InputSchemaTemplate,
		Handler:     h.Ref(),
	})
	if err != nil {
		return fmt.Errorf("factory failed: %w", err)
	}
	if exec == nil {
		return ErrContractNotSatisfied
	}
	return nil
}

// ValidationReport is the outcome of validating one handler
type ValidationReport struct {
	Name       string `json:"name"`
	Ref        string `json:"ref"`
	Active     bool   `json:"active"`
	Valid      bool   `json:"valid"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// ValidateAll validates every stored handler, including inactive ones, and
// checks declared dependencies ("name" or "name@constraint") against the
// other handlers' versions.
func (r *Resolver) ValidateAll(ctx context.Context) ([]ValidationReport, error) {
	handlers, err := r.store.ListHandlers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list handlers: %w", err)
	}

	byName := make(map[string]*tool.Handler, len(handlers))
	for _, h := range handlers {
		byName[h.Name] = h
	}

	reports := make([]ValidationReport, 0, len(handlers))
	for _, h := range handlers {
		valid, diag := r.IsValid(h)
		if valid {
			if err := checkDependencies(h, byName); err != nil {
				valid, diag = false, err.Error()
			}
		}
		reports = append(reports, ValidationReport{
			Name:       h.Name,
			Ref:        h.Ref(),
			Active:     h.Active,
			Valid:      valid,
			Diagnostic: diag,
		})
	}
	return reports, nil
}

func checkDependencies(h *tool.Handler, byName map[string]*tool.Handler) error {
	for _, dep := range h.Dependencies {
		name, constraint, _ := strings.Cut(dep, "@")
		target, ok := byName[name]
		if !ok {
			return fmt.Errorf("missing dependency %s", name)
		}
		if constraint == "" {
			continue
		}

		v, err := semver.NewVersion(target.Version)
		if err != nil {
			return fmt.Errorf("dependency %s has invalid version %s: %w", name, target.Version, err)
		}
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return fmt.Errorf("invalid version constraint %s: %w", constraint, err)
		}
		if !c.Check(v) {
			return fmt.Errorf("dependency %s version %s does not satisfy constraint %s", name, target.Version, constraint)
		}
	}
	return nil
}

// Stats summarises the handler table
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	BuiltIn int `json:"built_in"`
	Custom  int `json:"custom"`
	InUse   int `json:"in_use"`
}

// Stats counts handlers. InUse counts handlers referenced by at least one
// tool.
func (r *Resolver) Stats(ctx context.Context) (Stats, error) {
	handlers, err := r.store.ListHandlers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list handlers: %w", err)
	}
	tools, err := r.store.ListTools(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list tools: %w", err)
	}

	used := make(map[string]bool, len(tools))
	for _, t := range tools {
		used[t.Handler] = true
	}

	var s Stats
	for _, h := range handlers {
		s.Total++
		if h.Active {
			s.Active++
		}
		if h.BuiltIn {
			s.BuiltIn++
		} else {
			s.Custom++
		}
		if used[h.Ref()] {
			s.InUse++
		}
	}
	return s, nil
}
