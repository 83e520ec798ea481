package handler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolhub/pkg/coretools"
	"github.com/harun/toolhub/pkg/tool"
)

// Factories maps in-process handler references to the code that builds
// them. It is populated at start-up; nothing is discovered by reflection.
type Factories struct {
	factories map[string]tool.Factory
	mu        sync.RWMutex
}

// NewFactories creates an empty factory table
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]tool.Factory)}
}

// DefaultFactories returns a table holding the built-in tools.
func DefaultFactories() (*Factories, error) {
	f := NewFactories()
	if err := coretools.Register(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Register adds a factory under ref
func (f *Factories) Register(ref string, factory tool.Factory) error {
	if ref == "" {
		return fmt.Errorf("%w: empty reference", ErrInvalidFactory)
	}
	if tool.IsScriptRef(ref) {
		return fmt.Errorf("%w: %s is reserved for script handlers", ErrInvalidFactory, ref)
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %s", ErrInvalidFactory, ref)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.factories[ref]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFactory, ref)
	}
	f.factories[ref] = factory

	log.Debug().Str("ref", ref).Msg("In-process handler registered")
	return nil
}

// Lookup returns the factory registered under ref
func (f *Factories) Lookup(ref string) (tool.Factory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.factories[ref]
	return factory, ok
}

// Refs returns every registered reference, sorted
func (f *Factories) Refs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	refs := make([]string, 0, len(f.factories))
	for ref := range f.factories {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
