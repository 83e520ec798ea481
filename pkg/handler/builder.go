package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/toolhub/pkg/sandbox"
	"github.com/harun/toolhub/pkg/tool"
)

// Builder turns a tool record into an executor. It is the only place that
// branches on handler kind.
type Builder struct {
	resolver *Resolver
	runner   sandbox.Runner
}

// NewBuilder creates a builder. runner executes script handlers.
func NewBuilder(resolver *Resolver, runner sandbox.Runner) *Builder {
	return &Builder{resolver: resolver, runner: runner}
}

// Resolver returns the handler resolver
func (b *Builder) Resolver() *Resolver {
	return b.resolver
}

// Build resolves t's handler and returns an executor bound to t.
func (b *Builder) Build(ctx context.Context, t *tool.Tool) (tool.Executor, error) {
	h, err := b.resolver.Resolve(ctx, t.Handler)
	if err != nil {
		return nil, err
	}

	switch h.Kind {
	case tool.KindScript:
		if strings.TrimSpace(h.Script) == "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyScript, h.Name)
		}
		if err := checkTimeout(h); err != nil {
			return nil, fmt.Errorf("handler %s: %w", h.Name, err)
		}
		if b.runner == nil {
			return nil, fmt.Errorf("no script runner configured for %s", h.Name)
		}
		return NewScriptExecutor(t, h, b.runner), nil

	case tool.KindInProcess:
		factory, ok := b.resolver.Factories().Lookup(h.Ref())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFactoryNotRegistered, h.Ref())
		}
		exec, err := buildSafely(factory, t)
		if err != nil {
			return nil, err
		}
		if exec == nil {
			return nil, fmt.Errorf("%w: %s", ErrContractNotSatisfied, h.Ref())
		}
		return exec, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, h.Kind)
	}
}

func buildSafely(factory tool.Factory, t *tool.Tool) (exec tool.Executor, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			exec, err = nil, fmt.Errorf("factory panicked: %v", rec)
		}
	}()
	return factory(t)
}
