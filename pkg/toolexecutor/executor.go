package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolhub/internal/tracing"
	"github.com/harun/toolhub/pkg/cache"
	"github.com/harun/toolhub/pkg/tool"
)

// errPanicked marks a recovered panic so it is never reported as bad input
var errPanicked = errors.New("panicked")

// DefaultCacheTTL is how long the active tool list is reused
const DefaultCacheTTL = 5 * time.Minute

// ToolSource supplies tool records
type ToolSource interface {
	ListTools(ctx context.Context) ([]*tool.Tool, error)
	ListActiveTools(ctx context.Context) ([]*tool.Tool, error)
}

// Builder turns a tool record into an executor
type Builder interface {
	Build(ctx context.Context, t *tool.Tool) (tool.Executor, error)
}

// CacheInvalidator is implemented by caches flushed on Refresh
type CacheInvalidator interface {
	InvalidateCache()
}

// Options configures a Registry
type Options struct {
	// CacheTTL bounds staleness of the active tool list. Zero disables
	// caching, negative selects DefaultCacheTTL.
	CacheTTL time.Duration
	// Auditor receives one record per ExecuteTool call
	Auditor Auditor
	// Invalidators are flushed on Refresh, typically the handler resolver
	Invalidators []CacheInvalidator
}

// Statistics summarizes the tool catalog
type Statistics struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Built    int `json:"built"`
}

type toolIndex struct {
	ordered []*tool.Tool
	byName  map[string]*tool.Tool
}

type instance struct {
	record *tool.Tool
	exec   tool.Executor
}

// instanceSet holds executors built since the last Refresh
type instanceSet struct {
	mu    sync.Mutex
	items map[string]instance
}

// Registry is the single entry point for discovering and executing tools.
// It is safe for concurrent use.
type Registry struct {
	source       ToolSource
	builder      Builder
	auditor      Auditor
	invalidators []CacheInvalidator
	tools        *cache.Snapshot[*toolIndex]

	mu        sync.RWMutex
	instances *instanceSet

	now func() time.Time
}

// NewRegistry creates a registry over source. builder creates executors
// for tool records.
func NewRegistry(source ToolSource, builder Builder, opts Options) *Registry {
	ttl := opts.CacheTTL
	if ttl < 0 {
		ttl = DefaultCacheTTL
	}
	r := &Registry{
		source:       source,
		builder:      builder,
		auditor:      opts.Auditor,
		invalidators: opts.Invalidators,
		instances:    newInstanceSet(),
		now:          time.Now,
	}
	r.tools = cache.NewSnapshot("tools", ttl, r.loadTools)
	return r
}

func newInstanceSet() *instanceSet {
	return &instanceSet{items: make(map[string]instance)}
}

func (r *Registry) loadTools(ctx context.Context) (*toolIndex, error) {
	tools, err := r.source.ListActiveTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active tools: %w", err)
	}
	idx := &toolIndex{
		ordered: tools,
		byName:  make(map[string]*tool.Tool, len(tools)),
	}
	for _, t := range tools {
		idx.byName[t.Name] = t
	}
	return idx, nil
}

func (r *Registry) lookup(ctx context.Context, name string) (*tool.Tool, bool, error) {
	idx, err := r.tools.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	t, ok := idx.byName[name]
	return t, ok, nil
}

// GetTool returns the active tool with the exact name, or an UnknownTool
// error.
func (r *Registry) GetTool(ctx context.Context, name string) (*tool.Tool, error) {
	t, ok, err := r.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tool.UnknownTool(name)
	}
	copied := *t
	return &copied, nil
}

// HasTool reports whether an active tool with the exact name exists
func (r *Registry) HasTool(ctx context.Context, name string) bool {
	_, ok, err := r.lookup(ctx, name)
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("Tool lookup failed")
		return false
	}
	return ok
}

// ListForDiscovery describes every active tool in catalog order. Tools
// whose handler cannot be built are still listed from their record.
func (r *Registry) ListForDiscovery(ctx context.Context) (Discovery, error) {
	idx, err := r.tools.Get(ctx)
	if err != nil {
		return nil, err
	}

	out := make(Discovery, 0, len(idx.ordered))
	for _, t := range idx.ordered {
		entry := DiscoveryEntry{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
		if exec, err := r.instance(ctx, t); err == nil {
			entry.Description = exec.Description()
			entry.InputSchema = exec.InputSchema()
		}
		if entry.InputSchema == nil {
			entry.InputSchema = map[string]interface{}{}
		}
		out = append(out, entry)
	}
	return out, nil
}

// ExecuteTool runs the named tool. Errors are always *tool.Error values
// carrying a client-safe message.
func (r *Registry) ExecuteTool(ctx context.Context, name string, input map[string]interface{}) (map[string]interface{}, error) {
	start := r.now()
	ctx, span := tracing.StartToolSpan(ctx, name)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if input == nil {
		input = map[string]interface{}{}
	}

	output, err := r.execute(ctx, name, input)
	elapsed := r.now().Sub(start)

	rec := &RunRecord{
		ID:              tracing.GetRunID(ctx),
		ToolName:        name,
		ToolInput:       input,
		ToolOutput:      output,
		TraceID:         tracing.GetTraceID(ctx),
		ExecutionTimeMS: float64(elapsed.Nanoseconds()) / 1e6,
	}

	if err != nil {
		te, _ := tool.AsError(err)
		rec.IsError = true
		rec.ErrorType = string(te.Kind)
		rec.ErrorMessage = te.Message
		rec.ErrorDetail = te.Detail()

		event := logger.Warn()
		if te.Kind == tool.KindExecutionError || te.Kind == tool.KindHandlerMisconfigured {
			event = logger.Error()
		}
		event.Str("error_type", string(te.Kind)).
			Str("detail", te.Detail()).
			Dur("duration", elapsed).
			Msg("Tool execution failed")
		err = te
	} else {
		logger.Debug().Dur("duration", elapsed).Msg("Tool execution completed")
	}
	tracing.EndToolSpan(span, rec.ErrorType)

	r.Audit(ctx, rec)
	return output, err
}

func (r *Registry) execute(ctx context.Context, name string, input map[string]interface{}) (map[string]interface{}, error) {
	t, ok, err := r.lookup(ctx, name)
	if err != nil {
		return nil, tool.ExecutionError(name, err)
	}
	if !ok {
		return nil, tool.UnknownTool(name)
	}

	exec, err := r.instance(ctx, t)
	if err != nil {
		return nil, tool.HandlerMisconfigured(name, err)
	}

	if err := validateSafely(ctx, exec, input); err != nil {
		if errors.Is(err, errPanicked) {
			return nil, tool.ExecutionError(name, err)
		}
		if te, ok := tool.AsError(err); ok && te.Kind == tool.KindInvalidInput {
			return nil, te
		}
		return nil, &tool.Error{Kind: tool.KindInvalidInput, Message: err.Error(), Err: err}
	}

	output, err := executeSafely(ctx, exec, input)
	if err != nil {
		if te, ok := tool.AsError(err); ok && te.Kind == tool.KindInvalidInput {
			return nil, te
		}
		return nil, tool.ExecutionError(name, err)
	}
	if output == nil {
		output = map[string]interface{}{}
	}
	// Transports must be able to encode whatever counts as a success
	if _, err := json.Marshal(output); err != nil {
		return nil, tool.ExecutionError(name, fmt.Errorf("output is not JSON encodable: %w", err))
	}
	return output, nil
}

// instance returns the memoized executor for t, building it on first use.
// A cached entry is reused only while it was built from the same record.
func (r *Registry) instance(ctx context.Context, t *tool.Tool) (tool.Executor, error) {
	r.mu.RLock()
	set := r.instances
	r.mu.RUnlock()

	set.mu.Lock()
	defer set.mu.Unlock()

	if inst, ok := set.items[t.Name]; ok && inst.record == t {
		return inst.exec, nil
	}

	exec, err := r.builder.Build(ctx, t)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errors.New("handler produced no executor")
	}
	set.items[t.Name] = instance{record: t, exec: exec}
	return exec, nil
}

func validateSafely(ctx context.Context, exec tool.Executor, input map[string]interface{}) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("input validation %w: %v", errPanicked, rec)
		}
	}()
	return exec.ValidateInput(ctx, input)
}

func executeSafely(ctx context.Context, exec tool.Executor, input map[string]interface{}) (output map[string]interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output, err = nil, fmt.Errorf("tool %w: %v", errPanicked, rec)
		}
	}()
	return exec.Execute(ctx, input)
}

// Audit stamps rec and hands it to the configured auditor. Transports use
// it for requests rejected before reaching ExecuteTool.
func (r *Registry) Audit(ctx context.Context, rec *RunRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	if rec.TraceID == "" {
		rec.TraceID = tracing.GetTraceID(ctx)
	}
	if info := RequestInfoFromContext(ctx); info != nil {
		if rec.RequestIP == "" {
			rec.RequestIP = info.RequestIP
		}
		if rec.RawRequest == "" {
			rec.RawRequest = info.RawRequest
		}
		if rec.Source == "" {
			rec.Source = info.Source
		}
	}
	if r.auditor == nil {
		return
	}
	if err := r.auditor.Record(ctx, rec); err != nil {
		log.Warn().Err(err).Str("tool", rec.ToolName).Str("run_id", rec.ID).Msg("Failed to record tool run")
	}
}

// Refresh drops the tool snapshot, memoized executors and every
// registered invalidator.
func (r *Registry) Refresh() {
	r.tools.Invalidate()

	r.mu.Lock()
	r.instances = newInstanceSet()
	r.mu.Unlock()

	for _, inv := range r.invalidators {
		inv.InvalidateCache()
	}
	log.Info().Msg("Tool registry refreshed")
}

// Statistics counts tools in the store and executors built since the last
// Refresh.
func (r *Registry) Statistics(ctx context.Context) (Statistics, error) {
	all, err := r.source.ListTools(ctx)
	if err != nil {
		return Statistics{}, err
	}

	var stats Statistics
	stats.Total = len(all)
	for _, t := range all {
		if t.Active {
			stats.Active++
		}
	}
	stats.Inactive = stats.Total - stats.Active

	r.mu.RLock()
	set := r.instances
	r.mu.RUnlock()
	set.mu.Lock()
	stats.Built = len(set.items)
	set.mu.Unlock()

	return stats, nil
}
