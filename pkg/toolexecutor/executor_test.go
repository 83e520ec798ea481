package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhub/pkg/tool"
)

type fakeSource struct {
	mu    sync.Mutex
	tools []*tool.Tool
	calls int
	err   error
}

func (f *fakeSource) ListTools(ctx context.Context) ([]*tool.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*tool.Tool, len(f.tools))
	for i, t := range f.tools {
		copied := *t
		out[i] = &copied
	}
	return out, nil
}

func (f *fakeSource) ListActiveTools(ctx context.Context) ([]*tool.Tool, error) {
	all, err := f.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	var out []*tool.Tool
	for _, t := range all {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeSource) set(tools ...*tool.Tool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = tools
}

type fakeExecutor struct {
	record   *tool.Tool
	validate func(input map[string]interface{}) error
	execute  func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

func (e *fakeExecutor) Name() string { return e.record.Name }
func (e *fakeExecutor) Description() string { return e.record.Description }
func (e *fakeExecutor) InputSchema() map[string]interface{} { return e.record.InputSchema }
func (e *fakeExecutor) Settings() map[string]interface{} { return e.record.Settings }
func (e *fakeExecutor) ValidateInput(ctx context.Context, input map[string]interface{}) error {
	if e.validate != nil {
		return e.validate(input)
	}
	return nil
}
func (e *fakeExecutor) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return e.execute(ctx, input)
}

type fakeBuilder struct {
	builds atomic.Int32
	build  func(t *tool.Tool) (tool.Executor, error)
}

func (b *fakeBuilder) Build(ctx context.Context, t *tool.Tool) (tool.Executor, error) {
	b.builds.Add(1)
	return b.build(t)
}

type recordingAuditor struct {
	mu      sync.Mutex
	records []*RunRecord
}

func (a *recordingAuditor) Record(ctx context.Context, rec *RunRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *recordingAuditor) last(t *testing.T) *RunRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NotEmpty(t, a.records)
	return a.records[len(a.records)-1]
}

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) InvalidateCache() { c.n.Add(1) }

func echoTool(name string) *tool.Tool {
	return &tool.Tool{
		Name:        name,
		Description: "echo " + name,
		Handler:     "test.Echo",
		Active:      true,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"message": map[string]interface{}{"type": "string"}},
		},
	}
}

func echoBuilder() *fakeBuilder {
	return &fakeBuilder{build: func(t *tool.Tool) (tool.Executor, error) {
		return &fakeExecutor{
			record: t,
			execute: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				return map[string]interface{}{"echoed": input["message"]}, nil
			},
		}, nil
	}}
}

func newTestRegistry(src *fakeSource, b Builder, aud Auditor, inv ...CacheInvalidator) *Registry {
	return NewRegistry(src, b, Options{CacheTTL: DefaultCacheTTL, Auditor: aud, Invalidators: inv})
}

func TestRegistry_ExecuteTool_Success(t *testing.T) {
	src := &fakeSource{tools: []*tool.Tool{echoTool("echo")}}
	aud := &recordingAuditor{}
	reg := newTestRegistry(src, echoBuilder(), aud)

	out, err := reg.ExecuteTool(context.Background(), "echo", map[string]interface{}{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"echoed": "hi"}, out)

	rec := aud.last(t)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "echo", rec.ToolName)
	assert.False(t, rec.IsError)
	assert.Equal(t, "success", rec.Status())
	assert.Equal(t, out, rec.ToolOutput)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestRegistry_ExecuteTool_UnknownTool(t *testing.T) {
	src := &fakeSource{tools: []*tool.Tool{echoTool("echo")}}
	b := echoBuilder()
	aud := &recordingAuditor{}
	reg := newTestRegistry(src, b, aud)

	for _, name := range []string{"missing", "Echo", "echo "} {
		_, err := reg.ExecuteTool(context.Background(), name, nil)
		require.Error(t, err)
		assert.Equal(t, tool.KindUnknownTool, tool.KindOf(err))
		assert.Equal(t, "Tool '"+name+"' is not recognized by this server.", errMessage(t, err))
	}
	assert.Equal(t, int32(0), b.builds.Load(), "unknown tools must not reach the builder")

	rec := aud.last(t)
	assert.True(t, rec.IsError)
	assert.Equal(t, "unknown_tool", rec.ErrorType)
}

func TestRegistry_ExecuteTool_InactiveToolIsUnknown(t *testing.T) {
	inactive := echoTool("hidden")
	inactive.Active = false
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{inactive}}, echoBuilder(), nil)

	_, err := reg.ExecuteTool(context.Background(), "hidden", nil)
	assert.Equal(t, tool.KindUnknownTool, tool.KindOf(err))
	assert.False(t, reg.HasTool(context.Background(), "hidden"))
}

func TestRegistry_ExecuteTool_HandlerMisconfigured(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *tool.Tool) (tool.Executor, error)
	}{
		{
			name:  "build error",
			build: func(t *tool.Tool) (tool.Executor, error) { return nil, errors.New("no such handler") },
		},
		{
			name:  "nil executor",
			build: func(t *tool.Tool) (tool.Executor, error) { return nil, nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aud := &recordingAuditor{}
			reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, &fakeBuilder{build: tt.build}, aud)

			_, err := reg.ExecuteTool(context.Background(), "echo", nil)
			require.Error(t, err)
			assert.Equal(t, tool.KindHandlerMisconfigured, tool.KindOf(err))
			assert.Equal(t, "Tool 'echo' is not correctly configured on this server.", errMessage(t, err))
			assert.NotEmpty(t, aud.last(t).ErrorDetail)
		})
	}
}

func TestRegistry_ExecuteTool_InvalidInput(t *testing.T) {
	b := &fakeBuilder{build: func(rec *tool.Tool) (tool.Executor, error) {
		return &fakeExecutor{
			record: rec,
			validate: func(input map[string]interface{}) error {
				if _, ok := input["message"]; !ok {
					return tool.InvalidInput("Missing required parameter: %s", "message")
				}
				return nil
			},
			execute: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				t.Fatalf("execute must not run on invalid input")
				return nil, nil
			},
		}, nil
	}}
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, b, nil)

	_, err := reg.ExecuteTool(context.Background(), "echo", map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, tool.KindInvalidInput, tool.KindOf(err))
	assert.Equal(t, "Missing required parameter: message", errMessage(t, err))
}

func TestRegistry_ExecuteTool_PlainValidationErrorBecomesInvalidInput(t *testing.T) {
	b := &fakeBuilder{build: func(t *tool.Tool) (tool.Executor, error) {
		return &fakeExecutor{
			record:   t,
			validate: func(map[string]interface{}) error { return errors.New("bad shape") },
		}, nil
	}}
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, b, nil)

	_, err := reg.ExecuteTool(context.Background(), "echo", nil)
	assert.Equal(t, tool.KindInvalidInput, tool.KindOf(err))
	assert.Equal(t, "bad shape", errMessage(t, err))
}

func TestRegistry_ExecuteTool_ValidationPanicIsExecutionError(t *testing.T) {
	b := &fakeBuilder{build: func(rec *tool.Tool) (tool.Executor, error) {
		return &fakeExecutor{
			record: rec,
			validate: func(map[string]interface{}) error {
				var seen map[string]bool
				seen["message"] = true
				return nil
			},
			execute: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				t.Fatalf("execute must not run after a validation panic")
				return nil, nil
			},
		}, nil
	}}
	aud := &recordingAuditor{}
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, b, aud)

	_, err := reg.ExecuteTool(context.Background(), "echo", nil)
	require.Error(t, err)
	assert.Equal(t, tool.KindExecutionError, tool.KindOf(err))
	assert.Equal(t, "An unexpected error occurred while running tool 'echo'.", errMessage(t, err))
	assert.NotContains(t, errMessage(t, err), "nil map")

	rec := aud.last(t)
	assert.Equal(t, string(tool.KindExecutionError), rec.ErrorType)
	assert.Contains(t, rec.ErrorDetail, "nil map")
}

func TestRegistry_ExecuteTool_UnencodableOutputIsExecutionError(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBuilder{build: func(rec *tool.Tool) (tool.Executor, error) {
				return &fakeExecutor{record: rec, execute: func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
					return map[string]interface{}{"result": tt.value}, nil
				}}, nil
			}}
			aud := &recordingAuditor{}
			reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, b, aud)

			out, err := reg.ExecuteTool(context.Background(), "echo", nil)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tool.KindExecutionError, tool.KindOf(err))

			rec := aud.last(t)
			assert.True(t, rec.IsError)
			assert.Nil(t, rec.ToolOutput)
		})
	}
}

func TestRegistry_ExecuteTool_ExecutionErrors(t *testing.T) {
	tests := []struct {
		name     string
		execute  func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
		wantKind tool.ErrorKind
		wantMsg  string
	}{
		{
			name: "plain error is hidden",
			execute: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				return nil, errors.New("disk on fire")
			},
			wantKind: tool.KindExecutionError,
			wantMsg:  "An unexpected error occurred while running tool 'echo'.",
		},
		{
			name: "panic is recovered",
			execute: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				panic("boom")
			},
			wantKind: tool.KindExecutionError,
			wantMsg:  "An unexpected error occurred while running tool 'echo'.",
		},
		{
			name: "invalid input keeps its message",
			execute: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				return nil, tool.InvalidInput("Cannot divide by zero.")
			},
			wantKind: tool.KindInvalidInput,
			wantMsg:  "Cannot divide by zero.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBuilder{build: func(rec *tool.Tool) (tool.Executor, error) {
				return &fakeExecutor{record: rec, execute: tt.execute}, nil
			}}
			aud := &recordingAuditor{}
			reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, b, aud)

			out, err := reg.ExecuteTool(context.Background(), "echo", nil)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tt.wantKind, tool.KindOf(err))
			assert.Equal(t, tt.wantMsg, errMessage(t, err))

			rec := aud.last(t)
			assert.Equal(t, string(tt.wantKind), rec.ErrorType)
			assert.Equal(t, tt.wantMsg, rec.ErrorMessage)
		})
	}
}

func TestRegistry_ExecuteTool_ExecutionErrorKeepsCause(t *testing.T) {
	cause := errors.New("disk on fire")
	b := &fakeBuilder{build: func(rec *tool.Tool) (tool.Executor, error) {
		return &fakeExecutor{record: rec, execute: func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
			return nil, cause
		}}, nil
	}}
	aud := &recordingAuditor{}
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, b, aud)

	_, err := reg.ExecuteTool(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, errMessage(t, err), "disk on fire")
	assert.Contains(t, aud.last(t).ErrorDetail, "disk on fire")
}

func TestRegistry_ExecuteTool_NilOutputBecomesEmptyMap(t *testing.T) {
	b := &fakeBuilder{build: func(rec *tool.Tool) (tool.Executor, error) {
		return &fakeExecutor{record: rec, execute: func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
			return nil, nil
		}}, nil
	}}
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, b, nil)

	out, err := reg.ExecuteTool(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestRegistry_InstancesAreMemoized(t *testing.T) {
	src := &fakeSource{tools: []*tool.Tool{echoTool("echo")}}
	b := echoBuilder()
	inv := &countingInvalidator{}
	reg := newTestRegistry(src, b, nil, inv)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := reg.ExecuteTool(ctx, "echo", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), b.builds.Load())

	reg.Refresh()
	_, err := reg.ExecuteTool(ctx, "echo", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.builds.Load())
	assert.Equal(t, int32(1), inv.n.Load())
}

func TestRegistry_SnapshotIsCachedUntilRefresh(t *testing.T) {
	src := &fakeSource{tools: []*tool.Tool{echoTool("echo")}}
	reg := newTestRegistry(src, echoBuilder(), nil)
	ctx := context.Background()

	assert.True(t, reg.HasTool(ctx, "echo"))
	src.set(echoTool("echo"), echoTool("added"))
	assert.False(t, reg.HasTool(ctx, "added"), "cached list is served until refresh")

	reg.Refresh()
	assert.True(t, reg.HasTool(ctx, "added"))
	assert.Equal(t, 2, src.calls)
}

func TestRegistry_ZeroTTLAlwaysReloads(t *testing.T) {
	src := &fakeSource{tools: []*tool.Tool{echoTool("echo")}}
	reg := NewRegistry(src, echoBuilder(), Options{CacheTTL: 0})
	ctx := context.Background()

	assert.True(t, reg.HasTool(ctx, "echo"))
	src.set(echoTool("other"))
	assert.False(t, reg.HasTool(ctx, "echo"))
	assert.True(t, reg.HasTool(ctx, "other"))
}

func TestRegistry_GetTool(t *testing.T) {
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, echoBuilder(), nil)
	ctx := context.Background()

	got, err := reg.GetTool(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", got.Name)

	got.Name = "mutated"
	again, err := reg.GetTool(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", again.Name)

	_, err = reg.GetTool(ctx, "nope")
	assert.Equal(t, tool.KindUnknownTool, tool.KindOf(err))
}

func TestRegistry_SourceFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	reg := newTestRegistry(src, echoBuilder(), nil)
	ctx := context.Background()

	assert.False(t, reg.HasTool(ctx, "echo"))
	_, err := reg.ExecuteTool(ctx, "echo", nil)
	assert.Equal(t, tool.KindExecutionError, tool.KindOf(err))
	_, err = reg.ListForDiscovery(ctx)
	assert.Error(t, err)
}

func TestRegistry_ListForDiscovery(t *testing.T) {
	second := echoTool("second")
	second.InputSchema = nil
	src := &fakeSource{tools: []*tool.Tool{echoTool("zeta"), echoTool("alpha"), second}}
	reg := newTestRegistry(src, echoBuilder(), nil)

	listing, err := reg.ListForDiscovery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "second"}, listing.Names())

	entry, ok := listing.Get("second")
	require.True(t, ok)
	assert.NotNil(t, entry.InputSchema)

	data, err := json.Marshal(listing)
	require.NoError(t, err)
	assert.Regexp(t, `^\{"zeta":\{"name":"zeta".*\},"alpha":\{.*\},"second":\{.*\}\}$`, string(data))
}

func TestRegistry_ListForDiscoveryKeepsUnbuildableTools(t *testing.T) {
	b := &fakeBuilder{build: func(*tool.Tool) (tool.Executor, error) { return nil, errors.New("broken") }}
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, b, nil)

	listing, err := reg.ListForDiscovery(context.Background())
	require.NoError(t, err)
	entry, ok := listing.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo echo", entry.Description)
}

func TestRegistry_Statistics(t *testing.T) {
	inactive := echoTool("off")
	inactive.Active = false
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("a"), echoTool("b"), inactive}}, echoBuilder(), nil)
	ctx := context.Background()

	_, err := reg.ExecuteTool(ctx, "a", nil)
	require.NoError(t, err)

	stats, err := reg.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, Statistics{Total: 3, Active: 2, Inactive: 1, Built: 1}, stats)
}

func TestRegistry_AuditCarriesRequestInfo(t *testing.T) {
	aud := &recordingAuditor{}
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, echoBuilder(), aud)

	ctx := ContextWithRequestInfo(context.Background(), &RequestInfo{
		Source:     "http",
		RequestIP:  "10.0.0.1",
		RawRequest: `{"tool_name":"echo"}`,
	})
	_, err := reg.ExecuteTool(ctx, "echo", nil)
	require.NoError(t, err)

	rec := aud.last(t)
	assert.Equal(t, "http", rec.Source)
	assert.Equal(t, "10.0.0.1", rec.RequestIP)
	assert.Equal(t, `{"tool_name":"echo"}`, rec.RawRequest)
	assert.Equal(t, map[string]interface{}{}, rec.ToolInput)
}

func TestRegistry_AuditorFailureDoesNotFailCall(t *testing.T) {
	failing := AuditorFunc(func(context.Context, *RunRecord) error { return errors.New("log store full") })
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, echoBuilder(), failing)

	_, err := reg.ExecuteTool(context.Background(), "echo", nil)
	assert.NoError(t, err)
}

func TestRegistry_ConcurrentExecute(t *testing.T) {
	b := echoBuilder()
	aud := &recordingAuditor{}
	reg := newTestRegistry(&fakeSource{tools: []*tool.Tool{echoTool("echo")}}, b, aud)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.ExecuteTool(context.Background(), "echo", map[string]interface{}{"message": "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.builds.Load())
	assert.Len(t, aud.records, 32)
}

func TestMultiAuditor(t *testing.T) {
	first := &recordingAuditor{}
	second := &recordingAuditor{}
	boom := errors.New("boom")
	multi := MultiAuditor{first, nil, AuditorFunc(func(context.Context, *RunRecord) error { return boom }), second}

	err := multi.Record(context.Background(), &RunRecord{ToolName: "echo"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.records, 1)
	assert.Len(t, second.records, 1)
}

func TestRequestInfoFromContext(t *testing.T) {
	assert.Nil(t, RequestInfoFromContext(context.Background()))
	ctx := ContextWithRequestInfo(context.Background(), nil)
	assert.Nil(t, RequestInfoFromContext(ctx))
}

func errMessage(t *testing.T, err error) string {
	t.Helper()
	te, ok := tool.AsError(err)
	require.True(t, ok, "expected a classified error, got %v", err)
	return te.Message
}
