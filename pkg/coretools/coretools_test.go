package coretools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhub/pkg/tool"
)

type recordingRegistrar struct {
	refs      []string
	failOnRef string
}

func (r *recordingRegistrar) Register(ref string, factory tool.Factory) error {
	if ref == r.failOnRef {
		return errors.New("duplicate")
	}
	r.refs = append(r.refs, ref)
	return nil
}

func toolByName(t *testing.T, name string) *tool.Tool {
	t.Helper()
	for _, tl := range Tools() {
		if tl.Name == name {
			return tl
		}
	}
	t.Fatalf("no built-in tool %q", name)
	return nil
}

func assertInvalidInput(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	te, ok := tool.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tool.KindInvalidInput, te.Kind)
	assert.Equal(t, msg, te.Message)
}

func TestRegister(t *testing.T) {
	r := &recordingRegistrar{}
	require.NoError(t, Register(r))
	assert.Equal(t, []string{CalculatorRef, DateTimeRef, EchoRef}, r.refs)

	err := Register(&recordingRegistrar{failOnRef: EchoRef})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), EchoRef)
}

func TestHandlersAndToolsAgree(t *testing.T) {
	refs := map[string]bool{}
	for _, h := range Handlers() {
		assert.True(t, h.BuiltIn)
		assert.Equal(t, tool.KindInProcess, h.Kind)
		refs[h.Ref()] = true
	}
	for _, tl := range Tools() {
		assert.True(t, refs[tl.Handler], "tool %s points at unknown handler %s", tl.Name, tl.Handler)
	}
}

func TestCalculator(t *testing.T) {
	exec, err := NewCalculator(toolByName(t, "calculator"))
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name   string
		input  map[string]interface{}
		want   float64
		errMsg string
	}{
		{name: "add", input: map[string]interface{}{"operation": "add", "a": 5.0, "b": 3.0}, want: 8},
		{name: "subtract", input: map[string]interface{}{"operation": "subtract", "a": 5.0, "b": 3.0}, want: 2},
		{name: "multiply", input: map[string]interface{}{"operation": "multiply", "a": 4.0, "b": 2.5}, want: 10},
		{name: "divide", input: map[string]interface{}{"operation": "divide", "a": 10.0, "b": 4.0}, want: 2.5},
		{name: "numeric strings", input: map[string]interface{}{"operation": "add", "a": "1.5", "b": 2}, want: 3.5},
		{name: "divide by zero", input: map[string]interface{}{"operation": "divide", "a": 10.0, "b": 0.0}, errMsg: "Cannot divide by zero."},
		{name: "unknown operation", input: map[string]interface{}{"operation": "power", "a": 2.0, "b": 3.0},
			errMsg: "Parameter 'operation' must be one of: add, subtract, multiply, divide"},
		{name: "missing operand", input: map[string]interface{}{"operation": "add", "a": 1.0}, errMsg: "Missing required parameter: b"},
		{name: "NaN operand", input: map[string]interface{}{"operation": "add", "a": "NaN", "b": 1.0}, errMsg: "Parameter 'a' must be numeric"},
		{name: "Inf operand", input: map[string]interface{}{"operation": "add", "a": 1.0, "b": "Inf"}, errMsg: "Parameter 'b' must be numeric"},
		{name: "overflow", input: map[string]interface{}{"operation": "multiply", "a": 1e308, "b": 10.0}, errMsg: "Result of multiply is out of range."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := exec.Execute(ctx, tt.input)
			if tt.errMsg != "" {
				assertInvalidInput(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, map[string]interface{}{"result": tt.want}, out)
		})
	}
}

func TestCalculator_ValidateInputRejectsEnum(t *testing.T) {
	exec, err := NewCalculator(toolByName(t, "calculator"))
	require.NoError(t, err)

	err = exec.ValidateInput(context.Background(), map[string]interface{}{"operation": "power", "a": 2.0, "b": 3.0})
	assertInvalidInput(t, err, "Parameter 'operation' must be one of: add, subtract, multiply, divide")

	err = exec.ValidateInput(context.Background(), map[string]interface{}{"operation": "add", "a": "x", "b": 3.0})
	assertInvalidInput(t, err, "Parameter 'a' must be number")

	err = exec.ValidateInput(context.Background(), map[string]interface{}{"operation": "add", "a": "infinity", "b": 3.0})
	assertInvalidInput(t, err, "Parameter 'a' must be number")
}

func TestCalculator_Metadata(t *testing.T) {
	exec, err := NewCalculator(toolByName(t, "calculator"))
	require.NoError(t, err)

	assert.Equal(t, "calculator", exec.Name())
	assert.NotEmpty(t, exec.Description())
	assert.Contains(t, exec.InputSchema(), "properties")
	assert.Empty(t, exec.Settings())
}

func TestBase_DefaultSchemaWhenToolHasNone(t *testing.T) {
	exec, err := NewEcho(&tool.Tool{Name: "bare_echo"})
	require.NoError(t, err)

	assert.Equal(t, echoSchema(), exec.InputSchema())
	err = exec.ValidateInput(context.Background(), map[string]interface{}{})
	assertInvalidInput(t, err, "Missing required parameter: message")
}

func TestDateTime(t *testing.T) {
	exec, err := NewDateTime(toolByName(t, "get_current_datetime"))
	require.NoError(t, err)
	dt := exec.(*DateTime)
	fixed := time.Date(2024, 3, 10, 12, 30, 45, 0, time.UTC)
	dt.now = func() time.Time { return fixed }

	out, err := dt.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10T12:30:45+00:00", out["datetime_iso8601"])
	assert.Equal(t, "UTC", out["timezone"])
	assert.Equal(t, fixed.Unix(), out["timestamp"])
	assert.Equal(t, "2024-03-10 12:30:45 UTC", out["formatted"])

	out, err = dt.Execute(context.Background(), map[string]interface{}{"timezone": "Asia/Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10T21:30:45+09:00", out["datetime_iso8601"])
	assert.Equal(t, "Asia/Tokyo", out["timezone"])
	assert.Equal(t, fixed.Unix(), out["timestamp"])
}

func TestDateTime_InvalidTimezone(t *testing.T) {
	exec, err := NewDateTime(toolByName(t, "get_current_datetime"))
	require.NoError(t, err)

	for _, tz := range []string{"Mars/Olympus", "Local"} {
		_, err = exec.Execute(context.Background(), map[string]interface{}{"timezone": tz})
		assertInvalidInput(t, err, "Invalid timezone: "+tz+". Please use a valid IANA timezone identifier.")
	}
}

func TestEcho(t *testing.T) {
	exec, err := NewEcho(toolByName(t, "echo"))
	require.NoError(t, err)

	out, err := exec.Execute(context.Background(), map[string]interface{}{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echoed_message"])
	assert.Equal(t, 2, out["length"])
	assert.NotEmpty(t, out["timestamp"])

	_, err = exec.Execute(context.Background(), map[string]interface{}{"message": 5})
	assertInvalidInput(t, err, "Parameter 'message' must be a string")
}

func TestEcho_Idempotent(t *testing.T) {
	exec, err := NewEcho(toolByName(t, "echo"))
	require.NoError(t, err)

	first, err := exec.Execute(context.Background(), map[string]interface{}{"message": "hi"})
	require.NoError(t, err)
	second, err := exec.Execute(context.Background(), map[string]interface{}{"message": "hi"})
	require.NoError(t, err)

	delete(first, "timestamp")
	delete(second, "timestamp")
	assert.Equal(t, first, second)
}

func TestEcho_Delay(t *testing.T) {
	exec, err := NewEcho(toolByName(t, "echo"))
	require.NoError(t, err)
	echo := exec.(*Echo)

	var slept []time.Duration
	echo.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	inputs := []interface{}{1.5, 0.0, -1.0, 6.0, 5.0}
	for _, delay := range inputs {
		_, err := echo.Execute(context.Background(), map[string]interface{}{"message": "x", "delay": delay})
		require.NoError(t, err)
	}

	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 5 * time.Second}, slept)
}

func TestEcho_DelayHonoursMaxDelaySetting(t *testing.T) {
	record := toolByName(t, "echo")
	record.Settings = map[string]interface{}{"max_delay": 1}
	exec, err := NewEcho(record)
	require.NoError(t, err)
	echo := exec.(*Echo)

	called := false
	echo.sleep = func(ctx context.Context, d time.Duration) error {
		called = true
		return nil
	}

	_, err = echo.Execute(context.Background(), map[string]interface{}{"message": "x", "delay": 2.0})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestEcho_DelayCanceled(t *testing.T) {
	exec, err := NewEcho(toolByName(t, "echo"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = exec.Execute(ctx, map[string]interface{}{"message": "x", "delay": 1.0})
	assert.ErrorIs(t, err, context.Canceled)
}
