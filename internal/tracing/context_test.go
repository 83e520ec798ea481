package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestNewRunID(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()

	if id1 == "" {
		t.Error("NewRunID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewRunID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace")
	ctx = WithRunID(ctx, "run")
	ctx = WithToolName(ctx, "echo")
	ctx = WithSource(ctx, "http")
	ctx = WithRequestID(ctx, "req")

	if got := GetTraceID(ctx); got != "trace" {
		t.Errorf("Expected trace, got %s", got)
	}
	if got := GetRunID(ctx); got != "run" {
		t.Errorf("Expected run, got %s", got)
	}
	if got := GetToolName(ctx); got != "echo" {
		t.Errorf("Expected echo, got %s", got)
	}
	if got := GetSource(ctx); got != "http" {
		t.Errorf("Expected http, got %s", got)
	}
	if got := GetRequestID(ctx); got != "req" {
		t.Errorf("Expected req, got %s", got)
	}
}

func TestGettersEmpty(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" || GetRunID(ctx) != "" || GetToolName(ctx) != "" ||
		GetSource(ctx) != "" || GetRequestID(ctx) != "" {
		t.Error("Expected empty values from a bare context")
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithToolName(ctx, "calculator")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-123" {
		t.Errorf("Expected trace-123, got %s", tc.TraceID)
	}
	if tc.ToolName != "calculator" {
		t.Errorf("Expected calculator, got %s", tc.ToolName)
	}
	if tc.RunID != "" {
		t.Errorf("Expected empty run ID, got %s", tc.RunID)
	}
}

func TestNewContext(t *testing.T) {
	tc := &TraceContext{
		TraceID:   "trace-123",
		RunID:     "run-456",
		ToolName:  "echo",
		Source:    "gateway",
		RequestID: "req-1",
	}

	got := FromContext(NewContext(context.Background(), tc))
	if *got != *tc {
		t.Errorf("Expected %+v, got %+v", *tc, *got)
	}
}

func TestNewContextPartial(t *testing.T) {
	ctx := NewContext(context.Background(), &TraceContext{TraceID: "trace-only"})

	if GetTraceID(ctx) != "trace-only" {
		t.Error("Trace ID not set")
	}
	if GetRunID(ctx) != "" {
		t.Error("Run ID should be empty")
	}
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())
	if GetTraceID(ctx) == "" {
		t.Error("Trace ID not generated")
	}
}

func TestNewToolRunContext(t *testing.T) {
	parent := WithTraceID(context.Background(), "trace-1")

	ctx1 := NewToolRunContext(parent, "echo")
	ctx2 := NewToolRunContext(parent, "echo")

	if GetToolName(ctx1) != "echo" {
		t.Error("Tool name not set")
	}
	if GetRunID(ctx1) == "" || GetRunID(ctx1) == GetRunID(ctx2) {
		t.Error("Each run should get a distinct run ID")
	}
	if GetTraceID(ctx1) != "trace-1" {
		t.Error("Trace ID should be inherited")
	}
}
