// Package mcpserver publishes the tool registry to MCP clients over stdio
// or SSE using the official Go SDK.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/harun/toolhub/internal/tracing"
	"github.com/harun/toolhub/pkg/tool"
	"github.com/harun/toolhub/pkg/toolexecutor"
)

// ServerName is reported to MCP clients during initialization
const ServerName = "toolhub"

// Registry is the part of toolexecutor.Registry the bridge needs
type Registry interface {
	ExecuteTool(ctx context.Context, name string, input map[string]interface{}) (map[string]interface{}, error)
	ListForDiscovery(ctx context.Context) (toolexecutor.Discovery, error)
}

// Bridge mirrors the registry's active tools onto an mcp.Server
type Bridge struct {
	registry Registry
	server   *mcp.Server
	logger   zerolog.Logger

	mu        sync.Mutex
	published map[string]struct{}
}

// New creates a bridge. Call Sync before serving.
func New(registry Registry, version string, logger zerolog.Logger) (*Bridge, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if version == "" {
		version = "dev"
	}

	return &Bridge{
		registry:  registry,
		server:    mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil),
		logger:    logger,
		published: make(map[string]struct{}),
	}, nil
}

// Server returns the underlying MCP server
func (b *Bridge) Server() *mcp.Server {
	return b.server
}

// Sync publishes every tool in the registry's discovery listing and
// withdraws tools that are gone. Connected sessions are notified by the
// SDK. It returns the published tool names.
func (b *Bridge) Sync(ctx context.Context) ([]string, error) {
	discovery, err := b.registry.ListForDiscovery(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := make(map[string]struct{}, len(discovery))
	for _, entry := range discovery {
		current[entry.Name] = struct{}{}
		b.server.AddTool(&mcp.Tool{
			Name:        entry.Name,
			Description: entry.Description,
			InputSchema: objectSchema(entry.InputSchema),
		}, b.callTool(entry.Name))
	}

	var stale []string
	for name := range b.published {
		if _, ok := current[name]; !ok {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		b.server.RemoveTools(stale...)
	}
	b.published = current

	b.logger.Debug().Int("tools", len(current)).Strs("removed", stale).Msg("MCP tools synced")
	return discovery.Names(), nil
}

// Published returns the names currently exposed, sorted
func (b *Bridge) Published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.published))
	for name := range b.published {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SSEHandler serves the MCP SSE transport
func (b *Bridge) SSEHandler() http.Handler {
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return b.server }, nil)
}

// ServeStdio runs one MCP session over stdin/stdout until ctx is done or
// the client disconnects.
func (b *Bridge) ServeStdio(ctx context.Context) error {
	b.logger.Info().Msg("Serving MCP over stdio")
	return b.server.Run(ctx, &mcp.StdioTransport{})
}

// callTool returns the SDK handler for one tool. Tool failures come back
// as IsError results carrying the same error_type and error_message as the
// HTTP surface; they are never protocol errors.
func (b *Bridge) callTool(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw []byte
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}

		ctx = tracing.WithSource(ctx, "mcp")
		ctx = toolexecutor.ContextWithRequestInfo(ctx, &toolexecutor.RequestInfo{
			Source:     "mcp",
			RawRequest: string(raw),
		})

		output, err := b.registry.ExecuteTool(ctx, name, decodeArguments(raw))
		if err != nil {
			return errorResult(name, err), nil
		}

		text, err := json.Marshal(output)
		if err != nil {
			return errorResult(name, tool.ExecutionError(name, err)), nil
		}
		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
			StructuredContent: output,
		}, nil
	}
}

func errorResult(name string, err error) *mcp.CallToolResult {
	te, ok := tool.AsError(err)
	if !ok {
		te = tool.ExecutionError(name, err)
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: te.Message}},
		StructuredContent: map[string]interface{}{
			"error_type":    string(te.Kind),
			"error_message": te.Message,
		},
	}
}

// decodeArguments treats missing, null and non-object arguments as {}
func decodeArguments(raw []byte) map[string]interface{} {
	input := map[string]interface{}{}
	if len(raw) == 0 {
		return input
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return input
	}
	if m, ok := decoded.(map[string]interface{}); ok {
		return m
	}
	return input
}

// objectSchema copies schema and makes sure it declares type object, which
// the SDK requires of every tool.
func objectSchema(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}
	out["type"] = "object"
	return out
}
