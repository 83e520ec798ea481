package gateway

import (
	"context"
	"time"

	"github.com/harun/toolhub/internal/tracing"
	"github.com/harun/toolhub/pkg/tool"
	"github.com/harun/toolhub/pkg/toolexecutor"
)

// RunResult is the tools.run result. Tool failures are reported here
// rather than as JSON-RPC errors, the same way /mcp/run_tool reports them.
type RunResult struct {
	ToolOutput   map[string]interface{} `json:"tool_output"`
	IsError      bool                   `json:"is_error"`
	ErrorType    string                 `json:"error_type,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.router.Handle("tools.list", s.handleToolsList)
	_ = s.router.Handle("tools.run", s.handleToolsRun)
	_ = s.router.Handle("tools.refresh", s.handleToolsRefresh)
	_ = s.router.Handle("gateway.clients", s.handleGatewayClients)
}

func (s *Server) handleToolsList(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	discovery, err := s.registry.ListForDiscovery(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tools": discovery}, nil
}

// handleToolsRun expects {"name": string, "input": object}. A missing or
// non-object input runs with {}.
func (s *Server) handleToolsRun(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	start := time.Now()

	name, ok := params["name"].(string)
	if !ok || name == "" {
		s.registry.Audit(ctx, &toolexecutor.RunRecord{
			ToolName:        "unknown",
			IsError:         true,
			ErrorType:       string(tool.KindInvalidRequest),
			ErrorMessage:    "name parameter is required and must be a string",
			ExecutionTimeMS: float64(time.Since(start).Nanoseconds()) / 1e6,
		})
		return nil, &RPCError{
			Code:    InvalidParams,
			Message: "name parameter is required and must be a string",
		}
	}

	input, ok := params["input"].(map[string]interface{})
	if !ok {
		input = map[string]interface{}{}
	}

	from := callerFrom(ctx)
	if from.clientID != "" {
		s.clients.recordRun(from.clientID, name)
	}
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().Str("clientId", from.clientID).Str("tool", name).Msg("Gateway tool run")

	output, err := s.registry.ExecuteTool(ctx, name, input)
	if err != nil {
		result := RunResult{IsError: true}
		if te, ok := tool.AsError(err); ok {
			result.ErrorType = string(te.Kind)
			result.ErrorMessage = te.Message
		} else {
			result.ErrorType = string(tool.KindExecutionError)
			result.ErrorMessage = tool.ExecutionError(name, err).Message
		}
		return result, nil
	}

	return RunResult{ToolOutput: output}, nil
}

func (s *Server) handleToolsRefresh(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	s.registry.Refresh()
	names, err := s.NotifyToolsChanged(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"refreshed": true,
		"tools":     names,
	}, nil
}

func (s *Server) handleGatewayClients(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"clients": s.clients.infos()}, nil
}

// NotifyToolsChanged broadcasts the current tool names to every
// authenticated client and returns them.
func (s *Server) NotifyToolsChanged(ctx context.Context) ([]string, error) {
	discovery, err := s.registry.ListForDiscovery(ctx)
	if err != nil {
		return nil, err
	}
	names := discovery.Names()
	s.broadcaster.toolsChanged(names)
	return names, nil
}
