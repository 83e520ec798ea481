package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolhub/pkg/tool"
	"github.com/harun/toolhub/pkg/toolexecutor"
)

// InvalidRequestMessage is returned for malformed run_tool bodies
const InvalidRequestMessage = "Request must include tool_name (string) and tool_input (object)."

// EncodeFailureMessage is returned when a reply cannot be encoded as JSON
const EncodeFailureMessage = "An unexpected error occurred while encoding the response."

// RunToolResponse is the body of every run_tool reply
type RunToolResponse struct {
	ToolOutput   map[string]interface{} `json:"tool_output"`
	IsError      bool                   `json:"is_error"`
	ErrorType    string                 `json:"error_type,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes))
	ctx := toolexecutor.ContextWithRequestInfo(r.Context(), &toolexecutor.RequestInfo{
		Source:     "http",
		RequestIP:  clientIP(r),
		RawRequest: string(body),
	})

	var payload map[string]interface{}
	if err == nil {
		err = json.Unmarshal(body, &payload)
	}
	name, nameOK := payload["tool_name"].(string)
	rawInput, inputPresent := payload["tool_input"]

	if err != nil || !nameOK || !inputPresent {
		rec := &toolexecutor.RunRecord{
			ToolName:        "unknown",
			IsError:         true,
			ErrorType:       string(tool.KindInvalidRequest),
			ErrorMessage:    InvalidRequestMessage,
			ExecutionTimeMS: float64(time.Since(start).Nanoseconds()) / 1e6,
		}
		if nameOK {
			rec.ToolName = name
		}
		if input, ok := rawInput.(map[string]interface{}); ok {
			rec.ToolInput = input
		}
		if err != nil {
			rec.ErrorDetail = err.Error()
		}
		s.registry.Audit(ctx, rec)

		s.logger.Warn().Str("ip", clientIP(r)).Msg("Invalid run_tool request")
		writeJSON(w, http.StatusBadRequest, RunToolResponse{
			IsError:      true,
			ErrorType:    string(tool.KindInvalidRequest),
			ErrorMessage: InvalidRequestMessage,
		})
		return
	}

	input, ok := rawInput.(map[string]interface{})
	if !ok {
		input = map[string]interface{}{}
	}

	output, err := s.registry.ExecuteTool(ctx, name, input)
	if err != nil {
		resp := RunToolResponse{IsError: true}
		if te, ok := tool.AsError(err); ok {
			resp.ErrorType = string(te.Kind)
			resp.ErrorMessage = te.Message
		} else {
			resp.ErrorType = string(tool.KindExecutionError)
			resp.ErrorMessage = tool.ExecutionError(name, err).Message
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeJSON(w, http.StatusOK, RunToolResponse{ToolOutput: output})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.registry.ListForDiscovery(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list tools")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to list tools"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

// writeJSON encodes v before touching the response so an unencodable body
// turns into a 500 rather than an empty reply under a success status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		status = http.StatusInternalServerError
		body, _ = json.Marshal(RunToolResponse{
			IsError:      true,
			ErrorType:    string(tool.KindExecutionError),
			ErrorMessage: EncodeFailureMessage,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
