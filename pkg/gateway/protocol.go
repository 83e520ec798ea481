package gateway

import "context"

// jsonRPCVersion is stamped on every response
const jsonRPCVersion = "2.0"

// JSON-RPC 2.0 error codes, plus the gateway's own in the -32000 range
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	MethodNotFound         = -32601
	InvalidParams          = -32602
	InternalError          = -32603
	AuthenticationRequired = -32001
	RateLimitExceeded      = -32005
	TooManyConcurrent      = -32006
	IdempotencyConflict    = -32009
)

// RPCRequest is a JSON-RPC 2.0 request. IdempotencyKey is an extension:
// a repeated key with identical params replays the first response.
type RPCRequest struct {
	ID             string                 `json:"id"`
	Method         string                 `json:"method"`
	Params         map[string]interface{} `json:"params,omitempty"`
	JSONRPC        string                 `json:"jsonrpc"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
}

// RPCResponse carries exactly one of Result and Error
type RPCResponse struct {
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError is both the wire error object and a Go error, so method
// handlers can return one to pick the code.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// RequestHandler serves one method. Returning an *RPCError selects the
// error code; any other error is reported as a generic InternalError.
type RequestHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

func resultResponse(id string, result interface{}) *RPCResponse {
	return &RPCResponse{ID: id, JSONRPC: jsonRPCVersion, Result: result}
}

func errorResponse(id string, err *RPCError) *RPCResponse {
	return &RPCResponse{ID: id, JSONRPC: jsonRPCVersion, Error: err}
}

// Auth frames. A client with no shared secret configured receives an
// auth.success frame straight away.
type (
	AuthChallenge struct {
		Event     string `json:"event"`
		Challenge string `json:"challenge"`
	}

	AuthResponse struct {
		Method    string `json:"method"`
		Signature string `json:"signature"`
	}

	AuthResult struct {
		Event   string `json:"event"`
		Success bool   `json:"success,omitempty"`
		Message string `json:"message,omitempty"`
	}
)
