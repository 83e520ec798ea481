package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultReplayTTL is how long an idempotent response is replayed
const DefaultReplayTTL = 5 * time.Minute

// Router maps method names to handlers and replays idempotent calls
type Router struct {
	mu      sync.RWMutex
	methods map[string]RequestHandler
	replays *replayCache
	logger  zerolog.Logger
}

// NewRouter creates an empty router
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		methods: make(map[string]RequestHandler),
		replays: newReplayCache(DefaultReplayTTL),
		logger:  logger,
	}
}

// Handle registers h for method, replacing any previous handler
func (r *Router) Handle(method string, h RequestHandler) error {
	if h == nil {
		return fmt.Errorf("handler for %s cannot be nil", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = h
	return nil
}

// Remove drops method
func (r *Router) Remove(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.methods, method)
}

// Has reports whether method is registered
func (r *Router) Has(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.methods[method]
	return ok
}

// Methods returns the registered names, sorted
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse decodes one request frame. The returned error is always an
// *RPCError.
func (r *Router) Parse(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}

	switch {
	case req.ID == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	case req.Method == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	case req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion:
		return nil, &RPCError{Code: InvalidRequest, Message: fmt.Sprintf("Invalid request: unsupported jsonrpc version %q", req.JSONRPC)}
	}

	req.JSONRPC = jsonRPCVersion
	return &req, nil
}

// Dispatch runs req and returns its response. A request carrying an
// idempotency key replays the stored response when its params match the
// first call, and fails with IdempotencyConflict when they do not.
func (r *Router) Dispatch(ctx context.Context, req *RPCRequest) *RPCResponse {
	if req == nil {
		return errorResponse("", &RPCError{Code: InvalidRequest, Message: "invalid request"})
	}

	params := req.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	var replayKey, fingerprint string
	if req.IdempotencyKey != "" {
		replayKey = req.Method + ":" + req.IdempotencyKey
		fingerprint = paramsFingerprint(params)
		if stored, found, conflict := r.replays.get(replayKey, fingerprint); conflict {
			return errorResponse(req.ID, &RPCError{
				Code:    IdempotencyConflict,
				Message: "idempotency key was already used with different params",
			})
		} else if found {
			stored.ID = req.ID
			return &stored
		}
	}

	r.mu.RLock()
	h, ok := r.methods[req.Method]
	r.mu.RUnlock()
	if !ok {
		return errorResponse(req.ID, &RPCError{Code: MethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)})
	}

	result, err := h(ctx, params)
	var resp *RPCResponse
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			r.logger.Error().Err(err).Str("method", req.Method).Str("rpc_id", req.ID).Msg("Gateway method failed")
			rpcErr = &RPCError{Code: InternalError, Message: "Internal error"}
		}
		resp = errorResponse(req.ID, rpcErr)
	} else {
		resp = resultResponse(req.ID, result)
	}

	// Internal errors are worth retrying, so they are never replayed
	if replayKey != "" && (resp.Error == nil || resp.Error.Code != InternalError) {
		r.replays.put(replayKey, fingerprint, *resp)
	}
	return resp
}
