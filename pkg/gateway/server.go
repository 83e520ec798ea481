// Package gateway serves the tool registry as JSON-RPC 2.0 over websocket
// connections and single-shot HTTP posts.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/toolhub/internal/tracing"
	"github.com/harun/toolhub/pkg/toolexecutor"
)

const (
	// SecretHeader authenticates /rpc posts
	SecretHeader = "X-Toolhub-Secret"
	// TraceHeader lets /rpc callers supply a trace ID
	TraceHeader = "X-Trace-Id"

	maxMessageBytes = 1 << 20
)

// Registry is the part of toolexecutor.Registry the gateway needs
type Registry interface {
	ExecuteTool(ctx context.Context, name string, input map[string]interface{}) (map[string]interface{}, error)
	ListForDiscovery(ctx context.Context) (toolexecutor.Discovery, error)
	Audit(ctx context.Context, rec *toolexecutor.RunRecord)
	Refresh()
}

// ClientObserver is told the connected client count. internal/metrics
// implements it.
type ClientObserver interface {
	SetGatewayClients(n int)
}

// Config holds gateway configuration
type Config struct {
	SharedSecret      string
	RequestsPerMinute int // per connection
	MaxConcurrent     int // per connection
	TickInterval      time.Duration
	ShutdownTimeout   time.Duration
	Registry          Registry
	Observer          ClientObserver
	Logger            zerolog.Logger
}

// Server is the JSON-RPC gateway. It is an http.Handler serving /ws and /rpc.
type Server struct {
	registry          Registry
	observer          ClientObserver
	requestsPerMinute int
	maxConcurrent     int
	tickInterval      time.Duration
	shutdownTimeout   time.Duration
	mux               *http.ServeMux
	upgrader          websocket.Upgrader
	clients           *clientSet
	router            *Router
	authHandler       *AuthHandler
	broadcaster       *broadcaster
	logger            zerolog.Logger

	baseCtx        context.Context
	cancel         context.CancelFunc
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
	tickCancel     context.CancelFunc
	tickWG         sync.WaitGroup
}

// NewServer creates a new gateway
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	clients := newClientSet()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		registry:          cfg.Registry,
		observer:          cfg.Observer,
		requestsPerMinute: cfg.RequestsPerMinute,
		maxConcurrent:     cfg.MaxConcurrent,
		tickInterval:      cfg.TickInterval,
		shutdownTimeout:   cfg.ShutdownTimeout,
		clients:           clients,
		router:            NewRouter(cfg.Logger),
		authHandler:       NewAuthHandler(cfg.SharedSecret),
		broadcaster:       newBroadcaster(clients, cfg.Logger),
		logger:            cfg.Logger,
		baseCtx:           ctx,
		cancel:            cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/rpc", s.handleRPC)

	s.registerBuiltinMethods()

	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start starts the heartbeat emitter. Connections are accepted as soon as
// the handler is mounted.
func (s *Server) Start() {
	s.startTickEmitter()
	s.logger.Info().Strs("methods", s.router.Methods()).Msg("Gateway ready")
}

// Stop drains in-flight requests and closes every connection
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	if s.isShuttingDown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway")
	s.stopTickEmitter()

	s.broadcaster.shutdown()

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-done:
		s.logger.Info().Msg("All in-flight gateway requests completed")
	case <-timer.C:
		s.logger.Warn().Msg("Gateway shutdown timeout reached, forcing close")
		err = fmt.Errorf("gateway shutdown timed out")
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.cancel()
	for _, client := range s.clients.matching(nil) {
		client.Conn.Close()
	}

	s.logger.Info().Msg("Gateway stopped")
	return err
}

func (s *Server) startTickEmitter() {
	if s.tickInterval <= 0 {
		return
	}

	tickCtx, cancel := context.WithCancel(s.baseCtx)
	s.tickCancel = cancel
	s.tickWG.Add(1)

	go func() {
		defer s.tickWG.Done()

		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				s.broadcaster.tick()
			}
		}
	}()
}

func (s *Server) stopTickEmitter() {
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
	s.tickWG.Wait()
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// handleWebSocket upgrades the connection and starts its read loop
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	clientID, err := gonanoid.New()
	if err != nil {
		clientID = tracing.NewRunID()
	}
	now := time.Now()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    remoteIP(r),
		RateLimiter:  NewClientRateLimiter(s.requestsPerMinute, s.maxConcurrent),
		State:        StateConnecting,
	}

	s.clients.add(client)
	s.reportClients()

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", client.IPAddress).
		Msg("Client connected")

	if err := s.greet(client); err != nil {
		s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to send auth challenge")
		conn.Close()
		s.clients.remove(clientID)
		s.reportClients()
		return
	}

	go s.handleClient(client)
}

// greet sends a challenge, or an immediate success when no secret is set
func (s *Server) greet(client *Client) error {
	if !s.authHandler.Enabled() {
		s.clients.update(client.ID, func(c *Client) {
			c.Authenticated = true
			c.State = StateAuthenticated
		})
		return client.WriteJSON(AuthResult{Event: "auth.success", Success: true})
	}

	challenge, err := s.authHandler.GenerateChallenge()
	if err != nil {
		return err
	}
	s.clients.update(client.ID, func(c *Client) {
		c.Challenge = challenge
		c.State = StateAuthenticating
	})

	return client.WriteJSON(AuthChallenge{
		Event:     "auth.challenge",
		Challenge: challenge,
	})
}

// handleClient reads messages until the connection drops
func (s *Server) handleClient(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.remove(client.ID)
		s.reportClients()
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("clientId", client.ID).Msg("WebSocket closed")
			}
			return
		}

		s.clients.touch(client.ID)
		if !s.handleMessage(client, message) {
			return
		}
	}
}

// handleMessage handles one frame. It returns false when the connection
// should be closed.
func (s *Server) handleMessage(client *Client, message []byte) bool {
	var authResp AuthResponse
	if err := json.Unmarshal(message, &authResp); err == nil && authResp.Method == "auth.response" {
		return s.handleAuthMessage(client, authResp)
	}

	if !client.Authenticated {
		s.sendError(client, "", AuthenticationRequired, "Authentication required")
		return true
	}

	req, err := s.router.Parse(message)
	if err != nil {
		rpcErr := &RPCError{Code: ParseError, Message: "Parse error"}
		errors.As(err, &rpcErr)
		s.sendError(client, "", rpcErr.Code, rpcErr.Message)
		return true
	}

	release, rpcErr := client.RateLimiter.Acquire()
	if rpcErr != nil {
		s.sendError(client, req.ID, rpcErr.Code, rpcErr.Message)
		return true
	}

	// Add under the read lock so Stop never waits on a counter that is
	// still growing.
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		release()
		s.sendError(client, req.ID, InternalError, "Server is shutting down")
		return true
	}
	s.inFlightReqs.Add(1)
	s.shutdownMu.RUnlock()

	ctx := callContext(s.baseCtx, req, caller{clientID: client.ID, ip: client.IPAddress}, message)

	go func() {
		defer s.inFlightReqs.Done()
		defer release()

		response := s.router.Dispatch(ctx, req)
		if err := client.WriteJSON(response); err != nil {
			s.logger.Error().
				Err(err).
				Str("clientId", client.ID).
				Str("requestId", req.ID).
				Msg("Failed to send response")
		}
	}()
	return true
}

// handleAuthMessage applies an auth.response. It returns false once the
// client has used up its attempts.
func (s *Server) handleAuthMessage(client *Client, authResp AuthResponse) bool {
	var result AuthResult
	var attempts int
	s.clients.update(client.ID, func(c *Client) {
		result = s.authHandler.HandleAuthResponse(c, authResp.Signature)
		attempts = c.AuthAttempts
	})

	if err := client.WriteJSON(result); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth result")
		return false
	}

	if result.Success {
		s.logger.Info().Str("clientId", client.ID).Msg("Client authenticated")
		return true
	}

	s.logger.Warn().
		Str("clientId", client.ID).
		Str("reason", result.Message).
		Msg("Authentication failed")
	return attempts < MaxAuthAttempts
}

// handleRPC handles single-shot HTTP JSON-RPC requests
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	presented := r.Header.Get(SecretHeader)
	if auth := r.Header.Get("Authorization"); presented == "" && strings.HasPrefix(auth, "Bearer ") {
		presented = strings.TrimPrefix(auth, "Bearer ")
	}
	if !s.authHandler.VerifySecret(presented) {
		writeRPC(w, http.StatusUnauthorized, &RPCResponse{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: AuthenticationRequired, Message: "Authentication required"},
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req, err := s.router.Parse(body)
	if err != nil {
		rpcErr := &RPCError{Code: ParseError, Message: "Parse error"}
		errors.As(err, &rpcErr)
		writeRPC(w, http.StatusBadRequest, &RPCResponse{JSONRPC: "2.0", Error: rpcErr})
		return
	}

	ctx := r.Context()
	if traceID := r.Header.Get(TraceHeader); traceID != "" {
		ctx = tracing.WithTraceID(ctx, traceID)
	} else if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
	}
	ctx = callContext(ctx, req, caller{ip: remoteIP(r)}, body)

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("rpc_id", req.ID).
		Str("method", req.Method).
		Msg("Gateway received HTTP RPC request")

	writeRPC(w, http.StatusOK, s.router.Dispatch(ctx, req))
}

// sendError sends an error response to a client
func (s *Server) sendError(client *Client, requestID string, code int, message string) {
	response := RPCResponse{
		ID:      requestID,
		JSONRPC: "2.0",
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}

	if err := client.WriteJSON(response); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Msg("Failed to send error response")
	}
}

func (s *Server) reportClients() {
	if s.observer != nil {
		s.observer.SetGatewayClients(s.clients.count())
	}
}

// Methods returns the registered method names
func (s *Server) Methods() []string {
	return s.router.Methods()
}

// Clients describes every open connection, oldest first
func (s *Server) Clients() []ClientInfo {
	return s.clients.infos()
}

func writeRPC(w http.ResponseWriter, status int, resp *RPCResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse(resp.ID, &RPCError{Code: InternalError, Message: "Internal error"}))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
