package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// idleAfter marks a client idle in gateway.clients
const idleAfter = 5 * time.Minute

// ClientState tracks a connection through the auth handshake
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// Client is one websocket connection. Fields below the mutable marker are
// only touched through clientSet.update.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	IPAddress   string
	ConnectedAt time.Time
	RateLimiter *ClientRateLimiter

	// mutable
	Authenticated bool
	Challenge     string
	AuthAttempts  int
	State         ClientState
	LastActivity  time.Time
	ToolRuns      int
	LastTool      string

	// gorilla/websocket allows one concurrent writer
	writeMu sync.Mutex
}

// WriteJSON sends v as a single text frame
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// WriteMessage sends a raw frame
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// ClientInfo is the gateway.clients view of a connection
type ClientInfo struct {
	ID            string    `json:"id"`
	IPAddress     string    `json:"ipAddress"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	Idle          bool      `json:"idle"`
	ToolRuns      int       `json:"toolRuns"`
	LastTool      string    `json:"lastTool,omitempty"`
}

type clientSet struct {
	mu    sync.RWMutex
	byID  map[string]*Client
	clock func() time.Time
}

func newClientSet() *clientSet {
	return &clientSet{byID: make(map[string]*Client), clock: time.Now}
}

func (s *clientSet) add(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[c.ID] = c
}

func (s *clientSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

func (s *clientSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// update runs fn under the set's lock and reports whether id is connected
func (s *clientSet) update(id string, fn func(*Client)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if ok {
		fn(c)
	}
	return ok
}

func (s *clientSet) touch(id string) {
	now := s.clock()
	s.update(id, func(c *Client) { c.LastActivity = now })
}

// recordRun counts a tools.run call against the client that sent it
func (s *clientSet) recordRun(id, toolName string) {
	s.update(id, func(c *Client) {
		c.ToolRuns++
		c.LastTool = toolName
	})
}

// matching returns the clients keep accepts, oldest connection first
func (s *clientSet) matching(keep func(*Client) bool) []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Client, 0, len(s.byID))
	for _, c := range s.byID {
		if keep == nil || keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

func (s *clientSet) authenticated() []*Client {
	return s.matching(func(c *Client) bool { return c.Authenticated })
}

func (s *clientSet) infos() []ClientInfo {
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ClientInfo, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, ClientInfo{
			ID:            c.ID,
			IPAddress:     c.IPAddress,
			Authenticated: c.Authenticated,
			ConnectedAt:   c.ConnectedAt,
			LastActivity:  c.LastActivity,
			Idle:          now.Sub(c.LastActivity) > idleAfter,
			ToolRuns:      c.ToolRuns,
			LastTool:      c.LastTool,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}
