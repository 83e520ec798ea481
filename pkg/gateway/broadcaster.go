package gateway

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Server-initiated events
const (
	ToolsChangedEvent = "tools.changed"
	TickEvent         = "tick"
	ShutdownEvent     = "server.shutdown"
)

// EventMessage is the frame every event travels in. Seq grows with each
// event sent.
type EventMessage struct {
	Type      string      `json:"type,omitempty"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// ToolsChanged is the tools.changed payload
type ToolsChanged struct {
	Tools []string `json:"tools"`
	Count int      `json:"count"`
}

// Tick is the heartbeat payload
type Tick struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// Shutdown is the server.shutdown payload
type Shutdown struct {
	Message string `json:"message"`
}

// broadcaster fans events out to authenticated clients. A client whose
// write fails is closed, which ends its read loop and removes it.
type broadcaster struct {
	clients *clientSet
	logger  zerolog.Logger
	seq     atomic.Int64
}

func newBroadcaster(clients *clientSet, logger zerolog.Logger) *broadcaster {
	return &broadcaster{clients: clients, logger: logger}
}

func (b *broadcaster) toolsChanged(names []string) int {
	if names == nil {
		names = []string{}
	}
	return b.publish(ToolsChangedEvent, ToolsChanged{Tools: names, Count: len(names)})
}

func (b *broadcaster) tick() int {
	return b.publish(TickEvent, Tick{Status: "alive", Clients: b.clients.count()})
}

func (b *broadcaster) shutdown() int {
	return b.publish(ShutdownEvent, Shutdown{Message: "Server is shutting down"})
}

// publish returns how many clients received the event
func (b *broadcaster) publish(event string, data interface{}) int {
	targets := b.clients.authenticated()
	if len(targets) == 0 {
		return 0
	}

	frame, err := json.Marshal(EventMessage{
		Type:      "event",
		Event:     event,
		Seq:       b.seq.Add(1),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return 0
	}

	delivered := 0
	for _, c := range targets {
		if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
			b.logger.Warn().Err(err).Str("clientId", c.ID).Str("event", event).Msg("Dropping client after failed event write")
			_ = c.Conn.Close()
			continue
		}
		delivered++
	}

	b.logger.Debug().Str("event", event).Int("delivered", delivered).Int("targets", len(targets)).Msg("Event published")
	return delivered
}
