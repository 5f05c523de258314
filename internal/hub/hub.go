// Package hub bridges the WebSocket clients and the persistent store. Every
// accepted mutation is durably applied before its outcome is re-broadcast to
// all connected clients, and the single dispatch goroutine gives mutations a
// total order: no client observes effects out of sequence.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config holds the per-connection WebSocket settings.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default WebSocket configuration. Result-save
// payloads carry a whole session's result set, hence the generous message
// size.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Operator and public displays connect from arbitrary origins.
			return true
		},
	}
}

// Hub maintains the set of connected clients and serializes their mutation
// requests through the store.
type Hub struct {
	store    RaceStore
	config   Config
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*Conn]bool

	requests chan request
	done     chan struct{}
}

type request struct {
	conn *Conn
	env  Envelope
}

// New creates a Hub over the given store.
func New(store RaceStore, config Config) *Hub {
	return &Hub{
		store:  store,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		conns:    make(map[*Conn]bool),
		requests: make(chan request, 256),
		done:     make(chan struct{}),
	}
}

// Run processes inbound requests one at a time until the context is
// cancelled. Each request's store write completes and its broadcast is
// queued before the next request is taken, which is what guarantees the
// ordering contract.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("hub shutting down")
			return
		case req := <-h.requests:
			h.dispatch(ctx, req.conn, req.env)
		}
	}
}

// register adds a connection and pushes the new client count to everyone.
func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = true
	total := len(h.conns)
	h.mu.Unlock()

	log.Info().Str("connection_id", c.id).Int("total_connections", total).
		Msg("client connected")
	h.broadcast(EventConnectionCount, ConnectionCountPayload{Count: total})
}

// unregister removes a connection (idempotent) and pushes the new count. The
// send channel stays open: a dispatch already in flight may still deliver to
// it, and closing here would make that delivery a panic. writePump exits via
// the done channel instead, and the orphaned channel is collected with the
// connection.
func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	if !h.conns[c] {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	close(c.done)
	total := len(h.conns)
	h.mu.Unlock()

	log.Info().Str("connection_id", c.id).Int("total_connections", total).
		Msg("client disconnected")
	h.broadcast(EventConnectionCount, ConnectionCountPayload{Count: total})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// broadcast marshals the event once and fans it out to every connected
// client. A client whose send buffer is full is dropped rather than allowed
// to stall the rest.
func (h *Hub) broadcast(event string, payload interface{}) {
	frame, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal broadcast")
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- frame:
		default:
			log.Warn().Str("connection_id", c.id).Str("event", event).
				Msg("send buffer full, dropping connection")
			h.unregister(c)
			c.sock.Close()
		}
	}

	log.Debug().Str("event", event).Int("connections", len(targets)).Msg("event broadcast")
}

// enqueue hands an inbound envelope to the dispatch loop. It reports false
// once the hub has shut down, so read pumps don't block forever on a queue
// nobody drains.
func (h *Hub) enqueue(c *Conn, env Envelope) bool {
	select {
	case h.requests <- request{conn: c, env: env}:
		return true
	case <-h.done:
		return false
	}
}

// sendTo delivers an event to a single client only.
func (h *Hub) sendTo(c *Conn, event string, payload interface{}) {
	frame, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal reply")
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("connection_id", c.id).Str("event", event).
			Msg("send buffer full, dropping connection")
		h.unregister(c)
		c.sock.Close()
	}
}

func marshalEnvelope(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
