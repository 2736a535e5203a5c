// Package chat relays chat messages between the clients of a tcpconn.Server.
package chat

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/omochice/toy-tcp-events/pkg/protocol"
	"github.com/omochice/toy-tcp-events/pkg/tcpconn"
)

// client is the per-connection chat state.
type client struct {
	username string
	left     bool
	decoder  *protocol.Decoder
}

// Hub manages all connected clients and handles broadcast.
// Register it on a tcpconn.Server; TCP and WebSocket servers may share one Hub.
type Hub struct {
	tcpconn.NopServerListener

	logger  *slog.Logger
	relay   *relay
	clients map[*tcpconn.Connection]*client
	mu      sync.RWMutex
}

var _ tcpconn.ServerListener = (*Hub)(nil)

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Hub{
		logger:  logger,
		clients: make(map[*tcpconn.Connection]*client),
	}
	h.relay = &relay{hub: h}
	return h
}

// Register adds a connection to the hub and starts relaying its messages.
// Connections accepted by a server the Hub listens on are registered
// automatically.
func (h *Hub) Register(c *tcpconn.Connection) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		h.mu.Unlock()
		return
	}
	h.clients[c] = &client{decoder: protocol.NewDecoder()}
	h.mu.Unlock()

	c.AddListener(h.relay)
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(c *tcpconn.Connection) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.RemoveListener(h.relay)
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Usernames returns the sorted names of clients that have joined.
func (h *Hub) Usernames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var names []string
	for _, cl := range h.clients {
		if cl.username != "" && !cl.left {
			names = append(names, cl.username)
		}
	}
	sort.Strings(names)
	return names
}

func (h *Hub) Started(s *tcpconn.Server) {
	h.logger.Info("chat server started", "addr", s.Addr().String())
}

func (h *Hub) Connected(_ *tcpconn.Server, c *tcpconn.Connection) {
	h.logger.Debug("client connected", "remote_addr", c.RemoteAddr().String())
	h.Register(c)
}

func (h *Hub) HandleException(_ *tcpconn.Server, err error) {
	h.logger.Error("chat server failed", "error", err)
}

func (h *Hub) Shutdown(*tcpconn.Server) {
	h.logger.Info("chat server stopped")
}

// broadcast sends a message to all clients except the sender
func (h *Hub) broadcast(msg protocol.Message, sender *tcpconn.Connection) {
	frame, err := msg.EncodeFrame()
	if err != nil {
		h.logger.Warn("failed to encode message", "sender", msg.Sender, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*tcpconn.Connection, 0, len(h.clients))
	for c := range h.clients {
		if c != sender {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.SendData(frame); err != nil {
			h.logger.Warn("failed to send message to client", "remote_addr", c.RemoteAddr().String(), "error", err)
		}
	}
}

// handle applies msg from c and relays it. Text and Leave carry the name the
// client joined with, whatever Sender they claim; before Join, or after
// Leave, the client is not in the chat and they are dropped.
func (h *Hub) handle(c *tcpconn.Connection, msg protocol.Message) {
	h.mu.Lock()
	cl, ok := h.clients[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	if msg.Type == protocol.MessageTypeJoin {
		cl.username = msg.Sender
		cl.left = false
	} else {
		if cl.username == "" || cl.left {
			h.mu.Unlock()
			h.logger.Warn("dropping message from client outside the chat", "remote_addr", c.RemoteAddr().String(), "type", msg.Type.String())
			return
		}
		msg.Sender = cl.username
		if msg.Type == protocol.MessageTypeLeave {
			cl.left = true
		}
	}
	h.mu.Unlock()

	switch msg.Type {
	case protocol.MessageTypeJoin:
		h.logger.Info("user joined", "user", msg.Sender)
	case protocol.MessageTypeLeave:
		h.logger.Info("user left", "user", msg.Sender)
	default:
		h.logger.Debug("message", "user", msg.Sender, "content", msg.Content)
	}
	h.broadcast(msg, c)
}

// relay feeds received bytes of every registered connection through that
// connection's frame decoder.
type relay struct {
	tcpconn.NopConnectionListener
	hub *Hub
}

func (r *relay) ReceivedData(c *tcpconn.Connection, data []byte) {
	r.hub.mu.RLock()
	cl, ok := r.hub.clients[c]
	r.hub.mu.RUnlock()
	if !ok {
		return
	}

	// Only this connection's receive goroutine touches its decoder.
	msgs, err := cl.decoder.Feed(data)
	for _, msg := range msgs {
		r.hub.handle(c, msg)
	}
	if err != nil {
		r.hub.logger.Warn("dropping client with malformed stream", "remote_addr", c.RemoteAddr().String(), "error", err)
		_ = c.Stop()
	}
}

func (r *relay) Shutdown(c *tcpconn.Connection) {
	r.hub.mu.Lock()
	cl, ok := r.hub.clients[c]
	delete(r.hub.clients, c)
	r.hub.mu.Unlock()
	if !ok {
		return
	}

	r.hub.logger.Debug("client disconnected", "remote_addr", c.RemoteAddr().String())
	if cl.username != "" && !cl.left {
		// The client vanished without saying goodbye.
		r.hub.logger.Info("user left", "user", cl.username)
		r.hub.broadcast(protocol.Message{Type: protocol.MessageTypeLeave, Sender: cl.username}, c)
	}
}

func (r *relay) HandleException(c *tcpconn.Connection, err error) {
	r.hub.logger.Warn("client connection failed", "remote_addr", c.RemoteAddr().String(), "error", err)
}
