// Package client implements the chat client on top of tcpconn.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/omochice/toy-tcp-events/pkg/protocol"
	"github.com/omochice/toy-tcp-events/pkg/tcpconn"
	"github.com/omochice/toy-tcp-events/pkg/transport/ws"
)

// Transport selects how the client reaches the server.
type Transport string

const (
	TransportTCP       Transport = "tcp"
	TransportWebSocket Transport = "ws"
)

// ConnectTimeout bounds Connect.
const ConnectTimeout = 10 * time.Second

var (
	// ErrNotConnected is returned when sending before Connect or after Disconnect.
	ErrNotConnected = errors.New("not connected to server")

	// ErrAlreadyConnected is returned by a second Connect. A Client connects once.
	ErrAlreadyConnected = errors.New("already connected")
)

// Client represents a chat client
type Client struct {
	address   string
	username  string
	transport Transport
	logger    *slog.Logger

	mu       sync.RWMutex
	conn     *tcpconn.Connection
	messages chan protocol.Message
	decoder  *protocol.Decoder
	quit     chan struct{}
	quitOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a new Client instance. Address is "host:port" for TCP; for
// WebSocket it may also be a full ws:// URL.
func New(address, username string, transport Transport, opts ...Option) *Client {
	c := &Client{
		address:   address,
		username:  username,
		transport: transport,
		logger:    slog.New(slog.DiscardHandler),
		messages:  make(chan protocol.Message, 10),
		decoder:   protocol.NewDecoder(),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes a connection to the server
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	conn.AddListener(&receiver{client: c})
	if err := conn.Start(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to start connection: %w", err)
	}
	c.conn = conn
	c.logger.Debug("connected", "addr", c.address, "transport", string(c.transport))
	return nil
}

func (c *Client) dial(ctx context.Context) (*tcpconn.Connection, error) {
	switch c.transport {
	case TransportTCP, "":
		host, portStr, err := net.SplitHostPort(c.address)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", c.address, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port in %q: %w", c.address, err)
		}
		if host == "" {
			host = "localhost"
		}
		return tcpconn.Dial(ctx, host, port, tcpconn.WithLogger(c.logger))
	case TransportWebSocket:
		url := c.address
		if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
			url = "ws://" + url + "/"
		}
		ep, err := ws.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		return tcpconn.NewConnection(ep, tcpconn.WithLogger(c.logger))
	default:
		return nil, fmt.Errorf("unknown transport %q", c.transport)
	}
}

// Disconnect closes the connection to the server and waits for the receive
// loop to finish.
func (c *Client) Disconnect() {
	c.quitOnce.Do(func() {
		close(c.quit)
	})

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug("close failed", "error", err)
	}
	<-conn.Done()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.State() < tcpconn.StateShuttingDown
}

// Done is closed when the connection has ended, by either side. It is nil
// before Connect.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Done()
}

// SendMessage sends a text message to the server
func (c *Client) SendMessage(content string) error {
	return c.send(protocol.Message{
		Type:    protocol.MessageTypeText,
		Sender:  c.username,
		Content: content,
	})
}

// Join sends a join message to the server
func (c *Client) Join() error {
	return c.send(protocol.Message{
		Type:   protocol.MessageTypeJoin,
		Sender: c.username,
	})
}

// Leave sends a leave message to the server
func (c *Client) Leave() error {
	return c.send(protocol.Message{
		Type:   protocol.MessageTypeLeave,
		Sender: c.username,
	})
}

// Messages returns the channel for receiving messages. It is closed when the
// connection ends.
func (c *Client) Messages() <-chan protocol.Message {
	return c.messages
}

// Username returns the name the client joins with.
func (c *Client) Username() string {
	return c.username
}

func (c *Client) send(msg protocol.Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	frame, err := msg.EncodeFrame()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.SendData(frame); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// receiver decodes server frames into the messages channel.
type receiver struct {
	tcpconn.NopConnectionListener
	client *Client
}

func (r *receiver) ReceivedData(conn *tcpconn.Connection, data []byte) {
	c := r.client
	msgs, err := c.decoder.Feed(data)
	for _, msg := range msgs {
		select {
		case c.messages <- msg:
		case <-c.quit:
			return
		}
	}
	if err != nil {
		c.logger.Warn("malformed data from server", "error", err)
		_ = conn.Stop()
	}
}

func (r *receiver) HandleException(_ *tcpconn.Connection, err error) {
	r.client.logger.Warn("connection error", "error", err)
}

// Shutdown runs on the receive goroutine after the last ReceivedData, so
// closing the channel here cannot race a send.
func (r *receiver) Shutdown(*tcpconn.Connection) {
	r.client.logger.Debug("disconnected", "addr", r.client.address)
	close(r.client.messages)
}
