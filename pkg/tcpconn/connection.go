// Package tcpconn provides observable TCP connections and a server that
// supervises them. Each Connection runs one receive goroutine and each Server
// one accept goroutine; events are delivered to registered listeners.
package tcpconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
)

// Connection wraps one endpoint and reports its lifecycle and data to
// listeners. A Connection can be started once; after it terminates the
// endpoint is closed and the Connection cannot be reused.
type Connection struct {
	ep        Endpoint
	opts      options
	listeners registry[ConnectionListener]
	life      lifecycle

	// writeMu keeps concurrent SendData writes from interleaving.
	writeMu sync.Mutex

	// closeMu guards the flags below so every shutdown step runs once.
	closeMu     sync.Mutex
	writeClosed bool
	readClosed  bool
	closed      bool
}

// Dial connects to host:port over TCP and wraps the result. The returned
// Connection is not started.
func Dial(ctx context.Context, host string, port int, opts ...Option) (*Connection, error) {
	if host == "" {
		return nil, fmt.Errorf("host must not be empty: %w", ErrInvalidArgument)
	}
	if port < 1 || port > maxPort {
		return nil, fmt.Errorf("port %d out of range: %w", port, ErrInvalidArgument)
	}

	o := newOptions(opts)
	address := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := o.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w: %w", address, ErrConnect, err)
	}
	ep, ok := conn.(Endpoint)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("dialer returned unsupported %T: %w", conn, ErrConnect)
	}

	o.logger.Debug("connection dialed", "remote_addr", address)
	return newConnection(ep, o), nil
}

// NewConnection wraps an endpoint that is already connected. The returned
// Connection is not started.
func NewConnection(ep Endpoint, opts ...Option) (*Connection, error) {
	if ep == nil {
		return nil, fmt.Errorf("endpoint must not be nil: %w", ErrInvalidArgument)
	}
	return newConnection(ep, newOptions(opts)), nil
}

func newConnection(ep Endpoint, o options) *Connection {
	c := &Connection{ep: ep, opts: o}
	c.life.init()
	return c
}

// Start runs the receive loop on its own goroutine. It fails with
// ErrInvalidState unless the connection was never started or stopped.
func (c *Connection) Start() error {
	if !c.life.start() {
		return fmt.Errorf("cannot start %s in state %s: %w", c, c.life.load(), ErrInvalidState)
	}
	go c.receive()
	return nil
}

// Stop half-closes both directions and interrupts a blocked read. The
// Shutdown event is delivered later by the receive goroutine. Stop may be
// called any number of times, from any goroutine, including listeners.
func (c *Connection) Stop() error {
	if prev, ok := c.life.beginShutdown(); ok && prev == StateCreated {
		// No receive loop will ever run to finish the lifecycle.
		c.life.terminate()
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	var errs []error
	if !c.writeClosed {
		c.writeClosed = true
		if err := c.ep.CloseWrite(); err != nil && !isClosedErr(err) {
			errs = append(errs, err)
		}
	}
	if !c.readClosed {
		c.readClosed = true
		if err := c.ep.CloseRead(); err != nil && !isClosedErr(err) {
			errs = append(errs, err)
		}
	}
	if d, ok := c.ep.(readDeadliner); ok && !c.closed {
		_ = d.SetReadDeadline(aLongTimeAgo)
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to stop %s: %w: %w", c, ErrIO, errors.Join(errs...))
	}
	return nil
}

// Close stops the connection and closes the endpoint.
func (c *Connection) Close() error {
	stopErr := c.Stop()
	if err := c.closeEndpoint(); err != nil {
		return errors.Join(stopErr, err)
	}
	return stopErr
}

// closeEndpoint closes the endpoint once. Later calls return nil.
func (c *Connection) closeEndpoint() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.ep.Close(); err != nil && !isClosedErr(err) {
		return fmt.Errorf("failed to close %s: %w: %w", c, ErrIO, err)
	}
	return nil
}

// SendData writes data to the endpoint and then reports SentData to the
// listeners. The write blocks while the transport's send buffer is full.
func (c *Connection) SendData(data []byte) error {
	if data == nil {
		return fmt.Errorf("data must not be nil: %w", ErrInvalidArgument)
	}

	c.writeMu.Lock()
	_, err := c.ep.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send to %s: %w: %w", c, ErrIO, err)
	}

	for _, l := range c.listeners.snapshot() {
		// Stop may be called by an earlier listener or another goroutine.
		if c.life.stopping() {
			break
		}
		l.SentData(c, data)
	}
	return nil
}

// AddListener registers l. The same listener may be added more than once.
// A listener added during a dispatch first sees the next event. l must be
// comparable with ==, so register pointers; AddListener panics otherwise.
func (c *Connection) AddListener(l ConnectionListener) {
	if l == nil {
		return
	}
	c.listeners.add(l)
}

// RemoveListener unregisters one registration of l.
func (c *Connection) RemoveListener(l ConnectionListener) {
	c.listeners.remove(l)
}

// LocalPort returns the local port of the endpoint, or 0 if unknown.
func (c *Connection) LocalPort() int {
	return portOf(c.ep.LocalAddr())
}

// RemotePort returns the remote port of the endpoint, or 0 if unknown.
func (c *Connection) RemotePort() int {
	return portOf(c.ep.RemoteAddr())
}

// LocalAddr returns the local address of the endpoint.
func (c *Connection) LocalAddr() net.Addr {
	return c.ep.LocalAddr()
}

// RemoteAddr returns the remote address of the endpoint.
func (c *Connection) RemoteAddr() net.Addr {
	return c.ep.RemoteAddr()
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return c.life.load()
}

// Done is closed once the connection has terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.life.done
}

func (c *Connection) String() string {
	return "connection " + addrString(c.ep.RemoteAddr())
}

func (c *Connection) receive() {
	c.opts.logger.Debug("receive loop started", "remote_addr", addrString(c.ep.RemoteAddr()))
	for _, l := range c.listeners.snapshot() {
		l.Started(c)
	}

	buf := make([]byte, c.opts.readBufferSize)
	for !c.life.stopping() {
		n, err := c.ep.Read(buf)
		if n > 0 {
			chunk := make([]byte, n, n*2)
			copy(chunk, buf[:n])
			if err == nil && n == len(buf) {
				chunk = drain(c.ep, buf, chunk)
			}
			for _, l := range c.listeners.snapshot() {
				if c.life.stopping() {
					break
				}
				l.ReceivedData(c, chunk)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.life.stopping() {
				c.dispatchException(fmt.Errorf("failed to read from %s: %w: %w", c, ErrIO, err))
			}
			break
		}
	}

	c.terminate()
}

// terminate is the single exit path of the receive loop.
func (c *Connection) terminate() {
	c.life.beginShutdown()
	c.opts.logger.Debug("receive loop stopped", "remote_addr", addrString(c.ep.RemoteAddr()))

	for _, l := range c.listeners.snapshot() {
		l.Shutdown(c)
	}
	if err := c.closeEndpoint(); err != nil {
		c.dispatchException(err)
	}
	c.life.terminate()
}

func (c *Connection) dispatchException(err error) {
	c.opts.logger.Debug("connection error", "remote_addr", addrString(c.ep.RemoteAddr()), "error", err)
	for _, l := range c.listeners.snapshot() {
		l.HandleException(c, err)
	}
}
