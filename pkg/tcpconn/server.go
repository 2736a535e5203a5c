package tcpconn

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// Config describes where a Server listens. The zero value listens on a free
// port on every local address.
type Config struct {
	// Port is the local TCP port. 0 picks a free port.
	Port int
	// Backlog is the listen queue length. Values <= 0 use the platform default.
	Backlog int
	// BindAddress is the local address to bind. Empty accepts on all addresses.
	BindAddress string
}

// Server accepts TCP clients, wraps each in a Connection and keeps the set of
// live connections. A Server can be started once.
type Server struct {
	cfg       Config
	opts      options
	listeners registry[ServerListener]
	conns     registry[*Connection]
	tracker   *childTracker
	life      lifecycle

	// pending holds accepted connections whose upgrade is still running.
	pending registry[net.Conn]

	// dispatchMu serializes listener dispatches that may come from upgrade
	// goroutines as well as the accept goroutine.
	dispatchMu sync.Mutex

	// mu guards listener.
	mu       sync.Mutex
	listener net.Listener
}

// childTracker drops a child from the live set when it shuts down. It is
// attached to every child before any public listener.
type childTracker struct {
	NopConnectionListener
	conns *registry[*Connection]
}

func (t *childTracker) Shutdown(c *Connection) {
	t.conns.remove(c)
}

// NewServer creates a Server. No socket is opened until Start.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > maxPort {
		return nil, fmt.Errorf("port %d out of range: %w", cfg.Port, ErrInvalidArgument)
	}
	s := &Server{
		cfg:  cfg,
		opts: newOptions(opts),
	}
	s.tracker = &childTracker{conns: &s.conns}
	s.life.init()
	return s, nil
}

// Start opens the listening socket and runs the accept loop on its own
// goroutine. It fails with ErrInvalidState after a previous Start or Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.life.load(); st != StateCreated {
		return fmt.Errorf("cannot start server in state %s: %w", st, ErrInvalidState)
	}
	ln, err := listen(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	if !s.life.start() {
		_ = ln.Close()
		return fmt.Errorf("cannot start server in state %s: %w", s.life.load(), ErrInvalidState)
	}
	s.listener = ln

	go s.accept(ln)
	return nil
}

// Stop closes the listening socket and stops every live connection. It may
// be called any number of times, from any goroutine.
func (s *Server) Stop() error {
	s.mu.Lock()
	prev, first := s.life.beginShutdown()
	ln := s.listener
	s.mu.Unlock()

	if first && prev == StateCreated {
		s.life.terminate()
		return nil
	}

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !isClosedErr(err) {
			errs = append(errs, fmt.Errorf("failed to close listener: %w: %w", ErrIO, err))
		}
	}
	for _, conn := range s.pending.drain() {
		_ = conn.Close()
	}
	for _, c := range s.conns.drain() {
		if err := c.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendData sends data to every live connection. A failing connection does
// not stop the broadcast; all failures are returned joined.
func (s *Server) SendData(data []byte) error {
	if data == nil {
		return fmt.Errorf("data must not be nil: %w", ErrInvalidArgument)
	}
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return fmt.Errorf("server not started: %w", ErrInvalidState)
	}

	var errs []error
	for _, c := range s.conns.snapshot() {
		if err := c.SendData(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Port returns the bound port once started, otherwise the configured one.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return portOf(s.listener.Addr())
	}
	return s.cfg.Port
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// Connections returns a snapshot of the live connections.
func (s *Server) Connections() []*Connection {
	return s.conns.snapshot()
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	return s.conns.len()
}

// AddListener registers l. A listener added during a dispatch first sees the
// next event. Like Connection.AddListener it panics if l is not comparable.
func (s *Server) AddListener(l ServerListener) {
	if l == nil {
		return
	}
	s.listeners.add(l)
}

// RemoveListener unregisters one registration of l.
func (s *Server) RemoveListener(l ServerListener) {
	s.listeners.remove(l)
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return s.life.load()
}

// Done is closed once the accept loop has terminated.
func (s *Server) Done() <-chan struct{} {
	return s.life.done
}

func (s *Server) accept(ln net.Listener) {
	s.opts.logger.Debug("accept loop started", "addr", ln.Addr().String())
	for _, l := range s.listeners.snapshot() {
		l.Started(s)
	}

	for !s.life.stopping() {
		conn, err := ln.Accept()
		if err != nil {
			// Stop closes the listener to unblock Accept; that is not a fault.
			if !s.life.stopping() {
				s.dispatchException(fmt.Errorf("failed to accept on %s: %w: %w", ln.Addr(), ErrIO, err))
			}
			break
		}

		if s.opts.upgrade == nil {
			ep, ok := conn.(Endpoint)
			if !ok {
				s.drop(conn, fmt.Errorf("unsupported connection %T: %w", conn, ErrInvalidArgument))
				continue
			}
			s.admit(ep)
			continue
		}

		// Handshakes may wait on the client, so they must not hold up Accept.
		s.pending.add(conn)
		if s.life.stopping() {
			s.pending.remove(conn)
			_ = conn.Close()
			break
		}
		go s.upgrade(conn)
	}

	s.terminate()
}

func (s *Server) upgrade(conn net.Conn) {
	ep, err := s.opts.upgrade(conn)
	s.pending.remove(conn)
	if err == nil && ep == nil {
		err = fmt.Errorf("upgrade returned no endpoint: %w", ErrInvalidArgument)
	}
	if err != nil {
		s.drop(conn, fmt.Errorf("upgrade failed: %w", err))
		return
	}
	s.admit(ep)
}

func (s *Server) drop(conn net.Conn, err error) {
	if !s.life.stopping() {
		s.opts.logger.Warn("dropping client", "remote_addr", addrString(conn.RemoteAddr()), "error", err)
	}
	_ = conn.Close()
}

// admit adds ep as a live child, reports it as Connected and starts it.
// Admissions run one at a time.
func (s *Server) admit(ep Endpoint) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	c := newConnection(ep, s.opts)
	if s.life.stopping() {
		_ = c.Close()
		return
	}
	s.conns.add(c)
	c.AddListener(s.tracker)
	if s.life.stopping() {
		// Stop may have drained the set before c was added.
		s.conns.remove(c)
		_ = c.Close()
		return
	}

	s.opts.logger.Debug("client connected", "remote_addr", addrString(c.RemoteAddr()))
	for _, l := range s.listeners.snapshot() {
		l.Connected(s, c)
	}

	if err := c.Start(); err != nil {
		// A Connected listener stopped it already.
		s.conns.remove(c)
		_ = c.Close()
	}
}

// terminate is the single exit path of the accept loop.
func (s *Server) terminate() {
	s.life.beginShutdown()
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()
	for _, conn := range s.pending.drain() {
		_ = conn.Close()
	}

	s.opts.logger.Debug("accept loop stopped")
	s.dispatchMu.Lock()
	for _, l := range s.listeners.snapshot() {
		l.Shutdown(s)
	}
	s.dispatchMu.Unlock()
	s.life.terminate()
}

func (s *Server) dispatchException(err error) {
	s.opts.logger.Debug("server error", "error", err)
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	for _, l := range s.listeners.snapshot() {
		l.HandleException(s, err)
	}
}
