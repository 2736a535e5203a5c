package ws

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/gobwas/ws"

	"github.com/omochice/toy-tcp-events/pkg/tcpconn"
)

// httpGet starts every WebSocket handshake request.
var httpGet = []byte("GET ")

var errPrefixPending = errors.New("peeked bytes not consumed yet")

// DetectUpgrade serves plain TCP and WebSocket clients on one port. It reads
// just enough of the first bytes to tell an HTTP GET from a binary stream:
// GET requests are upgraded, anything else stays a plain TCP endpoint that
// replays the inspected bytes first. Plain clients must send before they
// receive, or detection times out after HandshakeTimeout.
func DetectUpgrade(conn net.Conn) (tcpconn.Endpoint, error) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil, fmt.Errorf("unsupported connection %T: %w", conn, tcpconn.ErrInvalidArgument)
	}
	if err := conn.SetReadDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set detection deadline: %w", err)
	}

	prefix, err := readPrefix(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to detect protocol of %s: %w", conn.RemoteAddr(), err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("failed to clear detection deadline: %w", err)
	}

	if len(prefix) < len(httpGet) {
		return &prefixedConn{TCPConn: tcp, prefix: prefix}, nil
	}

	rw := struct {
		io.Reader
		io.Writer
	}{io.MultiReader(bytes.NewReader(prefix), conn), conn}
	if err := conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	if _, err := ws.Upgrade(rw); err != nil {
		return nil, fmt.Errorf("websocket handshake with %s failed: %w", conn.RemoteAddr(), err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}
	return newEndpoint(conn, nil, ws.StateServerSide), nil
}

// readPrefix reads until the bytes either spell "GET " or stop matching it.
// On a mismatch the returned prefix is shorter than "GET ".
func readPrefix(r io.Reader) ([]byte, error) {
	buf := make([]byte, len(httpGet))
	n := 0
	for n < len(httpGet) {
		// One byte at a time so nothing past the decision point is consumed.
		m, err := r.Read(buf[n : n+1])
		n += m
		if m > 0 && buf[n-1] != httpGet[n-1] {
			return buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// prefixedConn is a plain TCP endpoint that first returns the bytes consumed
// during detection.
type prefixedConn struct {
	*net.TCPConn
	prefix []byte
}

func (c *prefixedConn) Read(p []byte) (int, error) {
	if len(c.prefix) > 0 {
		n := copy(p, c.prefix)
		c.prefix = c.prefix[n:]
		return n, nil
	}
	return c.TCPConn.Read(p)
}

// SyscallConn hides the descriptor until the prefix is consumed, so raw
// reads cannot overtake it.
func (c *prefixedConn) SyscallConn() (syscall.RawConn, error) {
	if len(c.prefix) > 0 {
		return nil, errPrefixPending
	}
	return c.TCPConn.SyscallConn()
}
