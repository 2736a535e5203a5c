// Package ws carries a tcpconn byte stream in WebSocket binary frames, so the
// same Connection and Server code serves browser clients.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/toy-tcp-events/pkg/tcpconn"
)

// HandshakeTimeout bounds the server side upgrade of one client.
const HandshakeTimeout = 10 * time.Second

// Endpoint is a tcpconn.Endpoint over a WebSocket connection. Every Write is
// sent as one binary message; Read returns message payloads as a stream.
type Endpoint struct {
	conn   net.Conn
	reader io.Reader
	state  ws.State

	// readMu guards readBuf. Only the receive loop reads, but a partial
	// message must never be split across two readers.
	readMu  sync.Mutex
	readBuf []byte

	// writeMu serializes frames, including control replies sent while reading.
	writeMu   sync.Mutex
	closeSent bool
}

var _ tcpconn.Endpoint = (*Endpoint)(nil)

func newEndpoint(conn net.Conn, reader io.Reader, state ws.State) *Endpoint {
	if reader == nil {
		reader = conn
	}
	return &Endpoint{conn: conn, reader: reader, state: state}
}

// Dial opens a client WebSocket connection to urlstr, e.g. "ws://host:port/".
func Dial(ctx context.Context, urlstr string) (*Endpoint, error) {
	conn, br, _, err := ws.Dial(ctx, urlstr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w: %w", urlstr, tcpconn.ErrConnect, err)
	}
	var reader io.Reader
	if br != nil {
		// The server already sent frames behind its handshake response.
		reader = br
	}
	return newEndpoint(conn, reader, ws.StateClientSide), nil
}

// Upgrade performs the server side handshake on a freshly accepted
// connection. It fits tcpconn.WithUpgrade.
func Upgrade(conn net.Conn) (tcpconn.Endpoint, error) {
	return NewUpgrader(HandshakeTimeout)(conn)
}

// NewUpgrader returns an upgrade hook whose handshake must finish within
// timeout. A non-positive timeout disables the limit.
func NewUpgrader(timeout time.Duration) tcpconn.UpgradeFunc {
	return func(conn net.Conn) (tcpconn.Endpoint, error) {
		if timeout > 0 {
			if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
				return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
			}
		}
		if _, err := ws.Upgrade(conn); err != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed: %w", conn.RemoteAddr(), err)
		}
		if err := conn.SetDeadline(time.Time{}); err != nil {
			return nil, fmt.Errorf("failed to clear handshake deadline: %w", err)
		}
		return newEndpoint(conn, nil, ws.StateServerSide), nil
	}
}

// Read returns payload bytes of the next data message. A message larger than
// p is returned over several calls. A close frame from the peer ends the
// stream with io.EOF.
func (e *Endpoint) Read(p []byte) (int, error) {
	e.readMu.Lock()
	defer e.readMu.Unlock()

	if len(e.readBuf) > 0 {
		n := copy(p, e.readBuf)
		e.readBuf = e.readBuf[n:]
		return n, nil
	}

	rw := struct {
		io.Reader
		io.Writer
	}{e.reader, writerFunc(e.writeControl)}

	for {
		data, _, err := wsutil.ReadData(rw, e.state)
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				return 0, io.EOF
			}
			return 0, err
		}
		if len(data) == 0 {
			continue
		}
		n := copy(p, data)
		if n < len(data) {
			e.readBuf = data[n:]
		}
		return n, nil
	}
}

// Write sends p as one binary message.
func (e *Endpoint) Write(p []byte) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closeSent {
		return 0, fmt.Errorf("websocket write after close: %w", net.ErrClosed)
	}
	if err := wsutil.WriteMessage(e.conn, e.state, ws.OpBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// writeControl writes replies produced by the frame reader, such as pongs
// and the close handshake. Once our close frame is out nothing else is sent.
func (e *Endpoint) writeControl(p []byte) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closeSent {
		return len(p), nil
	}
	return e.conn.Write(p)
}

// CloseWrite starts the close handshake. The peer answers with its own close
// frame, which ends Read.
func (e *Endpoint) CloseWrite() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closeSent {
		return nil
	}
	e.closeSent = true
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	return wsutil.WriteMessage(e.conn, e.state, ws.OpClose, body)
}

// CloseRead shuts down the reading side of the underlying connection when it
// supports half-close.
func (e *Endpoint) CloseRead() error {
	if hc, ok := e.conn.(interface{ CloseRead() error }); ok {
		return hc.CloseRead()
	}
	return nil
}

// SetReadDeadline lets tcpconn interrupt a blocked Read.
func (e *Endpoint) SetReadDeadline(t time.Time) error {
	return e.conn.SetReadDeadline(t)
}

func (e *Endpoint) Close() error {
	return e.conn.Close()
}

func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

func (e *Endpoint) RemoteAddr() net.Addr {
	return e.conn.RemoteAddr()
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
