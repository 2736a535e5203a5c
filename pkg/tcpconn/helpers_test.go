package tcpconn_test

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-tcp-events/pkg/tcpconn"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// recorder is a ConnectionListener that remembers every event in order.
type recorder struct {
	mu       sync.Mutex
	events   []string
	received []byte
	chunks   [][]byte
	sent     [][]byte
	errs     []error
}

func (r *recorder) Started(*tcpconn.Connection) {
	r.add("started")
}

func (r *recorder) SentData(_ *tcpconn.Connection, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "sent")
	r.sent = append(r.sent, append([]byte(nil), data...))
}

func (r *recorder) ReceivedData(_ *tcpconn.Connection, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "received")
	r.received = append(r.received, data...)
	r.chunks = append(r.chunks, append([]byte(nil), data...))
}

func (r *recorder) Shutdown(*tcpconn.Connection) {
	r.add("shutdown")
}

func (r *recorder) HandleException(_ *tcpconn.Connection, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "exception")
	r.errs = append(r.errs, err)
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Received() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.received...)
}

func (r *recorder) Chunks() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.chunks...)
}

func (r *recorder) Sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.sent...)
}

func (r *recorder) Errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) Count(event string) int {
	n := 0
	for _, e := range r.Events() {
		if e == event {
			n++
		}
	}
	return n
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (local, remote *net.TCPConn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	conn, ok := <-accepted
	require.True(t, ok, "accept failed")

	t.Cleanup(func() {
		dialed.Close()
		conn.Close()
	})
	return conn.(*net.TCPConn), dialed.(*net.TCPConn)
}

// waitDone fails the test unless ch closes in time.
func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for termination")
	}
}

// syncBuffer is a bytes.Buffer safe for a logger writing from loop goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newDebugLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
