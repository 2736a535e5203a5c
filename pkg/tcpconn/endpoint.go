package tcpconn

import (
	"io"
	"net"
	"strconv"
	"time"
)

// Endpoint is one end of an established byte stream. *net.TCPConn
// implements it.
type Endpoint interface {
	io.ReadWriteCloser

	// CloseRead shuts down the reading side.
	CloseRead() error

	// CloseWrite shuts down the writing side.
	CloseWrite() error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// readDeadliner is implemented by endpoints whose blocked Read can be
// interrupted by moving the deadline.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

var _ Endpoint = (*net.TCPConn)(nil)

// aLongTimeAgo is a deadline that has always passed.
var aLongTimeAgo = time.Unix(1, 0)

const maxPort = 0xFFFF

func portOf(addr net.Addr) int {
	switch a := addr.(type) {
	case nil:
		return 0
	case *net.TCPAddr:
		if a == nil {
			return 0
		}
		return a.Port
	}
	_, p, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return port
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "<nil>"
	}
	return addr.String()
}
