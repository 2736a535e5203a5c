package tcpconn

import (
	"errors"
	"net"
	"syscall"
)

var (
	// ErrInvalidArgument is returned when a required value is missing or out of range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation is not allowed in the
	// current lifecycle state, e.g. starting twice.
	ErrInvalidState = errors.New("invalid state")

	// ErrConnect is returned when an outbound connection cannot be established.
	ErrConnect = errors.New("connection failed")

	// ErrIO wraps transport failures on read, write, accept and close.
	ErrIO = errors.New("i/o error")
)

// isClosedErr reports whether err only says the endpoint was already closed
// or disconnected, which stop and close treat as success.
func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ENOTCONN)
}
