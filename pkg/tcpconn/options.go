package tcpconn

import (
	"log/slog"
	"net"
)

const defaultReadBufferSize = 4096

// UpgradeFunc turns a freshly accepted connection into the endpoint a Server
// wraps, e.g. after a protocol handshake. Each call runs on its own goroutine
// and should bound its blocking with deadlines; Server.Stop closes the
// connections of upgrades still in progress.
type UpgradeFunc func(conn net.Conn) (Endpoint, error)

// Option configures a Connection or Server.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	readBufferSize int
	dialer         *net.Dialer
	upgrade        UpgradeFunc
}

func newOptions(opts []Option) options {
	o := options{
		logger:         slog.New(slog.DiscardHandler),
		readBufferSize: defaultReadBufferSize,
		dialer:         &net.Dialer{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for lifecycle debug output. By default
// nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReadBufferSize sets the size of the receive loop's scratch buffer.
func WithReadBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.readBufferSize = size
		}
	}
}

// WithDialer sets the dialer used by Dial.
func WithDialer(d *net.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithUpgrade makes a Server pass every accepted connection through fn.
// Clients whose upgrade fails are logged and dropped; the accept loop keeps
// running.
func WithUpgrade(fn UpgradeFunc) Option {
	return func(o *options) {
		o.upgrade = fn
	}
}
