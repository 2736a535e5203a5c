package tcpconn

import (
	"fmt"
	"net"
	"strconv"
)

// listen opens the server socket described by cfg. A positive backlog is
// honoured where the platform allows it.
func listen(cfg Config) (net.Listener, error) {
	address := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port))
	if cfg.Backlog <= 0 {
		ln, err := net.Listen("tcp", address)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
		}
		return ln, nil
	}

	laddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", address, err)
	}
	ln, err := listenBacklog(laddr, cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return ln, nil
}
