//go:build !linux

package tcpconn

import "net"

// listenBacklog falls back to the platform default backlog.
func listenBacklog(laddr *net.TCPAddr, _ int) (net.Listener, error) {
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, err
	}
	return ln, nil
}
