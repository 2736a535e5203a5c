//go:build unix

package tcpconn

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// drain appends bytes already queued on the endpoint's socket to chunk
// without blocking. Go keeps socket descriptors in non-blocking mode, so a
// raw read returns EAGAIN once the queue is empty. Endpoints without a file
// descriptor are left as they are.
func drain(ep Endpoint, buf, chunk []byte) []byte {
	sc, ok := ep.(syscall.Conn)
	if !ok {
		return chunk
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return chunk
	}
	for {
		var n int
		var readErr error
		err := raw.Read(func(fd uintptr) bool {
			n, readErr = unix.Read(int(fd), buf)
			return true
		})
		// EAGAIN, EOF (n == 0) and real errors all end the burst; the next
		// blocking read reports the latter two.
		if err != nil || readErr != nil || n <= 0 {
			return chunk
		}
		chunk = append(chunk, buf[:n]...)
		if n < len(buf) {
			return chunk
		}
	}
}
