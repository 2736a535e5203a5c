//go:build !unix

package tcpconn

// drain is a no-op where raw non-blocking reads are unavailable; each
// blocking read becomes its own chunk.
func drain(_ Endpoint, _, chunk []byte) []byte {
	return chunk
}
