package tcpconn

// ConnectionListener observes a Connection. Callbacks for one connection run
// one at a time on its receive goroutine, except SentData which runs on the
// goroutine that called SendData.
//
// Listeners are compared with == when removed, so register pointers or other
// comparable values.
type ConnectionListener interface {
	// Started is called from the receive goroutine before the first read.
	Started(c *Connection)

	// SentData is called after data was written to the endpoint.
	SentData(c *Connection, data []byte)

	// ReceivedData is called with each chunk read from the endpoint. Chunk
	// boundaries follow transport timing, not the sender's writes.
	ReceivedData(c *Connection, data []byte)

	// Shutdown is called exactly once when the receive loop terminates.
	Shutdown(c *Connection)

	// HandleException reports a transport error inside the receive loop.
	// Shutdown always follows for the same termination.
	HandleException(c *Connection, err error)
}

// ServerListener observes a Server. Its callbacks never run concurrently with
// each other for one Server. With WithUpgrade, Connected runs on the goroutine
// that performed the upgrade.
type ServerListener interface {
	// Started is called from the accept goroutine before the first accept.
	Started(s *Server)

	// Connected is called for each accepted client. The connection is already
	// listed by Server.Connections and is started after all listeners return,
	// so a ConnectionListener added here sees every byte.
	Connected(s *Server, c *Connection)

	// HandleException reports an accept failure. Shutdown always follows.
	HandleException(s *Server, err error)

	// Shutdown is called exactly once when the accept loop terminates.
	Shutdown(s *Server)
}

// NopConnectionListener implements ConnectionListener with no-ops. Embed it
// to override only some callbacks.
type NopConnectionListener struct{}

func (NopConnectionListener) Started(*Connection)                {}
func (NopConnectionListener) SentData(*Connection, []byte)       {}
func (NopConnectionListener) ReceivedData(*Connection, []byte)   {}
func (NopConnectionListener) Shutdown(*Connection)               {}
func (NopConnectionListener) HandleException(*Connection, error) {}

// NopServerListener implements ServerListener with no-ops.
type NopServerListener struct{}

func (NopServerListener) Started(*Server)                {}
func (NopServerListener) Connected(*Server, *Connection) {}
func (NopServerListener) HandleException(*Server, error) {}
func (NopServerListener) Shutdown(*Server)               {}

// ConnectionFuncs adapts optional functions to ConnectionListener. Nil
// fields are skipped. Register it by pointer.
type ConnectionFuncs struct {
	OnStarted         func(c *Connection)
	OnSentData        func(c *Connection, data []byte)
	OnReceivedData    func(c *Connection, data []byte)
	OnShutdown        func(c *Connection)
	OnHandleException func(c *Connection, err error)
}

func (f *ConnectionFuncs) Started(c *Connection) {
	if f.OnStarted != nil {
		f.OnStarted(c)
	}
}

func (f *ConnectionFuncs) SentData(c *Connection, data []byte) {
	if f.OnSentData != nil {
		f.OnSentData(c, data)
	}
}

func (f *ConnectionFuncs) ReceivedData(c *Connection, data []byte) {
	if f.OnReceivedData != nil {
		f.OnReceivedData(c, data)
	}
}

func (f *ConnectionFuncs) Shutdown(c *Connection) {
	if f.OnShutdown != nil {
		f.OnShutdown(c)
	}
}

func (f *ConnectionFuncs) HandleException(c *Connection, err error) {
	if f.OnHandleException != nil {
		f.OnHandleException(c, err)
	}
}

// ServerFuncs adapts optional functions to ServerListener. Register it by
// pointer.
type ServerFuncs struct {
	OnStarted         func(s *Server)
	OnConnected       func(s *Server, c *Connection)
	OnHandleException func(s *Server, err error)
	OnShutdown        func(s *Server)
}

func (f *ServerFuncs) Started(s *Server) {
	if f.OnStarted != nil {
		f.OnStarted(s)
	}
}

func (f *ServerFuncs) Connected(s *Server, c *Connection) {
	if f.OnConnected != nil {
		f.OnConnected(s, c)
	}
}

func (f *ServerFuncs) HandleException(s *Server, err error) {
	if f.OnHandleException != nil {
		f.OnHandleException(s, err)
	}
}

func (f *ServerFuncs) Shutdown(s *Server) {
	if f.OnShutdown != nil {
		f.OnShutdown(s)
	}
}

var (
	_ ConnectionListener = NopConnectionListener{}
	_ ConnectionListener = (*ConnectionFuncs)(nil)
	_ ServerListener     = NopServerListener{}
	_ ServerListener     = (*ServerFuncs)(nil)
)
