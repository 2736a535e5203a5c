package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/omochice/toy-tcp-events/internal/chat"
	"github.com/omochice/toy-tcp-events/pkg/tcpconn"
	"github.com/omochice/toy-tcp-events/pkg/transport/ws"
)

// ServeCmd runs the chat server. TCP and WebSocket clients share one Hub;
// with --ws-port equal to --port both are served on the same port.
type ServeCmd struct {
	Bind    string `default:"" env:"TCPCHAT_BIND" help:"Address to bind. Empty binds all addresses."`
	Backlog int    `default:"0" help:"Listen backlog. 0 uses the system default."`
}

func (s *ServeCmd) Run(g *Globals, log *slog.Logger) error {
	hub := chat.NewHub(log)

	var tcpOpts []tcpconn.Option
	if g.WebSocketPort == g.Port {
		// One port for both: tell WebSocket handshakes from chat frames.
		tcpOpts = append(tcpOpts, tcpconn.WithUpgrade(ws.DetectUpgrade))
	}

	servers := []*tcpconn.Server{}
	tcpSrv, err := s.newServer(g.Port, hub, log, tcpOpts...)
	if err != nil {
		return err
	}
	servers = append(servers, tcpSrv)

	if g.WebSocketPort >= 0 && g.WebSocketPort != g.Port {
		wsSrv, err := s.newServer(g.WebSocketPort, hub, log, tcpconn.WithUpgrade(ws.Upgrade))
		if err != nil {
			return err
		}
		servers = append(servers, wsSrv)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, srv := range servers {
		if err := srv.Start(); err != nil {
			stopAll(servers, log)
			return fmt.Errorf("server error: %w", err)
		}
	}
	log.Info("accepting clients", "tcp_port", tcpSrv.Port(), "ws_port", g.WebSocketPort)

	// Wait for either a dead accept loop or a shutdown signal
	select {
	case <-ctx.Done():
		log.Info("received signal, shutting down")
	case <-firstDone(servers):
		log.Warn("accept loop ended unexpectedly")
	}

	stopAll(servers, log)
	log.Info("server stopped")
	return nil
}

func (s *ServeCmd) newServer(port int, hub *chat.Hub, log *slog.Logger, opts ...tcpconn.Option) (*tcpconn.Server, error) {
	srv, err := tcpconn.NewServer(tcpconn.Config{
		Port:        port,
		Backlog:     s.Backlog,
		BindAddress: s.Bind,
	}, append([]tcpconn.Option{tcpconn.WithLogger(log)}, opts...)...)
	if err != nil {
		return nil, err
	}
	srv.AddListener(hub)
	return srv, nil
}

func stopAll(servers []*tcpconn.Server, log *slog.Logger) {
	var errs []error
	for _, srv := range servers {
		errs = append(errs, srv.Stop())
	}
	for _, srv := range servers {
		<-srv.Done()
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
}

// firstDone is closed once any server has terminated.
func firstDone(servers []*tcpconn.Server) <-chan struct{} {
	out := make(chan struct{})
	var once sync.Once
	for _, srv := range servers {
		go func() {
			select {
			case <-srv.Done():
				once.Do(func() { close(out) })
			case <-out:
			}
		}()
	}
	return out
}
