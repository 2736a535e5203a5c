package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/omochice/toy-tcp-events/internal/client"
	"github.com/omochice/toy-tcp-events/pkg/protocol"
)

// JoinCmd connects to a chat server and relays stdin lines as messages.
type JoinCmd struct {
	Host      string `default:"localhost" env:"TCPCHAT_HOST" help:"Server host."`
	Username  string `short:"u" required:"" help:"Username for chat."`
	WebSocket bool   `short:"w" help:"Connect over WebSocket using --ws-port."`
}

func (j *JoinCmd) Run(g *Globals, log *slog.Logger) error {
	transport := client.TransportTCP
	port := g.Port
	if j.WebSocket {
		if g.WebSocketPort < 0 {
			return errors.New("--ws-port is required with --websocket")
		}
		transport = client.TransportWebSocket
		port = g.WebSocketPort
	}
	addr := net.JoinHostPort(j.Host, strconv.Itoa(port))

	c := client.New(addr, j.Username, transport, client.WithLogger(log))
	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Disconnect()

	log.Info("connected", "addr", addr, "user", j.Username)

	// Send join message
	if err := c.Join(); err != nil {
		return fmt.Errorf("failed to join chat: %w", err)
	}

	go printMessages(os.Stdout, c.Messages())

	fmt.Println("Type your messages (or 'quit' to exit):")
	lines := make(chan string)
	go scanLines(os.Stdin, lines)

	for {
		select {
		case <-c.Done():
			log.Info("server closed the connection")
			return nil
		case text, ok := <-lines:
			if !ok || text == "quit" || text == "exit" {
				// Send leave message before disconnecting
				if err := c.Leave(); err != nil {
					log.Warn("failed to send leave message", "error", err)
				}
				log.Info("disconnected from server")
				return nil
			}
			if err := c.SendMessage(text); err != nil {
				log.Warn("failed to send message", "error", err)
			}
		}
	}
}

func scanLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if text := strings.TrimSpace(scanner.Text()); text != "" {
			out <- text
		}
	}
}

func printMessages(w io.Writer, msgs <-chan protocol.Message) {
	for msg := range msgs {
		fmt.Fprintln(w, formatMessage(msg))
	}
}

func formatMessage(msg protocol.Message) string {
	switch msg.Type {
	case protocol.MessageTypeJoin:
		return fmt.Sprintf("*** %s joined the chat ***", msg.Sender)
	case protocol.MessageTypeLeave:
		return fmt.Sprintf("*** %s left the chat ***", msg.Sender)
	default:
		return fmt.Sprintf("[%s]: %s", msg.Sender, msg.Content)
	}
}
