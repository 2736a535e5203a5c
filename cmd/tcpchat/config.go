package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// Globals contains flags that apply to every command.
type Globals struct {
	// Debug enables debug logging with source locations.
	Debug bool `env:"DEBUG" help:"Enable debug logging."`
	// Port is the TCP port to listen on or connect to, depending on the command.
	Port int `short:"p" default:"8080" env:"TCPCHAT_PORT" help:"TCP port to listen on or connect to, depending on the command."`
	// WebSocketPort is the port for WebSocket clients. Negative disables it.
	WebSocketPort int `name:"ws-port" default:"-1" env:"TCPCHAT_WS_PORT" help:"WebSocket port to listen on or connect to. Negative disables WebSocket."`
}

// loadGlobalsConfig reads default arguments from
// $XDG_CONFIG_HOME/tcpchat/globals.conf. The file holds whitespace separated
// global flags, e.g. "--port 9000 --debug".
func loadGlobalsConfig() ([]string, error) {
	path, err := xdg.ConfigFile(filepath.Join("tcpchat", "globals.conf"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	return readArgsFile(path)
}

func readArgsFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// a missing file means no defaults
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return strings.Fields(string(b)), nil
}
