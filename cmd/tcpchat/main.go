// Command tcpchat runs a chat server or joins one.
package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/omochice/toy-tcp-events/internal/logger"
)

type cli struct {
	Globals

	Serve ServeCmd `cmd:"" help:"Run a chat server."`
	Join  JoinCmd  `cmd:"" help:"Join a chat server."`
}

func main() {
	var c cli
	parser := kong.Must(&c,
		kong.Name("tcpchat"),
		kong.Description("Chat over plain TCP or WebSocket."),
		kong.UsageOnError(),
	)

	cfgArgs, err := loadGlobalsConfig()
	parser.FatalIfErrorf(err)

	ctx, err := parser.Parse(append(cfgArgs, os.Args[1:]...))
	parser.FatalIfErrorf(err)

	log := logger.Init(c.Debug)
	err = ctx.Run(&c.Globals, log)
	ctx.FatalIfErrorf(err)
}
