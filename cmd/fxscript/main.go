// Command fxscript runs and validates effect scripts from the command line.
package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fxscript/interp"
)

type Globals struct {
	LogFormat string `name:"log-format" enum:"text,json" default:"text" help:"Log output format (text or json)."`
	LogLevel  string `name:"log-level" default:"info" help:"Minimum log level."`

	out io.Writer
}

type CLI struct {
	Globals

	Run      RunCmd      `cmd:"" help:"Run a script until it finishes."`
	Validate ValidateCmd `cmd:"" help:"Parse and validate script files."`
}

func (g *Globals) logger() interp.Logger {
	if g.LogFormat == "json" {
		return interp.NewGlogLogger(glog.NewLogger(
			glog.WithWriter(os.Stderr),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(g.LogLevel),
		))
	}
	return interp.NewFmtLogger(os.Stderr).WithLevel(interp.ParseLevel(g.LogLevel))
}

func (g *Globals) stdout() io.Writer {
	if g.out != nil {
		return g.out
	}
	return os.Stdout
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("fxscript"),
		kong.Description("Run scripted effect sequences."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
