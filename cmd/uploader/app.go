package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Packages
	isatty "github.com/mattn/go-isatty"
	zerolog "github.com/rs/zerolog"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	HTTP struct {
		Prefix  string        `name:"prefix" env:"UPLOAD_PREFIX" default:"/api/upload" help:"HTTP path prefix"`
		Addr    string        `name:"addr" env:"UPLOAD_ADDR" default:"localhost:8080" help:"HTTP listen address, or the server address for client commands"`
		Origin  string        `name:"origin" env:"UPLOAD_ORIGIN" default:"*" help:"CORS origin"`
		Timeout time.Duration `name:"timeout" env:"UPLOAD_TIMEOUT" default:"30s" help:"Client request timeout"`
	} `embed:"" prefix:"http."`
	Debug bool `help:"Enable debug output"`

	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func NewApp(app Globals) *Globals {
	// Create the context
	// This context is cancelled when the process receives a SIGINT or SIGTERM
	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Create the logger, human-readable on a terminal
	level := zerolog.InfoLevel
	if app.Debug {
		level = zerolog.DebugLevel
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		app.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		app.logger = zerolog.New(os.Stderr)
	}
	app.logger = app.logger.Level(level).With().Timestamp().Logger()

	// Return the app
	return &app
}

func (app *Globals) Close() error {
	app.cancel()
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// METHODS

func (app *Globals) Context() context.Context {
	return app.ctx
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func prettyJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
