package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"btclient/client"
)

func main() {
	cfg := client.DefaultConfig()
	portFirst := flag.Uint("port-first", uint(cfg.PortFirst), "first port to try for incoming connections")
	portLast := flag.Uint("port-last", uint(cfg.PortLast), "last port to try for incoming connections")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "address to accept connections on")
	flag.DurationVar(&cfg.AnnounceTimeout, "timeout", cfg.AnnounceTimeout, "tracker announce timeout")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "log as JSON instead of console output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file1 [file2 ...]\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "    file1, file2, etc.: torrent files")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	logger := newLogger(*logLevel, *logJSON)
	if *portFirst > 65535 || *portLast > 65535 {
		logger.Fatal().Uint("port_first", *portFirst).Uint("port_last", *portLast).Msg("port out of range")
	}
	cfg.PortFirst = uint16(*portFirst)
	cfg.PortLast = uint16(*portLast)
	cfg.Logger = logger
	cfg.HTTPClient = &http.Client{Timeout: cfg.AnnounceTimeout}

	logger.Info().Msg("starting BitTorrent client")
	c, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not start")
	}
	defer func() { _ = c.Close() }()
	go func() {
		if err := c.Serve(); err != nil {
			logger.Error().Err(err).Msg("accepting connections failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.Start(ctx, flag.Args())

	select {
	case <-c.Done():
		logger.Info().Msg("all downloads finished")
	case <-ctx.Done():
		logger.Info().Msg("interrupted")
	}
}

func newLogger(level string, json bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if json {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(lvl).With().Timestamp().Str("session", uuid.NewString()).Logger()
}
