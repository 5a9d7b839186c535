// Package main implements an example host binary that wires a Gateway to a
// configured transport and logs every decoded message, analogous to the
// teacher's own main.go wiring a LightwaveLink client.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/MatusOllah/slogcolor"

	"github.com/ramses-go/ramses-go/config"
	"github.com/ramses-go/ramses-go/gateway"
	"github.com/ramses-go/ramses-go/index"
)

var (
	configFile     = flag.String("config", "config.yaml", "Path to the gateway's YAML configuration file")
	isVerbose      = flag.Bool("verbose", false, "Enable display of DEBUG log messages")
	startDiscovery = flag.Bool("discover", true, "Enable periodic background discovery polling")
)

func main() {
	flag.Parse()

	opts := slogcolor.DefaultOptions
	if *isVerbose {
		opts.Level = slog.LevelDebug
	} else {
		opts.Level = slog.LevelInfo
	}
	logger := slog.New(slogcolor.NewHandler(os.Stderr, opts))
	slog.SetDefault(logger)

	doc, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Unable to load configuration file", "fn", *configFile, "err", err)
		os.Exit(2)
	}

	gw, err := gateway.New(doc.Get(), logger)
	if err != nil {
		slog.Error("Unable to build gateway", "err", err)
		os.Exit(1)
	}

	unsubscribe := gw.AddMsgHandler(func(msg index.Message) {
		slog.Info("msg", "hdr", msg.Hdr, "src", msg.Src, "dst", msg.Dst, "verb", msg.Verb)
	}, nil)
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := gw.Start(ctx, gateway.StartOptions{StartDiscovery: *startDiscovery}); err != nil {
		slog.Error("Unable to start gateway", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := gw.Stop(); err != nil {
			slog.Error("Error stopping gateway", "err", err)
		}
	}()

	slog.Info("Starting main loop")
loop:
	for {
		select {
		case <-time.After(time.Minute):
			slog.Debug("Periodic status", "devices", len(gw.Devices()), "stats", gw.Stats())
		case <-ctx.Done():
			slog.Info("Exiting due to signal")
			break loop
		}
	}
}
