package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dovakin0007.com/notebook-grpc/internal/config"
	"dovakin0007.com/notebook-grpc/internal/server"
	"github.com/armon/go-metrics"
	"github.com/docopt/docopt-go"
)

const version = "0.1.0"

const usage = `Notebook server.

Usage:
    notebook-server [--env=<file>]
    notebook-server -h | --help
    notebook-server --version

Options:
    -h --help       Show this screen.
    --version       Show version.
    --env=<file>    Settings file read before the environment [default: .env].`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	envFile, _ := opts.String("--env")

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger("notebook-server")

	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(sink)
	if _, err := metrics.NewGlobal(metrics.DefaultConfig("notebook"), sink); err != nil {
		logger.Warn("metrics disabled", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "store", cfg.Store, "addr", cfg.ListenAddr())
	if err := server.CreateAndStartServer(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
