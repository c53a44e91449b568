package main

import (
	"context"
	stderrors "errors"
	"feedback-relay/internal"
	"feedback-relay/runtime/workers"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every defer (snapshot store close) run first.
func run() error {
	// 1. Configuration & Logger
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. State, services and transports
	reg := prometheus.NewRegistry()
	relay, err := internal.NewRelay(config, log, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := relay.Close(); err != nil {
			log.Error("Closing snapshot store failed", "error", err)
		}
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Supervision, blocks until every worker is done
	sup := workers.NewSupervisor(log, config.RestartInterval, relay.Metrics.WorkerRestarts)
	log.Info("Starting feedback relay",
		"tcp", config.RelayAddress(),
		"http", config.HTTPAddress(),
		"public_base_url", config.PublicBaseURL)
	sup.Add(relay.Workers()...).Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
