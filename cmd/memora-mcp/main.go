// Command memora-mcp serves Memora over the Model Context Protocol: line-
// delimited JSON-RPC 2.0 on stdin and stdout.
//
// All logging goes to stderr. Any byte on stdout that is not a response frame
// corrupts the protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/memora/internal/api/mcp"
	"github.com/scrypster/memora/internal/attribution"
	"github.com/scrypster/memora/internal/config"
	"github.com/scrypster/memora/internal/logging"
	"github.com/scrypster/memora/internal/notify"
	"github.com/scrypster/memora/internal/server"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "memora-mcp: %v\n", err)
		os.Exit(1)
	}
}

// run serves requests from stdin until it closes or ctx is done.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("memora-mcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("MEMORA_CONFIG_FILE"), "Path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfigFile(*configPath)
	if err != nil {
		return err
	}
	logger := logging.NewWithWriter(stderr, cfg.Logging.Level, "memora-mcp")

	store, err := server.OpenStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	eng, err := server.NewEngine(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("failed to build memory engine: %w", err)
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start memory engine: %w", err)
	}
	defer func() {
		if err := eng.Shutdown(context.Background()); err != nil {
			logger.Warn("engine shutdown error", "err", err)
		}
	}()

	// Let a memora-server on the same data directory refresh its stats stream.
	if cfg.Storage.StorageEngine != "memory" {
		events := notify.NewEventWriter(cfg.Storage.DataPath)
		eng.SetOnJobComplete(func(agentID string) {
			if err := events.Notify(notify.EventJobComplete, agentID); err != nil {
				logger.Debug("job event not written", "agent", agentID, "err", err)
			}
		})
	}

	srv := mcp.NewServer(eng,
		mcp.WithLogger(logger),
		mcp.WithVersion(version),
		mcp.WithDefaultAgent(attribution.DefaultAgent()),
	)
	logger.Info("ready, serving JSON-RPC 2.0 on stdin/stdout", "storage", cfg.Storage.StorageEngine)
	return mcp.NewStdioTransport(srv, stdin, stdout, logger).Serve(ctx)
}
