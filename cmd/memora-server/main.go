// Command memora-server serves the Memora HTTP API.
//
// Startup sequence:
//  1. Load configuration from environment variables and the optional YAML file.
//  2. Open the configured storage engine.
//  3. Build the memory engine and start its index workers.
//  4. Schedule SQLite snapshots when enabled.
//  5. Serve HTTP until SIGINT or SIGTERM, then drain and shut down.
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

	"github.com/scrypster/memora/internal/config"
	"github.com/scrypster/memora/internal/logging"
	"github.com/scrypster/memora/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "memora-server: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is done or the listener fails.
func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("memora-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("MEMORA_CONFIG_FILE"), "Path to a YAML config file")
	host := fs.String("host", "", "Override the listen host")
	port := fs.Int("port", -1, "Override the listen port (0 picks a free port)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfigFile(*configPath)
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port >= 0 {
		cfg.Server.Port = *port
	}

	logger := logging.NewWithWriter(stderr, cfg.Logging.Level, "memora")

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

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapshots, err := server.NewBackupService(cfg, logger)
	if err != nil {
		return err
	}
	if snapshots != nil {
		go snapshots.Run(srvCtx)
	}
	addr, done, err := server.Start(srvCtx, cfg, eng, logger)
	if err != nil {
		return err
	}
	logger.Info("memora API running", "url", "http://"+addr, "storage", cfg.Storage.StorageEngine)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully")
	cancel()
	return <-done
}
