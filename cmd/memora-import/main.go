// Command memora-import loads a folder of Markdown notes into an agent's
// memory, one document per file, and waits for indexing to finish. The
// summary is printed to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/memora/internal/attribution"
	"github.com/scrypster/memora/internal/config"
	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/internal/importer"
	"github.com/scrypster/memora/internal/logging"
	"github.com/scrypster/memora/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "memora-import: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("memora-import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("MEMORA_CONFIG_FILE"), "Path to a YAML config file")
	agentID := fs.String("agent", "", "Agent to import into (default: MEMORA_AGENT_ID, MEMORA_USER or git user.name)")
	dir := fs.String("dir", "", "Folder of Markdown notes to import (required)")
	wait := fs.Duration("wait", 10*time.Minute, "How long to wait for indexing; 0 returns once stored")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		fs.Usage()
		return errors.New("-dir is required")
	}
	if *agentID == "" {
		*agentID = attribution.DefaultAgent()
	}
	if *agentID == "" {
		return errors.New("no agent id: pass -agent or set MEMORA_AGENT_ID")
	}

	cfg, err := config.LoadConfigFile(*configPath)
	if err != nil {
		return err
	}
	logger := logging.NewWithWriter(stderr, cfg.Logging.Level, "memora-import")

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

	result, err := importer.New(eng, logger).Import(ctx, *agentID, *dir)
	if err != nil {
		return err
	}

	if *wait > 0 && result.Facts > 0 {
		logger.Info("waiting for indexing", "agent", *agentID, "facts", result.Facts)
		if err := eng.WaitForBacklog(ctx, *agentID, engine.WaitOptions{
			PollInterval: 200 * time.Millisecond,
			Timeout:      *wait,
		}); err != nil {
			return fmt.Errorf("indexing did not finish: %w", err)
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		AgentID string `json:"agent_id"`
		*importer.Result
	}{*agentID, result})
}
