package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/scrypster/memora/internal/backup"
	"github.com/scrypster/memora/internal/config"
	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/internal/llm"
	"github.com/scrypster/memora/internal/rerank"
	"github.com/scrypster/memora/internal/storage"
	"github.com/scrypster/memora/internal/storage/memstore"
	"github.com/scrypster/memora/internal/storage/postgres"
	"github.com/scrypster/memora/internal/storage/sqlite"
)

const sqliteFile = "memora.db"

// OpenStore opens the storage engine named in cfg.
func OpenStore(cfg *config.Config, logger *log.Logger) (storage.MemoryStore, error) {
	switch cfg.Storage.StorageEngine {
	case "memory":
		return memstore.New(logger), nil
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewMemoryStore(filepath.Join(cfg.Storage.DataPath, sqliteFile), logger)
	case "postgres":
		return postgres.NewMemoryStore(cfg.Storage.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unsupported storage engine: %q", cfg.Storage.StorageEngine)
	}
}

// NewBackupService returns the SQLite snapshot service, or nil when
// snapshots are disabled or the store is not SQLite.
func NewBackupService(cfg *config.Config, logger *log.Logger) (*backup.Service, error) {
	if cfg.Storage.StorageEngine != "sqlite" || cfg.Storage.BackupInterval <= 0 {
		return nil, nil
	}
	dir := cfg.Storage.BackupDir
	if dir == "" {
		dir = filepath.Join(cfg.Storage.DataPath, "backups")
	}
	return backup.NewService(backup.Config{
		DBPath:    filepath.Join(cfg.Storage.DataPath, sqliteFile),
		Dir:       dir,
		Interval:  cfg.Storage.BackupInterval,
		Retention: cfg.Storage.BackupRetention,
		Verify:    true,
	}, logger)
}

// NewEngine builds the model providers named in cfg and an engine over store.
// The engine is not started.
func NewEngine(cfg *config.Config, store storage.MemoryStore, logger *log.Logger) (*engine.MemoryEngine, error) {
	providers := config.ProviderConfig(cfg)

	generator, err := llm.NewTextGenerator(providers)
	if err != nil {
		return nil, err
	}
	embedder, err := llm.NewEmbeddingGenerator(providers)
	if err != nil {
		return nil, err
	}

	// The cross-encoder needs a Cohere key; without one it always falls
	// back to the heuristic.
	var scorer rerank.PairScorer
	if cfg.LLM.CohereAPIKey != "" {
		scorer = rerank.NewCohereScorer(cfg.LLM.CohereAPIKey, cfg.LLM.RerankModel)
	}
	engineCfg := config.FromAppConfig(cfg)

	logger.Info("building memory engine",
		"storage", cfg.Storage.StorageEngine,
		"generator", providers.Provider,
		"embedder", embedder.GetModel(),
		"cross_encoder", scorer != nil)

	return engine.NewMemoryEngine(store, engineCfg, engine.Dependencies{
		Embedder:  embedder,
		Extractor: llm.NewExtractor(generator),
		Generator: generator,
		Rerankers: rerank.NewSet(engineCfg.TemporalHalfLife, scorer, logger),
		Logger:    logger,
	})
}
