package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/memora/internal/llm"
	"github.com/scrypster/memora/internal/rerank"
	"github.com/scrypster/memora/internal/storage"
	"github.com/scrypster/memora/pkg/types"
)

// Dependencies are the model collaborators of the engine. Nil fields take
// local defaults: a hash embedder, the heuristic extractor, no generator,
// and a reranker set without a cross-encoder scorer.
type Dependencies struct {
	Embedder  llm.EmbeddingGenerator
	Extractor llm.Extractor
	Generator llm.TextGenerator
	Rerankers *rerank.Set
	Logger    *log.Logger
}

// MemoryEngine is the core orchestrator for memory ingestion and retrieval.
// Writes return once units are stored; embedding, extraction and linking run
// on a worker pool. Reads never wait on indexing.
type MemoryEngine struct {
	config Config
	store  storage.MemoryStore

	embedder   llm.EmbeddingGenerator
	extractor  llm.Extractor
	generator  llm.TextGenerator
	rerankers  *rerank.Set
	embeddings *embeddingCache
	logger     *log.Logger
	now        func() time.Time

	// Retrieval strategies by name; tests swap entries.
	strategies map[types.Strategy]strategyFunc

	// Ingestion pipeline
	queue           *jobQueue
	jobs            *jobTable
	backlogs        backlogs
	workerWaitGroup sync.WaitGroup
	workerCancel    context.CancelFunc

	retryMu      sync.Mutex
	retryTimers  map[*time.Timer]struct{}
	retryStopped bool

	// State management
	started      bool
	shuttingDown bool
	mu           sync.RWMutex

	onJobComplete func(agentID string)
}

// NewMemoryEngine creates an engine over store. Use DefaultConfig() for
// sensible defaults.
func NewMemoryEngine(store storage.MemoryStore, cfg Config, deps Dependencies) (*MemoryEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("component", "engine")

	if deps.Embedder == nil {
		deps.Embedder = llm.NewHashEmbedder(0)
	}
	if deps.Extractor == nil {
		deps.Extractor = llm.NewHeuristicExtractor()
	}
	if deps.Rerankers == nil {
		deps.Rerankers = rerank.NewSet(cfg.TemporalHalfLife, nil, logger)
	}

	cache, err := newEmbeddingCache(cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	e := &MemoryEngine{
		config:      cfg,
		store:       store,
		embedder:    deps.Embedder,
		extractor:   deps.Extractor,
		generator:   deps.Generator,
		rerankers:   deps.Rerankers,
		embeddings:  cache,
		logger:      logger,
		now:         time.Now,
		queue:       newJobQueue(),
		jobs:        newJobTable(),
		retryTimers: make(map[*time.Timer]struct{}),
	}
	e.strategies = map[types.Strategy]strategyFunc{
		types.StrategySemantic: e.semanticStrategy,
		types.StrategyLexical:  e.lexicalStrategy,
		types.StrategyGraph:    e.graphStrategy,
		types.StrategyTemporal: e.temporalStrategy,
	}
	return e, nil
}

// SetOnJobComplete sets a callback fired with the agent id whenever an
// index job reaches Done or DeadLettered.
func (e *MemoryEngine) SetOnJobComplete(callback func(agentID string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onJobComplete = callback
}

// Start starts the worker pool. It must be called before PutBatch.
func (e *MemoryEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}
	if e.queue.isClosed() {
		return fmt.Errorf("engine cannot be restarted after shutdown")
	}

	// Workers outlive the caller's request context; Shutdown cancels them.
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.workerCancel = cancel
	e.startWorkerPool(workerCtx)

	e.started = true
	e.logger.Info("memory engine started")
	return nil
}

// Shutdown stops intake, lets workers drain the queue for up to
// ShutdownTimeout, then cancels them. Jobs left over stay pending.
func (e *MemoryEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.shuttingDown = true
	e.mu.Unlock()

	e.logger.Info("shutting down memory engine")
	err := e.stopWorkerPool(ctx)
	e.workerCancel()
	e.embeddings.close()

	e.mu.Lock()
	e.started = false
	e.shuttingDown = false
	e.mu.Unlock()
	e.logger.Info("memory engine shut down")
	return err
}

// GetStats returns the agent's graph totals and ingestion backlog.
func (e *MemoryEngine) GetStats(ctx context.Context, agentID string) (*types.AgentStats, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, validationf("agent_id is required")
	}
	if err := e.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	counts, err := e.store.Counts(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count agent %s: %w", agentID, translate(err))
	}
	backlog := e.backlogs.get(agentID)
	return &types.AgentStats{
		AgentID:                agentID,
		TotalNodes:             counts.MemoryUnits + counts.Entities,
		TotalLinks:             counts.Links,
		PendingOperations:      max(backlog.pending.Load(), 0),
		MemoryUnits:            counts.MemoryUnits,
		Entities:               counts.Entities,
		Documents:              counts.Documents,
		DeadLetteredOperations: backlog.deadLettered.Load(),
	}, nil
}

// DeleteAgent removes every node, link, document and job of the agent and
// resets its backlog. Jobs already running settle against the old counters.
func (e *MemoryEngine) DeleteAgent(ctx context.Context, agentID string) error {
	if strings.TrimSpace(agentID) == "" {
		return validationf("agent_id is required")
	}
	if err := e.store.DeleteAgent(ctx, agentID); err != nil {
		return fmt.Errorf("failed to delete agent %s: %w", agentID, translate(err))
	}
	dropped := e.queue.dropAgent(agentID)
	e.jobs.dropAgent(agentID)
	e.backlogs.reset(agentID)
	e.embeddings.purge(agentID)
	e.logger.Info("agent deleted", "agent", agentID, "queued_jobs_dropped", dropped)
	return nil
}

// ListAgents returns every known agent id in ascending order.
func (e *MemoryEngine) ListAgents(ctx context.Context) ([]string, error) {
	agents, err := e.store.ListAgents(ctx)
	if err != nil {
		return nil, translate(err)
	}
	if agents == nil {
		agents = []string{}
	}
	return agents, nil
}

// GetDocument returns a document and the ids of its units.
func (e *MemoryEngine) GetDocument(ctx context.Context, agentID, documentID string) (*types.Document, error) {
	if strings.TrimSpace(agentID) == "" || strings.TrimSpace(documentID) == "" {
		return nil, validationf("agent_id and document_id are required")
	}
	doc, err := e.store.GetDocument(ctx, agentID, documentID)
	if err != nil {
		return nil, translate(err)
	}
	return doc, nil
}

// DeleteDocument removes a document with its units and their links.
func (e *MemoryEngine) DeleteDocument(ctx context.Context, agentID, documentID string) error {
	if strings.TrimSpace(agentID) == "" || strings.TrimSpace(documentID) == "" {
		return validationf("agent_id and document_id are required")
	}
	return translate(e.store.DeleteDocument(ctx, agentID, documentID))
}

// Jobs returns the agent's live and dead-lettered index job records.
func (e *MemoryEngine) Jobs(agentID string) []IndexJob {
	return e.jobs.list(agentID)
}

// DeadLetters returns the agent's dead-lettered jobs.
func (e *MemoryEngine) DeadLetters(agentID string) []IndexJob {
	all := e.jobs.list(agentID)
	out := all[:0]
	for _, j := range all {
		if j.State == types.JobDeadLettered {
			out = append(out, j)
		}
	}
	return out
}

// QueueSize returns the number of queued index jobs across agents.
func (e *MemoryEngine) QueueSize() int {
	return e.queue.len()
}
