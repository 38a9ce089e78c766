package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/memora/internal/llm"
	"github.com/scrypster/memora/internal/storage"
	"github.com/scrypster/memora/pkg/types"
)

// errUnitGone marks a job whose unit was replaced or deleted.
var errUnitGone = errors.New("memory unit no longer exists")

// indexWorker pops jobs until the queue is closed and drained, or ctx ends.
func (e *MemoryEngine) indexWorker(ctx context.Context, workerID int) {
	defer e.workerWaitGroup.Done()

	logger := e.logger.With("worker", workerID)
	logger.Debug("index worker started")
	defer logger.Debug("index worker stopped")

	for {
		job, ok := e.queue.pop()
		if ok {
			e.processJob(ctx, workerID, job)
			continue
		}
		select {
		case <-e.queue.notify:
		case <-e.queue.done:
			if e.queue.len() == 0 {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// processJob walks one job through embedding, extraction and linking.
// Every outcome ends in a transition; nothing is returned to callers.
func (e *MemoryEngine) processJob(ctx context.Context, workerID int, job *IndexJob) {
	logger := e.logger.With("worker", workerID, "agent", job.AgentID, "unit", job.UnitID, "job", job.ID)
	logger.Debug("processing index job", "attempt", e.jobs.attempt(job))

	if err := e.jobs.transition(job, types.JobEmbedding, nil); err != nil {
		logger.Error("cannot start job", "err", err)
		return
	}

	unit, err := e.store.GetUnit(ctx, job.AgentID, job.UnitID)
	if errors.Is(err, storage.ErrNotFound) {
		e.finish(job, logger)
		return
	}
	if err != nil {
		e.fail(ctx, job, fmt.Errorf("loading unit: %w", err), logger)
		return
	}

	var embedding []float32
	err = e.runStage(ctx, "embedding", func(sctx context.Context) error {
		vec, err := e.embedder.Embed(sctx, unit.Content)
		if err != nil {
			return err
		}
		if err := e.store.SetUnitEmbedding(sctx, job.AgentID, unit.ID, vec); err != nil {
			return err
		}
		embedding = vec
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		e.finish(job, logger)
		return
	}
	if err != nil {
		e.fail(ctx, job, err, logger)
		return
	}

	if err := e.jobs.transition(job, types.JobEntityExtraction, nil); err != nil {
		logger.Error("job transition failed", "err", err)
		return
	}
	var extraction *llm.Extraction
	err = e.runStage(ctx, "entity_extraction", func(sctx context.Context) error {
		ex, err := e.extractor.Extract(sctx, unit.Content)
		if err != nil {
			return err
		}
		extraction = ex
		return nil
	})
	if err != nil {
		e.fail(ctx, job, err, logger)
		return
	}

	if err := e.jobs.transition(job, types.JobGraphLinking, nil); err != nil {
		logger.Error("job transition failed", "err", err)
		return
	}
	err = e.runStage(ctx, "graph_linking", func(sctx context.Context) error {
		return e.linkUnit(sctx, unit, embedding, extraction)
	})
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, errUnitGone) {
		e.finish(job, logger)
		return
	}
	if err != nil {
		e.fail(ctx, job, err, logger)
		return
	}
	e.finish(job, logger)
}

// runStage bounds fn by DependencyTimeout and turns panics into errors.
func (e *MemoryEngine) runStage(ctx context.Context, stage string, fn func(ctx context.Context) error) (err error) {
	sctx, cancel := context.WithTimeout(ctx, e.config.DependencyTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s stage panicked: %v", stage, r)
		}
	}()
	if err := fn(sctx); err != nil {
		return fmt.Errorf("%s: %w", stage, classifyStageError(sctx, err))
	}
	return nil
}

// linkUnit writes entities, mention links, relations and semantic links
// for one unit, then marks it indexed.
func (e *MemoryEngine) linkUnit(ctx context.Context, unit *types.MemoryUnit, embedding []float32, ex *llm.Extraction) error {
	agentID := unit.AgentID
	var links []types.Link

	if ex != nil {
		entityIDs := make(map[string]types.NodeID, len(ex.Entities))
		for _, ent := range ex.Entities {
			entity, err := e.store.UpsertEntity(ctx, agentID, ent.Name, ent.Aliases)
			if err != nil {
				return fmt.Errorf("upserting entity %q: %w", ent.Name, err)
			}
			entityIDs[types.CanonicalKey(ent.Name)] = entity.ID
			w := types.ClampWeight(ent.Confidence)
			links = append(links,
				types.Link{SourceID: unit.ID, TargetID: entity.ID, Type: types.LinkMentions, Weight: w},
				types.Link{SourceID: entity.ID, TargetID: unit.ID, Type: types.LinkMentionedIn, Weight: w},
			)
		}
		for _, rel := range ex.Relations {
			from, okFrom := entityIDs[types.CanonicalKey(rel.From)]
			to, okTo := entityIDs[types.CanonicalKey(rel.To)]
			if !okFrom || !okTo || from == to {
				continue
			}
			links = append(links, types.Link{SourceID: from, TargetID: to, Type: rel.Type, Weight: types.ClampWeight(rel.Confidence)})
		}
	}

	if e.config.SemanticLinkTopK > 0 && !storage.IsZeroVector(embedding) {
		similar, err := e.store.VectorSearch(ctx, agentID, embedding, storage.SearchOptions{Limit: e.config.SemanticLinkTopK + 1})
		if err != nil {
			return fmt.Errorf("finding similar units: %w", err)
		}
		added := 0
		for _, s := range similar {
			if added == e.config.SemanticLinkTopK {
				break
			}
			if s.Unit.ID == unit.ID || s.Score < e.config.SemanticLinkThreshold {
				continue
			}
			w := types.ClampWeight(s.Score)
			links = append(links,
				types.Link{SourceID: unit.ID, TargetID: s.Unit.ID, Type: types.LinkSemantic, Weight: w},
				types.Link{SourceID: s.Unit.ID, TargetID: unit.ID, Type: types.LinkSemantic, Weight: w},
			)
			added++
		}
	}

	if len(links) > 0 {
		if err := e.store.AddLinks(ctx, agentID, links); err != nil {
			if errors.Is(err, storage.ErrInvalidInput) {
				// An endpoint vanished under a concurrent upsert or delete.
				if _, gerr := e.store.GetUnit(ctx, agentID, unit.ID); errors.Is(gerr, storage.ErrNotFound) {
					return errUnitGone
				}
			}
			return fmt.Errorf("adding links: %w", err)
		}
	}
	return e.store.SetUnitStatus(ctx, agentID, unit.ID, types.UnitIndexed)
}

// finish resolves the job to Done and settles its backlog.
func (e *MemoryEngine) finish(job *IndexJob, logger *log.Logger) {
	if err := e.jobs.transition(job, types.JobDone, nil); err != nil {
		e.logger.Error("job transition failed", "job", job.ID, "err", err)
		return
	}
	job.backlog.pending.Add(-1)
	logger.Debug("index job done")
	e.notifyJobComplete(job)
}

// fail records a failed attempt and either schedules a retry after
// attempt²×RetryBaseDelay or dead-letters the job.
func (e *MemoryEngine) fail(ctx context.Context, job *IndexJob, cause error, logger *log.Logger) {
	if err := e.jobs.transition(job, types.JobFailed, cause); err != nil {
		e.logger.Error("job transition failed", "job", job.ID, "err", err)
		return
	}
	attempt := e.jobs.attempt(job)

	if attempt <= e.config.MaxRetries {
		delay := time.Duration(attempt*attempt) * e.config.RetryBaseDelay
		logger.Warn("index job failed, retrying", "attempt", attempt, "backoff", delay, "err", cause)
		e.scheduleRetry(job, delay)
		return
	}

	if err := e.jobs.transition(job, types.JobDeadLettered, cause); err != nil {
		e.logger.Error("job transition failed", "job", job.ID, "err", err)
		return
	}
	logger.Error("index job dead-lettered", "attempts", attempt, "err", cause)
	if err := e.store.SetUnitStatus(context.WithoutCancel(ctx), job.AgentID, job.UnitID, types.UnitFailed); err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn("failed to mark unit failed", "unit", job.UnitID, "err", err)
	}
	job.backlog.pending.Add(-1)
	job.backlog.deadLettered.Add(1)
	e.notifyJobComplete(job)
}

// scheduleRetry requeues job after delay without holding a worker.
func (e *MemoryEngine) scheduleRetry(job *IndexJob, delay time.Duration) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	if e.retryStopped {
		e.logger.Warn("engine stopping, retry dropped", "job", job.ID)
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		e.retryMu.Lock()
		delete(e.retryTimers, timer)
		e.retryMu.Unlock()

		if err := e.jobs.transition(job, types.JobQueued, nil); err != nil {
			e.logger.Error("job transition failed", "job", job.ID, "err", err)
			return
		}
		if !e.queue.push(job) {
			e.logger.Warn("queue closed, retry dropped", "job", job.ID)
		}
	})
	e.retryTimers[timer] = struct{}{}
}

// stopRetries cancels pending retry timers and returns how many there were.
func (e *MemoryEngine) stopRetries() int {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	e.retryStopped = true
	n := 0
	for t := range e.retryTimers {
		if t.Stop() {
			n++
		}
		delete(e.retryTimers, t)
	}
	return n
}

func (e *MemoryEngine) notifyJobComplete(job *IndexJob) {
	e.mu.RLock()
	cb := e.onJobComplete
	e.mu.RUnlock()
	if cb != nil {
		cb(job.AgentID)
	}
}

// startWorkerPool starts the worker goroutines.
func (e *MemoryEngine) startWorkerPool(ctx context.Context) {
	for i := 0; i < e.config.NumWorkers; i++ {
		e.workerWaitGroup.Add(1)
		go e.indexWorker(ctx, i)
	}
	e.logger.Info("started index workers", "count", e.config.NumWorkers)
}

// stopWorkerPool closes the queue and waits for workers to drain.
func (e *MemoryEngine) stopWorkerPool(ctx context.Context) error {
	e.queue.close()
	if n := e.stopRetries(); n > 0 {
		e.logger.Warn("pending retries dropped", "count", n)
	}

	done := make(chan struct{})
	go func() {
		e.workerWaitGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("all index workers finished")
		return nil
	case <-time.After(e.config.ShutdownTimeout):
		e.logger.Warn("shutdown timeout reached, index jobs may be dropped", "queued", e.queue.len())
		return nil
	case <-ctx.Done():
		e.logger.Warn("context cancelled, index jobs may be dropped", "queued", e.queue.len())
		return ctx.Err()
	}
}
