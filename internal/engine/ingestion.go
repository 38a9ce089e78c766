package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scrypster/memora/pkg/types"
)

// PutBatch stores items as the units of one document and queues them for
// indexing. Units of a previous submission under documentID are replaced.
//
// It returns once the units are written in pending status and every index
// job is counted in the agent's backlog; indexing happens in the background.
func (e *MemoryEngine) PutBatch(ctx context.Context, agentID string, items []types.IngestItem, documentID string) (*PutBatchResult, error) {
	e.mu.RLock()
	running := e.started && !e.shuttingDown
	e.mu.RUnlock()
	if !running {
		return nil, ErrNotStarted
	}

	if err := e.validateBatch(agentID, items); err != nil {
		return nil, err
	}
	if documentID == "" {
		documentID = uuid.NewString()
	}

	if err := e.store.EnsureAgent(ctx, agentID); err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", translate(err))
	}

	now := e.now().UTC()
	units := make([]*types.MemoryUnit, len(items))
	for i, item := range items {
		eventDate := now
		if item.EventDate != nil {
			eventDate = item.EventDate.UTC()
		}
		factType := item.FactType
		if factType == "" {
			factType = types.FactWorld
		}
		units[i] = &types.MemoryUnit{
			AgentID:    agentID,
			DocumentID: documentID,
			Content:    strings.TrimSpace(item.Content),
			Context:    item.Context,
			FactType:   factType,
			EventDate:  eventDate,
			Metadata:   item.Metadata,
			Status:     types.UnitPending,
			CreatedAt:  now,
		}
	}

	ids, err := e.store.ReplaceDocument(ctx, agentID, documentID, units)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", translate(err))
	}

	backlog := e.backlogs.get(agentID)
	for _, id := range ids {
		job := e.jobs.create(agentID, id, backlog)
		backlog.pending.Add(1)
		if !e.queue.push(job) {
			// Shutdown raced the write; the unit stays pending.
			backlog.pending.Add(-1)
			e.logger.Warn("queue closed, index job dropped", "agent", agentID, "unit", id)
		}
	}

	e.logger.Debug("batch accepted", "agent", agentID, "document", documentID, "count", len(ids))
	return &PutBatchResult{AcceptedCount: len(ids), DocumentID: documentID}, nil
}

func (e *MemoryEngine) validateBatch(agentID string, items []types.IngestItem) error {
	if strings.TrimSpace(agentID) == "" {
		return validationf("agent_id is required")
	}
	if len(items) == 0 {
		return validationf("items must not be empty")
	}
	if len(items) > e.config.MaxBatchSize {
		return validationf("batch of %d items exceeds the limit of %d", len(items), e.config.MaxBatchSize)
	}
	for i, item := range items {
		if strings.TrimSpace(item.Content) == "" {
			return validationf("items[%d]: content is required", i)
		}
		if !types.IsValidFactType(item.FactType) {
			return validationf("items[%d]: unknown fact_type %q", i, item.FactType)
		}
		for k := range item.Metadata {
			if k == "" {
				return validationf("items[%d]: metadata keys must not be empty", i)
			}
		}
		if item.EventDate != nil && item.EventDate.IsZero() {
			return validationf("items[%d]: event_date must not be the zero time", i)
		}
	}
	return nil
}
