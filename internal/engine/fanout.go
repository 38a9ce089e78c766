package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/memora/pkg/types"
)

// strategyOutcome is what one strategy produced during a fan-out.
type strategyOutcome struct {
	strategy   types.Strategy
	candidates []candidate
	err        error
	elapsed    time.Duration
}

// retrieve runs every strategy concurrently under a shared SearchTimeout.
//
// Strategy errors are captured per strategy and never returned to the
// group, so one failure cannot cancel the others. The call fails with
// ErrStrategyUnavailable only when all strategies failed.
func (e *MemoryEngine) retrieve(ctx context.Context, q *retrievalQuery) ([]strategyOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.SearchTimeout)
	defer cancel()

	q.seeds = newSeedBoard()
	outcomes := make([]strategyOutcome, len(types.AllStrategies))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range types.AllStrategies {
		g.Go(func() error {
			outcomes[i] = e.runStrategy(gctx, s, q)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.strategy, o.err))
			e.logger.Warn("retrieval strategy failed", "agent", q.agentID, "strategy", o.strategy, "err", o.err)
		}
	}
	if len(errs) == len(outcomes) {
		return outcomes, fmt.Errorf("%w: %w", ErrStrategyUnavailable, errors.Join(errs...))
	}
	return outcomes, nil
}

// runStrategy runs one strategy, publishing graph seeds and recovering panics.
func (e *MemoryEngine) runStrategy(ctx context.Context, s types.Strategy, q *retrievalQuery) (out strategyOutcome) {
	out.strategy = s
	start := time.Now()

	if slot := q.seeds.slot(s); slot != nil {
		defer func() {
			if out.err != nil {
				slot.publish(nil, out.err)
				return
			}
			slot.publish(topIDs(out.candidates, e.config.GraphSeedCount), nil)
		}()
	}
	defer func() {
		if r := recover(); r != nil {
			out.candidates = nil
			out.err = fmt.Errorf("strategy %s panicked: %v", s, r)
		}
		out.elapsed = time.Since(start)
	}()

	fn, ok := e.strategies[s]
	if !ok {
		out.err = fmt.Errorf("strategy %s not configured", s)
		return out
	}
	cands, err := fn(ctx, q)
	if err != nil {
		out.err = classifyStageError(ctx, err)
		return out
	}
	if len(cands) > q.limit {
		cands = cands[:q.limit]
	}
	out.candidates = cands
	return out
}
