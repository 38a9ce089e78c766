package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/pkg/types"
)

func TestJobTable_Lifecycle(t *testing.T) {
	table := newJobTable()
	var b backlogs
	job := table.create("a", 7, b.get("a"))
	assert.Equal(t, types.JobQueued, job.State)
	assert.NotEmpty(t, job.ID)

	for _, s := range []types.JobState{types.JobEmbedding, types.JobEntityExtraction, types.JobGraphLinking} {
		require.NoError(t, table.transition(job, s, nil))
	}
	require.Len(t, table.list("a"), 1)

	require.NoError(t, table.transition(job, types.JobDone, nil))
	assert.Empty(t, table.list("a"), "done records are dropped")
}

func TestJobTable_FailedCountsAttempts(t *testing.T) {
	table := newJobTable()
	var b backlogs
	job := table.create("a", 1, b.get("a"))

	cause := errors.New("embed: provider down")
	require.NoError(t, table.transition(job, types.JobEmbedding, nil))
	require.NoError(t, table.transition(job, types.JobFailed, cause))
	assert.Equal(t, 1, table.attempt(job))
	require.NoError(t, table.transition(job, types.JobQueued, nil))
	require.NoError(t, table.transition(job, types.JobFailed, cause))
	assert.Equal(t, 2, table.attempt(job))

	require.NoError(t, table.transition(job, types.JobDeadLettered, cause))
	jobs := table.list("a")
	require.Len(t, jobs, 1, "dead-lettered records are kept")
	assert.Equal(t, types.JobDeadLettered, jobs[0].State)
	assert.Equal(t, "embed: provider down", jobs[0].LastError)
	assert.Nil(t, jobs[0].backlog)
}

func TestJobTable_RejectsInvalidTransitions(t *testing.T) {
	table := newJobTable()
	var b backlogs
	job := table.create("a", 1, b.get("a"))

	assert.Error(t, table.transition(job, types.JobDone, nil), "queued cannot skip to done")
	assert.Error(t, table.transition(job, types.JobDeadLettered, nil))

	require.NoError(t, table.transition(job, types.JobEmbedding, nil))
	require.NoError(t, table.transition(job, types.JobDone, nil))
	assert.Error(t, table.transition(job, types.JobQueued, nil), "done is terminal")
	assert.Equal(t, types.JobDone, job.State)
}

func TestJobTable_DropAgent(t *testing.T) {
	table := newJobTable()
	var b backlogs
	table.create("a", 1, b.get("a"))
	table.create("b", 2, b.get("b"))

	table.dropAgent("a")
	assert.Empty(t, table.list("a"))
	assert.Len(t, table.list("b"), 1)
}

func TestBacklogs_ResetOrphansOldCounters(t *testing.T) {
	var b backlogs
	old := b.get("a")
	old.pending.Add(3)
	assert.Equal(t, int64(3), b.pending("a"))

	b.reset("a")
	assert.Zero(t, b.pending("a"))

	// A job still holding the old counters cannot drive the new ones negative.
	old.pending.Add(-3)
	assert.Zero(t, b.pending("a"))
	assert.NotSame(t, old, b.get("a"))
}

func TestJobQueue_RoundRobinAcrossAgents(t *testing.T) {
	q := newJobQueue()
	var b backlogs
	table := newJobTable()
	for i := range 3 {
		q.push(table.create("big", types.NodeID(i+1), b.get("big")))
	}
	q.push(table.create("small", 100, b.get("small")))
	assert.Equal(t, 4, q.len())

	var order []string
	for {
		job, ok := q.pop()
		if !ok {
			break
		}
		order = append(order, job.AgentID)
	}
	assert.Equal(t, []string{"big", "small", "big", "big"}, order)
	assert.Zero(t, q.len())
}

func TestJobQueue_FIFOWithinAgent(t *testing.T) {
	q := newJobQueue()
	var b backlogs
	table := newJobTable()
	for i := range 5 {
		q.push(table.create("a", types.NodeID(i+1), b.get("a")))
	}
	for i := range 5 {
		job, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, types.NodeID(i+1), job.UnitID)
	}
}

func TestJobQueue_DropAgent(t *testing.T) {
	q := newJobQueue()
	var b backlogs
	table := newJobTable()
	q.push(table.create("a", 1, b.get("a")))
	q.push(table.create("b", 2, b.get("b")))
	q.push(table.create("a", 3, b.get("a")))

	assert.Equal(t, 2, q.dropAgent("a"))
	assert.Zero(t, q.dropAgent("a"))
	assert.Equal(t, 1, q.len())

	job, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "b", job.AgentID)
	_, ok = q.pop()
	assert.False(t, ok)
}

func TestJobQueue_Close(t *testing.T) {
	q := newJobQueue()
	var b backlogs
	table := newJobTable()
	require.True(t, q.push(table.create("a", 1, b.get("a"))))

	q.close()
	q.close()
	assert.True(t, q.isClosed())
	assert.False(t, q.push(table.create("a", 2, b.get("a"))))

	select {
	case <-q.done:
	default:
		t.Fatal("done channel not closed")
	}
	_, ok := q.pop()
	assert.True(t, ok, "queued jobs drain after close")
}

func TestPollUntil(t *testing.T) {
	ctx := context.Background()

	t.Run("immediate success", func(t *testing.T) {
		calls := 0
		err := PollUntil(ctx, time.Hour, time.Hour, func(context.Context) (bool, error) {
			calls++
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("eventual success", func(t *testing.T) {
		calls := 0
		err := PollUntil(ctx, time.Millisecond, 5*time.Second, func(context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("timeout", func(t *testing.T) {
		err := PollUntil(ctx, time.Millisecond, 20*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		err := PollUntil(cctx, time.Millisecond, time.Hour, func(context.Context) (bool, error) {
			cancel()
			return false, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("condition error", func(t *testing.T) {
		boom := errors.New("stats unavailable")
		err := PollUntil(ctx, time.Millisecond, time.Hour, func(context.Context) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invalid interval", func(t *testing.T) {
		err := PollUntil(ctx, 0, time.Hour, func(context.Context) (bool, error) { return true, nil })
		assert.ErrorIs(t, err, ErrValidation)
	})
}
