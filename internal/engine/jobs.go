package engine

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/memora/pkg/types"
)

// IndexJob is the explicit state record of one memory unit's indexing.
type IndexJob struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agent_id"`
	UnitID     types.NodeID   `json:"unit_id"`
	State      types.JobState `json:"state"`
	Attempt    int            `json:"attempt"`
	LastError  string         `json:"last_error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	UpdatedAt  time.Time      `json:"updated_at"`

	// backlog is the counter set the job was accounted against. Deleting
	// the agent swaps in a fresh set, so a job in flight settles against
	// the orphaned one.
	backlog *agentBacklog
}

// agentBacklog holds the per-agent ingestion counters.
type agentBacklog struct {
	pending      atomic.Int64
	deadLettered atomic.Int64
}

// backlogs maps agent ids to their counters.
type backlogs struct {
	m sync.Map // string -> *agentBacklog
}

func (b *backlogs) get(agentID string) *agentBacklog {
	if v, ok := b.m.Load(agentID); ok {
		return v.(*agentBacklog)
	}
	v, _ := b.m.LoadOrStore(agentID, &agentBacklog{})
	return v.(*agentBacklog)
}

// reset replaces the agent's counters with zeroed ones.
func (b *backlogs) reset(agentID string) {
	b.m.Store(agentID, &agentBacklog{})
}

// pending returns the agent's pending count, never negative.
func (b *backlogs) pending(agentID string) int64 {
	return max(b.get(agentID).pending.Load(), 0)
}

// jobTable keeps the records of live and dead-lettered jobs per agent.
type jobTable struct {
	mu   sync.Mutex
	jobs map[string]map[string]*IndexJob
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]map[string]*IndexJob)}
}

// create registers a queued job for the unit.
func (t *jobTable) create(agentID string, unitID types.NodeID, backlog *agentBacklog) *IndexJob {
	now := time.Now().UTC()
	job := &IndexJob{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		UnitID:     unitID,
		State:      types.JobQueued,
		EnqueuedAt: now,
		UpdatedAt:  now,
		backlog:    backlog,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.jobs[agentID] == nil {
		t.jobs[agentID] = make(map[string]*IndexJob)
	}
	t.jobs[agentID][job.ID] = job
	return job
}

// transition moves job to state, enforcing the state machine. Entering
// Failed counts an attempt. Done jobs are dropped from the table;
// dead-lettered ones stay for inspection.
func (t *jobTable) transition(job *IndexJob, to types.JobState, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !types.IsValidJobTransition(job.State, to) {
		return fmt.Errorf("invalid job transition %s -> %s", job.State, to)
	}
	job.State = to
	job.UpdatedAt = time.Now().UTC()
	if cause != nil {
		job.LastError = cause.Error()
	}
	if to == types.JobFailed {
		job.Attempt++
	}
	if to == types.JobDone {
		if byID := t.jobs[job.AgentID]; byID != nil && byID[job.ID] == job {
			delete(byID, job.ID)
		}
	}
	return nil
}

// list returns copies of the agent's job records, oldest first.
func (t *jobTable) list(agentID string) []IndexJob {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]IndexJob, 0, len(t.jobs[agentID]))
	for _, j := range t.jobs[agentID] {
		c := *j
		c.backlog = nil
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b IndexJob) int {
		if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UnitID, b.UnitID)
	})
	return out
}

// attempt reads the job's attempt count.
func (t *jobTable) attempt(job *IndexJob) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return job.Attempt
}

// dropAgent forgets every record of the agent.
func (t *jobTable) dropAgent(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, agentID)
}
