package engine

import "sync"

// jobQueue holds one FIFO per agent and hands jobs out round-robin across
// agents, so one agent's large batch cannot starve another's.
type jobQueue struct {
	mu     sync.Mutex
	queues map[string][]*IndexJob
	ring   []string // agents with queued jobs, in service order
	next   int
	size   int
	closed bool

	notify chan struct{} // signalled when a job is pushed
	done   chan struct{} // closed when the queue is closed
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		queues: make(map[string][]*IndexJob),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends job to its agent's FIFO. It returns false once the queue is closed.
func (q *jobQueue) push(job *IndexJob) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.queues[job.AgentID]) == 0 {
		q.ring = append(q.ring, job.AgentID)
	}
	q.queues[job.AgentID] = append(q.queues[job.AgentID], job)
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// pop takes the head job of the next agent in the ring.
func (q *jobQueue) pop() (*IndexJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ring) == 0 {
		return nil, false
	}
	if q.next >= len(q.ring) {
		q.next = 0
	}
	agentID := q.ring[q.next]
	fifo := q.queues[agentID]
	job := fifo[0]
	fifo[0] = nil
	fifo = fifo[1:]
	q.size--

	if len(fifo) == 0 {
		delete(q.queues, agentID)
		q.ring = append(q.ring[:q.next], q.ring[q.next+1:]...)
	} else {
		q.queues[agentID] = fifo
		q.next++
	}

	// More work remains; wake another worker.
	if q.size > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return job, true
}

// dropAgent discards the agent's queued jobs and returns how many there were.
func (q *jobQueue) dropAgent(agentID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.queues[agentID])
	if n == 0 {
		return 0
	}
	delete(q.queues, agentID)
	for i, id := range q.ring {
		if id == agentID {
			q.ring = append(q.ring[:i], q.ring[i+1:]...)
			if q.next > i {
				q.next--
			}
			break
		}
	}
	q.size -= n
	return n
}

// len returns the number of queued jobs.
func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// close stops intake. Already queued jobs can still be popped.
func (q *jobQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

func (q *jobQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
