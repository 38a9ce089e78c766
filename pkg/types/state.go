package types

// JobState is the lifecycle state of a background indexing job.
type JobState string

// Indexing job state constants
const (
	JobQueued           JobState = "queued"            // Waiting for a worker
	JobEmbedding        JobState = "embedding"         // Computing the content embedding
	JobEntityExtraction JobState = "entity_extraction" // Extracting entities and relations
	JobGraphLinking     JobState = "graph_linking"     // Writing entities and links
	JobDone             JobState = "done"              // Terminal: indexed or no longer needed
	JobFailed           JobState = "failed"            // Attempt failed, retry pending
	JobDeadLettered     JobState = "dead_lettered"     // Terminal: retries exhausted
)

// IsTerminal reports whether no further transitions can leave the state.
func (s JobState) IsTerminal() bool {
	return s == JobDone || s == JobDeadLettered
}

// IsValidJobTransition validates indexing job transitions.
//
// Valid transitions:
//
//	queued -> embedding | failed
//	embedding -> entity_extraction | done | failed
//	entity_extraction -> graph_linking | failed
//	graph_linking -> done | failed
//	failed -> queued | dead_lettered
//	done, dead_lettered -> (terminal)
//
// embedding -> done covers jobs whose unit was replaced or deleted before
// indexing started.
func IsValidJobTransition(current, next JobState) bool {
	switch current {
	case JobQueued:
		return next == JobEmbedding || next == JobFailed
	case JobEmbedding:
		return next == JobEntityExtraction || next == JobDone || next == JobFailed
	case JobEntityExtraction:
		return next == JobGraphLinking || next == JobFailed
	case JobGraphLinking:
		return next == JobDone || next == JobFailed
	case JobFailed:
		return next == JobQueued || next == JobDeadLettered
	default:
		return false
	}
}
