package types

import "testing"

func TestIsValidJobTransition(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{JobQueued, JobEmbedding, true},
		{JobEmbedding, JobEntityExtraction, true},
		{JobEntityExtraction, JobGraphLinking, true},
		{JobGraphLinking, JobDone, true},
		{JobEmbedding, JobDone, true},
		{JobQueued, JobFailed, true},
		{JobGraphLinking, JobFailed, true},
		{JobFailed, JobQueued, true},
		{JobFailed, JobDeadLettered, true},

		{JobQueued, JobDone, false},
		{JobQueued, JobGraphLinking, false},
		{JobEntityExtraction, JobDone, false},
		{JobDone, JobQueued, false},
		{JobDone, JobFailed, false},
		{JobDeadLettered, JobQueued, false},
		{JobFailed, JobDone, false},
		{"", JobQueued, false},
	}

	for _, tt := range tests {
		if got := IsValidJobTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsValidJobTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJobState_IsTerminal(t *testing.T) {
	for _, s := range []JobState{JobDone, JobDeadLettered} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobState{JobQueued, JobEmbedding, JobEntityExtraction, JobGraphLinking, JobFailed} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
