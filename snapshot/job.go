package snapshot

import (
	"fmt"
	"sync"
)

// JobState is a stage of an export job.
type JobState string

const (
	JobIdle        JobState = "idle"
	JobPreloading  JobState = "preloading"
	JobCapturing   JobState = "capturing"
	JobCompositing JobState = "compositing"
	JobPackaging   JobState = "packaging"
	JobDone        JobState = "done"
	JobFailed      JobState = "failed"
)

var jobTransitions = map[JobState][]JobState{
	JobIdle:        {JobPreloading},
	JobPreloading:  {JobCapturing},
	JobCapturing:   {JobCompositing, JobPackaging},
	JobCompositing: {JobPackaging},
	JobPackaging:   {JobDone},
}

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// CanTransition reports whether from -> to is allowed. Any non-terminal state
// may fail.
func CanTransition(from, to JobState) bool {
	if to == JobFailed {
		return !from.Terminal()
	}
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is one export pipeline run.
type Job struct {
	ID       string
	Document VisualDocument
	Format   ExportFormatSpec

	mu      sync.Mutex
	state   JobState
	history []JobState
	err     error
}

// NewJob creates a job in the idle state.
func NewJob(id string, doc VisualDocument, format ExportFormatSpec) *Job {
	return &Job{
		ID:       id,
		Document: doc,
		Format:   format,
		state:    JobIdle,
		history:  []JobState{JobIdle},
	}
}

// State returns the current state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// History returns every state the job entered, in order.
func (j *Job) History() []JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]JobState, len(j.history))
	copy(out, j.history)
	return out
}

// Err returns the failure cause for a failed job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Advance moves the job to the next state.
func (j *Job) Advance(to JobState) error {
	if to == JobFailed {
		return NewError(KindInternal, "use Fail to fail a job", nil)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if !CanTransition(j.state, to) {
		return NewError(KindInternal, fmt.Sprintf("invalid job transition %s -> %s", j.state, to), nil)
	}
	j.state = to
	j.history = append(j.history, to)
	return nil
}

// Fail moves the job to the failed state.
func (j *Job) Fail(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return NewError(KindInternal, fmt.Sprintf("job already %s", j.state), nil)
	}
	j.state = JobFailed
	j.history = append(j.history, JobFailed)
	j.err = err
	return nil
}
