package scheduler

import (
	"fmt"

	"github.com/jonesrussell/bookwatch/internal/domain"
)

// JobState represents a job state in the state machine.
type JobState string

const (
	StatePending   JobState = "pending"
	StateScheduled JobState = "scheduled"
	StateRunning   JobState = "running"
	StatePaused    JobState = "paused"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// ValidateStateTransition checks if a state transition is valid.
// Returns an error if the transition is not allowed.
func ValidateStateTransition(from, to JobState) error {
	validTransitions := map[JobState][]JobState{
		StatePending: {
			StateScheduled, // Trigger registered
			StateRunning,   // Immediate one-off execution
		},
		StateScheduled: {
			StateRunning, // Trigger fired
			StatePaused,  // Manual pause
		},
		StatePaused: {
			StateScheduled, // Manual resume
		},
		StateRunning: {
			StateCompleted, // One-off finished
			StateFailed,    // All attempts exhausted
			StateScheduled, // Recurring job waits for its next fire
		},
		StateCompleted: {},
		StateFailed: {
			StateScheduled, // Recurring job keeps firing after a bad run
			StatePending,   // Manual retry
		},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}

// CanPause checks if a job can be paused in its current state.
func CanPause(job *domain.Job) bool {
	return job.Status == string(StateScheduled)
}

// CanResume checks if a job can be resumed from its current state.
func CanResume(job *domain.Job) bool {
	return job.Status == string(StatePaused)
}

// CanModify checks if a job's definition can be replaced. Running jobs keep
// their in-flight execution; the new definition applies from the next fire,
// so only a live run blocks modification.
func CanModify(job *domain.Job) bool {
	return job.Status != string(StateRunning)
}

// IsTerminalState checks if a state is terminal (no further transitions).
func IsTerminalState(state JobState) bool {
	return state == StateCompleted || state == StateFailed
}

// IsActiveState checks if a job is actively running.
func IsActiveState(state JobState) bool {
	return state == StateRunning
}
