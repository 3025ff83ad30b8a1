package pipeline

import "deskmemo/internal/storage"

// State is where an image sits in the analysis lifecycle.
type State int

const (
	StatePending State = iota
	StateAnalyzed
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAnalyzed:
		return "analyzed"
	case StateAbandoned:
		return "abandoned"
	}
	return "unknown"
}

// Terminal reports whether no further outcome can change the state.
func (s State) Terminal() bool {
	return s != StatePending
}

// Outcome is the result of one processing attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeSourceMissing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeSourceMissing:
		return "source_missing"
	}
	return "unknown"
}

// Status is the persisted part of an item's lifecycle.
type Status struct {
	State    State
	Failures int
}

// Next applies outcome to s. maxAttempts is the failure count at which an
// item is abandoned. Terminal states absorb every outcome.
func Next(s Status, outcome Outcome, maxAttempts int) Status {
	if s.State.Terminal() {
		return s
	}
	switch outcome {
	case OutcomeSuccess:
		return Status{State: StateAnalyzed, Failures: 0}
	case OutcomeFailure:
		failures := s.Failures + 1
		if failures >= maxAttempts {
			return Status{State: StateAbandoned, Failures: maxAttempts}
		}
		return Status{State: StatePending, Failures: failures}
	case OutcomeSourceMissing:
		// the file cannot come back; close the item without an Activity
		return Status{State: StateAnalyzed, Failures: s.Failures}
	}
	return s
}

// StatusOf derives the lifecycle status from the persisted flags.
// Duplicates never enter the lifecycle and report as analyzed.
func StatusOf(img *storage.CapturedImage) Status {
	switch {
	case img.IsDuplicate:
		return Status{State: StateAnalyzed, Failures: img.FailureCount}
	case !img.IsAnalyzed:
		return Status{State: StatePending, Failures: img.FailureCount}
	case img.FailureCount > 0:
		return Status{State: StateAbandoned, Failures: img.FailureCount}
	default:
		return Status{State: StateAnalyzed}
	}
}
