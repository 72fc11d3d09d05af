package store

import "fmt"

// transitions is the complete device-side state machine.
var transitions = map[Status][]Status{
	StatusRecording:   {StatusPendingSync, StatusDiscarded, StatusCancelled},
	StatusPendingSync: {StatusSynced},
	StatusSynced:      {},
	StatusDiscarded:   {},
	StatusCancelled:   {},
}

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal local session transition %s -> %s", e.From, e.To)
}

func CheckTransition(from, to Status) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// IsTerminal reports whether a session in this status can be deleted once
// fully resolved.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}
