package recording

import "fmt"

// transitions is the complete server-side state machine. Anything not
// listed here is rejected with a TransitionError.
var transitions = map[Status][]Status{
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusAbandoned, StatusDiscarded},
	StatusAbandoned:  {StatusInProgress},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusDiscarded:  {},
}

// TransitionError reports an attempted transition outside the table. It is
// mapped to HTTP 409 so clients can tell diverged state from transient
// failures.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal session transition %s -> %s", e.From, e.To)
}

// CheckTransition returns a TransitionError when from -> to is not allowed.
func CheckTransition(from, to Status) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// ingestOK reports whether a session in the given status accepts batches.
func ingestOK(s Status) bool {
	return s == StatusInProgress
}
