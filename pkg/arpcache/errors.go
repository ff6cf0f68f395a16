package arpcache

import "fmt"

// PreconditionError reports a call that violated the entry state machine or
// a cache ownership rule. These are programmer errors: the cache panics with
// a *PreconditionError rather than returning it, keeping the fatal category
// separate from soft failures such as a full pending queue or a lookup miss.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("arpcache: %s: %s", e.Op, e.Reason)
}

// violation panics with a *PreconditionError for op.
func violation(op, format string, args ...any) {
	panic(&PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)})
}
