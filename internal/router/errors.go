package router

import "fmt"

// ValidationError means the input was rejected before any side effect: no
// cache reservation, no enqueue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RoutingError means the synchronous enqueue (or a fail-closed dedup
// check) failed. Routing is a single attempt; retry belongs to the
// delivery stage.
type RoutingError struct {
	Err error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed: %v", e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}
