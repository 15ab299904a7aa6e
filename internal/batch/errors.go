package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrQueryFailure marks a failed batch query. The batch stays pending and the next
	// access runs it again.
	ErrQueryFailure = errors.New("batch query failed")
	// ErrKeyCollision reports two distinct entities sharing a kind and key within a session.
	ErrKeyCollision = errors.New("entity key collision")
	// ErrSessionClosed reports an access after the owning session ended.
	ErrSessionClosed = errors.New("session closed")
)

// QueryError carries the cause of a failed batch execution.
type QueryError struct {
	Path string
	Keys int
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s (%d keys): %v", ErrQueryFailure, e.Path, e.Keys, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Is(target error) bool {
	return target == ErrQueryFailure
}
