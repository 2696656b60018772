package pool

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration      = errors.New("invalid configuration")
	ErrConvergenceTimeout = errors.New("convergence timed out")
)

// TimeoutError reports a convergence that did not reach its target.
// It matches ErrConvergenceTimeout with errors.Is.
type TimeoutError struct {
	Target   int
	Observed int
	Polls    int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pool did not reach %d nodes after %d polls (observed %d)", e.Target, e.Polls, e.Observed)
}

func (e *TimeoutError) Unwrap() error {
	return ErrConvergenceTimeout
}

// ProviderError wraps a failed create, stop or terminate request.
type ProviderError struct {
	Op  string
	IDs []string
	Err error
}

func (e *ProviderError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provider %s of %v failed: %v", e.Op, e.IDs, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PreparationError reports a node that could not be prepared.
type PreparationError struct {
	Node Node
	Err  error
}

func (e *PreparationError) Error() string {
	return fmt.Sprintf("failed to prepare node '%s': %v", e.Node.ID, e.Err)
}

func (e *PreparationError) Unwrap() error {
	return e.Err
}
