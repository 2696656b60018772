package dispatcher

import (
	"time"

	"github.com/gammadia/herd/jobs"
)

type Fault struct {
	Task     jobs.Task
	Err      error
	TimedOut bool
}

type Summary struct {
	// Catalog entries looked at, whatever their outcome
	Considered int
	Submitted  int
	Skipped    int
	Succeeded  int
	Faulted    int
	TimedOut   int
	Faults     []Fault
	// Run stopped submitting because its context was cancelled
	Cancelled bool

	Elapsed      time.Duration
	MeanDuration time.Duration
	MaxDuration  time.Duration
}
