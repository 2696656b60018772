package dispatcher

import (
	"time"

	"github.com/gammadia/herd/jobs"
)

// Event is emitted by Run on its own goroutine, in the order things happen.
type Event interface{}

type EventTaskSkipped struct {
	Task jobs.Task
}

type EventTaskSubmitted struct {
	Task     jobs.Task
	InFlight int
}

type EventTaskCompleted struct {
	Task     jobs.Task
	Duration time.Duration
}

type EventTaskFailed struct {
	Task     jobs.Task
	Err      error
	TimedOut bool
}
