package dispatcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gammadia/herd/pool"
	"github.com/rcrowley/go-metrics"
)

// ReservedNodes is the number of pool nodes kept out of dispatching, for the
// process coordinating the pool.
const ReservedNodes = 1

type Config struct {
	Logger *slog.Logger `json:"-"`
	// Maximum number of tasks in flight
	Width int `json:"width"`
	// Maximum number of tasks submitted during a run
	RunCap int `json:"run-cap"`
	// Zero means tasks are never timed out
	TaskTimeout time.Duration `json:"task-timeout"`
	// Optional registry receiving the task duration timer
	Registry metrics.Registry `json:"-"`
	OnEvent  func(Event)      `json:"-"`
}

// Width derives the dispatch width from the number of nodes of the pool.
func Width(poolSize, runCap int) (int, error) {
	width := min(poolSize-ReservedNodes, runCap)
	if width < 1 {
		return 0, fmt.Errorf("%w: width must be at least 1 (pool of %d nodes, run cap of %d)", pool.ErrConfiguration, poolSize, runCap)
	}
	return width, nil
}

func Validate(config Config) error {
	if config.Width < 1 {
		return fmt.Errorf("%w: width must be at least 1", pool.ErrConfiguration)
	}
	if config.RunCap < 1 {
		return fmt.Errorf("%w: run-cap must be at least 1", pool.ErrConfiguration)
	}
	if config.TaskTimeout < 0 {
		return fmt.Errorf("%w: task-timeout must not be negative", pool.ErrConfiguration)
	}
	return nil
}
