package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gammadia/herd/pool"
)

type SubstrateConfig struct {
	Logger    *slog.Logger `json:"-"`
	Commands  Commands     `json:"commands"`
	Preserver Preserver    `json:"-"`
}

// Substrate runs tasks on a fixed set of worker nodes, one task per node at a time.
type Substrate struct {
	executor pool.Executor
	config   SubstrateConfig
	log      *slog.Logger

	idle chan pool.Node
}

func NewSubstrate(executor pool.Executor, workers []pool.Node, config SubstrateConfig) (*Substrate, error) {
	if len(workers) < 1 {
		return nil, fmt.Errorf("%w: no worker nodes", pool.ErrConfiguration)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	idle := make(chan pool.Node, len(workers))
	for _, node := range workers {
		idle <- node
	}

	return &Substrate{
		executor: executor,
		config:   config,
		log:      logger,
		idle:     idle,
	}, nil
}

// Execute blocks until a worker node is idle, then runs the task on it.
// A task exiting with a non-zero code is reported as a *pool.CommandError.
func (s *Substrate) Execute(ctx context.Context, task Task) error {
	var node pool.Node
	select {
	case node = <-s.idle:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { s.idle <- node }()

	log := s.log.With("task", task.String(), "node", node.ID)
	command := s.config.Commands.CommandLine(task)
	log.Debug("Running task", "command", command)

	result, err := s.executor.Run(ctx, node, command)
	if err == nil && s.config.Preserver != nil {
		if err := s.config.Preserver(task, result); err != nil {
			log.Warn("Failed to preserve task output", "error", err)
		}
	}

	if err := pool.Check(result, err); err != nil {
		return fmt.Errorf("task %s failed on node '%s': %w", task, node.ID, err)
	}
	log.Debug("Task output", "stdout", string(result.Stdout))
	return nil
}
