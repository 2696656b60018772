package campaign

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gammadia/herd/dispatcher"
	"github.com/gammadia/herd/jobs"
	"github.com/gammadia/herd/pool"
	"github.com/samber/lo"
)

type Config struct {
	Logger   *slog.Logger  `json:"-"`
	Provider pool.Provider `json:"-"`
	Executor pool.Executor `json:"-"`

	Pool     pool.Config `json:"pool"`
	PoolSize int         `json:"pool-size"`

	// Command run on every node before dispatching, skipped when empty
	PrepareCommand string             `json:"prepare-command"`
	PreparePolicy  pool.PreparePolicy `json:"prepare-policy"`

	Catalog []jobs.Task `json:"-"`
	// Defaults to the local file system, unless OutputsOnCoordinator is set
	Store jobs.Store `json:"-"`
	// Look for outputs on the coordinator node instead of locally
	OutputsOnCoordinator bool `json:"outputs-on-coordinator"`

	Substrate jobs.SubstrateConfig `json:"substrate"`
	// Width and Logger are derived, a non-zero Width caps the derived one
	Dispatch dispatcher.Config `json:"dispatch"`

	// Terminate every node of the pool once the run is over
	Teardown bool `json:"teardown"`
}

// Run brings the pool to PoolSize nodes, prepares them, then dispatches the
// catalog on every node but the oldest one, which is kept as coordinator.
func Run(ctx context.Context, config Config) (summary dispatcher.Summary, err error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Provider == nil || config.Executor == nil {
		return summary, fmt.Errorf("%w: a provider and an executor are required", pool.ErrConfiguration)
	}
	if err := pool.Validate(config.Pool); err != nil {
		return summary, err
	}

	poolConfig := config.Pool
	poolConfig.Logger = logger.With("component", "pool")
	controller := pool.New(config.Provider, poolConfig)

	if config.Teardown {
		defer func() {
			// Requested teardowns are carried out even when the run was cancelled
			if teardownErr := controller.TerminateAll(context.WithoutCancel(ctx)); teardownErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to tear down pool: %w", teardownErr))
			}
		}()
	}

	err = controller.Converge(ctx, config.PoolSize)
	nodes := controller.Nodes()
	if err != nil {
		if !errors.Is(err, pool.ErrConvergenceTimeout) {
			return summary, err
		}
		nodes = activeNodes(nodes, controller.Stopping(), config.PoolSize)
		if len(nodes) == 0 {
			return summary, err
		}
		logger.Warn("Continuing with a partial pool", "nodes", len(nodes), "stopping", controller.Stopping(), "error", err)
	}

	if config.PrepareCommand != "" {
		prepared, err := controller.Prepare(ctx, config.Executor, nodes, config.PrepareCommand, config.PreparePolicy)
		if err != nil {
			if config.PreparePolicy != pool.PrepareContinue || ctx.Err() != nil {
				return summary, err
			}
			logger.Warn("Some nodes could not be prepared", "prepared", len(prepared), "nodes", len(nodes), "error", err)
		}
		nodes = prepared
	}

	width, err := dispatcher.Width(len(nodes), config.Dispatch.RunCap)
	if err != nil {
		return summary, err
	}
	if config.Dispatch.Width > 0 {
		width = min(width, config.Dispatch.Width)
	}

	coordinator, workers := splitCoordinator(nodes)
	logger.Info("Dispatching",
		"coordinator", coordinator.ID,
		"workers", lo.Map(workers, func(node pool.Node, _ int) string { return node.ID }),
		"width", width,
		"tasks", len(config.Catalog),
	)

	substrateConfig := config.Substrate
	substrateConfig.Logger = logger.With("component", "substrate")
	substrate, err := jobs.NewSubstrate(config.Executor, workers, substrateConfig)
	if err != nil {
		return summary, err
	}

	store := config.Store
	if config.OutputsOnCoordinator {
		store = &jobs.RemoteStore{Executor: config.Executor, Host: coordinator}
	} else if store == nil {
		store = jobs.LocalStore{}
	}

	dispatchConfig := config.Dispatch
	dispatchConfig.Logger = logger.With("component", "dispatcher")
	dispatchConfig.Width = width
	return dispatcher.New(substrate, store, dispatchConfig).Run(ctx, config.Catalog)
}

// activeNodes leaves out the nodes being stopped, then keeps at most size
// nodes, youngest first, since the oldest ones are the next to be stopped.
func activeNodes(nodes []pool.Node, stopping []string, size int) []pool.Node {
	active := lo.Reject(nodes, func(node pool.Node, _ int) bool {
		return slices.Contains(stopping, node.ID)
	})
	if len(active) <= size {
		return active
	}
	slices.SortFunc(active, func(a, b pool.Node) int {
		return cmp.Or(b.LaunchedAt.Compare(a.LaunchedAt), cmp.Compare(a.ID, b.ID))
	})
	return active[:size]
}

// splitCoordinator reserves the oldest node as coordinator. nodes must not be empty.
func splitCoordinator(nodes []pool.Node) (pool.Node, []pool.Node) {
	sorted := slices.Clone(nodes)
	slices.SortFunc(sorted, func(a, b pool.Node) int {
		return cmp.Or(a.LaunchedAt.Compare(b.LaunchedAt), cmp.Compare(a.ID, b.ID))
	})
	return sorted[0], sorted[1:]
}
