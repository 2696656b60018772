package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gammadia/herd/internal/retry"
	"github.com/gammadia/herd/pool/internal"
	"github.com/samber/lo"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateConverging    State = "converging"
	StateConverged     State = "converged"
	StateTimedOut      State = "timed-out"
	StateFailed        State = "failed"
)

type PreparePolicy string

const (
	// PrepareAbort stops at the first node that fails to prepare.
	PrepareAbort PreparePolicy = "abort"
	// PrepareContinue skips failing nodes and prepares the remaining ones.
	PrepareContinue PreparePolicy = "continue"
)

func ParsePreparePolicy(s string) (PreparePolicy, error) {
	switch policy := PreparePolicy(s); policy {
	case PrepareAbort, PrepareContinue:
		return policy, nil
	default:
		return "", fmt.Errorf("%w: unknown prepare policy '%s'", ErrConfiguration, s)
	}
}

// Controller keeps a pool of nodes at a desired size.
//
// The observed nodes are listed again before every sizing decision, nodes can
// be started or stopped by other actors between two calls. A Controller is
// driven by a single goroutine and is not safe for concurrent use.
type Controller struct {
	provider Provider
	config   Config
	log      *slog.Logger

	state    State
	observed []Node
	stopping []string
}

func New(provider Provider, config Config) *Controller {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		provider: provider,
		config:   config,
		log:      logger,
		state:    StateUninitialized,
	}
}

func (c *Controller) State() State {
	return c.state
}

// Nodes returns the nodes observed by the last listing.
func (c *Controller) Nodes() []Node {
	nodes := make([]Node, len(c.observed))
	copy(nodes, c.observed)
	return nodes
}

// Stopping returns the IDs of the nodes the last Converge asked the provider
// to stop. They may still be listed until the provider reports them stopped.
func (c *Controller) Stopping() []string {
	return append([]string(nil), c.stopping...)
}

// Observe lists the running nodes of the pool without changing it.
func (c *Controller) Observe(ctx context.Context) ([]Node, error) {
	return c.refresh(ctx)
}

// Converge drives the number of running nodes to desired, then waits for the
// provider to report it.
func (c *Controller) Converge(ctx context.Context, desired int) error {
	if desired < 0 {
		return fmt.Errorf("%w: desired pool size must not be negative", ErrConfiguration)
	}
	c.state = StateConverging
	c.stopping = nil

	nodes, err := c.refresh(ctx)
	if err != nil {
		c.state = StateFailed
		return err
	}
	c.log.Info("Converging pool", "observed", len(nodes), "desired", desired)

	if count := internal.NbNodesToCreate(desired, len(nodes)); count > 0 {
		c.log.Info("Creating nodes", "count", count, "image", c.config.Spec.Image, "class", c.config.Spec.Class)
		if err := c.provider.Create(ctx, count, c.config.Spec); err != nil {
			c.state = StateFailed
			return &ProviderError{Op: "create", Err: err}
		}
	} else if count := internal.NbNodesToStop(desired, len(nodes)); count > 0 {
		ids := internal.OldestFirst(candidates(nodes), count)
		c.log.Info("Stopping nodes", "count", count, "nodes", ids)
		c.stopping = ids
		if err := c.provider.Stop(ctx, ids); err != nil {
			c.state = StateFailed
			return &ProviderError{Op: "stop", IDs: ids, Err: err}
		}
	}

	return c.AwaitCount(ctx, desired)
}

// AwaitCount polls the provider until it reports target running nodes.
// It gives up with a *TimeoutError after ConvergenceTimeout / PollInterval polls.
func (c *Controller) AwaitCount(ctx context.Context, target int) error {
	c.state = StateConverging
	polls := max(int(c.config.ConvergenceTimeout/c.config.PollInterval), 1)

	observed := 0
	for poll := 1; poll <= polls; poll++ {
		nodes, err := c.refresh(ctx)
		if err != nil {
			c.state = StateFailed
			return err
		}

		observed = len(nodes)
		if observed == target {
			c.log.Info("Pool converged", "nodes", observed, "polls", poll)
			c.state = StateConverged
			return nil
		}
		c.log.Debug("Waiting for pool to converge", "observed", observed, "target", target, "poll", poll)

		if poll < polls {
			select {
			case <-time.After(c.config.PollInterval):
			case <-ctx.Done():
				c.state = StateFailed
				return ctx.Err()
			}
		}
	}

	c.log.Warn("Pool did not converge in time", "observed", observed, "target", target, "polls", polls)
	c.state = StateTimedOut
	return &TimeoutError{Target: target, Observed: observed, Polls: polls}
}

// TerminateAll terminates every node of the pool and waits for none to be running.
func (c *Controller) TerminateAll(ctx context.Context) error {
	c.state = StateConverging

	nodes, err := c.refresh(ctx)
	if err != nil {
		c.state = StateFailed
		return err
	}

	if len(nodes) > 0 {
		ids := lo.Map(nodes, func(node Node, _ int) string { return node.ID })
		for _, id := range ids {
			c.log.Info("Terminating node", "node", id)
		}
		if err := c.provider.Terminate(ctx, ids); err != nil {
			c.state = StateFailed
			return &ProviderError{Op: "terminate", IDs: ids, Err: err}
		}
	}

	return c.AwaitCount(ctx, 0)
}

// Prepare runs command on every node. With PrepareAbort, the first failure is
// returned as a *PreparationError. With PrepareContinue, the nodes that were
// prepared are returned along with the joined errors of the others.
func (c *Controller) Prepare(ctx context.Context, executor Executor, nodes []Node, command string, policy PreparePolicy) ([]Node, error) {
	var prepared []Node
	var errs []error

	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return prepared, err
		}

		log := c.log.With("node", node.ID)
		log.Info("Preparing node")

		result, err := executor.Run(ctx, node, command)
		if err = Check(result, err); err != nil {
			failure := &PreparationError{Node: node, Err: err}
			if policy != PrepareContinue {
				return prepared, failure
			}
			log.Warn("Node preparation failed, continuing with the remaining nodes", "error", err)
			errs = append(errs, failure)
			continue
		}

		log.Debug("Node prepared", "stdout", string(result.Stdout))
		prepared = append(prepared, node)
	}

	return prepared, errors.Join(errs...)
}

func (c *Controller) refresh(ctx context.Context) ([]Node, error) {
	nodes, err := retry.Result(ctx, max(c.config.ListAttempts, 1), func() ([]Node, error) {
		return c.provider.ListMatching(ctx, c.config.Filter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	c.observed = lo.Filter(nodes, func(node Node, _ int) bool {
		return c.config.Filter.Matches(node)
	})
	return c.Nodes(), nil
}

func candidates(nodes []Node) []internal.Candidate {
	return lo.Map(nodes, func(node Node, _ int) internal.Candidate {
		return internal.Candidate{ID: node.ID, LaunchedAt: node.LaunchedAt}
	})
}
