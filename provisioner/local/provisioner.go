package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/gammadia/herd/namegen"
	"github.com/gammadia/herd/pool"
	"github.com/gammadia/herd/provisioner/internal"
	"github.com/samber/lo"
)

const (
	// Pool class of a node container
	LabelPool = "herd.pool"
	// Time at which a node container was provisioned, in RFC 3339
	LabelProvisionedAt = "herd.provisioned-at"
)

// Provider runs the nodes of a pool as containers of the local Docker daemon.
// It also runs commands on them through docker exec.
type Provider struct {
	docker internal.DockerClient
	config Config
	log    *slog.Logger
}

var _ pool.Provider = (*Provider)(nil)
var _ pool.Executor = (*Provider)(nil)

func NewProvider(config Config) (*Provider, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to init docker client: %w", err)
	}

	return NewProviderWithClient(docker, config), nil
}

func NewProviderWithClient(docker internal.DockerClient, config Config) *Provider {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(config.Command) == 0 {
		config.Command = []string{"sleep", "infinity"}
	}

	return &Provider{
		docker: docker,
		config: config,
		log:    logger,
	}
}

func (p *Provider) ListMatching(ctx context.Context, filter pool.Filter) ([]pool.Node, error) {
	containers, err := p.docker.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", LabelPool+"="+filter.Class)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	nodes := lo.Map(containers, func(c container.Summary, _ int) pool.Node {
		return toNode(c)
	})
	return lo.Filter(nodes, func(node pool.Node, _ int) bool {
		return filter.Matches(node)
	}), nil
}

func toNode(c container.Summary) pool.Node {
	node := pool.Node{
		ID:         c.ID,
		Image:      c.Image,
		Class:      c.Labels[LabelPool],
		State:      nodeState(c.State),
		LaunchedAt: time.Unix(c.Created, 0),
	}
	if len(c.Names) > 0 {
		node.Name = strings.TrimPrefix(c.Names[0], "/")
	}
	if c.NetworkSettings != nil {
		for _, endpoint := range c.NetworkSettings.Networks {
			if endpoint != nil && endpoint.IPAddress != "" {
				node.Address = endpoint.IPAddress
				break
			}
		}
	}
	return node
}

func nodeState(state container.ContainerState) pool.NodeState {
	switch state {
	case container.StateRunning:
		return pool.NodeStateRunning
	case container.StateCreated, container.StateRestarting:
		return pool.NodeStatePending
	case container.StateRemoving:
		return pool.NodeStateStopping
	case container.StateDead:
		return pool.NodeStateTerminated
	default:
		return pool.NodeStateStopped
	}
}

func (p *Provider) Create(ctx context.Context, count int, spec pool.CreateSpec) error {
	if err := internal.EnsureImage(ctx, p.docker, spec.Image, p.log); err != nil {
		return err
	}

	labels := maps.Clone(spec.Metadata)
	if labels == nil {
		labels = map[string]string{}
	}
	labels[LabelPool] = spec.Class
	labels[LabelProvisionedAt] = time.Now().Format(time.RFC3339)

	for i := 0; i < count; i++ {
		name := namegen.NodeName()
		resp, err := p.docker.ContainerCreate(
			ctx,
			&container.Config{
				Image:  spec.Image,
				Cmd:    p.config.Command,
				Labels: labels,
			},
			&container.HostConfig{
				NetworkMode: container.NetworkMode(p.config.Network),
				Init:        lo.ToPtr(true),
			},
			nil,
			nil,
			name,
		)
		if err != nil {
			return fmt.Errorf("failed to create container '%s': %w", name, err)
		}

		if err := p.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start container '%s': %w", name, err)
		}
		p.log.Debug("Created node container", "name", name, "container", resp.ID)
	}
	return nil
}

func (p *Provider) Stop(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := p.docker.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop container '%s': %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) Terminate(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := p.docker.ContainerRemove(ctx, id, container.RemoveOptions{RemoveVolumes: true, Force: true}); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove container '%s': %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) Run(ctx context.Context, node pool.Node, command string) (pool.Result, error) {
	return internal.Exec(ctx, p.docker, node.ID, command)
}
