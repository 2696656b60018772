package openstack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/gammadia/herd/namegen"
	"github.com/gammadia/herd/pool"
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/startstop"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/samber/lo"
)

const (
	MetadataPool          = "herd-pool"
	MetadataProvisionedAt = "herd-provisioned-at"
)

// Provider manages the nodes of a pool as OpenStack compute servers. The pool
// filter image and class are an image ID and a flavor ID.
type Provider struct {
	client *gophercloud.ServiceClient
	log    *slog.Logger
}

var _ pool.Provider = (*Provider)(nil)

func NewProvider(config Config) (*Provider, error) {
	opts, err := openstack.AuthOptionsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth options from env: %w", err)
	}

	provider, err := openstack.AuthenticatedClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client: %w", err)
	}

	client, err := openstack.NewComputeV2(provider, gophercloud.EndpointOpts{
		Region: lo.Ternary(config.Region != "", config.Region, os.Getenv("OS_REGION_NAME")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get compute client: %w", err)
	}

	return NewProviderWithClient(client, config), nil
}

func NewProviderWithClient(client *gophercloud.ServiceClient, config Config) *Provider {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		client: client,
		log:    logger,
	}
}

func (p *Provider) ListMatching(ctx context.Context, filter pool.Filter) ([]pool.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := servers.List(p.client, servers.ListOpts{
		Image:  filter.Image,
		Flavor: filter.Class,
		Status: "ACTIVE",
	}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	all, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract servers: %w", err)
	}

	nodes := lo.Map(all, func(server servers.Server, _ int) pool.Node {
		return toNode(server)
	})
	return lo.Filter(nodes, func(node pool.Node, _ int) bool {
		return filter.Matches(node)
	}), nil
}

func toNode(server servers.Server) pool.Node {
	// Since microversion 2.47, flavors are embedded without their ID
	class := stringField(server.Flavor, "id")
	if class == "" {
		class = stringField(server.Flavor, "original_name")
	}

	return pool.Node{
		ID:         server.ID,
		Name:       server.Name,
		Address:    ipv4Address(server.Addresses),
		Image:      stringField(server.Image, "id"),
		Class:      class,
		State:      nodeState(server.Status),
		LaunchedAt: server.Created,
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// ipv4Address returns the first IPv4 address of the server, networks being
// considered in name order.
func ipv4Address(addresses map[string]any) string {
	for _, network := range slices.Sorted(maps.Keys(addresses)) {
		entries, _ := addresses[network].([]any)
		for _, entry := range entries {
			address, _ := entry.(map[string]any)
			if version, _ := address["version"].(float64); version == 4 {
				if addr, ok := address["addr"].(string); ok {
					return addr
				}
			}
		}
	}
	return ""
}

func nodeState(status string) pool.NodeState {
	switch status {
	case "ACTIVE":
		return pool.NodeStateRunning
	case "BUILD", "REBUILD", "REBOOT", "HARD_REBOOT":
		return pool.NodeStatePending
	case "DELETED", "SOFT_DELETED":
		return pool.NodeStateTerminated
	default:
		return pool.NodeStateStopped
	}
}

func (p *Provider) Create(ctx context.Context, count int, spec pool.CreateSpec) error {
	metadata := maps.Clone(spec.Metadata)
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata[MetadataPool] = spec.Class
	metadata[MetadataProvisionedAt] = time.Now().Format(time.RFC3339)

	networks := lo.Map(spec.Networks, func(uuid string, _ int) servers.Network {
		return servers.Network{UUID: uuid}
	})

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := namegen.NodeName()
		var builder servers.CreateOptsBuilder = servers.CreateOpts{
			Name:           name,
			ImageRef:       spec.Image,
			FlavorRef:      spec.Class,
			Networks:       networks,
			SecurityGroups: spec.SecurityGroups,
			Metadata:       metadata,
		}
		if spec.KeyName != "" {
			builder = keypairs.CreateOptsExt{
				CreateOptsBuilder: builder,
				KeyName:           spec.KeyName,
			}
		}

		server, err := servers.Create(p.client, builder).Extract()
		if err != nil {
			return fmt.Errorf("failed to create server '%s': %w", name, err)
		}
		p.log.Debug("Created server", "name", name, "server", server.ID)
	}
	return nil
}

func (p *Provider) Stop(ctx context.Context, ids []string) error {
	return p.each(ctx, ids, "stop", func(id string) error {
		return startstop.Stop(p.client, id).ExtractErr()
	})
}

func (p *Provider) Terminate(ctx context.Context, ids []string) error {
	return p.each(ctx, ids, "delete", func(id string) error {
		return servers.Delete(p.client, id).ExtractErr()
	})
}

func (p *Provider) each(ctx context.Context, ids []string, what string, fn func(id string) error) error {
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := fn(id); err != nil {
			errs = append(errs, fmt.Errorf("failed to %s server '%s': %w", what, id, err))
		}
	}
	return errors.Join(errs...)
}
