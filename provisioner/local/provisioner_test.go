package local

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gammadia/herd/pool"
	"github.com/gammadia/herd/provisioner/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var silentLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var filter = pool.Filter{Image: "ubuntu:24.04", Class: "workers"}

func newTestProvider(docker *internal.FakeDocker) *Provider {
	return NewProviderWithClient(docker, Config{Logger: silentLogger})
}

func TestCreateAndList(t *testing.T) {
	docker := &internal.FakeDocker{}
	provider := newTestProvider(docker)

	require.NoError(t, provider.Create(context.Background(), 2, pool.CreateSpec{
		Image:    filter.Image,
		Class:    filter.Class,
		Metadata: map[string]string{"owner": "ci"},
	}))

	assert.Equal(t, []string{"ubuntu:24.04"}, docker.Pulled)
	require.Len(t, docker.Containers, 2)
	for _, c := range docker.Containers {
		assert.Equal(t, "workers", c.Labels[LabelPool])
		assert.Equal(t, "ci", c.Labels["owner"])
		assert.NotEmpty(t, c.Labels[LabelProvisionedAt])
		assert.Equal(t, []string{"sleep", "infinity"}, c.Cmd)
		assert.Regexp(t, "^herd-", c.Name)
	}

	nodes, err := provider.ListMatching(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, pool.NodeStateRunning, nodes[0].State)
	assert.Equal(t, "workers", nodes[0].Class)
	assert.Equal(t, docker.Containers[0].Name, nodes[0].Name)
	assert.Equal(t, docker.Containers[0].Address, nodes[0].Address)
	assert.True(t, nodes[0].LaunchedAt.Before(nodes[1].LaunchedAt))
}

func TestListIgnoresOtherPools(t *testing.T) {
	docker := &internal.FakeDocker{}
	provider := newTestProvider(docker)
	require.NoError(t, provider.Create(context.Background(), 1, pool.CreateSpec{Image: filter.Image, Class: "other"}))
	require.NoError(t, provider.Create(context.Background(), 1, pool.CreateSpec{Image: "debian", Class: filter.Class}))

	nodes, err := provider.ListMatching(context.Background(), filter)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestStopAndTerminate(t *testing.T) {
	docker := &internal.FakeDocker{}
	provider := newTestProvider(docker)
	require.NoError(t, provider.Create(context.Background(), 3, pool.CreateSpec{Image: filter.Image, Class: filter.Class}))
	ids := []string{docker.Containers[0].ID, docker.Containers[1].ID, docker.Containers[2].ID}

	require.NoError(t, provider.Stop(context.Background(), ids[:1]))
	nodes, err := provider.ListMatching(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, nodes, 2, "stopped nodes are not listed")

	require.NoError(t, provider.Terminate(context.Background(), ids))
	assert.Equal(t, ids, docker.Removed)
	assert.Empty(t, docker.Containers)
}

func TestTerminateReportsEveryFailure(t *testing.T) {
	provider := newTestProvider(&internal.FakeDocker{})

	err := provider.Terminate(context.Background(), []string{"missing-1", "missing-2"})
	assert.ErrorContains(t, err, "missing-1")
	assert.ErrorContains(t, err, "missing-2")
}

func TestCreateFailure(t *testing.T) {
	provider := newTestProvider(&internal.FakeDocker{CreateErr: errors.New("no space left on device")})

	err := provider.Create(context.Background(), 1, pool.CreateSpec{Image: filter.Image, Class: filter.Class})
	assert.ErrorContains(t, err, "no space left on device")
}

func TestRun(t *testing.T) {
	docker := &internal.FakeDocker{
		Exec: func(containerID string, cmd []string) (string, string, int) {
			return containerID, "", 0
		},
	}
	provider := newTestProvider(docker)
	require.NoError(t, provider.Create(context.Background(), 1, pool.CreateSpec{Image: filter.Image, Class: filter.Class}))
	nodes, err := provider.ListMatching(context.Background(), filter)
	require.NoError(t, err)

	result, err := provider.Run(context.Background(), nodes[0], "hostname")
	require.NoError(t, err)
	assert.Equal(t, nodes[0].ID, string(result.Stdout))
}

func TestControllerOverDocker(t *testing.T) {
	docker := &internal.FakeDocker{}
	controller := pool.New(newTestProvider(docker), pool.Config{
		Logger:             silentLogger,
		Filter:             filter,
		Spec:               pool.CreateSpec{Image: filter.Image, Class: filter.Class},
		ConvergenceTimeout: 100 * time.Millisecond,
		PollInterval:       10 * time.Millisecond,
		ListAttempts:       1,
	})

	require.NoError(t, controller.Converge(context.Background(), 3))
	require.NoError(t, controller.Converge(context.Background(), 1))
	assert.Equal(t, []string{docker.Containers[0].ID, docker.Containers[1].ID}, docker.Stopped, "oldest nodes are stopped first")

	require.NoError(t, controller.TerminateAll(context.Background()))
	assert.Equal(t, pool.StateConverged, controller.State())
}
