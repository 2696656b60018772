package internal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// FakeDocker is an in-memory DockerClient for tests.
type FakeDocker struct {
	mu sync.Mutex

	Containers []*FakeContainer
	Images     []string
	Pulled     []string
	Stopped    []string
	Removed    []string

	// Exec answers every exec, it succeeds silently when nil
	Exec func(containerID string, cmd []string) (stdout, stderr string, exitCode int)

	CreateErr error
	StopErr   error

	nextID int
	execs  map[string]fakeExec
}

type FakeContainer struct {
	ID      string
	Name    string
	Image   string
	Labels  map[string]string
	State   string
	Created time.Time
	Address string
	Cmd     []string
	Network string
}

type fakeExec struct {
	containerID string
	cmd         []string
	exitCode    int
}

var _ DockerClient = (*FakeDocker)(nil)

func (d *FakeDocker) find(id string) (*FakeContainer, error) {
	for _, c := range d.Containers {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no such container: %s", id)
}

func (d *FakeDocker) ContainerList(_ context.Context, options container.ListOptions) ([]container.Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []container.Summary
	for _, c := range d.Containers {
		if !options.All && c.State != "running" {
			continue
		}
		if options.Filters.Len() > 0 && !options.Filters.MatchKVList("label", c.Labels) {
			continue
		}
		list = append(list, container.Summary{
			ID:      c.ID,
			Names:   []string{"/" + c.Name},
			Image:   c.Image,
			Labels:  c.Labels,
			State:   c.State,
			Created: c.Created.Unix(),
			NetworkSettings: &container.NetworkSettingsSummary{
				Networks: map[string]*network.EndpointSettings{
					"bridge": {IPAddress: c.Address},
				},
			},
		})
	}
	return list, nil
}

func (d *FakeDocker) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CreateErr != nil {
		return container.CreateResponse{}, d.CreateErr
	}
	d.nextID++
	c := &FakeContainer{
		ID:      fmt.Sprintf("ctr-%d", d.nextID),
		Name:    containerName,
		Image:   config.Image,
		Labels:  config.Labels,
		State:   "created",
		Created: time.Unix(1700000000+int64(d.nextID), 0),
		Address: fmt.Sprintf("172.17.0.%d", d.nextID+1),
		Cmd:     config.Cmd,
	}
	if hostConfig != nil {
		c.Network = string(hostConfig.NetworkMode)
	}
	d.Containers = append(d.Containers, c)
	return container.CreateResponse{ID: c.ID}, nil
}

func (d *FakeDocker) ContainerStart(_ context.Context, containerID string, _ container.StartOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.find(containerID)
	if err != nil {
		return err
	}
	c.State = "running"
	return nil
}

func (d *FakeDocker) ContainerStop(_ context.Context, containerID string, _ container.StopOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.StopErr != nil {
		return d.StopErr
	}
	c, err := d.find(containerID)
	if err != nil {
		return err
	}
	c.State = "exited"
	d.Stopped = append(d.Stopped, containerID)
	return nil
}

func (d *FakeDocker) ContainerRemove(_ context.Context, containerID string, _ container.RemoveOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.find(containerID); err != nil {
		return err
	}
	d.Containers = slices.DeleteFunc(d.Containers, func(c *FakeContainer) bool { return c.ID == containerID })
	d.Removed = append(d.Removed, containerID)
	return nil
}

func (d *FakeDocker) ContainerExecCreate(_ context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, err := d.find(containerID); err != nil {
		return container.ExecCreateResponse{}, err
	} else if c.State != "running" {
		return container.ExecCreateResponse{}, fmt.Errorf("container %s is not running", containerID)
	}

	if d.execs == nil {
		d.execs = map[string]fakeExec{}
	}
	id := fmt.Sprintf("exec-%d", len(d.execs)+1)
	d.execs[id] = fakeExec{containerID: containerID, cmd: options.Cmd}
	return container.ExecCreateResponse{ID: id}, nil
}

// fakeConn is a minimal net.Conn for HijackedResponse.Close().
type fakeConn struct{ net.Conn }

func (fakeConn) Close() error { return nil }

func (d *FakeDocker) ContainerExecAttach(_ context.Context, execID string, _ container.ExecStartOptions) (types.HijackedResponse, error) {
	d.mu.Lock()
	exec, ok := d.execs[execID]
	handler := d.Exec
	d.mu.Unlock()
	if !ok {
		return types.HijackedResponse{}, errors.New("no such exec: " + execID)
	}

	var stdout, stderr string
	if handler != nil {
		stdout, stderr, exec.exitCode = handler(exec.containerID, exec.cmd)
	}

	d.mu.Lock()
	d.execs[execID] = exec
	d.mu.Unlock()

	var stream bytes.Buffer
	if stdout != "" {
		_, _ = stdcopy.NewStdWriter(&stream, stdcopy.Stdout).Write([]byte(stdout))
	}
	if stderr != "" {
		_, _ = stdcopy.NewStdWriter(&stream, stdcopy.Stderr).Write([]byte(stderr))
	}
	return types.HijackedResponse{
		Conn:   fakeConn{},
		Reader: bufio.NewReader(&stream),
	}, nil
}

func (d *FakeDocker) ContainerExecInspect(_ context.Context, execID string) (container.ExecInspect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exec, ok := d.execs[execID]
	if !ok {
		return container.ExecInspect{}, errors.New("no such exec: " + execID)
	}
	return container.ExecInspect{ExecID: execID, ContainerID: exec.containerID, ExitCode: exec.exitCode}, nil
}

func (d *FakeDocker) ImageList(_ context.Context, options image.ListOptions) ([]image.Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []image.Summary
	for _, ref := range d.Images {
		if options.Filters.Len() == 0 || options.Filters.ExactMatch("reference", ref) {
			list = append(list, image.Summary{RepoTags: []string{ref}})
		}
	}
	return list, nil
}

func (d *FakeDocker) ImagePull(_ context.Context, refStr string, _ image.PullOptions) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Pulled = append(d.Pulled, refStr)
	d.Images = append(d.Images, refStr)
	return io.NopCloser(strings.NewReader(`{"status":"Downloaded newer image"}`)), nil
}
