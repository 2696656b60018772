package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/gammadia/herd/internal/retry"
	"github.com/gammadia/herd/pool"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1" // for DockerClient interface
)

// DockerClient abstracts the Docker SDK methods used to run nodes as containers,
// enabling mock-based testing without a real Docker daemon.
type DockerClient interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecStartOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// EnsureImage pulls the image unless it is already present on the daemon.
func EnsureImage(ctx context.Context, docker DockerClient, ref string, log *slog.Logger) error {
	list, err := retry.Result(ctx, 3, func() ([]image.Summary, error) {
		return docker.ImageList(ctx, image.ListOptions{
			Filters: filters.NewArgs(filters.Arg("reference", ref)),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to list docker images: %w", err)
	}
	if len(list) > 0 {
		log.Debug("Image already present", "image", ref)
		return nil
	}

	log.Info("Pulling image", "image", ref)
	reader, err := retry.Result(ctx, 4, func() (io.ReadCloser, error) {
		return docker.ImagePull(ctx, ref, image.PullOptions{})
	})
	if err != nil {
		return fmt.Errorf("failed to pull docker image '%s': %w", ref, err)
	}
	defer reader.Close()

	// The pull is only complete once its progress stream is drained
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Exec runs the command line with bash in the container and waits for it to exit.
func Exec(ctx context.Context, docker DockerClient, containerID, command string) (pool.Result, error) {
	exec, err := retry.Result(ctx, 3, func() (container.ExecCreateResponse, error) {
		return docker.ContainerExecCreate(ctx, containerID, container.ExecOptions{
			Cmd:          []string{"bash", "-c", command},
			AttachStdout: true,
			AttachStderr: true,
		})
	})
	if err != nil {
		return pool.Result{}, fmt.Errorf("failed to create docker exec in '%s': %w", containerID, err)
	}

	// Attaching starts the exec, it must not be retried
	attach, err := docker.ContainerExecAttach(ctx, exec.ID, container.ExecStartOptions{})
	if err != nil {
		return pool.Result{}, fmt.Errorf("failed to attach docker exec in '%s': %w", containerID, err)
	}
	defer attach.Close()

	// Closing the connection unblocks the copy below once ctx is done
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			attach.Close()
		case <-done:
		}
	}()

	var stdout, stderr bytes.Buffer
	_, err = stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
	if ctx.Err() != nil {
		return pool.Result{}, ctx.Err()
	}
	if err != nil {
		return pool.Result{}, fmt.Errorf("failed during docker exec in '%s': %w", containerID, err)
	}

	inspect, err := retry.Result(ctx, 3, func() (container.ExecInspect, error) {
		return docker.ContainerExecInspect(ctx, exec.ID)
	})
	if err != nil {
		return pool.Result{}, fmt.Errorf("failed to inspect docker exec in '%s': %w", containerID, err)
	}

	return pool.Result{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}
