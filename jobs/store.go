package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/alessio/shellescape"
	"github.com/gammadia/herd/pool"
)

// Store tells whether a task's output already exists.
type Store interface {
	Exists(ctx context.Context, p string) (bool, error)
}

// Claimer is implemented by stores able to mark a task as attempted before it is
// submitted, so that an interrupted run does not start it again.
type Claimer interface {
	Claim(ctx context.Context, task Task) error
}

// LocalStore looks for outputs on the local file system.
type LocalStore struct{}

var _ Store = LocalStore{}
var _ Claimer = LocalStore{}

func (LocalStore) Exists(_ context.Context, p string) (bool, error) {
	if _, err := os.Stat(p); err == nil {
		return true, nil
	} else if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else {
		return false, err
	}
}

func (LocalStore) Claim(_ context.Context, task Task) error {
	if task.Kind.outputIsDir() {
		if err := os.MkdirAll(task.Output, 0755); err != nil {
			return fmt.Errorf("failed to create output directory '%s': %w", task.Output, err)
		}
	} else {
		if err := os.MkdirAll(path.Dir(task.Output), 0755); err != nil {
			return fmt.Errorf("failed to create output directory '%s': %w", path.Dir(task.Output), err)
		}
		file, err := os.OpenFile(task.Output, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to create output file '%s': %w", task.Output, err)
		}
		if err := file.Close(); err != nil {
			return err
		}
	}

	now := time.Now()
	return os.Chtimes(task.Output, now, now)
}

// RemoteStore looks for outputs on a remote host, through an executor.
type RemoteStore struct {
	Executor pool.Executor
	Host     pool.Node
}

var _ Store = (*RemoteStore)(nil)
var _ Claimer = (*RemoteStore)(nil)

func (s *RemoteStore) Exists(ctx context.Context, p string) (bool, error) {
	result, err := s.Executor.Run(ctx, s.Host, "test -e "+shellescape.Quote(p))
	if err != nil {
		return false, fmt.Errorf("failed to check for '%s' on '%s': %w", p, s.Host.Address, err)
	}

	switch result.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("failed to check for '%s' on '%s': %w", p, s.Host.Address, pool.Check(result, nil))
	}
}

func (s *RemoteStore) Claim(ctx context.Context, task Task) error {
	dir := task.Output
	if !task.Kind.outputIsDir() {
		dir = path.Dir(task.Output)
	}

	command := fmt.Sprintf("mkdir -p %s && touch %s", shellescape.Quote(dir), shellescape.Quote(task.Output))
	if err := pool.Check(s.Executor.Run(ctx, s.Host, command)); err != nil {
		return fmt.Errorf("failed to claim '%s' on '%s': %w", task.Output, s.Host.Address, err)
	}
	return nil
}
