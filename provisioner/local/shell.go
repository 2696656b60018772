package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/gammadia/herd/pool"
)

// Shell runs commands on the local host with bash, whatever the node.
type Shell struct {
	// Working directory of the commands, the current one when empty
	Dir string
	// Extra environment variables, in KEY=VALUE form
	Env []string
}

var _ pool.Executor = Shell{}

func (s Shell) Run(ctx context.Context, _ pool.Node, command string) (pool.Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.Env...)
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Background processes keeping the output open must not block a cancelled command
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctx.Err() != nil {
		return pool.Result{}, ctx.Err()
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return pool.Result{}, fmt.Errorf("failed to run bash: %w", err)
	}

	return pool.Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}
