package pool

import (
	"context"
	"fmt"
)

// CreateSpec holds everything a Provider needs to create new nodes.
type CreateSpec struct {
	Image          string            `json:"image"`
	Class          string            `json:"class"`
	KeyName        string            `json:"key-name"`
	Networks       []string          `json:"networks"`
	SecurityGroups []string          `json:"security-groups"`
	Metadata       map[string]string `json:"metadata"`
}

type Provider interface {
	// ListMatching returns the running nodes matching the filter.
	ListMatching(ctx context.Context, filter Filter) ([]Node, error)
	// Create requests count new nodes. It does not wait for them to be running.
	Create(ctx context.Context, count int, spec CreateSpec) error
	Stop(ctx context.Context, ids []string) error
	Terminate(ctx context.Context, ids []string) error
}

type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

type Executor interface {
	// Run runs the command line on the node. The returned error is reserved for
	// transport failures: a command that ran and exited non-zero is reported
	// through Result.ExitCode.
	Run(ctx context.Context, node Node, command string) (Result, error)
}

// CommandError is returned by Check when a command exited with a non-zero code.
type CommandError struct {
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("command exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("command exited with code %d: %s", e.ExitCode, e.Stderr)
}

// Check turns the outcome of Executor.Run into a single error, failing on any non-zero exit code.
func Check(result Result, err error) error {
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &CommandError{ExitCode: result.ExitCode, Stderr: string(result.Stderr)}
	}
	return nil
}
