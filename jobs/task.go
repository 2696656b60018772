package jobs

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/gammadia/herd/pool"
)

// Task is one entry of a catalog. Tasks are immutable once built.
type Task struct {
	Kind   Kind     `yaml:"kind"`
	Args   []string `yaml:"args"`
	Output string   `yaml:"output"`
}

// NewTask builds a task and derives its expected output location under root.
func NewTask(kind Kind, root string, args ...string) (Task, error) {
	if _, ok := kinds[kind]; !ok {
		return Task{}, fmt.Errorf("%w: %w %d", pool.ErrConfiguration, ErrUnknownKind, int(kind))
	}
	if len(args) != kind.Arity() {
		return Task{}, fmt.Errorf("%w: %s takes %d arguments, got %d", pool.ErrConfiguration, kind, kind.Arity(), len(args))
	}

	return Task{
		Kind:   kind,
		Args:   append([]string(nil), args...),
		Output: path.Join(root, outputName(kind, args)),
	}, nil
}

func outputName(kind Kind, args []string) string {
	switch kind {
	case AuraScan:
		return path.Join("scan", strings.ReplaceAll(path.Base(args[0]), ".git", ".json"))
	case StraceDockerBuild:
		return fmt.Sprintf("%s-%s-%s", kind, args[0], args[1])
	default:
		return fmt.Sprintf("%s-%s", kind, args[0])
	}
}

func (t Task) String() string {
	return fmt.Sprintf("%s(%s)", t.Kind, strings.Join(t.Args, ", "))
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Name is a file name friendly identifier of the task.
func (t Task) Name() string {
	parts := append([]string{t.Kind.String()}, t.Args...)
	return unsafeNameChars.ReplaceAllString(strings.Join(parts, "-"), "_")
}
