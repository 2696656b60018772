package jobs

import (
	"errors"
	"fmt"

	"github.com/gammadia/herd/pool"
)

var ErrUnknownKind = errors.New("unknown job kind")

type Kind int

const (
	AuraScan Kind = iota + 1
	StraceCondaInstall
	StraceDockerBuild
	StracePipelineRun
)

type kindInfo struct {
	name    string
	arity   int
	options string
}

var kinds = map[Kind]kindInfo{
	AuraScan:           {"aura-scan", 1, "-RP"},
	StraceCondaInstall: {"strace-conda-install", 1, "-RP"},
	StraceDockerBuild:  {"strace-docker-build", 2, "-RPC"},
	StracePipelineRun:  {"strace-pipeline-run", 1, "-RP"},
}

// Kinds returns every known job kind.
func Kinds() []Kind {
	return []Kind{AuraScan, StraceCondaInstall, StraceDockerBuild, StracePipelineRun}
}

func ParseKind(s string) (Kind, error) {
	for kind, info := range kinds {
		if info.name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %w '%s'", pool.ErrConfiguration, ErrUnknownKind, s)
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kinds[k]; !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) (err error) {
	*k, err = ParseKind(string(text))
	return
}

// Arity is the number of positional arguments a task of this kind takes.
func (k Kind) Arity() int {
	return kinds[k].arity
}

// DefaultOptions are the option flags passed to the job script when none are configured.
func (k Kind) DefaultOptions() string {
	return kinds[k].options
}

// outputIsDir reports whether the job writes its output into a directory
// named after the task, rather than into a single file.
func (k Kind) outputIsDir() bool {
	return k != AuraScan
}
