package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gammadia/herd/pool"
	"github.com/samber/lo"
)

// Lister enumerates the positional arguments of every task of a catalog.
type Lister interface {
	List(ctx context.Context) ([][]string, error)
}

type ListerFunc func(ctx context.Context) ([][]string, error)

func (f ListerFunc) List(ctx context.Context) ([][]string, error) {
	return f(ctx)
}

// Sources locates the inputs of every catalog lister.
type Sources struct {
	// JSON file of repositories, each object listing languages by decreasing lines of code
	RepositoriesFile string `json:"repositories-file"`
	// Only repositories whose main language is this one are listed
	RepositoriesLanguage string `json:"repositories-language"`
	// Checkout of the bioconda recipes repository
	RecipesDir string `json:"recipes-dir"`
	// Tree of <package>/<version>/Dockerfile build contexts
	ContainersDir string `json:"containers-dir"`
	// Command printing one pipeline name per line
	PipelinesCommand []string `json:"pipelines-command"`
}

// Lister returns the lister for the given kind of task.
func (s Sources) Lister(kind Kind) (Lister, error) {
	switch kind {
	case AuraScan:
		return ListerFunc(func(ctx context.Context) ([][]string, error) {
			return listRepositories(s.RepositoriesFile, lo.Ternary(s.RepositoriesLanguage != "", s.RepositoriesLanguage, "Python"))
		}), nil
	case StraceCondaInstall:
		return ListerFunc(func(ctx context.Context) ([][]string, error) {
			return listRecipes(s.RecipesDir)
		}), nil
	case StraceDockerBuild:
		return ListerFunc(func(ctx context.Context) ([][]string, error) {
			return listDockerfiles(s.ContainersDir)
		}), nil
	case StracePipelineRun:
		return ListerFunc(func(ctx context.Context) ([][]string, error) {
			return listPipelines(ctx, s.PipelinesCommand)
		}), nil
	default:
		return nil, fmt.Errorf("%w: %w %d", pool.ErrConfiguration, ErrUnknownKind, int(kind))
	}
}

// Catalog materializes the tasks of a kind, in the order produced by the lister.
func Catalog(ctx context.Context, kind Kind, lister Lister, root string) ([]Task, error) {
	entries, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s tasks: %w", kind, err)
	}

	tasks := make([]Task, 0, len(entries))
	for i, args := range entries {
		task, err := NewTask(kind, root, args...)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func listRepositories(file, language string) ([][]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readRepositories(f, language)
}

// readRepositories streams the repositories file, since the main language of a
// repository is given by the position of its key in the object.
func readRepositories(r io.Reader, language string) ([][]string, error) {
	dec := json.NewDecoder(r)
	expect := func(delim json.Delim) error {
		token, err := dec.Token()
		if err != nil {
			return err
		}
		if token != delim {
			return fmt.Errorf("expected '%s', got '%v'", delim, token)
		}
		return nil
	}

	if err := expect('['); err != nil {
		return nil, err
	}

	var repositories [][]string
	for dec.More() {
		if err := expect('{'); err != nil {
			return nil, err
		}

		var keys []string
		var gitURL string
		for dec.More() {
			token, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key := token.(string)
			keys = append(keys, key)

			if key == "git_url" {
				err = dec.Decode(&gitURL)
			} else {
				err = dec.Decode(&json.RawMessage{})
			}
			if err != nil {
				return nil, fmt.Errorf("failed to decode '%s': %w", key, err)
			}
		}

		if err := expect('}'); err != nil {
			return nil, err
		}
		if len(keys) > 1 && keys[1] == language && gitURL != "" {
			repositories = append(repositories, []string{gitURL})
		}
	}

	return repositories, expect(']')
}

func listRecipes(dir string) ([][]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "recipes"))
	if err != nil {
		return nil, err
	}

	return lo.Map(entries, func(entry fs.DirEntry, _ int) []string {
		return []string{entry.Name()}
	}), nil
}

func listDockerfiles(root string) ([][]string, error) {
	root = filepath.Clean(root)

	var dockerfiles [][]string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "Dockerfile" {
			return nil
		}

		dir := filepath.Dir(p)
		if filepath.Dir(dir) == root || dir == root {
			// A Dockerfile which is not in a <package>/<version> directory
			return nil
		}
		dockerfiles = append(dockerfiles, []string{filepath.Base(filepath.Dir(dir)), filepath.Base(dir)})
		return nil
	})

	return dockerfiles, err
}

func listPipelines(ctx context.Context, command []string) ([][]string, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: no pipelines listing command", pool.ErrConfiguration)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var pipelines [][]string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			pipelines = append(pipelines, []string{line})
		}
	}
	return pipelines, scanner.Err()
}
