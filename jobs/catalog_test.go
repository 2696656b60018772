package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gammadia/herd/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const repositoriesJSON = `[
	{"git_url": "git@github.com:org/py-tool.git", "Python": 1200, "Shell": 40},
	{"git_url": "git@github.com:org/r-tool.git", "R": 5000, "Python": 12},
	{"git_url": "git@github.com:org/other.git", "Python": 300, "Perl": {"files": 3}},
	{"Python": 10},
	{"name": "no-url", "Python": 10}
]`

func TestReadRepositories(t *testing.T) {
	repositories, err := readRepositories(strings.NewReader(repositoriesJSON), "Python")
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"git@github.com:org/py-tool.git"},
		{"git@github.com:org/other.git"},
	}, repositories)
}

func TestReadRepositoriesInvalid(t *testing.T) {
	_, err := readRepositories(strings.NewReader(`{"git_url": "x"}`), "Python")
	assert.Error(t, err)
}

func TestListRecipes(t *testing.T) {
	dir := t.TempDir()
	for _, recipe := range []string{"velvet", "abyss", "samtools"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "recipes", recipe), 0755))
	}

	lister, err := Sources{RecipesDir: dir}.Lister(StraceCondaInstall)
	require.NoError(t, err)

	recipes, err := lister.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"abyss"}, {"samtools"}, {"velvet"}}, recipes)
}

func TestListDockerfiles(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{
		"Dockerfile",
		"samtools/Dockerfile",
		"samtools/1.9/Dockerfile",
		"samtools/1.10/Dockerfile",
		"bwa/0.7.17/Dockerfile",
		"bwa/0.7.17/README.md",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.Dir(p)), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, p), []byte("FROM scratch\n"), 0644))
	}

	dockerfiles, err := listDockerfiles(dir)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"bwa", "0.7.17"},
		{"samtools", "1.10"},
		{"samtools", "1.9"},
	}, dockerfiles)
}

func TestListPipelines(t *testing.T) {
	pipelines, err := listPipelines(context.Background(), []string{"sh", "-c", "printf 'rnaseq\\n\\natacseq\\n'"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"rnaseq"}, {"atacseq"}}, pipelines)
}

func TestListPipelinesFailure(t *testing.T) {
	_, err := listPipelines(context.Background(), []string{"sh", "-c", "echo broken >&2; exit 3"})
	assert.ErrorContains(t, err, "broken")

	_, err = listPipelines(context.Background(), nil)
	assert.ErrorIs(t, err, pool.ErrConfiguration)
}

func TestCatalogPreservesOrder(t *testing.T) {
	lister := ListerFunc(func(context.Context) ([][]string, error) {
		return [][]string{{"zeta"}, {"alpha"}, {"mu"}}, nil
	})

	tasks, err := Catalog(context.Background(), StracePipelineRun, lister, "/target")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"zeta"}, tasks[0].Args)
	assert.Equal(t, []string{"alpha"}, tasks[1].Args)
	assert.Equal(t, "/target/strace-pipeline-run-mu", tasks[2].Output)
}

func TestCatalogErrors(t *testing.T) {
	failing := ListerFunc(func(context.Context) ([][]string, error) {
		return nil, errors.New("no such file")
	})
	_, err := Catalog(context.Background(), AuraScan, failing, "/target")
	assert.EqualError(t, err, "failed to list aura-scan tasks: no such file")

	malformed := ListerFunc(func(context.Context) ([][]string, error) {
		return [][]string{{"a", "b"}}, nil
	})
	_, err = Catalog(context.Background(), AuraScan, malformed, "/target")
	assert.ErrorIs(t, err, pool.ErrConfiguration)
}

func TestSourcesUnknownKind(t *testing.T) {
	_, err := Sources{}.Lister(Kind(42))
	assert.ErrorIs(t, err, ErrUnknownKind)
}
