package jobs

import (
	"testing"

	"github.com/gammadia/herd/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var outputtests = []struct {
	kind     Kind
	args     []string
	expected string
}{
	{AuraScan, []string{"git@github.com:Public-Health-Bioinformatics/kipper.git"}, "/target/scan/kipper.json"},
	{AuraScan, []string{"https://github.com/org/tool"}, "/target/scan/tool"},
	{StraceCondaInstall, []string{"velvet"}, "/target/strace-conda-install-velvet"},
	{StraceDockerBuild, []string{"spectra-cluster-cli", "v1.1.2"}, "/target/strace-docker-build-spectra-cluster-cli-v1.1.2"},
	{StracePipelineRun, []string{"rnaseq"}, "/target/strace-pipeline-run-rnaseq"},
}

func TestNewTaskOutput(t *testing.T) {
	for _, tt := range outputtests {
		t.Run(tt.expected, func(t *testing.T) {
			task, err := NewTask(tt.kind, "/target", tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, task.Output)
		})
	}
}

func TestNewTaskArity(t *testing.T) {
	_, err := NewTask(StraceDockerBuild, "/target", "only-package")
	assert.ErrorIs(t, err, pool.ErrConfiguration)
	assert.EqualError(t, err, "invalid configuration: strace-docker-build takes 2 arguments, got 1")
}

func TestNewTaskCopiesArgs(t *testing.T) {
	args := []string{"velvet"}
	task, err := NewTask(StraceCondaInstall, "/target", args...)
	require.NoError(t, err)

	args[0] = "changed"
	assert.Equal(t, []string{"velvet"}, task.Args)
}

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds() {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	_, err := ParseKind("strace-everything")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.ErrorIs(t, err, pool.ErrConfiguration)
}

func TestTaskName(t *testing.T) {
	task, err := NewTask(AuraScan, "/target", "git@github.com:org/repo.git")
	require.NoError(t, err)

	assert.Equal(t, "aura-scan(git@github.com:org/repo.git)", task.String())
	assert.Equal(t, "aura-scan-git_github.com_org_repo.git", task.Name())
}

func TestTaskYAML(t *testing.T) {
	task, err := NewTask(StracePipelineRun, "/target", "rnaseq")
	require.NoError(t, err)

	out, err := yaml.Marshal([]Task{task})
	require.NoError(t, err)
	assert.Contains(t, string(out), "kind: strace-pipeline-run")
	assert.Contains(t, string(out), "output: /target/strace-pipeline-run-rnaseq")

	var decoded []Task
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, []Task{task}, decoded)
}
