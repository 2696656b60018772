package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareCommandDefault(t *testing.T) {
	command, err := PrepareCommand(DefaultPrepareTemplate, PrepareData{
		Repository: "secure-bioinformatics-reuse",
		Branch:     "rl/distributed-script-processing",
	})
	require.NoError(t, err)
	assert.Equal(t, "cd secure-bioinformatics-reuse ; git stash ; git checkout rl/distributed-script-processing ; git pull", command)
}

func TestPrepareCommandQuotes(t *testing.T) {
	command, err := PrepareCommand(DefaultPrepareTemplate, PrepareData{Repository: "my repo", Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, "cd 'my repo' ; git stash ; git checkout main ; git pull", command)
}

func TestPrepareCommandSprigFunctions(t *testing.T) {
	command, err := PrepareCommand(`git -C {{ .Repository }} checkout {{ .Branch | default "main" | upper }}`, PrepareData{Repository: "repo"})
	require.NoError(t, err)
	assert.Equal(t, "git -C repo checkout MAIN", command)
}

func TestPrepareCommandInvalid(t *testing.T) {
	_, err := PrepareCommand(`{{ .Repository `, PrepareData{})
	assert.ErrorContains(t, err, "failed to parse prepare template")

	_, err = PrepareCommand(`{{ .Missing }}`, PrepareData{})
	assert.ErrorContains(t, err, "failed to execute prepare template")
}
