package jobs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gammadia/herd/pool"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstdPreserver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	task, _ := NewTask(StraceCondaInstall, "/target", "velvet")

	preserve := ZstdPreserver(dir)
	require.NoError(t, preserve(task, pool.Result{
		ExitCode: 1,
		Stdout:   []byte("Collecting package metadata"),
		Stderr:   []byte("PackagesNotFoundError"),
	}))

	file, err := os.Open(filepath.Join(dir, "strace-conda-install-velvet.log.zst"))
	require.NoError(t, err)
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	require.NoError(t, err)
	defer decoder.Close()

	content, err := io.ReadAll(decoder)
	require.NoError(t, err)
	assert.Equal(t, "# strace-conda-install(velvet) exited with code 1\n# stdout\nCollecting package metadata\n# stderr\nPackagesNotFoundError\n", string(content))
}
