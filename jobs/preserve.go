package jobs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gammadia/herd/pool"
	"github.com/klauspost/compress/zstd"
)

// Preserver keeps the captured output of a task once it has run.
type Preserver func(task Task, result pool.Result) error

// ZstdPreserver writes the captured output of every task to <dir>/<task>.log.zst.
func ZstdPreserver(dir string) Preserver {
	return func(task Task, result pool.Result) (err error) {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}

		file, err := os.Create(filepath.Join(dir, task.Name()+".log.zst"))
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		defer func() {
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
		}()

		encoder, err := zstd.NewWriter(file)
		if err != nil {
			return err
		}

		if _, err = fmt.Fprintf(encoder, "# %s exited with code %d\n# stdout\n%s\n# stderr\n%s\n", task, result.ExitCode, result.Stdout, result.Stderr); err != nil {
			_ = encoder.Close()
			return fmt.Errorf("failed to write log file: %w", err)
		}
		return encoder.Close()
	}
}
