package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/gammadia/herd/jobs"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// countingSubstrate completes tasks immediately and records the concurrency it observed.
type countingSubstrate struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	executed    map[string]int
	failing     map[string]bool
}

func (s *countingSubstrate) Execute(_ context.Context, task jobs.Task) error {
	s.mu.Lock()
	s.inFlight++
	s.maxInFlight = max(s.maxInFlight, s.inFlight)
	s.executed[task.Name()]++
	s.mu.Unlock()

	runtime.Gosched()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if s.failing[task.Name()] {
		return errors.New("task failed")
	}
	return nil
}

// Catalog entries are generated as outcomes, any value above jobFails is a
// job that succeeds.
const (
	outputExists = iota
	jobFails
)

func genOutcomes() gopter.Gen {
	return gen.SliceOf(gen.IntRange(outputExists, 4))
}

func TestRun_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("run honours width, skips and run cap", prop.ForAll(
		func(outcomes []int, width, runCap int) bool {
			fail := func(format string, args ...any) bool {
				t.Logf(format, args...)
				return false
			}

			catalog := make([]jobs.Task, len(outcomes))
			store := &mapStore{existing: map[string]bool{}}
			substrate := &countingSubstrate{executed: map[string]int{}, failing: map[string]bool{}}
			for i, outcome := range outcomes {
				task, err := jobs.NewTask(jobs.StracePipelineRun, "/target", fmt.Sprintf("p%d", i))
				if err != nil {
					return fail("%v", err)
				}
				catalog[i] = task
				store.existing[task.Output] = outcome == outputExists
				substrate.failing[task.Name()] = outcome == jobFails
			}

			// The tasks the run is expected to submit, in catalog order
			var expected []jobs.Task
			skipped := 0
			for i, outcome := range outcomes {
				if len(expected) == runCap {
					break
				}
				if outcome == outputExists {
					skipped++
					continue
				}
				expected = append(expected, catalog[i])
			}

			d := New(substrate, store, Config{Logger: silentLogger, Width: width, RunCap: runCap})
			summary, err := d.Run(context.Background(), catalog)
			if err != nil {
				return fail("%v", err)
			}

			if substrate.maxInFlight > width {
				return fail("%d tasks in flight with a width of %d", substrate.maxInFlight, width)
			}
			if summary.Submitted != len(expected) || summary.Skipped != skipped {
				return fail("submitted %d and skipped %d, expected %d and %d", summary.Submitted, summary.Skipped, len(expected), skipped)
			}
			if summary.Succeeded+summary.Faulted != summary.Submitted {
				return fail("%d succeeded and %d faulted out of %d submitted", summary.Succeeded, summary.Faulted, summary.Submitted)
			}
			for _, task := range expected {
				if substrate.executed[task.Name()] != 1 {
					return fail("task %s executed %d times", task, substrate.executed[task.Name()])
				}
			}
			if total := len(substrate.executed); total != len(expected) {
				return fail("%d distinct tasks executed, expected %d", total, len(expected))
			}
			for i, outcome := range outcomes {
				if outcome == outputExists && substrate.executed[catalog[i].Name()] > 0 {
					return fail("task %s executed although its output exists", catalog[i])
				}
			}
			return true
		},
		genOutcomes(),
		gen.IntRange(1, 6),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}
