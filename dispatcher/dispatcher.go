package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gammadia/herd/jobs"
	"github.com/rcrowley/go-metrics"
)

// Substrate executes tasks somewhere on the pool. Execute blocks until the task
// has completed, successfully or not.
type Substrate interface {
	Execute(ctx context.Context, task jobs.Task) error
}

type Dispatcher struct {
	substrate Substrate
	store     jobs.Store
	config    Config
	log       *slog.Logger
}

func New(substrate Substrate, store jobs.Store, config Config) *Dispatcher {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		substrate: substrate,
		store:     store,
		config:    config,
		log:       logger,
	}
}

type completion struct {
	task     jobs.Task
	err      error
	duration time.Duration
}

// Run walks the catalog in order, keeping up to Width tasks in flight and
// submitting the next eligible task each time one completes, until the catalog
// is exhausted or RunCap tasks have been submitted.
//
// Tasks whose output already exists are skipped without taking a slot. Task
// failures are recorded in the summary and never stop the run. Cancelling ctx
// stops submissions, tasks already in flight are waited for.
func (d *Dispatcher) Run(ctx context.Context, catalog []jobs.Task) (Summary, error) {
	if err := Validate(d.config); err != nil {
		return Summary{}, err
	}

	var summary Summary
	started := time.Now()
	timer := metrics.NewTimer()
	record := timer.Update
	if d.config.Registry != nil {
		shared := metrics.GetOrRegisterTimer("dispatcher.task.duration", d.config.Registry)
		record = func(duration time.Duration) {
			timer.Update(duration)
			shared.Update(duration)
		}
	}

	// Buffered so that finishing tasks never wait for the coordinating loop
	completions := make(chan completion, d.config.Width)
	inFlight := 0
	cursor := 0

	submit := func(task jobs.Task) {
		inFlight++
		summary.Submitted++
		d.log.Info("Submitting task", "task", task.String(), "in-flight", inFlight)
		d.emit(EventTaskSubmitted{Task: task, InFlight: inFlight})

		go func() {
			taskCtx, cancel := d.taskContext(ctx)
			defer cancel()

			start := time.Now()
			err := d.substrate.Execute(taskCtx, task)
			completions <- completion{task: task, err: err, duration: time.Since(start)}
		}()
	}

	// advance moves the cursor to the next task to submit and submits it.
	// It returns false when nothing more can be submitted.
	advance := func() bool {
		for cursor < len(catalog) {
			if summary.Submitted >= d.config.RunCap || ctx.Err() != nil {
				return false
			}

			task := catalog[cursor]
			cursor++
			summary.Considered++

			exists, err := d.store.Exists(ctx, task.Output)
			if err != nil && ctx.Err() != nil {
				cursor--
				summary.Considered--
				return false
			} else if err != nil {
				d.fault(&summary, task, fmt.Errorf("failed to check output '%s': %w", task.Output, err))
				continue
			}
			if exists {
				d.log.Info("Skipping task, output already exists", "task", task.String(), "output", task.Output)
				summary.Skipped++
				d.emit(EventTaskSkipped{Task: task})
				continue
			}

			if claimer, ok := d.store.(jobs.Claimer); ok {
				if err := claimer.Claim(ctx, task); err != nil && ctx.Err() != nil {
					cursor--
					summary.Considered--
					return false
				} else if err != nil {
					d.fault(&summary, task, err)
					continue
				}
			}

			submit(task)
			return true
		}
		return false
	}

	for inFlight < d.config.Width && advance() {
	}

	for inFlight > 0 {
		c := <-completions
		inFlight--
		record(c.duration)

		if c.err != nil {
			d.fault(&summary, c.task, c.err)
		} else {
			d.log.Info("Task completed", "task", c.task.String(), "duration", c.duration)
			summary.Succeeded++
			d.emit(EventTaskCompleted{Task: c.task, Duration: c.duration})
		}

		advance()
	}

	summary.Cancelled = ctx.Err() != nil
	summary.Elapsed = time.Since(started)
	summary.MeanDuration = time.Duration(timer.Mean())
	summary.MaxDuration = time.Duration(timer.Max())

	d.log.Info("Run finished",
		"considered", summary.Considered,
		"submitted", summary.Submitted,
		"skipped", summary.Skipped,
		"succeeded", summary.Succeeded,
		"faulted", summary.Faulted,
		"timed-out", summary.TimedOut,
		"cancelled", summary.Cancelled,
	)
	return summary, nil
}

func (d *Dispatcher) fault(summary *Summary, task jobs.Task, err error) {
	timedOut := errors.Is(err, context.DeadlineExceeded)
	if timedOut {
		summary.TimedOut++
		d.log.Warn("Task timed out", "task", task.String(), "timeout", d.config.TaskTimeout)
	} else {
		summary.Faulted++
		d.log.Warn("Task failed", "task", task.String(), "error", err)
	}

	summary.Faults = append(summary.Faults, Fault{Task: task, Err: err, TimedOut: timedOut})
	d.emit(EventTaskFailed{Task: task, Err: err, TimedOut: timedOut})
}

// taskContext is detached from the cancellation of the run: tasks in flight are
// left to finish.
func (d *Dispatcher) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if d.config.TaskTimeout > 0 {
		return context.WithTimeout(detached, d.config.TaskTimeout)
	}
	return context.WithCancel(detached)
}

func (d *Dispatcher) emit(event Event) {
	if d.config.OnEvent != nil {
		d.config.OnEvent(event)
	}
}
