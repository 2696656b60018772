package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/gammadia/herd/campaign"
	"github.com/gammadia/herd/cli/flags"
	"github.com/gammadia/herd/cli/log"
	"github.com/gammadia/herd/cli/ui"
	"github.com/gammadia/herd/dispatcher"
	"github.com/gammadia/herd/jobs"
	"github.com/rcrowley/go-metrics"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:       "run KIND",
	Short:     "Run the catalog of a job kind on the pool",
	Args:      cobra.ExactArgs(1),
	ValidArgs: kindNames(),

	RunE: func(cmd *cobra.Command, args []string) (err error) {
		kind, err := jobs.ParseKind(args[0])
		if err != nil {
			return err
		}

		spinner := ui.NewSpinner("Listing tasks")
		tasks, err := catalog(cmd.Context(), kind)
		if err != nil {
			spinner.Fail()
			return err
		}
		spinner.Success(fmt.Sprintf("Listed %d %s tasks", len(tasks), kind))

		if lo.Must(cmd.Flags().GetBool("dry-run")) {
			cmd.Println()
			cmd.Println(ui.SectionHeaderColor.Sprint("  Catalog  "))
			return printCatalog(cmd.OutOrStdout(), tasks, commands())
		}

		command, policy, err := prepareCommand()
		if err != nil {
			return err
		}

		b, err := newBackend()
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, b.close())
		}()

		registry := metrics.NewRegistry()
		progress := newProgress(registry)

		summary, err := campaign.Run(cmd.Context(), campaign.Config{
			Logger:               log.Base,
			Provider:             b.provider,
			Executor:             b.executor,
			Pool:                 poolConfig(),
			PoolSize:             viper.GetInt(flags.PoolSize),
			PrepareCommand:       command,
			PreparePolicy:        policy,
			Catalog:              tasks,
			OutputsOnCoordinator: viper.GetBool(flags.OutputsOnCoordinator),
			Substrate: jobs.SubstrateConfig{
				Commands:  commands(),
				Preserver: preserver(),
			},
			Dispatch: dispatcher.Config{
				Width:       viper.GetInt(flags.Width),
				RunCap:      viper.GetInt(flags.RunCap),
				TaskTimeout: viper.GetDuration(flags.TaskTimeout),
				Registry:    registry,
				OnEvent:     progress.update,
			},
			Teardown: lo.Must(cmd.Flags().GetBool("teardown")),
		})
		progress.stop(err)

		if summary.Considered > 0 || summary.Cancelled {
			printSummary(cmd.OutOrStdout(), summary)
		}
		if viper.GetBool(flags.Metrics) {
			metrics.WriteOnce(registry, cmd.ErrOrStderr())
		}
		return err
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "print the catalog without running anything")
	runCmd.Flags().Bool("teardown", false, "terminate the pool once the run is over")
}

func kindNames() []string {
	return lo.Map(jobs.Kinds(), func(kind jobs.Kind, _ int) string { return kind.String() })
}

type plannedTask struct {
	Task    string `yaml:"task"`
	Output  string `yaml:"output"`
	Command string `yaml:"command"`
}

func printCatalog(w io.Writer, tasks []jobs.Task, commands jobs.Commands) error {
	planned := lo.Map(tasks, func(task jobs.Task, _ int) plannedTask {
		return plannedTask{Task: task.String(), Output: task.Output, Command: commands.CommandLine(task)}
	})

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(planned); err != nil {
		return err
	}
	return encoder.Close()
}

func printSummary(w io.Writer, summary dispatcher.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d tasks considered, %d skipped, %d submitted in %s\n",
		summary.Considered, summary.Skipped, summary.Submitted, summary.Elapsed.Round(time.Second))
	if summary.Submitted > 0 {
		fmt.Fprintf(w, "task duration: mean %s, max %s\n", summary.MeanDuration.Round(time.Millisecond), summary.MaxDuration.Round(time.Millisecond))
	}

	fmt.Fprintln(w, color.HiGreenString("%d succeeded", summary.Succeeded))
	if summary.Faulted > 0 {
		fmt.Fprintln(w, color.HiRedString("%d failed", summary.Faulted))
	}
	if summary.TimedOut > 0 {
		fmt.Fprintln(w, color.HiYellowString("%d timed out", summary.TimedOut))
	}
	for _, fault := range summary.Faults {
		fmt.Fprintf(w, "  %s  %v\n", color.HiCyanString(fault.Task.String()), fault.Err)
	}
	if summary.Cancelled {
		fmt.Fprintln(w, color.HiYellowString("run cancelled, no further task was submitted"))
	}
}

// progress reports the dispatch events on a spinner and in the metrics registry.
type progress struct {
	spinner  *ui.Spinner
	finished int

	skipped   metrics.Counter
	submitted metrics.Counter
	failed    metrics.Counter
}

func newProgress(registry metrics.Registry) *progress {
	return &progress{
		spinner:   ui.NewSpinner("Running campaign"),
		skipped:   metrics.GetOrRegisterCounter("dispatcher.task.skipped", registry),
		submitted: metrics.GetOrRegisterCounter("dispatcher.task.submitted", registry),
		failed:    metrics.GetOrRegisterCounter("dispatcher.task.failed", registry),
	}
}

func (p *progress) update(event dispatcher.Event) {
	switch e := event.(type) {
	case dispatcher.EventTaskSkipped:
		p.skipped.Inc(1)
	case dispatcher.EventTaskSubmitted:
		p.submitted.Inc(1)
		p.spinner.UpdateMessage(fmt.Sprintf("Running %s (%d in flight, %d finished)", e.Task, e.InFlight, p.finished))
	case dispatcher.EventTaskCompleted:
		p.finished++
	case dispatcher.EventTaskFailed:
		p.finished++
		p.failed.Inc(1)
	}
}

func (p *progress) stop(err error) {
	if err != nil {
		p.spinner.Fail("Campaign failed")
	} else {
		p.spinner.Success("Campaign over")
	}
}
