package main

import (
	"fmt"

	"github.com/gammadia/herd/cli/flags"
	"github.com/gammadia/herd/cli/log"
	"github.com/gammadia/herd/jobs"
	"github.com/gammadia/herd/pool"
	"github.com/gammadia/herd/provisioner/local"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var tryCmd = &cobra.Command{
	Use:   "try KIND ARGS...",
	Short: "Run a single task on this host",
	Long:  "Run a single task on this host, with the same command line as on the pool nodes.",
	Args:  cobra.MinimumNArgs(1),

	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return kindNames(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveDefault
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := jobs.ParseKind(args[0])
		if err != nil {
			return err
		}
		task, err := jobs.NewTask(kind, viper.GetString(flags.TargetDir), args[1:]...)
		if err != nil {
			return err
		}

		command := commands().CommandLine(task)
		log.Info("Running task", "task", task.String(), "command", command)

		result, err := local.Shell{}.Run(cmd.Context(), pool.Node{ID: "localhost"}, command)
		if err != nil {
			return err
		}
		cmd.Print(string(result.Stdout))
		cmd.PrintErr(string(result.Stderr))

		if preserve := preserver(); preserve != nil {
			if err := preserve(task, result); err != nil {
				log.Warn("Failed to preserve task output", "error", err)
			}
		}

		if err := pool.Check(result, nil); err != nil {
			return fmt.Errorf("task %s failed: %w", task, err)
		}
		return nil
	},
}
