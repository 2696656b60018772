package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/gammadia/herd/cli/flags"
	"github.com/gammadia/herd/cli/ui"
	"github.com/gammadia/herd/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage the pool of nodes",
}

var poolStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Bring the pool to its size and prepare its nodes",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, b *backend, controller *pool.Controller) error {
			return startPool(ctx, cmd, b, controller)
		})
	},
}

var poolRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Terminate every node of the pool, then start it again",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, b *backend, controller *pool.Controller) error {
			if err := terminatePool(ctx, controller); err != nil {
				return err
			}
			return startPool(ctx, cmd, b, controller)
		})
	},
}

var poolTerminateCmd = &cobra.Command{
	Use:   "terminate",
	Short: "Terminate every node of the pool",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, _ *backend, controller *pool.Controller) error {
			return terminatePool(ctx, controller)
		})
	},
}

var poolStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the running nodes of the pool",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, _ *backend, controller *pool.Controller) error {
			nodes, err := controller.Observe(ctx)
			if err != nil {
				return err
			}
			printNodes(cmd.OutOrStdout(), nodes, viper.GetInt(flags.PoolSize))
			return nil
		})
	},
}

func init() {
	poolCmd.AddCommand(poolRestartCmd)
	poolCmd.AddCommand(poolStartCmd)
	poolCmd.AddCommand(poolStatusCmd)
	poolCmd.AddCommand(poolTerminateCmd)
}

func withController(cmd *cobra.Command, fn func(ctx context.Context, b *backend, controller *pool.Controller) error) (err error) {
	config := poolConfig()
	if err := pool.Validate(config); err != nil {
		return err
	}

	b, err := newBackend()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, b.close())
	}()

	return fn(cmd.Context(), b, pool.New(b.provider, config))
}

func startPool(ctx context.Context, cmd *cobra.Command, b *backend, controller *pool.Controller) error {
	size := viper.GetInt(flags.PoolSize)

	spinner := ui.NewSpinner(fmt.Sprintf("Starting pool of %d nodes", size))
	if err := controller.Converge(ctx, size); err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()

	command, policy, err := prepareCommand()
	if err != nil {
		return err
	}
	nodes := controller.Nodes()
	if command != "" {
		spinner = ui.NewSpinner("Preparing nodes")
		prepared, err := controller.Prepare(ctx, b.executor, nodes, command, policy)
		if err != nil && (policy != pool.PrepareContinue || len(prepared) == 0) {
			spinner.Fail()
			return err
		} else if err != nil {
			spinner.Warn(fmt.Sprintf("Prepared %d of %d nodes", len(prepared), len(nodes)))
		} else {
			spinner.Success()
		}
	}

	printNodes(cmd.OutOrStdout(), nodes, size)
	return nil
}

func terminatePool(ctx context.Context, controller *pool.Controller) error {
	spinner := ui.NewSpinner("Terminating pool")
	if err := controller.TerminateAll(ctx); err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()
	return nil
}

func printNodes(w io.Writer, nodes []pool.Node, size int) {
	for _, node := range nodes {
		fmt.Fprintf(w, "%s  %-15s  %-24s  %s\n",
			node.LaunchedAt.Local().Truncate(time.Second).Format(time.DateTime),
			node.Address,
			node.Name,
			color.HiCyanString(node.ID),
		)
	}

	summary := fmt.Sprintf("%d of %d nodes running", len(nodes), size)
	if len(nodes) == size {
		fmt.Fprintln(w, color.HiGreenString(summary))
	} else {
		fmt.Fprintln(w, color.HiYellowString(summary))
	}
}
