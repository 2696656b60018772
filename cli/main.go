package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gammadia/herd/cli/flags"
	"github.com/gammadia/herd/cli/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

var herdCmd = &cobra.Command{
	Use:   "herd",
	Short: "Herd keeps a pool of nodes busy with a catalog of jobs.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := flags.ReadConfigFile(); err != nil {
			return err
		}
		return log.Init()
	},
}

func init() {
	herdCmd.AddCommand(completionCmd)
	herdCmd.AddCommand(poolCmd)
	herdCmd.AddCommand(runCmd)
	herdCmd.AddCommand(tryCmd)
	herdCmd.AddCommand(versionCmd)

	flags.Register(herdCmd.PersistentFlags())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	herdCmd.SetOut(os.Stdout)
	if err := herdCmd.ExecuteContext(ctx); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, color.HiRedString(fmt.Sprint(err))))
		os.Exit(1)
	}
}
