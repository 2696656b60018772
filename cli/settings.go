package main

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/gammadia/herd/cli/flags"
	"github.com/gammadia/herd/cli/log"
	"github.com/gammadia/herd/jobs"
	"github.com/gammadia/herd/pool"
	"github.com/gammadia/herd/provisioner/local"
	"github.com/gammadia/herd/provisioner/openstack"
	"github.com/gammadia/herd/provisioner/sshexec"
	"github.com/spf13/viper"
)

func poolConfig() pool.Config {
	image := viper.GetString(flags.PoolImage)
	class := viper.GetString(flags.PoolClass)

	return pool.Config{
		Logger: log.Component("pool"),
		Filter: pool.Filter{Image: image, Class: class},
		Spec: pool.CreateSpec{
			Image:          image,
			Class:          class,
			KeyName:        viper.GetString(flags.OpenstackKeyName),
			Networks:       viper.GetStringSlice(flags.OpenstackNetworks),
			SecurityGroups: viper.GetStringSlice(flags.OpenstackSecurityGroups),
		},
		ConvergenceTimeout: viper.GetDuration(flags.ConvergenceTimeout),
		PollInterval:       viper.GetDuration(flags.PollInterval),
		ListAttempts:       viper.GetInt(flags.ListAttempts),
	}
}

// backend holds the provider managing the pool nodes and the executor running
// commands on them.
type backend struct {
	provider pool.Provider
	executor pool.Executor
	close    func() error
}

func newBackend() (*backend, error) {
	switch name := viper.GetString(flags.Provider); name {
	case "local":
		provider, err := local.NewProvider(local.Config{
			Logger:  log.Component("provisioner"),
			Network: viper.GetString(flags.LocalDockerNetwork),
		})
		if err != nil {
			return nil, err
		}
		return &backend{provider: provider, executor: provider, close: func() error { return nil }}, nil

	case "openstack":
		executor, err := newSSHExecutor()
		if err != nil {
			return nil, err
		}
		provider, err := openstack.NewProvider(openstack.Config{
			Logger: log.Component("provisioner"),
			Region: viper.GetString(flags.OpenstackRegion),
		})
		if err != nil {
			return nil, errors.Join(err, executor.Close())
		}
		return &backend{provider: provider, executor: executor, close: executor.Close}, nil

	default:
		return nil, fmt.Errorf("%w: unknown provider '%s'", pool.ErrConfiguration, name)
	}
}

func newSSHExecutor() (*sshexec.Executor, error) {
	keyFile := viper.GetString(flags.SshKeyFile)
	if keyFile == "" {
		return nil, fmt.Errorf("%w: %s is required to reach the nodes", pool.ErrConfiguration, flags.SshKeyFile)
	}
	signer, err := sshexec.LoadSigner(keyFile)
	if err != nil {
		return nil, err
	}

	config := sshexec.DefaultConfig()
	config.Logger = log.Component("ssh")
	config.Username = viper.GetString(flags.SshUsername)
	config.Signer = signer
	config.Port = viper.GetInt(flags.SshPort)
	return sshexec.New(config)
}

func commands() jobs.Commands {
	options := map[jobs.Kind]string{}
	for _, kind := range jobs.Kinds() {
		options[kind] = viper.GetString(flags.Options(kind))
	}

	return jobs.Commands{
		ScriptsDir:    viper.GetString(flags.ScriptsDir),
		ContainersDir: viper.GetString(flags.ContainersDir),
		Options:       options,
	}
}

func sources() jobs.Sources {
	pipelines := viper.GetStringSlice(flags.PipelinesCommand)
	if len(pipelines) == 0 {
		pipelines = []string{"bash", "-i", path.Join(viper.GetString(flags.ScriptsDir), "list-pipelines.sh")}
	}

	return jobs.Sources{
		RepositoriesFile:     viper.GetString(flags.RepositoriesFile),
		RepositoriesLanguage: viper.GetString(flags.RepositoriesLanguage),
		RecipesDir:           viper.GetString(flags.RecipesDir),
		ContainersDir:        viper.GetString(flags.ContainersDir),
		PipelinesCommand:     pipelines,
	}
}

func catalog(ctx context.Context, kind jobs.Kind) ([]jobs.Task, error) {
	lister, err := sources().Lister(kind)
	if err != nil {
		return nil, err
	}
	return jobs.Catalog(ctx, kind, lister, viper.GetString(flags.TargetDir))
}

// prepareCommand renders the prepare template, an empty template disables preparation.
func prepareCommand() (string, pool.PreparePolicy, error) {
	policy, err := pool.ParsePreparePolicy(viper.GetString(flags.PreparePolicy))
	if err != nil {
		return "", "", err
	}

	template := viper.GetString(flags.PrepareTemplate)
	if template == "" {
		return "", policy, nil
	}

	command, err := jobs.PrepareCommand(template, jobs.PrepareData{
		Repository: viper.GetString(flags.PrepareRepository),
		Branch:     viper.GetString(flags.PrepareBranch),
	})
	return command, policy, err
}

func preserver() jobs.Preserver {
	if dir := viper.GetString(flags.OutputLogsDir); dir != "" {
		return jobs.ZstdPreserver(dir)
	}
	return nil
}
