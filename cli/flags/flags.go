package flags

import (
	"fmt"
	"strings"
	"time"

	"github.com/gammadia/herd/jobs"
	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	Config    = "config"
	LogFormat = "log-format"
	LogLevel  = "log-level"
	LogSource = "log-source"
	Metrics   = "metrics"

	Provider           = "provider"
	PoolSize           = "pool-size"
	PoolImage          = "pool-image"
	PoolClass          = "pool-class"
	ConvergenceTimeout = "convergence-timeout"
	PollInterval       = "poll-interval"
	ListAttempts       = "list-attempts"

	RunCap      = "run-cap"
	Width       = "width"
	TaskTimeout = "task-timeout"

	TargetDir            = "target-dir"
	ScriptsDir           = "scripts-dir"
	RecipesDir           = "recipes-dir"
	ContainersDir        = "containers-dir"
	RepositoriesFile     = "repositories-file"
	RepositoriesLanguage = "repositories-language"
	PipelinesCommand     = "pipelines-command"
	OutputLogsDir        = "output-logs-dir"
	OutputsOnCoordinator = "outputs-on-coordinator"

	PrepareTemplate   = "prepare-template"
	PrepareRepository = "prepare-repository"
	PrepareBranch     = "prepare-branch"
	PreparePolicy     = "prepare-policy"

	SshUsername = "ssh-username"
	SshKeyFile  = "ssh-key-file"
	SshPort     = "ssh-port"

	OpenstackKeyName        = "openstack-key-name"
	OpenstackNetworks       = "openstack-networks"
	OpenstackSecurityGroups = "openstack-security-groups"
	OpenstackRegion         = "openstack-region"

	LocalDockerNetwork = "local-docker-network"
)

// Options is the key holding the option flags passed to the scripts of a job kind.
func Options(kind jobs.Kind) string {
	return "options-" + kind.String()
}

// Register adds every setting to the flag set and binds them to viper, which
// also reads them from HERD_* environment variables.
func Register(flags *flag.FlagSet) {
	// Herd
	flags.String(Config, "", "YAML configuration file")
	flags.String(LogFormat, "auto", "log format (auto, json, text)")
	flags.String(LogLevel, "INFO", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.Bool(Metrics, false, "print task duration metrics once the run is over")

	// Pool
	flags.String(Provider, "local", "node provider to use (local, openstack)")
	flags.Int(PoolSize, 3, "number of nodes in the pool, one of them coordinates")
	flags.String(PoolImage, "", "image of the pool nodes")
	flags.String(PoolClass, "t3.large", "class (flavor) of the pool nodes")
	flags.Duration(ConvergenceTimeout, time.Minute, "how long to wait for the pool to reach its size")
	flags.Duration(PollInterval, time.Second, "how long to wait between two pool listings")
	flags.Int(ListAttempts, 3, "attempts of a failing pool listing")

	// Dispatch
	flags.Int(RunCap, 9, "maximum number of tasks submitted during a run")
	flags.Int(Width, 0, "maximum number of tasks in flight, derived from the pool size when 0")
	flags.Duration(TaskTimeout, 0, "how long a single task may run, unlimited when 0")

	// Jobs
	flags.String(TargetDir, "/home/ubuntu/target", "directory receiving the task outputs")
	flags.String(ScriptsDir, "/home/ubuntu/secure-bioinformatics-reuse/src/bash", "directory of the job scripts")
	flags.String(RecipesDir, "/home/ubuntu/bioconda-recipes", "checkout of the bioconda recipes")
	flags.String(ContainersDir, "/home/ubuntu/containers", "tree of container build contexts")
	flags.String(RepositoriesFile, "dat/loc.json", "JSON file listing the repositories to scan")
	flags.String(RepositoriesLanguage, "Python", "main language of the repositories to scan")
	flags.StringSlice(PipelinesCommand, nil, "command listing the pipelines to run, list-pipelines.sh of the scripts directory by default")
	flags.String(OutputLogsDir, "", "directory receiving the compressed output of every task, disabled when empty")
	flags.Bool(OutputsOnCoordinator, false, "look for task outputs on the coordinator node instead of locally")
	for _, kind := range jobs.Kinds() {
		flags.String(Options(kind), kind.DefaultOptions(), fmt.Sprintf("option flags of the %s script", kind))
	}

	// Prepare
	flags.String(PrepareTemplate, jobs.DefaultPrepareTemplate, "command run on every node before dispatching, skipped when empty")
	flags.String(PrepareRepository, "secure-bioinformatics-reuse", "repository checked out on the nodes")
	flags.String(PrepareBranch, "rl/distributed-script-processing", "branch checked out on the nodes")
	flags.String(PreparePolicy, "abort", "what to do when a node cannot be prepared (abort, continue)")

	// SSH
	flags.String(SshUsername, "ubuntu", "ssh username used to connect to the nodes")
	flags.String(SshKeyFile, "", "private key used to connect to the nodes")
	flags.Int(SshPort, 22, "ssh port of the nodes")

	// Openstack
	flags.String(OpenstackKeyName, "", "keypair installed on new nodes")
	flags.StringSlice(OpenstackNetworks, nil, "networks attached to the nodes")
	flags.StringSlice(OpenstackSecurityGroups, nil, "security groups defined for the nodes")
	flags.String(OpenstackRegion, "", "compute region, OS_REGION_NAME when empty")

	// Local
	flags.String(LocalDockerNetwork, "", "docker network of the node containers, the default bridge when empty")

	viper.SetEnvPrefix("herd")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	lo.Must0(viper.BindPFlags(flags))
}

// ReadConfigFile loads the configuration file, if one was given. Flags and
// environment variables take precedence over its values.
func ReadConfigFile() error {
	file := viper.GetString(Config)
	if file == "" {
		return nil
	}

	viper.SetConfigFile(file)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file '%s': %w", file, err)
	}
	return nil
}
