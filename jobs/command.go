package jobs

import (
	"path"

	"github.com/alessio/shellescape"
)

// Commands turns tasks into the command lines run on the worker nodes.
type Commands struct {
	// Directory holding the job scripts on the nodes
	ScriptsDir string `json:"scripts-dir"`
	// Directory holding the container build contexts on the nodes
	ContainersDir string `json:"containers-dir"`
	// Per kind option flags, DefaultOptions are used for missing kinds
	Options map[Kind]string `json:"options"`
}

func (c Commands) options(kind Kind) []string {
	options, ok := c.Options[kind]
	if !ok {
		options = kind.DefaultOptions()
	}
	if options == "" {
		return nil
	}
	return []string{options}
}

// CommandLine returns the shell-quoted command line running the task.
func (c Commands) CommandLine(task Task) string {
	script := func(name string) string {
		return path.Join(c.ScriptsDir, name)
	}

	var argv []string
	switch task.Kind {
	case AuraScan:
		argv = append([]string{script("aura-scan.sh")}, c.options(task.Kind)...)
		argv = append(argv, task.Args[0], "scan")
	case StraceCondaInstall:
		argv = append([]string{"bash", "-i", script("strace-conda-install.sh")}, c.options(task.Kind)...)
		argv = append(argv, task.Args[0])
	case StraceDockerBuild:
		argv = append([]string{script("strace-docker-build.sh")}, c.options(task.Kind)...)
		argv = append(argv, path.Join(c.ContainersDir, task.Args[0], task.Args[1]), task.Args[0], task.Args[1])
	case StracePipelineRun:
		argv = append([]string{"bash", "-i", script("strace-pipeline-run.sh")}, c.options(task.Kind)...)
		argv = append(argv, task.Args[0])
	}

	return shellescape.QuoteCommand(argv)
}
