package jobs

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/alessio/shellescape"
	sprig "github.com/go-task/slim-sprig/v3"
)

const DefaultPrepareTemplate = `cd {{ .Repository | shellquote }} ; git stash ; git checkout {{ .Branch | shellquote }} ; git pull`

// PrepareData is available to prepare command templates.
type PrepareData struct {
	Repository string
	Branch     string
}

// PrepareCommand renders the command run on every node before dispatching tasks to it.
func PrepareCommand(source string, data PrepareData) (string, error) {
	tmpl, err := template.New("prepare").
		Funcs(sprig.TxtFuncMap()).
		Funcs(template.FuncMap{
			"shellquote": shellescape.Quote,
		}).
		Option("missingkey=error").
		Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse prepare template: %w", err)
	}

	var output strings.Builder
	if err := tmpl.Execute(&output, data); err != nil {
		return "", fmt.Errorf("failed to execute prepare template: %w", err)
	}

	return strings.TrimSpace(output.String()), nil
}
