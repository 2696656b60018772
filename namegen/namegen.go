package namegen

import (
	"regexp"
	"strings"

	vendor "github.com/anandvarma/namegen"
)

const NodePrefix = "herd-"

var gen = vendor.New()

var invalidHostnameChars = regexp.MustCompile(`[^a-z0-9-]+`)

// NodeName returns a new name for a node of the pool, usable both as a
// container name and as a hostname.
func NodeName() string {
	name := invalidHostnameChars.ReplaceAllString(strings.ToLower(gen.Get()), "-")
	return NodePrefix + strings.Trim(name, "-")
}
