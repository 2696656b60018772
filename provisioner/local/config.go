package local

import (
	"log/slog"
)

type Config struct {
	// Logger to use
	Logger *slog.Logger
	// Docker network the node containers are attached to, the default bridge when empty
	Network string
	// Command keeping node containers alive
	Command []string
}
