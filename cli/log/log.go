package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gammadia/herd/cli/flags"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// Base is a bare logger without attributes
var Base = slog.New(slog.NewTextHandler(io.Discard, nil))

// logger is the command line logger with default attributes
var logger = Base

// Init configures the loggers from the log-* settings. Logs go to stderr, so
// that stdout stays free for command output.
func Init() error {
	return InitWriter(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

// InitWriter configures the loggers to write to w. The auto format picks text
// for terminals and JSON otherwise.
func InitWriter(w io.Writer, terminal bool) error {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(viper.GetString(flags.LogLevel))); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	options := slog.HandlerOptions{
		AddSource: viper.GetBool(flags.LogSource),
		Level:     logLevel,
	}

	format := viper.GetString(flags.LogFormat)
	if format == "auto" {
		format = "json"
		if terminal {
			format = "text"
		}
	}

	switch format {
	case "json":
		Base = slog.New(slog.NewJSONHandler(w, &options))
	case "text":
		Base = slog.New(slog.NewTextHandler(w, &options))
	default:
		return fmt.Errorf("unknown log format '%s'", format)
	}

	logger = Base.With("component", "cli")
	return nil
}

// Component returns a logger for one of the herd components.
func Component(name string) *slog.Logger {
	return Base.With("component", name)
}

// Proxies for slog.Logger methods

func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	logger.InfoContext(ctx, msg, args...)
}

func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}
