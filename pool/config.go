package pool

import (
	"fmt"
	"log/slog"
	"time"
)

type Config struct {
	Logger             *slog.Logger  `json:"-"`
	Filter             Filter        `json:"filter"`
	Spec               CreateSpec    `json:"spec"`
	ConvergenceTimeout time.Duration `json:"convergence-timeout"`
	PollInterval       time.Duration `json:"poll-interval"`
	ListAttempts       int           `json:"list-attempts"`
}

func Validate(config Config) error {
	if config.Filter.Image == "" {
		return fmt.Errorf("%w: image must not be empty", ErrConfiguration)
	}
	if config.Filter.Class == "" {
		return fmt.Errorf("%w: class must not be empty", ErrConfiguration)
	}
	if config.PollInterval <= 0 {
		return fmt.Errorf("%w: poll-interval must be greater than 0", ErrConfiguration)
	}
	if config.ConvergenceTimeout < config.PollInterval {
		return fmt.Errorf("%w: convergence-timeout must be at least poll-interval", ErrConfiguration)
	}
	if config.ListAttempts < 1 {
		return fmt.Errorf("%w: list-attempts must be greater than 0", ErrConfiguration)
	}
	return nil
}
