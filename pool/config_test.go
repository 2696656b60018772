package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidatePollIntervalMustBePositive(t *testing.T) {
	config := newTestConfig()
	config.PollInterval = 0
	err := Validate(config)
	assert.EqualError(t, err, "invalid configuration: poll-interval must be greater than 0")
}

func TestValidateTimeoutShorterThanPollInterval(t *testing.T) {
	config := newTestConfig()
	config.PollInterval = time.Second
	config.ConvergenceTimeout = 500 * time.Millisecond
	err := Validate(config)
	assert.EqualError(t, err, "invalid configuration: convergence-timeout must be at least poll-interval")
}

func TestValidateFilterIsRequired(t *testing.T) {
	config := newTestConfig()
	config.Filter.Image = ""
	assert.ErrorIs(t, Validate(config), ErrConfiguration)
}

func TestValidateListAttempts(t *testing.T) {
	config := newTestConfig()
	config.ListAttempts = 0
	assert.EqualError(t, Validate(config), "invalid configuration: list-attempts must be greater than 0")
}

func TestValidateDefaults(t *testing.T) {
	assert.NoError(t, Validate(newTestConfig()))
}
