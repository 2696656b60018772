package sshexec

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

type Config struct {
	Logger   *slog.Logger
	Username string
	Signer   ssh.Signer
	// Defaults to 22
	Port int

	// Timeout of a single connection attempt
	DialTimeout time.Duration
	// Delay between two connection attempts
	RetryInterval time.Duration
	// Connection attempts before giving up on a node
	DialAttempts int
	// Interval between keepalive requests, zero disables them
	KeepAlive time.Duration
}

// DefaultConfig returns the settings used for freshly booted nodes, whose SSH
// daemon may take a while to accept connections.
func DefaultConfig() Config {
	return Config{
		Port:          22,
		DialTimeout:   5 * time.Second,
		RetryInterval: 2 * time.Second,
		DialAttempts:  30,
		KeepAlive:     30 * time.Second,
	}
}

// LoadSigner reads an unencrypted private key file.
func LoadSigner(keyFile string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key '%s': %w", keyFile, err)
	}
	return signer, nil
}
