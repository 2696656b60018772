package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gammadia/herd/pool"
	"golang.org/x/crypto/ssh"
)

// Executor runs commands on nodes over SSH, keeping one connection per node.
type Executor struct {
	config Config
	log    *slog.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

// conn serializes connection attempts to a node.
type conn struct {
	mu     sync.Mutex
	client *ssh.Client
}

var _ pool.Executor = (*Executor)(nil)

func New(config Config) (*Executor, error) {
	if config.Signer == nil {
		return nil, fmt.Errorf("%w: no SSH private key", pool.ErrConfiguration)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("%w: no SSH username", pool.ErrConfiguration)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Port == 0 {
		config.Port = 22
	}

	return &Executor{
		config: config,
		log:    logger,
		conns:  map[string]*conn{},
	}, nil
}

// Run runs the command line in a new session. Cancelling ctx kills the command.
func (e *Executor) Run(ctx context.Context, node pool.Node, command string) (pool.Result, error) {
	client, err := e.client(ctx, node)
	if err != nil {
		return pool.Result{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		// The connection is most likely dead, the next command reconnects
		e.forget(node, client)
		return pool.Result{}, fmt.Errorf("failed to create SSH session on '%s': %w", node.Address, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return pool.Result{}, ctx.Err()
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return pool.Result{ExitCode: exitErr.ExitStatus(), Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
	} else if err != nil {
		return pool.Result{}, fmt.Errorf("failed to run command on '%s': %w", node.Address, err)
	}
	return pool.Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

// Close closes every connection.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for _, c := range e.conns {
		c.mu.Lock()
		if c.client != nil {
			if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
			c.client = nil
		}
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (e *Executor) conn(node pool.Node) *conn {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.conns[node.ID]
	if !ok {
		c = &conn{}
		e.conns[node.ID] = c
	}
	return c
}

func (e *Executor) client(ctx context.Context, node pool.Node) (*ssh.Client, error) {
	c := e.conn(node)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := e.dial(ctx, node)
	if err != nil {
		return nil, err
	}
	c.client = client

	if e.config.KeepAlive > 0 {
		go e.keepAlive(node, client)
	}
	return client, nil
}

func (e *Executor) forget(node pool.Node, client *ssh.Client) {
	c := e.conn(node)
	c.mu.Lock()
	if c.client == client {
		c.client = nil
	}
	c.mu.Unlock()

	_ = client.Close()
}

var sshDial = ssh.Dial

func (e *Executor) dial(ctx context.Context, node pool.Node) (*ssh.Client, error) {
	if node.Address == "" {
		return nil, fmt.Errorf("node '%s' has no address", node.ID)
	}

	log := e.log.With("node", node.ID, "address", node.Address)
	address := net.JoinHostPort(node.Address, strconv.Itoa(e.config.Port))
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.config.RetryInterval), uint64(max(e.config.DialAttempts-1, 0))),
		ctx,
	)

	var client *ssh.Client
	attempts := 0
	err := backoff.RetryNotify(func() (err error) {
		attempts++
		client, err = sshDial("tcp", address, &ssh.ClientConfig{
			User:            e.config.Username,
			Timeout:         e.config.DialTimeout,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Auth: []ssh.AuthMethod{
				ssh.PublicKeys(e.config.Signer),
			},
		})
		return err
	}, policy, func(err error, next time.Duration) {
		log.Debug("Connection to node refused, retrying", "attempt", attempts, "retry-in", next, "error", err)
	})

	if ctx.Err() != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to '%s' after %d attempts: %w", address, attempts, err)
	}
	return client, nil
}

// keepAlive prevents idle connections from being dropped during long commands.
func (e *Executor) keepAlive(node pool.Node, client *ssh.Client) {
	ticker := time.NewTicker(e.config.KeepAlive)
	defer ticker.Stop()

	for range ticker.C {
		if _, _, err := client.SendRequest("keepalive@herd", true, nil); err != nil {
			e.log.Debug("SSH keepalive failed", "node", node.ID, "error", err)
			e.forget(node, client)
			return
		}
	}
}
