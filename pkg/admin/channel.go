// Package admin implements the privileged control channel to the game
// server: a line-oriented TCP protocol with a login handshake, serial
// request/response per channel, and a semaphore-bounded connection pool for
// parallel use.
package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Defaults applied when Config leaves fields unset.
const (
	DefaultDialTimeout = 5 * time.Second
	DefaultIOTimeout   = 10 * time.Second
	DefaultPoolSize    = 4
)

// ErrLoginRejected is returned when the admin console refuses the configured
// credentials.
var ErrLoginRejected = errors.New("admin login rejected")

// CommandRecorder observes admin command round trips, outcome and duration.
// Implemented by the metrics collector; a nil recorder records nothing.
type CommandRecorder interface {
	RecordAdminCommand(d time.Duration, err error)
}

// Config holds admin console connection settings.
type Config struct {
	Addr        string
	Username    string
	Password    string
	DialTimeout time.Duration
	IOTimeout   time.Duration
	PoolSize    int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = DefaultIOTimeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	return c
}

// Channel is one admin console connection. A channel serializes its
// requests: one command is in flight at a time. Connections are opened
// lazily and re-opened silently once per command after an I/O failure; if
// the retry also fails the error surfaces and the next command starts over.
type Channel struct {
	cfg      Config
	logger   *slog.Logger
	recorder CommandRecorder

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

// NewChannel creates an unconnected channel. The first SendCommand (or an
// explicit Connect) dials.
func NewChannel(cfg Config, logger *slog.Logger) *Channel {
	return &Channel{
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "admin_channel", "addr", cfg.Addr),
	}
}

// Connect dials the console and performs the login handshake.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Channel) connectLocked(ctx context.Context) error {
	if c.closed {
		return errors.New("admin channel disposed")
	}
	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to dial admin console %s: %w", c.cfg.Addr, err)
	}
	reader := bufio.NewReader(conn)

	// Handshake: greeting line, then "login <user> <pass>" answered with +OK.
	deadline := time.Now().Add(c.cfg.IOTimeout)
	_ = conn.SetDeadline(deadline)
	if _, err := reader.ReadString('\n'); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to read admin greeting: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "login %s %s\n", c.cfg.Username, c.cfg.Password); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to send admin login: %w", err)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to read admin login response: %w", err)
	}
	if !strings.HasPrefix(line, "+OK") {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrLoginRejected, strings.TrimSpace(line))
	}
	_ = conn.SetDeadline(time.Time{})

	c.conn = conn
	c.reader = reader
	c.logger.Debug("Admin channel connected")
	return nil
}

// SendCommand writes one command line and returns the single response line,
// trimmed. Serial: concurrent callers queue on the channel's lock.
func (c *Channel) SendCommand(ctx context.Context, cmd string) (string, error) {
	start := time.Now()
	resp, err := c.send(ctx, cmd)
	if c.recorder != nil {
		c.recorder.RecordAdminCommand(time.Since(start), err)
	}
	return resp, err
}

func (c *Channel) send(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.roundTripLocked(ctx, cmd)
	if err == nil {
		return resp, nil
	}
	if c.closed || ctx.Err() != nil {
		return "", err
	}

	// One silent reconnect, then surface the error. The next call retries
	// from a fresh connection.
	c.dropLocked()
	if rerr := c.connectLocked(ctx); rerr != nil {
		return "", fmt.Errorf("admin command %q failed and reconnect failed: %w", firstWord(cmd), rerr)
	}
	resp, err = c.roundTripLocked(ctx, cmd)
	if err != nil {
		c.dropLocked()
		return "", err
	}
	return resp, nil
}

func (c *Channel) roundTripLocked(ctx context.Context, cmd string) (string, error) {
	if err := c.connectLocked(ctx); err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.cfg.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)
	defer func() { _ = c.conn.SetDeadline(time.Time{}) }()

	if _, err := fmt.Fprintf(c.conn, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("failed to send admin command %q: %w", firstWord(cmd), err)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read admin response for %q: %w", firstWord(cmd), err)
	}
	return strings.TrimSpace(line), nil
}

// dropLocked discards the current connection without marking the channel
// disposed.
func (c *Channel) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// Dispose closes the channel permanently.
func (c *Channel) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.dropLocked()
}

// firstWord returns the command verb for log and error context, keeping
// arguments (which may carry credentials) out of messages.
func firstWord(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		return cmd[:i]
	}
	return cmd
}
