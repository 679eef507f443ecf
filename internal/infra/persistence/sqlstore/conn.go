package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"interactiondb/pkg/domain"
)

// DefaultStaleAfter is the idle period after which the connection is
// considered stale and recycled before its next use.
const DefaultStaleAfter = time.Hour

// Opener produces a fresh database handle.
type Opener func(ctx context.Context) (*sql.DB, error)

// ConnOptions tunes the connection lifecycle.
type ConnOptions struct {
	StaleAfter  time.Duration
	Logger      zerolog.Logger
	IsTransient func(error) bool
	Now         func() time.Time
}

// Conn is the process-wide database handle. It recycles the handle when it
// sat idle longer than StaleAfter and retries a write exactly once after a
// connectivity failure.
type Conn struct {
	open        Opener
	staleAfter  time.Duration
	logger      zerolog.Logger
	isTransient func(error) bool
	now         func() time.Time

	mu       sync.Mutex
	db       *sql.DB
	lastUsed time.Time
}

// NewConn constructs a lazily opened connection.
func NewConn(open Opener, opts ConnOptions) *Conn {
	c := &Conn{
		open:        open,
		staleAfter:  opts.StaleAfter,
		logger:      opts.Logger,
		isTransient: opts.IsTransient,
		now:         opts.Now,
	}
	if c.staleAfter <= 0 {
		c.staleAfter = DefaultStaleAfter
	}
	if c.isTransient == nil {
		c.isTransient = IsTransient
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// DB returns a usable handle, reopening it when missing or stale.
func (c *Conn) DB(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.db != nil && now.Sub(c.lastUsed) > c.staleAfter {
		c.logger.Debug().Dur("idle", now.Sub(c.lastUsed)).Msg("recycling stale database connection")
		_ = c.db.Close()
		c.db = nil
	}
	if c.db == nil {
		db, err := c.open(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "open database")
		}
		c.db = db
	}
	c.lastUsed = now
	return c.db, nil
}

func (c *Conn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
}

// Close releases the current handle.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Write runs fn and, on a connectivity failure, reconnects and runs it once
// more. A second connectivity failure is returned as
// *domain.TransientConnectivityError.
func (c *Conn) Write(ctx context.Context, op string, fn func(db *sql.DB) error) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	err = fn(db)
	if err == nil || !c.isTransient(err) {
		return err
	}
	c.logger.Warn().Err(err).Str("op", op).Msg("connectivity failure, reconnecting")
	c.reset()
	db, err = c.DB(ctx)
	if err != nil {
		return &domain.TransientConnectivityError{Op: op, Err: err}
	}
	err = fn(db)
	if err != nil && c.isTransient(err) {
		return &domain.TransientConnectivityError{Op: op, Err: err}
	}
	return err
}

// Read runs fn against the current handle without retrying.
func (c *Conn) Read(ctx context.Context, fn func(db *sql.DB) error) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	return fn(db)
}

var transientMessages = []string{
	"communication link failure",
	"connection reset",
	"broken pipe",
	"connection refused",
	"bad connection",
	"server closed the connection",
}

// IsTransient reports connectivity failures that a fresh connection may cure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
