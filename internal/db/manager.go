package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

// Error wraps a connection or transaction failure with the operation that
// produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("db: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Querier is the query surface repositories need from an acquired connection.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is a pooled connection scoped to a single WithConn call.
type Conn interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Release()
}

// Pool abstracts connection acquisition so the retry logic is testable
// without a live database.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// Manager hands out pooled connections with health-check-on-acquire and
// bounded retry. Every acquired connection is released on every exit path.
type Manager struct {
	pool       Pool
	maxRetries int
	retryDelay time.Duration
	logger     *logging.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxRetries overrides how many times acquisition is retried.
func WithMaxRetries(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

// WithRetryDelay overrides the fixed delay between acquisition attempts.
func WithRetryDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d >= 0 {
			m.retryDelay = d
		}
	}
}

// NewManager builds a connection manager around the supplied pool.
func NewManager(pool Pool, logger *logging.Logger, opts ...ManagerOption) *Manager {
	if pool == nil {
		panic("db: pool cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		pool:       pool,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithConn acquires a healthy connection and yields it to fn. Acquisition
// failures (including a failed liveness ping) are retried up to the
// configured maximum; errors raised by fn propagate to the caller unmodified
// after the connection is returned to the pool.
func (m *Manager) WithConn(ctx context.Context, fn func(Conn) error) error {
	conn, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

// WithTx runs fn inside a transaction on a managed connection. The
// transaction is rolled back unless fn succeeds and the commit goes through.
func (m *Manager) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return m.WithConn(ctx, func(conn Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return &Error{Op: "begin", Err: err}
		}
		// Rollback is a no-op once the transaction committed.
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return &Error{Op: "commit", Err: err}
		}
		return nil
	})
}

func (m *Manager) acquire(ctx context.Context) (Conn, error) {
	var lastErr error
	attempts := m.maxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := m.pool.Acquire(ctx)
		if err == nil {
			if pingErr := conn.Ping(ctx); pingErr == nil {
				return conn, nil
			} else {
				// The connection is broken; return it so the pool can
				// discard it, then retry.
				conn.Release()
				err = pingErr
			}
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, &Error{Op: "acquire", Err: ctx.Err()}
		}
		if attempt < attempts {
			m.logger.Warn("connection acquisition failed, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err,
			)
			time.Sleep(m.retryDelay)
		}
	}

	return nil, &Error{Op: "acquire", Err: lastErr}
}

// pgxPool adapts *pgxpool.Pool to the Pool interface.
type pgxPool struct {
	pool *pgxpool.Pool
}

// NewPgxPool wraps a pgx pool for use with the Manager.
func NewPgxPool(pool *pgxpool.Pool) Pool {
	if pool == nil {
		panic("db: pgx pool cannot be nil")
	}
	return &pgxPool{pool: pool}
}

func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{conn: conn}, nil
}

type pgxConn struct {
	conn *pgxpool.Conn
}

func (c *pgxConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

func (c *pgxConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

func (c *pgxConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

func (c *pgxConn) Begin(ctx context.Context) (pgx.Tx, error) {
	return c.conn.Begin(ctx)
}

func (c *pgxConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Release returns the connection to the pool; pgx resets any non-clean
// connection state (open transactions are rolled back) before reuse.
func (c *pgxConn) Release() {
	c.conn.Release()
}
