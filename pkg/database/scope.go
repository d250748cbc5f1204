package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pooled connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Scope is the database handle repositories use for one request or one
// transaction. Conn is either a pooled connection or a pgx.Tx.
type Scope struct {
	Conn    Querier
	release func()
}

// Close releases a pooled connection. Transaction scopes are ended by RunInTx.
func (s *Scope) Close() {
	if s == nil || s.release == nil {
		return
	}
	s.release()
	s.release = nil
}

// ErrNoScope is returned by repositories called without a scope in context.
var ErrNoScope = errors.New("no database scope in context")

type contextKey string

const scopeKey contextKey = "dbScope"

// GetScope retrieves the database scope from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey).(*Scope)
	return scope, ok && scope != nil && scope.Conn != nil
}

// SetScope stores the database scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// Acquire takes a pooled connection. The returned Scope MUST be closed.
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Scope{Conn: conn, release: conn.Release}, nil
}

// WithScope returns ctx carrying a pooled connection and the cleanup that
// releases it. Used by commands that run outside an HTTP request.
func (db *DB) WithScope(ctx context.Context) (context.Context, func(), error) {
	scope, err := db.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}

// TxRunner runs fn inside a transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ TxRunner = (*DB)(nil)

// RunInTx begins a transaction on the scope in ctx (or on the pool when
// there is none), hands fn a context whose scope is the transaction, and
// commits when fn returns nil. Any error rolls everything back. Calling it
// with a transaction scope already in ctx nests through a savepoint.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var b beginner = db.Pool
	if scope, ok := GetScope(ctx); ok {
		if sb, ok := scope.Conn.(beginner); ok {
			b = sb
		}
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(SetScope(ctx, &Scope{Conn: tx})); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
