// Package store is the PostgreSQL persistence layer. Every mutation of
// money goes through a single conditional UPDATE (accounts) or an
// append-only INSERT (transactions); the unit of work makes the three
// effects of a transfer visible atomically.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bank-ledger/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same store
// code runs against the pool for single-statement operations and against an
// open transaction inside InTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{db: db} }

// Accounts returns the pool-backed account store for use outside a unit of
// work. Writes issued through it are still individually atomic.
func (s *Store) Accounts() domain.AccountStore { return &accountStore{q: s.db} }

func (s *Store) Transactions() domain.TransactionLog { return &transactionLog{q: s.db} }

func (s *Store) Users() domain.UserStore { return &userStore{q: s.db} }

// InTx runs fn inside one database transaction. The stores handed to fn are
// bound to that transaction; everything fn did commits or none of it does.
// Read committed suffices because ApplyDelta carries its own version check
// and the row locks taken by the two UPDATEs serialize writers.
func (s *Store) InTx(ctx context.Context, fn func(st domain.Stores) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return persistErr(err)
	}
	defer tx.Rollback(ctx)

	err = fn(domain.Stores{
		Accounts:     &accountStore{q: tx},
		Transactions: &transactionLog{q: tx},
		Idempotency:  &idempotencyStore{q: tx},
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return persistErr(err)
	}
	return nil
}

// persistErr folds driver-level failures into the ErrPersistence branch of
// the taxonomy while letting context cancellation pass through untouched.
func persistErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func isPgErrCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
