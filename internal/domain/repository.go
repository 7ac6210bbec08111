package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStore owns every balance mutation. ApplyDelta is the single write
// path; there is no separate read-balance-then-write-balance sequence
// anywhere in the system.
type AccountStore interface {
	// Create opens a new account with the given non-negative starting
	// balance and version 1. The balance must fit MoneyScale; finer
	// values are ErrInvalidAmount.
	Create(ctx context.Context, ownerUserID uuid.UUID, initialBalance decimal.Decimal) (*Account, error)

	// Get returns the account or ErrAccountNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Account, error)

	// ListByOwner returns the owner's accounts in ascending id order.
	ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*Account, error)

	// ApplyDelta atomically sets balance = balance + delta and increments
	// version, but only if the stored version still equals expectedVersion
	// and the new balance is non-negative. The version check and the write
	// are one step; no other mutation can interleave undetected. Failure
	// modes: ErrAccountNotFound, ErrConcurrentModification,
	// ErrInsufficientFunds.
	ApplyDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal, expectedVersion int64) (*Account, error)
}

// TransactionLog is the append-only record of committed transfers.
type TransactionLog interface {
	// Append records a completed transfer. Must only be called inside the
	// same unit of work as the two balance mutations it describes.
	Append(ctx context.Context, fromAccountID, toAccountID uuid.UUID, amount decimal.Decimal) (*Transaction, error)

	// Get returns the transaction or ErrTransactionNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// ListForAccounts returns transactions touching any of the given
	// accounts on either side, newest first.
	ListForAccounts(ctx context.Context, accountIDs []uuid.UUID) ([]*Transaction, error)
}

// IdempotencyStore deduplicates transfer requests by caller-supplied key.
type IdempotencyStore interface {
	// Reserve claims the key for the request identified by requestHash.
	// When the key is free it is reserved and (nil, nil) is returned. When
	// the key is already committed with the same hash the recorded
	// transaction is replayed. A hash mismatch is ErrIdempotencyConflict.
	Reserve(ctx context.Context, key, requestHash string) (*Transaction, error)

	// Commit binds the reserved key to the transaction it produced.
	Commit(ctx context.Context, key string, txID uuid.UUID) error
}

// UserStore persists users for the auth layer.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// Stores is the set of tx-scoped stores handed to a unit of work callback.
// Everything done through them commits or rolls back together.
type Stores struct {
	Accounts     AccountStore
	Transactions TransactionLog
	Idempotency  IdempotencyStore
}

// UnitOfWork is the atomic boundary around a transfer: debit, credit and log
// append become durable all-at-once or not at all.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(s Stores) error) error
}
