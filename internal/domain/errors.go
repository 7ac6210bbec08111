package domain

import "errors"

// Error taxonomy returned by the core. The transport layer maps each of
// these to a status code; nothing below httpapi knows about HTTP.
var (
	// ErrInvalidAmount rejects transfers of zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSelfTransfer rejects transfers where source and destination are
	// the same account.
	ErrSelfTransfer = errors.New("cannot transfer to the same account")

	// ErrAccountNotFound covers both missing source and missing destination.
	ErrAccountNotFound = errors.New("account not found")

	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUserNotFound        = errors.New("user not found")

	// ErrUnauthorized is returned when the actor does not own the resource
	// the operation requires ownership of.
	ErrUnauthorized = errors.New("not authorized for this resource")

	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConcurrentModification reports a stale version token. It is
	// retried by the coordinator and never reaches a caller unless the
	// retry budget is exhausted, in which case it is wrapped in
	// ErrPersistence.
	ErrConcurrentModification = errors.New("account modified concurrently")

	// ErrIdempotencyConflict reports an idempotency key reused with a
	// different request payload.
	ErrIdempotencyConflict = errors.New("idempotency key used with different payload")

	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPersistence is the catch-all for storage failures and commit
	// conflicts. Safe to retry: no partial state was made durable.
	ErrPersistence = errors.New("persistence error")
)
