package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"bank-ledger/internal/domain"
)

// idempotencyStore implements transfer deduplication. It is only ever
// handed out tx-scoped by InTx: the advisory lock used to serialize a key
// is transaction-scoped and released on commit or rollback.
type idempotencyStore struct {
	q querier
}

func (s *idempotencyStore) Reserve(ctx context.Context, key, requestHash string) (*domain.Transaction, error) {
	// Serialize per key. This removes the window where a concurrent caller
	// could observe the key RESERVED but not yet bound to a transaction.
	if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return nil, persistErr(err)
	}

	tag, err := s.q.Exec(ctx, `
		INSERT INTO idempotency (key, request_hash, status)
		VALUES ($1, $2, 'RESERVED')
		ON CONFLICT (key) DO NOTHING`,
		key, requestHash,
	)
	if err != nil {
		return nil, persistErr(err)
	}
	if tag.RowsAffected() == 1 {
		// Fresh reservation; caller proceeds with the transfer.
		return nil, nil
	}

	var (
		existingHash string
		txID         *uuid.UUID
	)
	err = s.q.QueryRow(ctx, `SELECT request_hash, tx_id FROM idempotency WHERE key = $1`, key).
		Scan(&existingHash, &txID)
	if err != nil {
		return nil, persistErr(err)
	}
	if existingHash != requestHash {
		return nil, domain.ErrIdempotencyConflict
	}
	if txID == nil {
		// Reservation and transfer commit in the same transaction, so a
		// visible row always carries a tx_id.
		return nil, fmt.Errorf("%w: idempotency key reserved without transaction", domain.ErrPersistence)
	}

	row := s.q.QueryRow(ctx, `SELECT `+transactionCols+` FROM transactions WHERE id = $1`, *txID)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: idempotency key bound to missing transaction", domain.ErrPersistence)
		}
		return nil, persistErr(err)
	}
	return tx, nil
}

func (s *idempotencyStore) Commit(ctx context.Context, key string, txID uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE idempotency
		   SET status = 'COMMITTED', tx_id = $2
		 WHERE key = $1 AND status = 'RESERVED'`,
		key, txID,
	)
	if err != nil {
		return persistErr(err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: idempotency key %q not reserved", domain.ErrPersistence, key)
	}
	return nil
}
