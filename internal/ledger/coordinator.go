// Package ledger holds the money-movement core: the transfer coordinator
// (the only writer) and the read-only facade consumed by the API layer.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/domain"
)

// maxTransferAttempts bounds retries of version conflicts. Conflicts are
// transient by construction (some other transfer committed first), so a
// handful of re-reads is enough; anything beyond that is reported as a
// persistence failure and left to the caller to retry.
const maxTransferAttempts = 3

// Coordinator executes transfers. All three effects of a transfer (debit,
// credit, log entry) happen inside one unit of work and become visible
// together or not at all.
type Coordinator struct {
	uow         domain.UnitOfWork
	log         *logrus.Logger
	maxAttempts int
}

func NewCoordinator(uow domain.UnitOfWork, log *logrus.Logger) *Coordinator {
	return &Coordinator{uow: uow, log: log, maxAttempts: maxTransferAttempts}
}

// Transfer moves amount from fromID to toID on behalf of actorUserID, who
// must own the source account. idempotencyKey may be empty; when set,
// repeating the call with the same key and payload replays the recorded
// transaction instead of moving money twice.
//
// Validation failures and ErrInsufficientFunds are deterministic given
// current state and are returned without side effects and without retry.
// Version conflicts are retried with fresh reads; exhausting the budget
// surfaces ErrPersistence, after which the caller may safely repeat the
// whole call since no partial state was committed.
func (c *Coordinator) Transfer(ctx context.Context, actorUserID, fromID, toID uuid.UUID, amount decimal.Decimal, idempotencyKey string) (*domain.Transaction, error) {
	if !amount.IsPositive() || !domain.HasMoneyScale(amount) {
		return nil, domain.ErrInvalidAmount
	}
	if fromID == toID {
		return nil, domain.ErrSelfTransfer
	}

	var requestHash string
	if idempotencyKey != "" {
		h, err := transferRequestHash(actorUserID, fromID, toID, amount, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("hash transfer request: %w", err)
		}
		requestHash = h
	}

	var lastConflict error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var result *domain.Transaction
		err := c.uow.InTx(ctx, func(s domain.Stores) error {
			tx, err := c.execute(ctx, s, actorUserID, fromID, toID, amount, idempotencyKey, requestHash)
			if err != nil {
				return err
			}
			result = tx
			return nil
		})
		if err == nil {
			c.log.WithFields(logrus.Fields{
				"transaction_id": result.ID,
				"from_account":   fromID,
				"to_account":     toID,
				"amount":         amount.String(),
			}).Info("transfer committed")
			return result, nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) {
			return nil, err
		}
		lastConflict = err
		c.log.WithFields(logrus.Fields{
			"from_account": fromID,
			"to_account":   toID,
			"attempt":      attempt,
		}).Warn("transfer hit concurrent modification, retrying")
	}
	return nil, fmt.Errorf("%w: transfer retries exhausted: %v", domain.ErrPersistence, lastConflict)
}

// execute runs one transfer attempt inside an open unit of work.
func (c *Coordinator) execute(ctx context.Context, s domain.Stores, actorUserID, fromID, toID uuid.UUID, amount decimal.Decimal, idempotencyKey, requestHash string) (*domain.Transaction, error) {
	if idempotencyKey != "" {
		replay, err := s.Idempotency.Reserve(ctx, idempotencyKey, requestHash)
		if err != nil {
			return nil, err
		}
		if replay != nil {
			return replay, nil
		}
	}

	from, err := s.Accounts.Get(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.Accounts.Get(ctx, toID)
	if err != nil {
		return nil, err
	}
	if from.UserID != actorUserID {
		return nil, domain.ErrUnauthorized
	}

	// Touch rows in ascending account-id order regardless of direction so
	// two opposite transfers between the same pair cannot deadlock. With a
	// reordered pair the credit may land before the debit; an insufficient
	// debit still rolls the whole unit back.
	steps := []struct {
		account *domain.Account
		delta   decimal.Decimal
	}{
		{from, amount.Neg()},
		{to, amount},
	}
	if bytes.Compare(to.ID[:], from.ID[:]) < 0 {
		steps[0], steps[1] = steps[1], steps[0]
	}
	for _, step := range steps {
		if _, err := s.Accounts.ApplyDelta(ctx, step.account.ID, step.delta, step.account.Version); err != nil {
			return nil, err
		}
	}

	tx, err := s.Transactions.Append(ctx, fromID, toID, amount)
	if err != nil {
		return nil, err
	}
	if idempotencyKey != "" {
		if err := s.Idempotency.Commit(ctx, idempotencyKey, tx.ID); err != nil {
			return nil, err
		}
	}
	return tx, nil
}
