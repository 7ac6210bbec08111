package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
)

type accountStore struct {
	q querier
}

const accountCols = `id, user_id, balance, initial_balance, version, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Balance, &a.InitialBalance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *accountStore) Create(ctx context.Context, ownerUserID uuid.UUID, initialBalance decimal.Decimal) (*domain.Account, error) {
	if initialBalance.IsNegative() || !domain.HasMoneyScale(initialBalance) {
		return nil, domain.ErrInvalidAmount
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO accounts (id, user_id, balance, initial_balance, version)
		VALUES ($1, $2, $3, $3, 1)
		RETURNING `+accountCols,
		uuid.New(), ownerUserID, initialBalance,
	)
	acc, err := scanAccount(row)
	if err != nil {
		if isPgErrCode(err, pgForeignKeyViolation) {
			return nil, domain.ErrUserNotFound
		}
		return nil, persistErr(err)
	}
	return acc, nil
}

func (s *accountStore) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.q.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = $1`, id)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, persistErr(err)
	}
	return acc, nil
}

func (s *accountStore) ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*domain.Account, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+accountCols+`
		  FROM accounts
		 WHERE user_id = $1
		 ORDER BY id ASC`,
		ownerUserID,
	)
	if err != nil {
		return nil, persistErr(err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, persistErr(err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err)
	}
	return accounts, nil
}

// ApplyDelta is the one balance write path. The version check, the
// non-negative guard and the write are a single conditional UPDATE, so two
// concurrent deltas against the same pre-mutation state cannot both succeed.
// When the UPDATE matches no row, a follow-up read classifies the miss.
func (s *accountStore) ApplyDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal, expectedVersion int64) (*domain.Account, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE accounts
		   SET balance = balance + $2,
		       version = version + 1,
		       updated_at = now()
		 WHERE id = $1
		   AND version = $3
		   AND balance + $2 >= 0
		RETURNING `+accountCols,
		id, delta, expectedVersion,
	)
	acc, err := scanAccount(row)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, persistErr(err)
	}

	var (
		version int64
		balance decimal.Decimal
	)
	cerr := s.q.QueryRow(ctx, `SELECT version, balance FROM accounts WHERE id = $1`, id).
		Scan(&version, &balance)
	switch {
	case errors.Is(cerr, pgx.ErrNoRows):
		return nil, domain.ErrAccountNotFound
	case cerr != nil:
		return nil, persistErr(cerr)
	case version != expectedVersion:
		return nil, domain.ErrConcurrentModification
	default:
		return nil, domain.ErrInsufficientFunds
	}
}
