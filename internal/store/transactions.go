package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
)

type transactionLog struct {
	q querier
}

const transactionCols = `id, from_account_id, to_account_id, amount, created_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (l *transactionLog) Append(ctx context.Context, fromAccountID, toAccountID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	row := l.q.QueryRow(ctx, `
		INSERT INTO transactions (id, from_account_id, to_account_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING `+transactionCols,
		uuid.New(), fromAccountID, toAccountID, amount,
	)
	tx, err := scanTransaction(row)
	if err != nil {
		return nil, persistErr(err)
	}
	return tx, nil
}

func (l *transactionLog) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := l.q.QueryRow(ctx, `SELECT `+transactionCols+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, persistErr(err)
	}
	return tx, nil
}

func (l *transactionLog) ListForAccounts(ctx context.Context, accountIDs []uuid.UUID) ([]*domain.Transaction, error) {
	if len(accountIDs) == 0 {
		return []*domain.Transaction{}, nil
	}

	// id is the tiebreak so pagination over same-instant rows stays stable.
	rows, err := l.q.Query(ctx, `
		SELECT `+transactionCols+`
		  FROM transactions
		 WHERE from_account_id = ANY($1) OR to_account_id = ANY($1)
		 ORDER BY created_at DESC, id DESC`,
		accountIDs,
	)
	if err != nil {
		return nil, persistErr(err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, persistErr(err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err)
	}
	return txs, nil
}
