package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
)

// Facade is the read-only query surface over the two stores. It has no
// mutation capability; ownership checks aside, failures pass through from
// the stores unchanged.
type Facade struct {
	accounts domain.AccountStore
	txlog    domain.TransactionLog
}

func NewFacade(accounts domain.AccountStore, txlog domain.TransactionLog) *Facade {
	return &Facade{accounts: accounts, txlog: txlog}
}

// GetAccount returns the account if actorUserID owns it.
func (f *Facade) GetAccount(ctx context.Context, actorUserID, accountID uuid.UUID) (*domain.Account, error) {
	acc, err := f.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.UserID != actorUserID {
		return nil, domain.ErrUnauthorized
	}
	return acc, nil
}

func (f *Facade) ListAccountsForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	return f.accounts.ListByOwner(ctx, userID)
}

func (f *Facade) GetAccountBalance(ctx context.Context, actorUserID, accountID uuid.UUID) (decimal.Decimal, error) {
	acc, err := f.GetAccount(ctx, actorUserID, accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return acc.Balance, nil
}

// GetTransaction returns the transaction if the actor owns either side.
func (f *Facade) GetTransaction(ctx context.Context, actorUserID, transactionID uuid.UUID) (*domain.Transaction, error) {
	tx, err := f.txlog.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if f.ownsAccount(ctx, actorUserID, tx.FromAccountID) || f.ownsAccount(ctx, actorUserID, tx.ToAccountID) {
		return tx, nil
	}
	return nil, domain.ErrUnauthorized
}

// ListTransactionsForUser resolves the user's accounts and returns every
// transaction touching any of them, newest first. A user without accounts
// gets an empty list.
func (f *Facade) ListTransactionsForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Transaction, error) {
	accs, err := f.accounts.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(accs) == 0 {
		return []*domain.Transaction{}, nil
	}
	ids := make([]uuid.UUID, len(accs))
	for i, acc := range accs {
		ids[i] = acc.ID
	}
	return f.txlog.ListForAccounts(ctx, ids)
}

func (f *Facade) ownsAccount(ctx context.Context, userID, accountID uuid.UUID) bool {
	acc, err := f.accounts.Get(ctx, accountID)
	if err != nil {
		// A dangling reference cannot grant access.
		return false
	}
	return acc.UserID == userID
}
