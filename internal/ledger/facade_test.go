package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/domain"
)

func TestFacade_GetAccountEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.account(t, f.alice, "100.00")

	got, err := f.facade.GetAccount(ctx, f.alice.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = f.facade.GetAccount(ctx, f.bob.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.facade.GetAccount(ctx, f.alice.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestFacade_GetAccountBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.account(t, f.alice, "12.34")

	bal, err := f.facade.GetAccountBalance(ctx, f.alice.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec(t, "12.34")))

	_, err = f.facade.GetAccountBalance(ctx, f.bob.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestFacade_ListAccountsForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.account(t, f.alice, "1")
	f.account(t, f.alice, "2")
	f.account(t, f.bob, "3")

	accs, err := f.facade.ListAccountsForUser(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, accs, 2)
	for _, acc := range accs {
		assert.Equal(t, f.alice.ID, acc.UserID)
	}

	accs, err = f.facade.ListAccountsForUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, accs)
}

func TestFacade_GetTransactionVisibleToBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.account(t, f.alice, "100.00")
	b := f.account(t, f.bob, "0")
	carol, err := f.st.Users().Create(ctx, "carol", "hash-c")
	require.NoError(t, err)

	tx, err := f.coord.Transfer(ctx, f.alice.ID, a.ID, b.ID, dec(t, "10.00"), "")
	require.NoError(t, err)

	got, err := f.facade.GetTransaction(ctx, f.alice.ID, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	got, err = f.facade.GetTransaction(ctx, f.bob.ID, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	_, err = f.facade.GetTransaction(ctx, carol.ID, tx.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.facade.GetTransaction(ctx, f.alice.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestFacade_ListTransactionsForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.account(t, f.alice, "100.00")
	b := f.account(t, f.bob, "0")

	tx1, err := f.coord.Transfer(ctx, f.alice.ID, a.ID, b.ID, dec(t, "10.00"), "")
	require.NoError(t, err)
	tx2, err := f.coord.Transfer(ctx, f.bob.ID, b.ID, a.ID, dec(t, "4.00"), "")
	require.NoError(t, err)

	// Both sides see both transactions, newest first.
	for _, userID := range []uuid.UUID{f.alice.ID, f.bob.ID} {
		txs, err := f.facade.ListTransactionsForUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, tx2.ID, txs[0].ID)
		assert.Equal(t, tx1.ID, txs[1].ID)
	}

	// A user without accounts gets an empty list, not an error.
	txs, err := f.facade.ListTransactionsForUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, txs)
}
