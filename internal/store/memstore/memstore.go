// Package memstore is an in-memory implementation of the persistence
// interfaces. A single mutex plays the role of the database transaction:
// InTx holds it for the whole callback and restores a snapshot when the
// callback fails, so the atomicity contract matches the SQL store.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
)

type idemRow struct {
	requestHash string
	txID        *uuid.UUID
}

type Store struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*domain.User
	usersByName map[string]uuid.UUID
	accounts    map[uuid.UUID]*domain.Account
	txs         []*domain.Transaction
	txByID      map[uuid.UUID]*domain.Transaction
	idem        map[string]*idemRow
}

func New() *Store {
	return &Store{
		users:       make(map[uuid.UUID]*domain.User),
		usersByName: make(map[string]uuid.UUID),
		accounts:    make(map[uuid.UUID]*domain.Account),
		txByID:      make(map[uuid.UUID]*domain.Transaction),
		idem:        make(map[string]*idemRow),
	}
}

func (s *Store) Accounts() domain.AccountStore { return lockedAccounts{s} }

func (s *Store) Transactions() domain.TransactionLog { return lockedLog{s} }

func (s *Store) Users() domain.UserStore { return lockedUsers{s} }

// InTx serializes units of work behind the store mutex and rolls the state
// back when fn returns an error, mirroring a database rollback.
func (s *Store) InTx(ctx context.Context, fn func(st domain.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	err := fn(domain.Stores{
		Accounts:     accounts{s},
		Transactions: txlog{s},
		Idempotency:  idem{s},
	})
	if err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	accounts map[uuid.UUID]*domain.Account
	txLen    int
	idem     map[string]*idemRow
}

func (s *Store) snapshot() memSnapshot {
	accs := make(map[uuid.UUID]*domain.Account, len(s.accounts))
	for id, a := range s.accounts {
		cp := *a
		accs[id] = &cp
	}
	id := make(map[string]*idemRow, len(s.idem))
	for k, v := range s.idem {
		cp := *v
		id[k] = &cp
	}
	return memSnapshot{accounts: accs, txLen: len(s.txs), idem: id}
}

func (s *Store) restore(snap memSnapshot) {
	s.accounts = snap.accounts
	for _, t := range s.txs[snap.txLen:] {
		delete(s.txByID, t.ID)
	}
	s.txs = s.txs[:snap.txLen]
	s.idem = snap.idem
}

// ---- accounts ----

// accounts assumes the store mutex is already held.
type accounts struct{ s *Store }

func (a accounts) Create(ctx context.Context, ownerUserID uuid.UUID, initialBalance decimal.Decimal) (*domain.Account, error) {
	if initialBalance.IsNegative() || !domain.HasMoneyScale(initialBalance) {
		return nil, domain.ErrInvalidAmount
	}
	if _, ok := a.s.users[ownerUserID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	now := time.Now().UTC()
	acc := &domain.Account{
		ID:             uuid.New(),
		UserID:         ownerUserID,
		Balance:        initialBalance,
		InitialBalance: initialBalance,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	a.s.accounts[acc.ID] = acc
	cp := *acc
	return &cp, nil
}

func (a accounts) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	acc, ok := a.s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (a accounts) ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*domain.Account, error) {
	out := make([]*domain.Account, 0)
	for _, acc := range a.s.accounts {
		if acc.UserID == ownerUserID {
			cp := *acc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (a accounts) ApplyDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal, expectedVersion int64) (*domain.Account, error) {
	acc, ok := a.s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if acc.Version != expectedVersion {
		return nil, domain.ErrConcurrentModification
	}
	newBalance := acc.Balance.Add(delta)
	if newBalance.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}
	acc.Balance = newBalance
	acc.Version++
	acc.UpdatedAt = time.Now().UTC()
	cp := *acc
	return &cp, nil
}

// ---- transaction log ----

type txlog struct{ s *Store }

func (l txlog) Append(ctx context.Context, fromAccountID, toAccountID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	tx := &domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: fromAccountID,
		ToAccountID:   toAccountID,
		Amount:        amount,
		CreatedAt:     time.Now().UTC(),
	}
	l.s.txs = append(l.s.txs, tx)
	l.s.txByID[tx.ID] = tx
	cp := *tx
	return &cp, nil
}

func (l txlog) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx, ok := l.s.txByID[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (l txlog) ListForAccounts(ctx context.Context, accountIDs []uuid.UUID) ([]*domain.Transaction, error) {
	members := make(map[uuid.UUID]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		members[id] = struct{}{}
	}
	out := make([]*domain.Transaction, 0)
	for _, tx := range l.s.txs {
		_, fromHit := members[tx.FromAccountID]
		_, toHit := members[tx.ToAccountID]
		if fromHit || toHit {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	return out, nil
}

// ---- idempotency ----

type idem struct{ s *Store }

func (i idem) Reserve(ctx context.Context, key, requestHash string) (*domain.Transaction, error) {
	row, ok := i.s.idem[key]
	if !ok {
		i.s.idem[key] = &idemRow{requestHash: requestHash}
		return nil, nil
	}
	if row.requestHash != requestHash {
		return nil, domain.ErrIdempotencyConflict
	}
	if row.txID == nil {
		return nil, fmt.Errorf("%w: idempotency key reserved without transaction", domain.ErrPersistence)
	}
	return txlog{i.s}.Get(ctx, *row.txID)
}

func (i idem) Commit(ctx context.Context, key string, txID uuid.UUID) error {
	row, ok := i.s.idem[key]
	if !ok {
		return fmt.Errorf("%w: idempotency key %q not reserved", domain.ErrPersistence, key)
	}
	row.txID = &txID
	return nil
}

// ---- users ----

type users struct{ s *Store }

func (u users) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	if _, taken := u.s.usersByName[username]; taken {
		return nil, domain.ErrUsernameTaken
	}
	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	u.s.users[user.ID] = user
	u.s.usersByName[username] = user.ID
	cp := *user
	return &cp, nil
}

func (u users) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	id, ok := u.s.usersByName[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u.s.users[id]
	return &cp, nil
}

func (u users) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, ok := u.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// ---- locked wrappers for use outside InTx ----

type lockedAccounts struct{ s *Store }

func (w lockedAccounts) Create(ctx context.Context, owner uuid.UUID, initial decimal.Decimal) (*domain.Account, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return accounts{w.s}.Create(ctx, owner, initial)
}

func (w lockedAccounts) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return accounts{w.s}.Get(ctx, id)
}

func (w lockedAccounts) ListByOwner(ctx context.Context, owner uuid.UUID) ([]*domain.Account, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return accounts{w.s}.ListByOwner(ctx, owner)
}

func (w lockedAccounts) ApplyDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal, expectedVersion int64) (*domain.Account, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return accounts{w.s}.ApplyDelta(ctx, id, delta, expectedVersion)
}

type lockedLog struct{ s *Store }

func (w lockedLog) Append(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return txlog{w.s}.Append(ctx, from, to, amount)
}

func (w lockedLog) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return txlog{w.s}.Get(ctx, id)
}

func (w lockedLog) ListForAccounts(ctx context.Context, ids []uuid.UUID) ([]*domain.Transaction, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return txlog{w.s}.ListForAccounts(ctx, ids)
}

type lockedUsers struct{ s *Store }

func (w lockedUsers) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return users{w.s}.Create(ctx, username, passwordHash)
}

func (w lockedUsers) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return users{w.s}.FindByUsername(ctx, username)
}

func (w lockedUsers) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return users{w.s}.FindByID(ctx, id)
}
