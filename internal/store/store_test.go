package store_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/ledger"
	"bank-ledger/internal/store"
)

func mustEnv(t *testing.T, key string) string {
	t.Helper()
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		t.Skipf("missing %s env var", key)
	}
	return v
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := mustEnv(t, "LEDGER_DB_DSN")

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	// Concurrency tests. Keep it bounded.
	cfg.MaxConns = 20
	cfg.MinConns = 1

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	mctx, mcancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer mcancel()
	if err := store.Migrate(mctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(pool)
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func seedUser(t *testing.T, st *store.Store) *domain.User {
	t.Helper()
	u, err := st.Users().Create(context.Background(), "u-"+uuid.NewString(), "hash")
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestAccountLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, st)

	acc, err := st.Accounts().Create(ctx, owner.ID, mustDec(t, "100.00"))
	if err != nil {
		t.Fatal(err)
	}
	if acc.Version != 1 {
		t.Fatalf("new account version = %d, want 1", acc.Version)
	}
	if !acc.Balance.Equal(mustDec(t, "100.00")) {
		t.Fatalf("new account balance = %s, want 100.00", acc.Balance)
	}

	got, err := st.Accounts().Get(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != owner.ID {
		t.Fatalf("owner = %s, want %s", got.UserID, owner.ID)
	}

	if _, err := st.Accounts().Get(ctx, uuid.New()); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := st.Accounts().Create(ctx, uuid.New(), mustDec(t, "1")); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown owner, got %v", err)
	}
	if _, err := st.Accounts().Create(ctx, owner.ID, mustDec(t, "1.00005")); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for sub-scale balance, got %v", err)
	}
}

func TestApplyDeltaClassification(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, st)

	acc, err := st.Accounts().Create(ctx, owner.ID, mustDec(t, "10.00"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := st.Accounts().ApplyDelta(ctx, uuid.New(), mustDec(t, "1"), 1); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("unknown account: got %v", err)
	}
	if _, err := st.Accounts().ApplyDelta(ctx, acc.ID, mustDec(t, "1"), 42); !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("stale version: got %v", err)
	}
	if _, err := st.Accounts().ApplyDelta(ctx, acc.ID, mustDec(t, "-10.01"), 1); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("overdraw: got %v", err)
	}

	updated, err := st.Accounts().ApplyDelta(ctx, acc.ID, mustDec(t, "-10.00"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0", updated.Balance)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}
}

func TestInTxRollsBackAllEffects(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, st)

	from, err := st.Accounts().Create(ctx, owner.ID, mustDec(t, "100.00"))
	if err != nil {
		t.Fatal(err)
	}
	to, err := st.Accounts().Create(ctx, owner.ID, mustDec(t, "0"))
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err = st.InTx(ctx, func(s domain.Stores) error {
		if _, err := s.Accounts.ApplyDelta(ctx, from.ID, mustDec(t, "-30.00"), 1); err != nil {
			return err
		}
		if _, err := s.Accounts.ApplyDelta(ctx, to.ID, mustDec(t, "30.00"), 1); err != nil {
			return err
		}
		if _, err := s.Transactions.Append(ctx, from.ID, to.ID, mustDec(t, "30.00")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	cur, err := st.Accounts().Get(ctx, from.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cur.Balance.Equal(mustDec(t, "100.00")) || cur.Version != 1 {
		t.Fatalf("rollback left balance=%s version=%d", cur.Balance, cur.Version)
	}

	txs, err := st.Transactions().ListForAccounts(ctx, []uuid.UUID{from.ID, to.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Fatalf("rollback left %d transactions", len(txs))
	}
}

func TestTransferConservationUnderLoad(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, st)

	const n = 16
	amount := mustDec(t, "5.00")

	// Covers exactly n-1 transfers.
	from, err := st.Accounts().Create(ctx, owner.ID, amount.Mul(decimal.NewFromInt(n-1)))
	if err != nil {
		t.Fatal(err)
	}
	to, err := st.Accounts().Create(ctx, owner.ID, mustDec(t, "0"))
	if err != nil {
		t.Fatal(err)
	}

	coord := ledger.NewCoordinator(st, quietLogger())

	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, errs[i] = coord.Transfer(ctx, owner.ID, from.ID, to.ID, amount, "")
		}()
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientFunds),
			errors.Is(err, domain.ErrPersistence):
			// Either the funds ran out or the retry budget did; both
			// leave state untouched for that attempt.
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded+rejected != n {
		t.Fatalf("accounted for %d of %d transfers", succeeded+rejected, n)
	}

	fromAfter, err := st.Accounts().Get(ctx, from.ID)
	if err != nil {
		t.Fatal(err)
	}
	toAfter, err := st.Accounts().Get(ctx, to.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Conservation: the pair total never changes, no balance goes negative.
	total := fromAfter.Balance.Add(toAfter.Balance)
	want := amount.Mul(decimal.NewFromInt(n - 1))
	if !total.Equal(want) {
		t.Fatalf("pair total = %s, want %s", total, want)
	}
	if fromAfter.Balance.IsNegative() {
		t.Fatalf("source balance went negative: %s", fromAfter.Balance)
	}

	// Every success is backed by exactly one log entry.
	moved := amount.Mul(decimal.NewFromInt(int64(succeeded)))
	if !toAfter.Balance.Equal(moved) {
		t.Fatalf("destination balance = %s, want %s for %d successes", toAfter.Balance, moved, succeeded)
	}
	txs, err := st.Transactions().ListForAccounts(ctx, []uuid.UUID{from.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != succeeded {
		t.Fatalf("log has %d entries, want %d", len(txs), succeeded)
	}
}

func TestIdempotentTransferAgainstDB(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, st)

	from, err := st.Accounts().Create(ctx, owner.ID, mustDec(t, "100.00"))
	if err != nil {
		t.Fatal(err)
	}
	to, err := st.Accounts().Create(ctx, owner.ID, mustDec(t, "0"))
	if err != nil {
		t.Fatal(err)
	}

	coord := ledger.NewCoordinator(st, quietLogger())
	key := "idem-" + uuid.NewString()

	tx1, err := coord.Transfer(ctx, owner.ID, from.ID, to.ID, mustDec(t, "25.00"), key)
	if err != nil {
		t.Fatal(err)
	}
	tx2, err := coord.Transfer(ctx, owner.ID, from.ID, to.ID, mustDec(t, "25.00"), key)
	if err != nil {
		t.Fatal(err)
	}
	if tx1.ID != tx2.ID {
		t.Fatalf("expected same tx id for idempotent call, got %s vs %s", tx1.ID, tx2.ID)
	}

	if _, err := coord.Transfer(ctx, owner.ID, from.ID, to.ID, mustDec(t, "26.00"), key); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}

	cur, err := st.Accounts().Get(ctx, from.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cur.Balance.Equal(mustDec(t, "75.00")) {
		t.Fatalf("balance = %s, want 75.00 after single effective transfer", cur.Balance)
	}
}

func TestUserStoreAgainstDB(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	name := "u-" + uuid.NewString()
	u, err := st.Users().Create(ctx, name, "hash")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := st.Users().Create(ctx, name, "other"); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	got, err := st.Users().FindByUsername(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Fatalf("FindByUsername returned %s, want %s", got.ID, u.ID)
	}

	if _, err := st.Users().FindByID(ctx, uuid.New()); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
