package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the fractional precision of every stored monetary value,
// matching the NUMERIC(20,4) columns at rest.
const MoneyScale = 4

// HasMoneyScale reports whether d fits the stored precision exactly.
// Finer inputs are rejected rather than rounded: rounding a debit and a
// credit independently could mint or destroy money.
func HasMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// User owns zero or more accounts. Password material never leaves the auth
// layer; everything below it works with the user id only.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Account is the only contended resource in the system. Balance is a
// fixed-point decimal (NUMERIC at rest) and is never negative outside an
// in-flight transfer. Version increments on every balance mutation and is
// the optimistic-concurrency token checked by ApplyDelta.
type Account struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Balance        decimal.Decimal
	InitialBalance decimal.Decimal
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is an immutable ledger entry recording one committed transfer.
// It is created atomically with the two balance mutations it represents.
type Transaction struct {
	ID            uuid.UUID
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
	CreatedAt     time.Time
}
