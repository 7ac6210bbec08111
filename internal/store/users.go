package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"bank-ledger/internal/domain"
)

type userStore struct {
	q querier
}

const userCols = `id, username, password_hash, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+userCols,
		uuid.New(), username, passwordHash,
	)
	u, err := scanUser(row)
	if err != nil {
		if isPgErrCode(err, pgUniqueViolation) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, persistErr(err)
	}
	return u, nil
}

func (s *userStore) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, persistErr(err)
	}
	return u, nil
}

func (s *userStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := s.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, persistErr(err)
	}
	return u, nil
}
