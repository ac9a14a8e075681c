package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertUserSQL = `INSERT INTO users (name, email, password_hash, role)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
	RETURNING id`

// UserStore covers the account writes the seed tool needs. Authentication
// itself is token-based and does not read this table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore returns a UserStore that uses the given pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Upsert creates or updates an account by email and returns its ID.
func (s *UserStore) Upsert(ctx context.Context, name, email, passwordHash, role string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertUserSQL, name, email, passwordHash, role).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "upserting user %q", email)
	}
	return id, nil
}
