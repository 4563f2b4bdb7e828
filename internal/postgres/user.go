package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"settlement/internal/domain/auth"
)

const (
	getUserByIDSQL    = `SELECT id, email, name, role FROM users WHERE id = $1`
	getUserByEmailSQL = `SELECT id, email, name, role FROM users WHERE email = $1`
)

var _ auth.Repository = (*UserRepository)(nil)

// UserRepository implements auth.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	rows, err := from(ctx, r.pool).Query(ctx, getUserByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return collectUser(rows, id)
}

// FindByEmail returns the user registered under the given email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	rows, err := from(ctx, r.pool).Query(ctx, getUserByEmailSQL, email)
	if err != nil {
		return nil, fmt.Errorf("finding user by email %q: %w", email, err)
	}
	return collectUser(rows, email)
}

func collectUser(rows pgx.Rows, key string) (*auth.User, error) {
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", key, err)
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role)
	u.Role = auth.Role(role)
	return u, err
}
