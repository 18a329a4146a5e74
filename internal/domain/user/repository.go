package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository defines user data access interface
type Repository interface {
	// EnsureUser creates the account on first sight and returns the stored
	// row. Existing accounts are only read.
	EnsureUser(ctx context.Context, id, email, displayName string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	UpdateRole(ctx context.Context, id string, role Role) (*User, error)
	UpdateSuspension(ctx context.Context, id string, suspended bool, reason string) (*User, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new user repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const selectColumns = `id, email, display_name, credit_balance, role, is_suspended, suspension_reason, created_at, updated_at`

func (r *repository) EnsureUser(ctx context.Context, id, email, displayName string) (*User, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	u, err := r.GetByID(ctx, id)
	if err != nil || u != nil {
		return u, err
	}

	var created User
	err = r.db.GetContext(ctx, &created, `
		INSERT INTO users (id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
		RETURNING `+selectColumns, id, email, displayName)
	if errors.Is(err, sql.ErrNoRows) {
		// created by a concurrent request
		u, err = r.GetByID(ctx, id)
		if err == nil && u == nil {
			err = ErrUserNotFound
		}
		return u, err
	}
	if err != nil {
		return nil, fmt.Errorf("user repository ensure: %w", err)
	}
	return &created, nil
}

// GetByID returns nil, nil when the user is absent.
func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u User
	err := r.db.GetContext(ctx, &u, `SELECT `+selectColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("user repository get: %w", err)
	}
	return &u, nil
}

func (r *repository) UpdateRole(ctx context.Context, id string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("user repository update role: unknown role %q", role)
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u User
	err := r.db.GetContext(ctx, &u, `
		UPDATE users SET role = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+selectColumns, id, role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user repository update role: %w", err)
	}
	return &u, nil
}

func (r *repository) UpdateSuspension(ctx context.Context, id string, suspended bool, reason string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var reasonArg sql.NullString
	if suspended && reason != "" {
		reasonArg = sql.NullString{String: reason, Valid: true}
	}

	var u User
	err := r.db.GetContext(ctx, &u, `
		UPDATE users SET is_suspended = $2, suspension_reason = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+selectColumns, id, suspended, reasonArg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user repository update suspension: %w", err)
	}
	return &u, nil
}
