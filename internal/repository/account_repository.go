package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"photokeeper/internal/identity"
	"photokeeper/internal/models"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Ensure creates the lifecycle row for an identity on first contact.
func (r *AccountRepository) Ensure(ctx context.Context, id identity.Identity) error {
	const query = `
		INSERT INTO account_lifecycle (identity, status, status_changed_at)
		VALUES ($1, 'active', NOW())
		ON CONFLICT (identity) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *AccountRepository) Get(ctx context.Context, id identity.Identity) (models.AccountRecord, error) {
	const query = `
		SELECT identity, status, status_changed_at, grace_deadline
		FROM account_lifecycle WHERE identity = $1
	`

	row := r.pool.QueryRow(ctx, query, id)
	var rec models.AccountRecord
	if err := row.Scan(
		&rec.Identity,
		&rec.Status,
		&rec.StatusChangedAt,
		&rec.GraceDeadline,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AccountRecord{}, ErrAccountNotFound
		}
		return models.AccountRecord{}, err
	}
	return rec, nil
}

// Transition moves the account from one status to another with an
// optimistic guard on the current status, so concurrent transitions
// collide as ErrConflict instead of silently overwriting each other.
func (r *AccountRepository) Transition(ctx context.Context, id identity.Identity, from, to models.AccountStatus, grace *time.Time) error {
	const query = `
		UPDATE account_lifecycle
		SET status = $3, status_changed_at = NOW(), grace_deadline = $4
		WHERE identity = $1 AND status = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, from, to, grace)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}
