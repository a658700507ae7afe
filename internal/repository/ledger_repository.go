package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/ksuid"

	"photokeeper/internal/identity"
	"photokeeper/internal/models"
)

var (
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")

	// ErrConflict signals a lost optimistic-lock race on a status-guarded
	// transition. Expected under concurrent collectors, not a bug.
	ErrConflict = errors.New("ledger transition conflict")
)

const ledgerColumns = `id, content_id, status, reason, attempts, last_error, next_retry_at, requested_at, updated_at`

type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// RequestDelete records deletion intent for a content item. Idempotent: a
// live entry (pending, purging or failed) already covering the item is
// returned as-is; the partial unique index on content_id guarantees at most
// one such entry even when callers race.
func (r *LedgerRepository) RequestDelete(ctx context.Context, contentID identity.ContentID, reason models.DeletionReason) (models.DeletionRecord, error) {
	if existing, err := r.LiveByContentID(ctx, contentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrLedgerEntryNotFound) {
		return models.DeletionRecord{}, err
	}

	const insert = `
		INSERT INTO deletion_ledger (id, content_id, status, reason, requested_at, updated_at)
		VALUES ($1, $2, 'pending', $3, NOW(), NOW())
		ON CONFLICT (content_id) WHERE status IN ('pending', 'purging', 'failed') DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, ksuid.New().String(), contentID, reason); err != nil {
		return models.DeletionRecord{}, err
	}

	// A concurrent insert may have won; either way the live entry is ours
	// to return.
	return r.LiveByContentID(ctx, contentID)
}

func (r *LedgerRepository) LiveByContentID(ctx context.Context, contentID identity.ContentID) (models.DeletionRecord, error) {
	const query = `
		SELECT ` + ledgerColumns + `
		FROM deletion_ledger
		WHERE content_id = $1 AND status IN ('pending', 'purging', 'failed')
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, contentID))
}

// HasEntry reports whether any ledger entry exists for the content item,
// terminal or not. Read paths use this as the visibility check: once an
// entry exists the item is invisible.
func (r *LedgerRepository) HasEntry(ctx context.Context, contentID identity.ContentID) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM deletion_ledger WHERE content_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, contentID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MarkPurging claims a pending entry for purging. The status guard makes
// this the sole concurrency control between collector workers: exactly one
// claimant sees a row update, everyone else gets ErrConflict.
func (r *LedgerRepository) MarkPurging(ctx context.Context, id string) error {
	return r.guardedUpdate(ctx, `
		UPDATE deletion_ledger
		SET status = 'purging', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
}

func (r *LedgerRepository) MarkPurged(ctx context.Context, id string) error {
	return r.guardedUpdate(ctx, `
		UPDATE deletion_ledger
		SET status = 'purged', updated_at = NOW()
		WHERE id = $1 AND status = 'purging'
	`, id)
}

// MarkFailed records a failed purge attempt. A nil nextRetryAt means the
// retry budget is exhausted and the entry waits for review.
func (r *LedgerRepository) MarkFailed(ctx context.Context, id string, lastError string, nextRetryAt *time.Time) error {
	const query = `
		UPDATE deletion_ledger
		SET status = 'failed', attempts = attempts + 1, last_error = $2,
		    next_retry_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'purging'
	`
	tag, err := r.pool.Exec(ctx, query, id, lastError, nextRetryAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RequeueDueFailed re-enters failed entries whose backoff deadline passed
// back into pending, so the next sweep picks them up.
func (r *LedgerRepository) RequeueDueFailed(ctx context.Context, limit int) (int, error) {
	const query = `
		UPDATE deletion_ledger
		SET status = 'pending', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM deletion_ledger
			WHERE status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= NOW()
			ORDER BY next_retry_at
			LIMIT $1
		)
	`
	tag, err := r.pool.Exec(ctx, query, limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *LedgerRepository) DuePending(ctx context.Context, limit int) ([]models.DeletionRecord, error) {
	const query = `
		SELECT ` + ledgerColumns + `
		FROM deletion_ledger
		WHERE status = 'pending'
		ORDER BY requested_at
		LIMIT $1
	`
	return r.scanMany(ctx, query, limit)
}

// Escalated lists entries that exhausted their retry budget. Nothing
// removes them automatically; they are surfaced for operator review.
func (r *LedgerRepository) Escalated(ctx context.Context, limit int) ([]models.DeletionRecord, error) {
	const query = `
		SELECT ` + ledgerColumns + `
		FROM deletion_ledger
		WHERE status = 'failed' AND next_retry_at IS NULL
		ORDER BY updated_at
		LIMIT $1
	`
	return r.scanMany(ctx, query, limit)
}

func (r *LedgerRepository) guardedUpdate(ctx context.Context, query, id string) error {
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *LedgerRepository) scanOne(row pgx.Row) (models.DeletionRecord, error) {
	var rec models.DeletionRecord
	if err := row.Scan(
		&rec.ID,
		&rec.ContentID,
		&rec.Status,
		&rec.Reason,
		&rec.Attempts,
		&rec.LastError,
		&rec.NextRetryAt,
		&rec.RequestedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DeletionRecord{}, ErrLedgerEntryNotFound
		}
		return models.DeletionRecord{}, err
	}
	return rec, nil
}

func (r *LedgerRepository) scanMany(ctx context.Context, query string, args ...any) ([]models.DeletionRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DeletionRecord
	for rows.Next() {
		var rec models.DeletionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.ContentID,
			&rec.Status,
			&rec.Reason,
			&rec.Attempts,
			&rec.LastError,
			&rec.NextRetryAt,
			&rec.RequestedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
