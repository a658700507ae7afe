package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/ksuid"

	"photokeeper/internal/models"
)

var ErrQuarantineNotFound = errors.New("quarantine record not found")

type QuarantineRepository struct {
	pool *pgxpool.Pool
}

func NewQuarantineRepository(pool *pgxpool.Pool) *QuarantineRepository {
	return &QuarantineRepository{pool: pool}
}

// Add records a quarantined orphan. Re-quarantining the same original key
// keeps the earlier record so the retention clock never resets forward.
func (r *QuarantineRepository) Add(ctx context.Context, originalKey, quarantineKey string, canDeleteAt time.Time) (models.QuarantineRecord, error) {
	const insert = `
		INSERT INTO quarantine (id, original_key, quarantine_key, quarantined_at, can_delete_at)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (original_key) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, ksuid.New().String(), originalKey, quarantineKey, canDeleteAt); err != nil {
		return models.QuarantineRecord{}, err
	}
	return r.GetByOriginalKey(ctx, originalKey)
}

func (r *QuarantineRepository) GetByOriginalKey(ctx context.Context, originalKey string) (models.QuarantineRecord, error) {
	const query = `
		SELECT id, original_key, quarantine_key, quarantined_at, can_delete_at
		FROM quarantine WHERE original_key = $1
	`

	row := r.pool.QueryRow(ctx, query, originalKey)
	var rec models.QuarantineRecord
	if err := row.Scan(
		&rec.ID,
		&rec.OriginalKey,
		&rec.QuarantineKey,
		&rec.QuarantinedAt,
		&rec.CanDeleteAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QuarantineRecord{}, ErrQuarantineNotFound
		}
		return models.QuarantineRecord{}, err
	}
	return rec, nil
}

// All lists quarantine records oldest-first, due or not. Reconciliation
// re-checks every record for a reappeared reference on each pass, so a
// late-landing metadata row gets its blob back right away.
func (r *QuarantineRepository) All(ctx context.Context, limit int) ([]models.QuarantineRecord, error) {
	const query = `
		SELECT id, original_key, quarantine_key, quarantined_at, can_delete_at
		FROM quarantine
		ORDER BY quarantined_at
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.QuarantineRecord
	for rows.Next() {
		var rec models.QuarantineRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.OriginalKey,
			&rec.QuarantineKey,
			&rec.QuarantinedAt,
			&rec.CanDeleteAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Due lists quarantined orphans whose retention window has elapsed.
func (r *QuarantineRepository) Due(ctx context.Context, now time.Time, limit int) ([]models.QuarantineRecord, error) {
	const query = `
		SELECT id, original_key, quarantine_key, quarantined_at, can_delete_at
		FROM quarantine
		WHERE can_delete_at <= $1
		ORDER BY can_delete_at
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.QuarantineRecord
	for rows.Next() {
		var rec models.QuarantineRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.OriginalKey,
			&rec.QuarantineKey,
			&rec.QuarantinedAt,
			&rec.CanDeleteAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *QuarantineRepository) Remove(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM quarantine WHERE id = $1`, id)
	return err
}
