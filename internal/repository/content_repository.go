package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"photokeeper/internal/identity"
	"photokeeper/internal/models"
)

var ErrContentNotFound = errors.New("content item not found")

type ContentRepository struct {
	pool *pgxpool.Pool
}

func NewContentRepository(pool *pgxpool.Pool) *ContentRepository {
	return &ContentRepository{pool: pool}
}

func (r *ContentRepository) Create(ctx context.Context, item models.ContentItem) error {
	const query = `
		INSERT INTO content_items (
			id, owner_identity, format, size_bytes, public, has_thumbnail, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		item.ID,
		item.Owner,
		item.Format,
		item.SizeBytes,
		item.Public,
		item.HasThumbnail,
		item.Status,
	)
	return err
}

func (r *ContentRepository) Get(ctx context.Context, id identity.ContentID) (models.ContentItem, error) {
	const query = `
		SELECT id, owner_identity, format, size_bytes, public, has_thumbnail, status, created_at, updated_at
		FROM content_items WHERE id = $1
	`

	row := r.pool.QueryRow(ctx, query, id)
	var item models.ContentItem
	if err := row.Scan(
		&item.ID,
		&item.Owner,
		&item.Format,
		&item.SizeBytes,
		&item.Public,
		&item.HasThumbnail,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ContentItem{}, ErrContentNotFound
		}
		return models.ContentItem{}, err
	}
	return item, nil
}

func (r *ContentRepository) Exists(ctx context.Context, id identity.ContentID) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM content_items WHERE id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ContentRepository) OwnedIDs(ctx context.Context, owner identity.Identity) ([]identity.ContentID, error) {
	const query = `
		SELECT id FROM content_items
		WHERE owner_identity = $1 AND status = 'active'
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []identity.ContentID
	for rows.Next() {
		var id identity.ContentID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Remove deletes the metadata row. Only the collector calls this, after the
// physical bytes are gone.
func (r *ContentRepository) Remove(ctx context.Context, id identity.ContentID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM content_items WHERE id = $1`, id)
	return err
}
