package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantleap/funnelsight/internal/models"
)

// PostgresNameCacheRepo implements NameCacheRepo using PostgreSQL.
type PostgresNameCacheRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresNameCacheRepo(pool *pgxpool.Pool) *PostgresNameCacheRepo {
	return &PostgresNameCacheRepo{pool: pool}
}

func (r *PostgresNameCacheRepo) Get(ctx context.Context, objectID string) (*models.NameCacheEntry, error) {
	var e models.NameCacheEntry
	err := r.pool.QueryRow(ctx, `
		SELECT object_id, object_type, name, parent_id
		FROM ad_object_names WHERE object_id = $1
	`, objectID).Scan(&e.ObjectID, &e.ObjectType, &e.Name, &e.ParentID)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get name cache entry: %w", err)
	}
	return &e, nil
}

func (r *PostgresNameCacheRepo) ListAll(ctx context.Context) ([]*models.NameCacheEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT object_id, object_type, name, parent_id
		FROM ad_object_names
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list name cache: %w", err)
	}
	defer rows.Close()

	var entries []*models.NameCacheEntry
	for rows.Next() {
		var e models.NameCacheEntry
		if err := rows.Scan(&e.ObjectID, &e.ObjectType, &e.Name, &e.ParentID); err != nil {
			return nil, fmt.Errorf("failed to scan name cache entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *PostgresNameCacheRepo) Upsert(ctx context.Context, entry *models.NameCacheEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ad_object_names (object_id, object_type, name, parent_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (object_id) DO UPDATE SET
			object_type = EXCLUDED.object_type,
			name = EXCLUDED.name,
			parent_id = EXCLUDED.parent_id
	`, entry.ObjectID, entry.ObjectType, entry.Name, entry.ParentID)
	if err != nil {
		return fmt.Errorf("failed to upsert name cache entry: %w", err)
	}
	return nil
}
