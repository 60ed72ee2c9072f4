package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearth-cms/hearth/internal/platform/db"
)

// PGRepository implements Repository on PostgreSQL. Images live in a jsonb
// array column.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const itemColumns = `id, owner_id, title, content, COALESCE(category, ''), images, is_deleted, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var (
		item   Item
		images []byte
	)
	err := row.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Content, &item.Category, &images, &item.Deleted, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &item.Images); err != nil {
			return Item{}, fmt.Errorf("gallery: decode images of %d: %w", item.ID, err)
		}
	}
	return item, nil
}

func encodeImages(images []string) ([]byte, error) {
	if images == nil {
		images = []string{}
	}
	return json.Marshal(images)
}

func nullableCategory(category string) *string {
	if category == "" {
		return nil
	}
	return &category
}

func (r *PGRepository) FindItem(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM gallery_items WHERE id = $1`, id))
}

func (r *PGRepository) InsertItem(ctx context.Context, item *Item) error {
	images, err := encodeImages(item.Images)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, `INSERT INTO gallery_items (owner_id, title, content, category, images)
VALUES ($1, $2, $3, $4, $5::jsonb)
RETURNING id, created_at, updated_at`,
		item.OwnerID, item.Title, item.Content, nullableCategory(item.Category), images,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("gallery: insert item: %w", err)
	}
	return nil
}

func (r *PGRepository) SaveItem(ctx context.Context, id int64, mutate func(*Item) error) (Item, error) {
	var saved Item
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		item, err := scanItem(tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM gallery_items WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := mutate(&item); err != nil {
			return err
		}
		images, err := encodeImages(item.Images)
		if err != nil {
			return err
		}
		saved, err = scanItem(tx.QueryRow(ctx, `UPDATE gallery_items
SET title = $2, content = $3, category = $4, images = $5::jsonb, updated_at = NOW()
WHERE id = $1
RETURNING `+itemColumns,
			id, item.Title, item.Content, nullableCategory(item.Category), images))
		return err
	})
	if err != nil {
		return Item{}, err
	}
	return saved, nil
}

func (r *PGRepository) SoftDeleteItem(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE gallery_items SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return false, fmt.Errorf("gallery: delete item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) ListItems(ctx context.Context, limit int) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM gallery_items WHERE NOT is_deleted ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("gallery: list items: %w", err)
	}
	defer rows.Close()
	out := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
