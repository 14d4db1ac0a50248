package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"lookbook/api/models"
)

type MoodboardStore struct {
	db *sql.DB
}

func NewMoodboardStore(db *sql.DB) *MoodboardStore {
	return &MoodboardStore{db: db}
}

const moodboardColumns = `id, slug, title, description, cover_image_url, is_published, created_at, updated_at`

func scanMoodboard(row rowScanner) (*models.Moodboard, error) {
	m := &models.Moodboard{}
	err := row.Scan(&m.ID, &m.Slug, &m.Title, &m.Description, &m.CoverImageURL, &m.IsPublished, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMoodboards returns moodboards newest first, without their products.
func (s *MoodboardStore) ListMoodboards(ctx context.Context, publishedOnly bool) ([]models.Moodboard, error) {
	query := `SELECT ` + moodboardColumns + ` FROM moodboards WHERE ($1 = FALSE OR is_published) ORDER BY created_at DESC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list moodboards: %w", err)
	}
	defer rows.Close()

	boards := []models.Moodboard{}
	for rows.Next() {
		m, err := scanMoodboard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan moodboard: %w", err)
		}
		boards = append(boards, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moodboards: %w", err)
	}
	return boards, nil
}

// GetMoodboard returns the moodboard with its products in curated order.
func (s *MoodboardStore) GetMoodboard(ctx context.Context, id string) (*models.Moodboard, error) {
	m, err := scanMoodboard(s.db.QueryRowContext(ctx, `SELECT `+moodboardColumns+` FROM moodboards WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("moodboard %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get moodboard: %w", err)
	}

	query := `
		SELECT p.id, p.slug, p.name, p.brand, p.category, p.price_cents, p.currency, p.description,
			p.image_url, p.affiliate_url, p.retailer, p.is_active, p.created_at, p.updated_at
		FROM moodboard_products mp
		JOIN products p ON p.id = mp.product_id
		WHERE mp.moodboard_id = $1
		ORDER BY mp.position ASC
	`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load moodboard products: %w", err)
	}
	defer rows.Close()

	m.Products = []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan moodboard product: %w", err)
		}
		m.Products = append(m.Products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moodboard products: %w", err)
	}
	return m, nil
}

// CreateMoodboard inserts the moodboard and its product list in one transaction.
// productIDs order becomes the display order.
func (s *MoodboardStore) CreateMoodboard(ctx context.Context, m *models.Moodboard, productIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO moodboards (id, slug, title, description, cover_image_url, is_published)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, m.ID, m.Slug, m.Title, m.Description, m.CoverImageURL, m.IsPublished).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return fmt.Errorf("moodboard %q: %w", m.ID, ErrConflict)
		}
		return fmt.Errorf("failed to create moodboard: %w", err)
	}

	if len(productIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO moodboard_products (moodboard_id, product_id, position)
			SELECT $1, ids.product_id, ids.ord - 1
			FROM unnest($2::text[]) WITH ORDINALITY AS ids(product_id, ord)
			ON CONFLICT DO NOTHING
		`, m.ID, pq.Array(productIDs))
		if err != nil {
			if isPQCode(err, pqForeignKeyViolation) {
				return fmt.Errorf("moodboard references an unknown product: %w", ErrNotFound)
			}
			return fmt.Errorf("failed to attach moodboard products: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit moodboard: %w", err)
	}
	return nil
}

func (s *MoodboardStore) DeleteMoodboard(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM moodboards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete moodboard: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("moodboard %q: %w", id, ErrNotFound)
	}
	return nil
}
