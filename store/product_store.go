package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"lookbook/api/models"
)

const (
	defaultListLimit = 24
	maxListLimit     = 100
)

type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

const productColumns = `id, slug, name, brand, category, price_cents, currency, description,
	image_url, affiliate_url, retailer, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Brand, &p.Category, &p.PriceCents, &p.Currency, &p.Description,
		&p.ImageURL, &p.AffiliateURL, &p.Retailer, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProductStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ListProducts returns active products matching f. Search text, category and
// brand are always bound as parameters.
func (s *ProductStore) ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, error) {
	query, args := buildProductListQuery(f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

func buildProductListQuery(f models.ProductFilter) (string, []any) {
	var (
		where = []string{"is_active = TRUE"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		where = append(where, fmt.Sprintf("(name ILIKE %s OR brand ILIKE %s OR category ILIKE %s OR description ILIKE %s)", p, p, p, p))
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		where = append(where, "lower(category) = lower("+arg(c)+")")
	}
	if b := strings.TrimSpace(f.Brand); b != "" {
		where = append(where, "lower(brand) = lower("+arg(b)+")")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id ASC LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)
	return query, args
}

// escapeLike makes %, _ and \ match literally in an ILIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *ProductStore) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, slug, name, brand, category, price_cents, currency, description,
			image_url, affiliate_url, retailer, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.Slug, p.Name, p.Brand, p.Category, p.PriceCents, p.Currency, p.Description,
		p.ImageURL, p.AffiliateURL, p.Retailer, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return fmt.Errorf("product %q: %w", p.ID, ErrConflict)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *ProductStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products SET slug = $2, name = $3, brand = $4, category = $5, price_cents = $6,
			currency = $7, description = $8, image_url = $9, affiliate_url = $10, retailer = $11,
			is_active = $12, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.Slug, p.Name, p.Brand, p.Category, p.PriceCents, p.Currency, p.Description,
		p.ImageURL, p.AffiliateURL, p.Retailer, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %q: %w", p.ID, ErrNotFound)
	}
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return fmt.Errorf("product slug %q: %w", p.Slug, ErrConflict)
		}
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// DeleteProduct removes the catalog row. Analytics events that reference it are kept.
func (s *ProductStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %q: %w", id, ErrNotFound)
	}
	return nil
}

// ProductCategories maps each existing product id to its category.
func (s *ProductStore) ProductCategories(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, category FROM products WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query product categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, category string
		if err := rows.Scan(&id, &category); err != nil {
			return nil, fmt.Errorf("failed to scan product category: %w", err)
		}
		out[id] = category
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product categories: %w", err)
	}
	return out, nil
}
