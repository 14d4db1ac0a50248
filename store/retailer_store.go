package store

import (
	"context"
	"database/sql"
	"fmt"

	"lookbook/api/models"
)

// RetailerStore manages the trusted retailer whitelist. Domains are stored normalised.
type RetailerStore struct {
	db *sql.DB
}

func NewRetailerStore(db *sql.DB) *RetailerStore {
	return &RetailerStore{db: db}
}

func (s *RetailerStore) ListRetailers(ctx context.Context) ([]models.TrustedRetailer, error) {
	return s.list(ctx, `SELECT domain, name, category, is_active, added_at FROM trusted_retailers ORDER BY domain`)
}

func (s *RetailerStore) ListActiveRetailers(ctx context.Context) ([]models.TrustedRetailer, error) {
	return s.list(ctx, `SELECT domain, name, category, is_active, added_at FROM trusted_retailers WHERE is_active ORDER BY domain`)
}

func (s *RetailerStore) list(ctx context.Context, query string) ([]models.TrustedRetailer, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list retailers: %w", err)
	}
	defer rows.Close()

	retailers := []models.TrustedRetailer{}
	for rows.Next() {
		var r models.TrustedRetailer
		if err := rows.Scan(&r.Domain, &r.Name, &r.Category, &r.IsActive, &r.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan retailer: %w", err)
		}
		retailers = append(retailers, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retailers: %w", err)
	}
	return retailers, nil
}

// AddRetailer inserts r. An existing domain returns ErrConflict.
func (s *RetailerStore) AddRetailer(ctx context.Context, r *models.TrustedRetailer) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO trusted_retailers (domain, name, category, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING added_at
	`, r.Domain, r.Name, r.Category, r.IsActive).Scan(&r.AddedAt)
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return fmt.Errorf("retailer %q: %w", r.Domain, ErrConflict)
		}
		return fmt.Errorf("failed to add retailer: %w", err)
	}
	return nil
}

func (s *RetailerStore) SetRetailerActive(ctx context.Context, domain string, active bool) (*models.TrustedRetailer, error) {
	r := &models.TrustedRetailer{}
	err := s.db.QueryRowContext(ctx, `
		UPDATE trusted_retailers SET is_active = $2 WHERE domain = $1
		RETURNING domain, name, category, is_active, added_at
	`, domain, active).Scan(&r.Domain, &r.Name, &r.Category, &r.IsActive, &r.AddedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("retailer %q: %w", domain, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update retailer: %w", err)
	}
	return r, nil
}

func (s *RetailerStore) DeleteRetailer(ctx context.Context, domain string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trusted_retailers WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("failed to delete retailer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("retailer %q: %w", domain, ErrNotFound)
	}
	return nil
}
