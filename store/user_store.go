package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"lookbook/api/models"
)

// UserStore persists back-office admins.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore instance.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateAdmin inserts an admin. A taken email returns ErrConflict.
func (s *UserStore) CreateAdmin(ctx context.Context, email string, hashedPassword []byte) (*models.Admin, error) {
	admin := &models.Admin{}
	query := `
		INSERT INTO admins (email, hashed_password)
		VALUES ($1, $2)
		RETURNING id, email, created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query, normalizeEmail(email), hashedPassword).Scan(
		&admin.ID,
		&admin.Email,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	)
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return nil, fmt.Errorf("admin %q: %w", email, ErrConflict)
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	log.Info().Int("admin_id", admin.ID).Str("email", admin.Email).Msg("admin created")
	return admin, nil
}

func (s *UserStore) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	admin := &models.Admin{}
	query := `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM admins
		WHERE lower(email) = $1;
	`
	err := s.db.QueryRowContext(ctx, query, normalizeEmail(email)).Scan(
		&admin.ID,
		&admin.Email,
		&admin.HashedPassword,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin %q: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get admin by email: %w", err)
	}

	return admin, nil
}

// EnsureAdmin creates the admin unless one with that email already exists.
func (s *UserStore) EnsureAdmin(ctx context.Context, email string, hashedPassword []byte) error {
	_, err := s.CreateAdmin(ctx, email, hashedPassword)
	if err == nil || errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
