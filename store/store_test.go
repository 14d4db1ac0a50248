package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook/api/database"
	"lookbook/api/models"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off`, escapeLike("50% off"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, escapeLike(`c:\dir`))
}

func TestBuildProductListQuery_BindsUserInput(t *testing.T) {
	hostile := "'; DROP TABLE products; --"
	query, args := buildProductListQuery(models.ProductFilter{
		Query:    hostile,
		Category: hostile,
		Brand:    "Totême",
		Limit:    500,
		Offset:   -3,
	})

	assert.NotContains(t, query, "DROP TABLE")
	assert.NotContains(t, query, "Totême")
	assert.Contains(t, query, "name ILIKE $1")
	assert.Contains(t, query, "lower(category) = lower($2)")
	assert.Contains(t, query, "lower(brand) = lower($3)")
	assert.Contains(t, query, "LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{"%" + hostile + "%", hostile, "Totême", maxListLimit, 0}, args)
}

func TestBuildProductListQuery_Defaults(t *testing.T) {
	query, args := buildProductListQuery(models.ProductFilter{})
	assert.Contains(t, query, "WHERE is_active = TRUE ORDER BY")
	assert.Equal(t, []any{defaultListLimit, 0}, args)
}

func TestIsPQCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &pq.Error{Code: pqUniqueViolation})
	assert.True(t, isPQCode(err, pqUniqueViolation))
	assert.False(t, isPQCode(err, pqForeignKeyViolation))
	assert.False(t, isPQCode(errors.New("plain"), pqUniqueViolation))
}

// Integration tests run against a real Postgres when LOOKBOOK_TEST_DATABASE_URL is set.
func openTestDB(t *testing.T) *database.DBClient {
	t.Helper()
	url := os.Getenv("LOOKBOOK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LOOKBOOK_TEST_DATABASE_URL not set")
	}
	client, err := database.NewPostgresDB(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(client.DB))
	t.Cleanup(client.Close)
	return client
}

func TestProductStore_Integration(t *testing.T) {
	client := openTestDB(t)
	ctx := context.Background()
	s := NewProductStore(client.DB)

	id := fmt.Sprintf("prod_it_%d", time.Now().UnixNano())
	p := &models.Product{
		ID: id, Slug: id, Name: "Wool Coat", Brand: "Toteme", Category: "Outerwear",
		PriceCents: 89000, Currency: "USD", AffiliateURL: "https://ssense.com/x", IsActive: true,
	}
	require.NoError(t, s.CreateProduct(ctx, p))
	t.Cleanup(func() { _ = s.DeleteProduct(ctx, id) })

	assert.ErrorIs(t, s.CreateProduct(ctx, p), ErrConflict)

	got, err := s.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Outerwear", got.Category)

	cats, err := s.ProductCategories(ctx, []string{id, "prod_missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{id: "Outerwear"}, cats)

	_, err = s.GetProduct(ctx, "prod_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetailerStore_Integration(t *testing.T) {
	client := openTestDB(t)
	ctx := context.Background()
	s := NewRetailerStore(client.DB)

	active, err := s.ListActiveRetailers(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, active, "defaults are seeded by the initial migration")

	domain := fmt.Sprintf("it-%d.example", time.Now().UnixNano())
	require.NoError(t, s.AddRetailer(ctx, &models.TrustedRetailer{Domain: domain, Name: "IT", Category: models.RetailerMarketplace, IsActive: true}))
	t.Cleanup(func() { _ = s.DeleteRetailer(ctx, domain) })

	r, err := s.SetRetailerActive(ctx, domain, false)
	require.NoError(t, err)
	assert.False(t, r.IsActive)

	_, err = s.SetRetailerActive(ctx, "missing.example", true)
	assert.ErrorIs(t, err, ErrNotFound)
}
