package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lookbook/api/gate"
	"lookbook/api/models"
	"lookbook/api/store"
	"lookbook/api/utils"
)

type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type MoodboardRepository interface {
	ListMoodboards(ctx context.Context, publishedOnly bool) ([]models.Moodboard, error)
	GetMoodboard(ctx context.Context, id string) (*models.Moodboard, error)
	CreateMoodboard(ctx context.Context, m *models.Moodboard, productIDs []string) error
	DeleteMoodboard(ctx context.Context, id string) error
}

type CatalogHandlers struct {
	Products   ProductRepository
	Moodboards MoodboardRepository
	Retailers  RetailerRepository
}

func NewCatalogHandlers(products ProductRepository, moodboards MoodboardRepository, retailers RetailerRepository) *CatalogHandlers {
	return &CatalogHandlers{Products: products, Moodboards: moodboards, Retailers: retailers}
}

func (h *CatalogHandlers) ListProducts(c *gin.Context) {
	var f models.ProductFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	products, err := h.Products.ListProducts(ctx, f)
	if err != nil {
		log.Error().Err(err).Msg("error listing products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve products"})
		return
	}
	c.JSON(http.StatusOK, products)
}

// GetProduct hides inactive products from the public catalog.
func (h *CatalogHandlers) GetProduct(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	p, err := h.Products.GetProduct(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && !p.IsActive) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("product_id", c.Param("id")).Msg("error loading product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve product"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *CatalogHandlers) ListMoodboards(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	boards, err := h.Moodboards.ListMoodboards(ctx, true)
	if err != nil {
		log.Error().Err(err).Msg("error listing moodboards")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve moodboards"})
		return
	}
	c.JSON(http.StatusOK, boards)
}

func (h *CatalogHandlers) GetMoodboard(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	m, err := h.Moodboards.GetMoodboard(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && !m.IsPublished) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Moodboard not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("moodboard_id", c.Param("id")).Msg("error loading moodboard")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve moodboard"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// CreateProduct and UpdateProduct only accept affiliate URLs the redirect
// gate would follow, so the catalog cannot hold a link that always fails.
func (h *CatalogHandlers) CreateProduct(c *gin.Context) {
	var in models.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = newID("prod")
	}
	h.saveProduct(c, id, in, true)
}

func (h *CatalogHandlers) UpdateProduct(c *gin.Context) {
	var in models.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	h.saveProduct(c, c.Param("id"), in, false)
}

func (h *CatalogHandlers) saveProduct(c *gin.Context, id string, in models.ProductInput, create bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	retailers, err := h.Retailers.ListActiveRetailers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("error loading trusted retailers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load trusted retailers"})
		return
	}
	retailer, err := gate.NewWhitelist(retailers).Match(in.AffiliateURL)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Affiliate URL rejected", "details": err.Error()})
		return
	}

	p := productFromInput(id, in)
	p.Retailer = retailer.Name

	if create {
		err = h.Products.CreateProduct(ctx, p)
	} else {
		err = h.Products.UpdateProduct(ctx, p)
	}
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "A product with this id or slug already exists"})
		return
	default:
		log.Error().Err(err).Str("product_id", id).Msg("error saving product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save product"})
		return
	}

	status := http.StatusOK
	if create {
		status = http.StatusCreated
	}
	c.JSON(status, p)
}

func productFromInput(id string, in models.ProductInput) *models.Product {
	name := utils.StripTags(in.Name)
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	slug := utils.Slugify(name)
	if slug == "" {
		slug = utils.Slugify(id)
	}

	return &models.Product{
		ID:           id,
		Slug:         slug,
		Name:         name,
		Brand:        utils.StripTags(in.Brand),
		Category:     utils.StripTags(in.Category),
		PriceCents:   in.PriceCents,
		Currency:     currency,
		Description:  utils.SanitizeDescription(in.Description),
		ImageURL:     strings.TrimSpace(in.ImageURL),
		AffiliateURL: strings.TrimSpace(in.AffiliateURL),
		IsActive:     active,
	}
}

func (h *CatalogHandlers) DeleteProduct(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	if err := h.Products.DeleteProduct(ctx, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		log.Error().Err(err).Str("product_id", c.Param("id")).Msg("error deleting product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CatalogHandlers) CreateMoodboard(c *gin.Context) {
	var in models.MoodboardInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = newID("mb")
	}
	title := utils.StripTags(in.Title)
	m := &models.Moodboard{
		ID:            id,
		Slug:          utils.Slugify(title),
		Title:         title,
		Description:   utils.SanitizeDescription(in.Description),
		CoverImageURL: strings.TrimSpace(in.CoverImageURL),
		IsPublished:   in.IsPublished,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	err := h.Moodboards.CreateMoodboard(ctx, m, in.ProductIDs)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, m)
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Moodboard references an unknown product"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "A moodboard with this id already exists"})
	default:
		log.Error().Err(err).Str("moodboard_id", id).Msg("error creating moodboard")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create moodboard"})
	}
}

func (h *CatalogHandlers) DeleteMoodboard(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	if err := h.Moodboards.DeleteMoodboard(ctx, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Moodboard not found"})
			return
		}
		log.Error().Err(err).Str("moodboard_id", c.Param("id")).Msg("error deleting moodboard")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete moodboard"})
		return
	}
	c.Status(http.StatusNoContent)
}

// newID returns prefix_ followed by 12 hex characters.
func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
