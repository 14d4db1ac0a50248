package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"lookbook/api/gate"
	"lookbook/api/middleware"
	"lookbook/api/models"
	"lookbook/api/store"
	"lookbook/api/utils"
)

type RetailerRepository interface {
	ListRetailers(ctx context.Context) ([]models.TrustedRetailer, error)
	ListActiveRetailers(ctx context.Context) ([]models.TrustedRetailer, error)
	AddRetailer(ctx context.Context, r *models.TrustedRetailer) error
	SetRetailerActive(ctx context.Context, domain string, active bool) (*models.TrustedRetailer, error)
	DeleteRetailer(ctx context.Context, domain string) error
}

type RetailerHandlers struct {
	Retailers RetailerRepository
}

func NewRetailerHandlers(r RetailerRepository) *RetailerHandlers {
	return &RetailerHandlers{Retailers: r}
}

func (h *RetailerHandlers) ListRetailers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	retailers, err := h.Retailers.ListRetailers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("error listing retailers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve retailers"})
		return
	}
	c.JSON(http.StatusOK, retailers)
}

func (h *RetailerHandlers) AddRetailer(c *gin.Context) {
	var in models.RetailerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	domain := gate.NormalizeDomain(in.Domain)
	if domain == "" || !strings.Contains(domain, ".") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain"})
		return
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	r := &models.TrustedRetailer{
		Domain:   domain,
		Name:     utils.StripTags(in.Name),
		Category: in.Category,
		IsActive: active,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	if err := h.Retailers.AddRetailer(ctx, r); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "Retailer already exists"})
			return
		}
		log.Error().Err(err).Str("domain", domain).Msg("error adding retailer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add retailer"})
		return
	}

	log.Info().Str("domain", domain).Str("admin", c.GetString(middleware.ContextAdminEmail)).Msg("trusted retailer added")
	c.JSON(http.StatusCreated, r)
}

// ToggleRetailer activates or deactivates a domain. The gate reads the list on
// every redirect, so the change applies to the next request.
func (h *RetailerHandlers) ToggleRetailer(c *gin.Context) {
	var req models.RetailerToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	domain := gate.NormalizeDomain(c.Param("domain"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	r, err := h.Retailers.SetRetailerActive(ctx, domain, *req.IsActive)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Retailer not found"})
			return
		}
		log.Error().Err(err).Str("domain", domain).Msg("error updating retailer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update retailer"})
		return
	}

	log.Info().Str("domain", domain).Bool("active", r.IsActive).Msg("trusted retailer toggled")
	c.JSON(http.StatusOK, r)
}

func (h *RetailerHandlers) DeleteRetailer(c *gin.Context) {
	domain := gate.NormalizeDomain(c.Param("domain"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	if err := h.Retailers.DeleteRetailer(ctx, domain); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Retailer not found"})
			return
		}
		log.Error().Err(err).Str("domain", domain).Msg("error deleting retailer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete retailer"})
		return
	}
	c.Status(http.StatusNoContent)
}

// TestURL reports whether url would pass the redirect gate's whitelist.
func (h *RetailerHandlers) TestURL(c *gin.Context) {
	var req models.URLTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	retailers, err := h.Retailers.ListActiveRetailers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("error loading trusted retailers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load trusted retailers"})
		return
	}

	r, err := gate.NewWhitelist(retailers).Match(req.URL)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"url": req.URL, "valid": false, "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": req.URL, "valid": true, "retailer": r})
}
