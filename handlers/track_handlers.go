// api/handlers/track_handlers.go
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"lookbook/api/analytics"
	"lookbook/api/ingest"
)

const (
	maxTrackBody = 1 << 20
	readTimeout  = 10 * time.Second
	writeTimeout = 15 * time.Second
)

type AnalyticsHandlers struct {
	Ingest    *ingest.Service
	Analytics *analytics.Service
}

func NewAnalyticsHandlers(ingestSvc *ingest.Service, analyticsSvc *analytics.Service) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		Ingest:    ingestSvc,
		Analytics: analyticsSvc,
	}
}

// TrackEvent accepts one event object or an array of them. The client IP and
// User-Agent always come from the request, never from the body.
func (h *AnalyticsHandlers) TrackEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTrackBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	raws, err := ingest.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), writeTimeout)
	defer cancel()

	rc := ingest.RequestContext{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	}
	inserted, err := h.Ingest.Ingest(ctx, raws, rc)

	var persistErr *ingest.PersistError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "inserted": inserted})
	case errors.Is(err, ingest.ErrNoEvents):
		c.JSON(http.StatusOK, gin.H{"success": true, "inserted": 0})
	case errors.As(err, &persistErr):
		log.Error().Err(err).Int("events", len(raws)).Msg("error inserting analytics events into ClickHouse")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to record analytics events"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	}
}

// timeRange reads ?timeRange=, writing a 400 when it is not 7d, 30d or 90d.
func timeRange(c *gin.Context) (analytics.TimeRange, bool) {
	tr, err := analytics.ParseTimeRange(c.Query("timeRange"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return analytics.TimeRange{}, false
	}
	return tr, true
}

// queryLimit reads ?limit=. Absent means 0, which the service replaces with its default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
		return 0, false
	}
	return n, true
}

func respond[T any](c *gin.Context, what string, v T, err error) {
	if err != nil {
		log.Error().Err(err).Str("aggregate", what).Msg("analytics query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve " + what})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *AnalyticsHandlers) GetOverview(c *gin.Context) {
	tr, ok := timeRange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	overview, err := h.Analytics.Overview(ctx, tr)
	respond(c, "overview statistics", overview, err)
}

func (h *AnalyticsHandlers) GetUserBehavior(c *gin.Context) {
	tr, ok := timeRange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	behavior, err := h.Analytics.UserBehavior(ctx, tr)
	respond(c, "user statistics", behavior, err)
}

func (h *AnalyticsHandlers) GetTopProducts(c *gin.Context) {
	tr, ok := timeRange(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	products, err := h.Analytics.TopProducts(ctx, tr, limit)
	respond(c, "product statistics", products, err)
}

func (h *AnalyticsHandlers) GetProductDetail(c *gin.Context) {
	productID := c.Param("productId")
	tr, ok := timeRange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	detail, err := h.Analytics.ProductDetail(ctx, productID, tr)
	respond(c, "product statistics", detail, err)
}

func (h *AnalyticsHandlers) GetMoodboards(c *gin.Context) {
	tr, ok := timeRange(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	boards, err := h.Analytics.Moodboards(ctx, tr, limit)
	respond(c, "moodboard statistics", boards, err)
}

func (h *AnalyticsHandlers) GetRecentActivity(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	items, err := h.Analytics.RecentActivity(ctx, limit)
	respond(c, "recent activity", items, err)
}

func (h *AnalyticsHandlers) GetTimeSeries(c *gin.Context) {
	tr, ok := timeRange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	points, err := h.Analytics.TimeSeries(ctx, tr)
	respond(c, "time series", points, err)
}

func (h *AnalyticsHandlers) GetCategories(c *gin.Context) {
	tr, ok := timeRange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	shares, err := h.Analytics.CategoryDistribution(ctx, tr)
	respond(c, "category distribution", shares, err)
}

func (h *AnalyticsHandlers) GetFunnel(c *gin.Context) {
	tr, ok := timeRange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	stages, err := h.Analytics.Funnel(ctx, tr)
	respond(c, "funnel", stages, err)
}

func (h *AnalyticsHandlers) GetTrends(c *gin.Context) {
	tr, ok := timeRange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	trends, err := h.Analytics.Trends(ctx, tr)
	respond(c, "trends", trends, err)
}
