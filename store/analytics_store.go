package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lookbook/api/database"
	"lookbook/api/models"
)

// AnalyticsStore reads and writes the ClickHouse event log. Every value that
// varies per request is a bound parameter; event type names in the SQL text
// are fixed literals.
type AnalyticsStore struct {
	DB *database.ClickHouseClient
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{
		DB: chClient,
	}
}

// InsertAnalyticsEvents writes the batch in a single block; it either all lands or none does.
func (s *AnalyticsStore) InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			id, user_id, event_type, resource_type, resource_id, resource_name,
			product_id, moodboard_id, metadata, session_id, ip_address, user_agent,
			browser, os, device, referrer, url, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, e := range events {
		err := batch.Append(
			e.ID,
			e.UserID,
			string(e.EventType),
			string(e.ResourceType),
			e.ResourceID,
			e.ResourceName,
			e.ProductID,
			e.MoodboardID,
			string(e.Metadata),
			e.SessionID,
			e.IPAddress,
			e.UserAgent,
			e.Browser,
			e.OS,
			e.Device,
			e.Referrer,
			e.URL,
			e.CreatedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append event %s: %w", e.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Debug().Int("events", len(events)).Msg("inserted analytics events")
	return nil
}

func (s *AnalyticsStore) Totals(ctx context.Context, from, to time.Time) (models.EventTotals, error) {
	const query = `
		SELECT
			uniqExact(user_id),
			count(),
			countIf(event_type = 'page_view'),
			countIf(event_type = 'product_view'),
			countIf(event_type = 'moodboard_view'),
			countIf(event_type = 'search'),
			countIf(event_type = 'favorite_add'),
			countIf(event_type = 'favorite_remove'),
			countIf(event_type = 'affiliate_click')
		FROM analytics_events
		WHERE created_at >= ? AND created_at < ?
	`
	var t models.EventTotals
	err := s.DB.Conn.QueryRow(ctx, query, from, to).Scan(
		&t.Visitors,
		&t.TotalEvents,
		&t.PageViews,
		&t.ProductViews,
		&t.MoodboardViews,
		&t.Searches,
		&t.FavoriteAdds,
		&t.FavoriteRemoves,
		&t.AffiliateClicks,
	)
	if err != nil {
		return models.EventTotals{}, fmt.Errorf("failed to query event totals: %w", err)
	}
	return t, nil
}

const dailyCountsSelect = `
	SELECT
		toDate(created_at) AS day,
		countIf(event_type = 'product_view'),
		countIf(event_type = 'affiliate_click'),
		countIf(event_type = 'search'),
		countIf(event_type = 'favorite_add'),
		uniqExact(user_id)
	FROM analytics_events
`

func (s *AnalyticsStore) DailyCounts(ctx context.Context, from, to time.Time) ([]models.DailyCounts, error) {
	query := dailyCountsSelect + `
		WHERE created_at >= ? AND created_at < ?
		GROUP BY day
		ORDER BY day ASC
	`
	return s.queryDailyCounts(ctx, query, from, to)
}

func (s *AnalyticsStore) ProductDailyCounts(ctx context.Context, productID string, from, to time.Time) ([]models.DailyCounts, error) {
	query := dailyCountsSelect + `
		WHERE product_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY day
		ORDER BY day ASC
	`
	return s.queryDailyCounts(ctx, query, productID, from, to)
}

func (s *AnalyticsStore) queryDailyCounts(ctx context.Context, query string, args ...any) ([]models.DailyCounts, error) {
	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer rows.Close()

	var results []models.DailyCounts
	for rows.Next() {
		var d models.DailyCounts
		if err := rows.Scan(&d.Date, &d.ProductViews, &d.Clicks, &d.Searches, &d.Favorites, &d.ActiveUsers); err != nil {
			return nil, fmt.Errorf("failed to scan daily counts: %w", err)
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during daily counts query: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) AffiliateClicksByProduct(ctx context.Context, from, to time.Time) ([]models.ProductCount, error) {
	const query = `
		SELECT product_id, count() AS clicks
		FROM analytics_events
		WHERE event_type = 'affiliate_click' AND created_at >= ? AND created_at < ?
		GROUP BY product_id
		ORDER BY clicks DESC
	`
	rows, err := s.DB.Conn.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query affiliate clicks by product: %w", err)
	}
	defer rows.Close()

	var results []models.ProductCount
	for rows.Next() {
		var pc models.ProductCount
		if err := rows.Scan(&pc.ProductID, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan affiliate clicks: %w", err)
		}
		results = append(results, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating affiliate clicks: %w", err)
	}
	return results, nil
}

// UserSplit counts the window's distinct users and how many of them had an
// event before the window started.
func (s *AnalyticsStore) UserSplit(ctx context.Context, from, to time.Time) (uint64, uint64, error) {
	const query = `
		SELECT count(), countIf(first_seen < ?)
		FROM (
			SELECT user_id, min(created_at) AS first_seen
			FROM analytics_events
			WHERE user_id IN (
				SELECT DISTINCT user_id
				FROM analytics_events
				WHERE created_at >= ? AND created_at < ?
			)
			GROUP BY user_id
		)
	`
	var total, returning uint64
	if err := s.DB.Conn.QueryRow(ctx, query, from, from, to).Scan(&total, &returning); err != nil {
		return 0, 0, fmt.Errorf("failed to query user split: %w", err)
	}
	return total, returning, nil
}

// ReferrerCounts returns raw referrer URLs with page view counts.
func (s *AnalyticsStore) ReferrerCounts(ctx context.Context, from, to time.Time) ([]models.LabelCount, error) {
	const query = `
		SELECT referrer, count() AS views
		FROM analytics_events
		WHERE event_type = 'page_view' AND created_at >= ? AND created_at < ?
		GROUP BY referrer
		ORDER BY views DESC
		LIMIT 500
	`
	return s.queryLabelCounts(ctx, "referrers", query, from, to)
}

func (s *AnalyticsStore) DeviceCounts(ctx context.Context, from, to time.Time) ([]models.LabelCount, error) {
	const query = `
		SELECT if(device = '', 'unknown', device) AS d, uniqExact(user_id) AS users
		FROM analytics_events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY d
		ORDER BY users DESC, d ASC
	`
	return s.queryLabelCounts(ctx, "devices", query, from, to)
}

func (s *AnalyticsStore) queryLabelCounts(ctx context.Context, what, query string, args ...any) ([]models.LabelCount, error) {
	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	var results []models.LabelCount
	for rows.Next() {
		var lc models.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		results = append(results, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}
	return results, nil
}

const productStatsSelect = `
	SELECT
		product_id,
		anyIf(resource_name, resource_name != ''),
		countIf(event_type = 'product_view') AS views,
		uniqExactIf(user_id, event_type = 'product_view'),
		countIf(event_type = 'affiliate_click') AS clicks,
		countIf(event_type = 'favorite_add')
	FROM analytics_events
`

func (s *AnalyticsStore) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]models.ProductStats, error) {
	query := productStatsSelect + `
		WHERE product_id != '' AND created_at >= ? AND created_at < ?
		GROUP BY product_id
		ORDER BY views DESC, clicks DESC, product_id ASC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, from, to, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	defer rows.Close()

	var results []models.ProductStats
	for rows.Next() {
		var p models.ProductStats
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Views, &p.UniqueViewers, &p.Clicks, &p.Favorites); err != nil {
			return nil, fmt.Errorf("failed to scan product stats: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product stats: %w", err)
	}
	return results, nil
}

// ProductStats returns zero counts for a product with no events.
func (s *AnalyticsStore) ProductStats(ctx context.Context, productID string, from, to time.Time) (models.ProductStats, error) {
	query := productStatsSelect + `
		WHERE product_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY product_id
	`
	p := models.ProductStats{ProductID: productID}
	rows, err := s.DB.Conn.Query(ctx, query, productID, from, to)
	if err != nil {
		return p, fmt.Errorf("failed to query product stats: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Views, &p.UniqueViewers, &p.Clicks, &p.Favorites); err != nil {
			return p, fmt.Errorf("failed to scan product stats: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return p, fmt.Errorf("error reading product stats: %w", err)
	}
	return p, nil
}

func (s *AnalyticsStore) MoodboardStats(ctx context.Context, from, to time.Time, limit int) ([]models.MoodboardStats, error) {
	const query = `
		SELECT
			moodboard_id,
			anyIf(resource_name, event_type = 'moodboard_view' AND resource_name != ''),
			countIf(event_type = 'moodboard_view') AS views,
			uniqExactIf(user_id, event_type = 'moodboard_view'),
			countIf(event_type = 'moodboard_filter'),
			countIf(event_type = 'moodboard_product_click')
		FROM analytics_events
		WHERE moodboard_id != '' AND created_at >= ? AND created_at < ?
		GROUP BY moodboard_id
		ORDER BY views DESC, moodboard_id ASC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, from, to, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query moodboard stats: %w", err)
	}
	defer rows.Close()

	var results []models.MoodboardStats
	for rows.Next() {
		var m models.MoodboardStats
		if err := rows.Scan(&m.MoodboardID, &m.MoodboardName, &m.Views, &m.UniqueViewers, &m.FilterUses, &m.ProductClicks); err != nil {
			return nil, fmt.Errorf("failed to scan moodboard stats: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moodboard stats: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) RecentEvents(ctx context.Context, limit int) ([]models.AnalyticsEvent, error) {
	const query = `
		SELECT
			id, user_id, event_type, resource_type, resource_id, resource_name,
			product_id, moodboard_id, metadata, session_id, ip_address, user_agent,
			browser, os, device, referrer, url, created_at
		FROM analytics_events
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var results []models.AnalyticsEvent
	for rows.Next() {
		var (
			e                       models.AnalyticsEvent
			eventType, resourceType string
			metadata                string
		)
		err := rows.Scan(
			&e.ID, &e.UserID, &eventType, &resourceType, &e.ResourceID, &e.ResourceName,
			&e.ProductID, &e.MoodboardID, &metadata, &e.SessionID, &e.IPAddress, &e.UserAgent,
			&e.Browser, &e.OS, &e.Device, &e.Referrer, &e.URL, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent event: %w", err)
		}
		e.EventType = models.EventType(eventType)
		e.ResourceType = models.ResourceType(resourceType)
		if metadata != "" {
			e.Metadata = []byte(metadata)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent events: %w", err)
	}
	return results, nil
}
