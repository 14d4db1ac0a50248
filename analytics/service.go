// Package analytics computes dashboard aggregates over the stored event log.
// Every result is computed at read time and cached briefly; nothing is
// materialised on write.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"lookbook/api/cache"
	"lookbook/api/models"
	"lookbook/api/utils"
)

const (
	UnknownCategory = "Unknown"

	DefaultProductLimit  = 20
	DefaultActivityLimit = 50
	MaxLimit             = 200

	topReferrerCount = 10
)

// EventReader is the read side of the event store. All windows are half-open [from, to).
type EventReader interface {
	Totals(ctx context.Context, from, to time.Time) (models.EventTotals, error)
	DailyCounts(ctx context.Context, from, to time.Time) ([]models.DailyCounts, error)
	AffiliateClicksByProduct(ctx context.Context, from, to time.Time) ([]models.ProductCount, error)
	UserSplit(ctx context.Context, from, to time.Time) (total, returning uint64, err error)
	ReferrerCounts(ctx context.Context, from, to time.Time) ([]models.LabelCount, error)
	DeviceCounts(ctx context.Context, from, to time.Time) ([]models.LabelCount, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]models.ProductStats, error)
	ProductStats(ctx context.Context, productID string, from, to time.Time) (models.ProductStats, error)
	ProductDailyCounts(ctx context.Context, productID string, from, to time.Time) ([]models.DailyCounts, error)
	MoodboardStats(ctx context.Context, from, to time.Time, limit int) ([]models.MoodboardStats, error)
	RecentEvents(ctx context.Context, limit int) ([]models.AnalyticsEvent, error)
}

// CategoryLookup resolves product ids to catalog categories. Ids with no
// product are simply absent from the result.
type CategoryLookup interface {
	ProductCategories(ctx context.Context, ids []string) (map[string]string, error)
}

type Service struct {
	events     EventReader
	categories CategoryLookup
	cache      cache.Cacher
	ttl        time.Duration
	now        func() time.Time
}

func NewService(events EventReader, categories CategoryLookup, c cache.Cacher, ttl time.Duration) *Service {
	return &Service{
		events:     events,
		categories: categories,
		cache:      c,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (s *Service) Overview(ctx context.Context, tr TimeRange) (models.Overview, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Key("overview", tr.Label), s.ttl, func(ctx context.Context) (models.Overview, error) {
		now := s.now()
		t, err := s.events.Totals(ctx, tr.Since(now), now)
		if err != nil {
			return models.Overview{}, fmt.Errorf("overview totals: %w", err)
		}
		return models.Overview{
			TimeRange:       tr.Label,
			Visitors:        t.Visitors,
			TotalEvents:     t.TotalEvents,
			PageViews:       t.PageViews,
			ProductViews:    t.ProductViews,
			MoodboardViews:  t.MoodboardViews,
			Searches:        t.Searches,
			Favorites:       t.FavoriteAdds,
			AffiliateClicks: t.AffiliateClicks,
			ClickThroughPct: percent(t.AffiliateClicks, t.ProductViews),
		}, nil
	})
}

// TimeSeries returns one row per UTC day, oldest first. Days without events
// are present as zero rows.
func (s *Service) TimeSeries(ctx context.Context, tr TimeRange) ([]models.TimeSeriesPoint, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Key("timeseries", tr.Label), s.ttl, func(ctx context.Context) ([]models.TimeSeriesPoint, error) {
		now := s.now()
		days := tr.CalendarDays(now)
		rows, err := s.events.DailyCounts(ctx, days[0], now)
		if err != nil {
			return nil, fmt.Errorf("daily counts: %w", err)
		}
		return fillDays(days, rows), nil
	})
}

func fillDays(days []time.Time, rows []models.DailyCounts) []models.TimeSeriesPoint {
	byDay := make(map[string]models.DailyCounts, len(rows))
	for _, r := range rows {
		byDay[r.Date.UTC().Format(time.DateOnly)] = r
	}

	points := make([]models.TimeSeriesPoint, 0, len(days))
	for _, d := range days {
		key := d.Format(time.DateOnly)
		counts := byDay[key]
		counts.Date = d
		points = append(points, models.TimeSeriesPoint{Date: key, DailyCounts: counts})
	}
	return points
}

// CategoryDistribution groups affiliate clicks by the clicked product's
// category. Clicks on products that no longer exist count as "Unknown".
func (s *Service) CategoryDistribution(ctx context.Context, tr TimeRange) ([]models.CategoryShare, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Key("categories", tr.Label), s.ttl, func(ctx context.Context) ([]models.CategoryShare, error) {
		now := s.now()
		clicks, err := s.events.AffiliateClicksByProduct(ctx, tr.Since(now), now)
		if err != nil {
			return nil, fmt.Errorf("affiliate clicks by product: %w", err)
		}
		if len(clicks) == 0 {
			return []models.CategoryShare{}, nil
		}

		ids := make([]string, 0, len(clicks))
		for _, c := range clicks {
			if c.ProductID != "" {
				ids = append(ids, c.ProductID)
			}
		}
		categories, err := s.categories.ProductCategories(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve product categories: %w", err)
		}

		return shareByCategory(clicks, categories), nil
	})
}

func shareByCategory(clicks []models.ProductCount, categories map[string]string) []models.CategoryShare {
	counts := map[string]uint64{}
	var total uint64
	for _, c := range clicks {
		cat, ok := categories[c.ProductID]
		if !ok || cat == "" {
			cat = UnknownCategory
		}
		counts[cat] += c.Count
		total += c.Count
	}

	out := make([]models.CategoryShare, 0, len(counts))
	for cat, n := range counts {
		out = append(out, models.CategoryShare{Category: cat, Count: n, Percentage: percent(n, total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Funnel stages, in order.
const (
	StageVisitors        = "Visitors"
	StageProductViews    = "Product Views"
	StageFavorites       = "Favorites"
	StageAffiliateClicks = "Affiliate Clicks"
)

func (s *Service) Funnel(ctx context.Context, tr TimeRange) ([]models.FunnelStage, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Key("funnel", tr.Label), s.ttl, func(ctx context.Context) ([]models.FunnelStage, error) {
		now := s.now()
		t, err := s.events.Totals(ctx, tr.Since(now), now)
		if err != nil {
			return nil, fmt.Errorf("funnel totals: %w", err)
		}
		return buildFunnel([]string{StageVisitors, StageProductViews, StageFavorites, StageAffiliateClicks},
			[]uint64{t.Visitors, t.ProductViews, t.FavoriteAdds, t.AffiliateClicks}), nil
	})
}

// buildFunnel computes stage-to-stage conversion. The first stage is always
// 100% converted with no drop-off.
func buildFunnel(names []string, counts []uint64) []models.FunnelStage {
	stages := make([]models.FunnelStage, len(names))
	for i, name := range names {
		stage := models.FunnelStage{Stage: name, Count: counts[i]}
		if i == 0 {
			stage.ConversionRate = 100
			stage.DropOffRate = 0
		} else {
			stage.ConversionRate = percent(counts[i], counts[i-1])
			stage.DropOffRate = round1(100 - stage.ConversionRate)
		}
		stages[i] = stage
	}
	return stages
}

// Trend metric names.
const (
	MetricViews     = "Views"
	MetricClicks    = "Clicks"
	MetricFavorites = "Favorites"
	MetricVisitors  = "Visitors"
)

// Trends compares [now-N, now) with [now-2N, now-N).
func (s *Service) Trends(ctx context.Context, tr TimeRange) ([]models.TrendMetric, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Key("trends", tr.Label), s.ttl, func(ctx context.Context) ([]models.TrendMetric, error) {
		now := s.now()
		cur, err := s.events.Totals(ctx, tr.Since(now), now)
		if err != nil {
			return nil, fmt.Errorf("current window totals: %w", err)
		}
		prevFrom, prevTo := tr.PreviousWindow(now)
		prev, err := s.events.Totals(ctx, prevFrom, prevTo)
		if err != nil {
			return nil, fmt.Errorf("previous window totals: %w", err)
		}

		return []models.TrendMetric{
			compare(MetricViews, cur.ProductViews, prev.ProductViews),
			compare(MetricClicks, cur.AffiliateClicks, prev.AffiliateClicks),
			compare(MetricFavorites, cur.FavoriteAdds, prev.FavoriteAdds),
			compare(MetricVisitors, cur.Visitors, prev.Visitors),
		}, nil
	})
}

// compare leaves ChangePercentage nil when previous is zero.
func compare(metric string, current, previous uint64) models.TrendMetric {
	change := int64(current) - int64(previous)
	m := models.TrendMetric{
		Metric:   metric,
		Current:  current,
		Previous: previous,
		Change:   change,
		Trend:    models.TrendFlat,
	}
	if previous > 0 {
		pct := round1(float64(change) / float64(previous) * 100)
		m.ChangePercentage = &pct
	}
	switch {
	case change > 0:
		m.Trend = models.TrendUp
	case change < 0:
		m.Trend = models.TrendDown
	}
	return m
}

// UserBehavior classifies a window's visitors as new or returning by their
// first stored event. Users whose earlier history has aged out of the event
// store are counted as new.
func (s *Service) UserBehavior(ctx context.Context, tr TimeRange) (models.UserBehavior, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Key("users", tr.Label), s.ttl, func(ctx context.Context) (models.UserBehavior, error) {
		now := s.now()
		from := tr.Since(now)

		total, returning, err := s.events.UserSplit(ctx, from, now)
		if err != nil {
			return models.UserBehavior{}, fmt.Errorf("user split: %w", err)
		}
		referrers, err := s.events.ReferrerCounts(ctx, from, now)
		if err != nil {
			return models.UserBehavior{}, fmt.Errorf("referrers: %w", err)
		}
		devices, err := s.events.DeviceCounts(ctx, from, now)
		if err != nil {
			return models.UserBehavior{}, fmt.Errorf("devices: %w", err)
		}
		if returning > total {
			returning = total
		}

		return models.UserBehavior{
			TimeRange:      tr.Label,
			TotalUsers:     total,
			NewUsers:       total - returning,
			ReturningUsers: returning,
			ReturningPct:   percent(returning, total),
			TopReferrers:   mergeReferrers(referrers, topReferrerCount),
			Devices:        nonNil(devices),
		}, nil
	})
}

// mergeReferrers folds raw referrer URLs into hosts and keeps the top n.
func mergeReferrers(raw []models.LabelCount, n int) []models.LabelCount {
	byHost := map[string]uint64{}
	for _, r := range raw {
		byHost[utils.ReferrerHost(r.Label)] += r.Count
	}

	out := make([]models.LabelCount, 0, len(byHost))
	for host, count := range byHost {
		out = append(out, models.LabelCount{Label: host, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *Service) TopProducts(ctx context.Context, tr TimeRange, limit int) ([]models.ProductStats, error) {
	limit = clampLimit(limit, DefaultProductLimit)
	key := cache.Key("products", tr.Label, strconv.Itoa(limit))
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.ProductStats, error) {
		now := s.now()
		stats, err := s.events.TopProducts(ctx, tr.Since(now), now, limit)
		if err != nil {
			return nil, fmt.Errorf("top products: %w", err)
		}
		for i := range stats {
			stats[i].ClickThroughPct = percent(stats[i].Clicks, stats[i].Views)
		}
		return nonNil(stats), nil
	})
}

func (s *Service) ProductDetail(ctx context.Context, productID string, tr TimeRange) (models.ProductDetail, error) {
	key := cache.Key("product", productID, tr.Label)
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl, func(ctx context.Context) (models.ProductDetail, error) {
		now := s.now()
		days := tr.CalendarDays(now)

		stats, err := s.events.ProductStats(ctx, productID, tr.Since(now), now)
		if err != nil {
			return models.ProductDetail{}, fmt.Errorf("product stats: %w", err)
		}
		stats.ProductID = productID
		stats.ClickThroughPct = percent(stats.Clicks, stats.Views)

		daily, err := s.events.ProductDailyCounts(ctx, productID, days[0], now)
		if err != nil {
			return models.ProductDetail{}, fmt.Errorf("product daily counts: %w", err)
		}

		categories, err := s.categories.ProductCategories(ctx, []string{productID})
		if err != nil {
			return models.ProductDetail{}, fmt.Errorf("resolve product category: %w", err)
		}
		category, ok := categories[productID]
		if !ok {
			category = UnknownCategory
		}

		return models.ProductDetail{
			ProductStats: stats,
			TimeRange:    tr.Label,
			Category:     category,
			Daily:        fillDays(days, daily),
		}, nil
	})
}

func (s *Service) Moodboards(ctx context.Context, tr TimeRange, limit int) ([]models.MoodboardStats, error) {
	limit = clampLimit(limit, DefaultProductLimit)
	key := cache.Key("moodboards", tr.Label, strconv.Itoa(limit))
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.MoodboardStats, error) {
		now := s.now()
		stats, err := s.events.MoodboardStats(ctx, tr.Since(now), now, limit)
		if err != nil {
			return nil, fmt.Errorf("moodboard stats: %w", err)
		}
		return nonNil(stats), nil
	})
}

// RecentActivity returns the newest events with metadata decoded per event type.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]models.ActivityItem, error) {
	limit = clampLimit(limit, DefaultActivityLimit)
	key := cache.Key("recent", strconv.Itoa(limit))
	events, err := cache.GetOrLoad(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.AnalyticsEvent, error) {
		events, err := s.events.RecentEvents(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("recent events: %w", err)
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}

	items := make([]models.ActivityItem, 0, len(events))
	for _, ev := range events {
		item := models.ActivityItem{AnalyticsEvent: ev}
		if details, err := models.DecodeMetadata(ev.EventType, ev.Metadata); err == nil {
			item.Details = details
		}
		items = append(items, item)
	}
	return items, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// percent is part/whole*100 rounded to one decimal; zero when whole is zero.
func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return round1(float64(part) / float64(whole) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
