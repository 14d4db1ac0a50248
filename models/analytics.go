// models/analytics.go
package models

import "time"

// EventTotals are scalar counts over one time window.
type EventTotals struct {
	Visitors        uint64 `json:"visitors"`
	TotalEvents     uint64 `json:"totalEvents"`
	PageViews       uint64 `json:"pageViews"`
	ProductViews    uint64 `json:"productViews"`
	MoodboardViews  uint64 `json:"moodboardViews"`
	Searches        uint64 `json:"searches"`
	FavoriteAdds    uint64 `json:"favoriteAdds"`
	FavoriteRemoves uint64 `json:"favoriteRemoves"`
	AffiliateClicks uint64 `json:"affiliateClicks"`
}

type Overview struct {
	TimeRange       string  `json:"timeRange"`
	Visitors        uint64  `json:"visitors"`
	TotalEvents     uint64  `json:"totalEvents"`
	PageViews       uint64  `json:"pageViews"`
	ProductViews    uint64  `json:"productViews"`
	MoodboardViews  uint64  `json:"moodboardViews"`
	Searches        uint64  `json:"searches"`
	Favorites       uint64  `json:"favorites"`
	AffiliateClicks uint64  `json:"affiliateClicks"`
	ClickThroughPct float64 `json:"clickThroughRate"`
}

// DailyCounts is one calendar day of activity.
type DailyCounts struct {
	Date         time.Time `json:"-"`
	ProductViews uint64    `json:"productViews"`
	Clicks       uint64    `json:"clicks"`
	Searches     uint64    `json:"searches"`
	Favorites    uint64    `json:"favorites"`
	ActiveUsers  uint64    `json:"activeUsers"`
}

type TimeSeriesPoint struct {
	Date string `json:"date"`
	DailyCounts
}

type ProductCount struct {
	ProductID string `json:"productId"`
	Count     uint64 `json:"count"`
}

type CategoryShare struct {
	Category   string  `json:"category"`
	Count      uint64  `json:"count"`
	Percentage float64 `json:"percentage"`
}

type FunnelStage struct {
	Stage          string  `json:"stage"`
	Count          uint64  `json:"count"`
	ConversionRate float64 `json:"conversionRate"`
	DropOffRate    float64 `json:"dropOffRate"`
}

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// TrendMetric compares the current window with the preceding one of equal length.
// ChangePercentage is nil when the previous count is zero.
type TrendMetric struct {
	Metric           string   `json:"metric"`
	Current          uint64   `json:"current"`
	Previous         uint64   `json:"previous"`
	Change           int64    `json:"change"`
	ChangePercentage *float64 `json:"changePercentage"`
	Trend            Trend    `json:"trend"`
}

type LabelCount struct {
	Label string `json:"label"`
	Count uint64 `json:"count"`
}

// UserBehavior splits window visitors into new and returning users. A user is
// returning when their earliest stored event predates the window.
type UserBehavior struct {
	TimeRange      string       `json:"timeRange"`
	TotalUsers     uint64       `json:"totalUsers"`
	NewUsers       uint64       `json:"newUsers"`
	ReturningUsers uint64       `json:"returningUsers"`
	ReturningPct   float64      `json:"returningPercentage"`
	TopReferrers   []LabelCount `json:"topReferrers"`
	Devices        []LabelCount `json:"devices"`
}

type ProductStats struct {
	ProductID       string  `json:"productId"`
	ProductName     string  `json:"productName,omitempty"`
	Views           uint64  `json:"views"`
	UniqueViewers   uint64  `json:"uniqueViewers"`
	Clicks          uint64  `json:"clicks"`
	Favorites       uint64  `json:"favorites"`
	ClickThroughPct float64 `json:"clickThroughRate"`
}

type ProductDetail struct {
	ProductStats
	TimeRange string            `json:"timeRange"`
	Category  string            `json:"category,omitempty"`
	Daily     []TimeSeriesPoint `json:"daily"`
}

type MoodboardStats struct {
	MoodboardID   string `json:"moodboardId"`
	MoodboardName string `json:"moodboardName,omitempty"`
	Views         uint64 `json:"views"`
	UniqueViewers uint64 `json:"uniqueViewers"`
	FilterUses    uint64 `json:"filterUses"`
	ProductClicks uint64 `json:"productClicks"`
}
