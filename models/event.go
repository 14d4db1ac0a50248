// models/event.go
package models

import (
	"encoding/json"
	"time"
)

// EventType identifies a storefront interaction.
type EventType string

const (
	EventPageView              EventType = "page_view"
	EventProductView           EventType = "product_view"
	EventMoodboardView         EventType = "moodboard_view"
	EventMoodboardFilter       EventType = "moodboard_filter"
	EventMoodboardProductClick EventType = "moodboard_product_click"
	EventSearch                EventType = "search"
	EventFavoriteAdd           EventType = "favorite_add"
	EventFavoriteRemove        EventType = "favorite_remove"
	EventAffiliateClick        EventType = "affiliate_click"
	EventFilterChange          EventType = "filter_change"
	EventSortChange            EventType = "sort_change"
)

var knownEventTypes = map[EventType]struct{}{
	EventPageView:              {},
	EventProductView:           {},
	EventMoodboardView:         {},
	EventMoodboardFilter:       {},
	EventMoodboardProductClick: {},
	EventSearch:                {},
	EventFavoriteAdd:           {},
	EventFavoriteRemove:        {},
	EventAffiliateClick:        {},
	EventFilterChange:          {},
	EventSortChange:            {},
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// ResourceType is the kind of catalog entity an event refers to.
type ResourceType string

const (
	ResourceProduct   ResourceType = "product"
	ResourceMoodboard ResourceType = "moodboard"
)

func (t ResourceType) Valid() bool {
	return t == ResourceProduct || t == ResourceMoodboard
}

// AnalyticsEvent is a write-once fact record. Empty strings stand for absent optional fields.
type AnalyticsEvent struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	EventType    EventType       `json:"eventType"`
	ResourceType ResourceType    `json:"resourceType,omitempty"`
	ResourceID   string          `json:"resourceId,omitempty"`
	ResourceName string          `json:"resourceName,omitempty"`
	ProductID    string          `json:"productId,omitempty"`
	MoodboardID  string          `json:"moodboardId,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	SessionID    string          `json:"sessionId,omitempty"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	Browser      string          `json:"browser,omitempty"`
	OS           string          `json:"os,omitempty"`
	Device       string          `json:"device,omitempty"`
	Referrer     string          `json:"referrer,omitempty"`
	URL          string          `json:"url,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ActivityItem is an event as shown in the admin recent-activity feed.
type ActivityItem struct {
	AnalyticsEvent
	Details Metadata `json:"details,omitempty"`
}
