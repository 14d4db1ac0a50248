package models

import (
	"encoding/json"
	"fmt"
)

// Metadata is the per-event-type payload. Each event type has its own variant;
// FreeformMetadata is used for types without a declared shape.
type Metadata interface {
	EventType() EventType
}

type SearchMetadata struct {
	Query        string `json:"query"`
	ResultsCount int    `json:"resultsCount"`
	Category     string `json:"category,omitempty"`
}

func (SearchMetadata) EventType() EventType { return EventSearch }

type AffiliateClickMetadata struct {
	ProductName string `json:"productName,omitempty"`
	Retailer    string `json:"retailer"`
}

func (AffiliateClickMetadata) EventType() EventType { return EventAffiliateClick }

type FavoriteMetadata struct {
	Type        EventType `json:"-"`
	ProductName string    `json:"productName,omitempty"`
}

func (m FavoriteMetadata) EventType() EventType {
	if m.Type == "" {
		return EventFavoriteAdd
	}
	return m.Type
}

type MoodboardFilterMetadata struct {
	Filter string `json:"filter"`
	Value  string `json:"value"`
}

func (MoodboardFilterMetadata) EventType() EventType { return EventMoodboardFilter }

type MoodboardProductClickMetadata struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
}

func (MoodboardProductClickMetadata) EventType() EventType { return EventMoodboardProductClick }

type FilterChangeMetadata struct {
	Filter string `json:"filter"`
	Value  string `json:"value"`
}

func (FilterChangeMetadata) EventType() EventType { return EventFilterChange }

type SortChangeMetadata struct {
	Sort string `json:"sort"`
}

func (SortChangeMetadata) EventType() EventType { return EventSortChange }

// ViewMetadata covers page, product and moodboard views.
type ViewMetadata struct {
	Type  EventType `json:"-"`
	Title string    `json:"title,omitempty"`
}

func (m ViewMetadata) EventType() EventType {
	if m.Type == "" {
		return EventPageView
	}
	return m.Type
}

type FreeformMetadata struct {
	Type   EventType      `json:"-"`
	Fields map[string]any `json:"-"`
}

func (m FreeformMetadata) EventType() EventType { return m.Type }

func (m FreeformMetadata) MarshalJSON() ([]byte, error) {
	if m.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.Fields)
}

// DecodeMetadata returns the typed variant for eventType. Payloads that do not fit
// the declared shape come back as FreeformMetadata rather than an error, since
// metadata is never validated on ingestion.
func DecodeMetadata(eventType EventType, raw json.RawMessage) (Metadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var target Metadata
	switch eventType {
	case EventSearch:
		var m SearchMetadata
		if json.Unmarshal(raw, &m) == nil {
			target = m
		}
	case EventAffiliateClick:
		var m AffiliateClickMetadata
		if json.Unmarshal(raw, &m) == nil {
			target = m
		}
	case EventFavoriteAdd, EventFavoriteRemove:
		var m FavoriteMetadata
		if json.Unmarshal(raw, &m) == nil {
			m.Type = eventType
			target = m
		}
	case EventMoodboardFilter:
		var m MoodboardFilterMetadata
		if json.Unmarshal(raw, &m) == nil {
			target = m
		}
	case EventMoodboardProductClick:
		var m MoodboardProductClickMetadata
		if json.Unmarshal(raw, &m) == nil {
			target = m
		}
	case EventFilterChange:
		var m FilterChangeMetadata
		if json.Unmarshal(raw, &m) == nil {
			target = m
		}
	case EventSortChange:
		var m SortChangeMetadata
		if json.Unmarshal(raw, &m) == nil {
			target = m
		}
	case EventPageView, EventProductView, EventMoodboardView:
		var m ViewMetadata
		if json.Unmarshal(raw, &m) == nil {
			m.Type = eventType
			target = m
		}
	}
	if target != nil {
		return target, nil
	}

	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("metadata for %s is not a JSON object: %w", eventType, err)
	}
	return FreeformMetadata{Type: eventType, Fields: fields}, nil
}

// EncodeMetadata serialises a variant for storage.
func EncodeMetadata(m Metadata) (json.RawMessage, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s metadata: %w", m.EventType(), err)
	}
	return b, nil
}
