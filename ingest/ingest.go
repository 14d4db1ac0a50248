// Package ingest turns raw tracking payloads into stored analytics events.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lookbook/api/models"
	"lookbook/api/utils"
)

const anonymousUser = "anonymous"

var (
	ErrEmptyBody        = errors.New("request body is empty")
	ErrMalformedBody    = errors.New("request body must be a JSON object or array")
	ErrNoEvents         = errors.New("no events in request")
	ErrUnknownEventType = errors.New("unknown event type")
)

// RawEvent is one record as sent by clients. Event and EventData are legacy
// aliases for EventType and Metadata.
type RawEvent struct {
	UserID       string          `json:"userId"`
	SessionID    string          `json:"sessionId"`
	EventType    string          `json:"eventType"`
	Event        string          `json:"event"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	ResourceName string          `json:"resourceName"`
	ProductID    string          `json:"productId"`
	MoodboardID  string          `json:"moodboardId"`
	Metadata     json.RawMessage `json:"metadata"`
	EventData    json.RawMessage `json:"eventData"`
	Referrer     string          `json:"referrer"`
	URL          string          `json:"url"`

	// Accepted on the wire and ignored; the server derives these.
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
	Timestamp string `json:"timestamp"`
}

// RequestContext is what the server knows about the request carrying the events.
type RequestContext struct {
	ClientIP  string
	UserAgent string
	Referer   string
}

// Decode accepts either a single event object or an array of them.
func Decode(body []byte) ([]RawEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBody
	}

	switch trimmed[0] {
	case '[':
		var events []RawEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		return events, nil
	case '{':
		var e RawEvent
		if err := json.Unmarshal(trimmed, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		return []RawEvent{e}, nil
	default:
		return nil, ErrMalformedBody
	}
}

// Normalize fills defaults and server-derived fields. Client-supplied IP,
// user agent and timestamp are always overridden.
func Normalize(raw RawEvent, rc RequestContext, now time.Time) (models.AnalyticsEvent, error) {
	eventType := models.EventType(strings.TrimSpace(raw.EventType))
	if eventType == "" {
		eventType = models.EventType(strings.TrimSpace(raw.Event))
	}
	if !eventType.Valid() {
		return models.AnalyticsEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	userID := strings.TrimSpace(raw.UserID)
	if userID == "" {
		userID = anonymousUser
	}

	metadata := raw.Metadata
	if isEmptyJSON(metadata) {
		metadata = raw.EventData
	}
	if isEmptyJSON(metadata) {
		metadata = nil
	}

	// resourceType is optional; values outside the enum are dropped.
	resourceType := models.ResourceType(strings.ToLower(strings.TrimSpace(raw.ResourceType)))
	if !resourceType.Valid() {
		resourceType = ""
	}

	referrer := raw.Referrer
	if referrer == "" {
		referrer = rc.Referer
	}

	client := utils.ParseUserAgent(rc.UserAgent)

	return models.AnalyticsEvent{
		ID:           uuid.NewString(),
		UserID:       userID,
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   raw.ResourceID,
		ResourceName: raw.ResourceName,
		ProductID:    raw.ProductID,
		MoodboardID:  raw.MoodboardID,
		Metadata:     metadata,
		SessionID:    raw.SessionID,
		IPAddress:    rc.ClientIP,
		UserAgent:    rc.UserAgent,
		Browser:      client.Browser,
		OS:           client.OS,
		Device:       client.Device,
		Referrer:     referrer,
		URL:          raw.URL,
		CreatedAt:    now.UTC(),
	}, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// EventWriter persists a batch in one round trip.
type EventWriter interface {
	InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error
}

// PersistError wraps a storage failure so callers can tell it from a bad request.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return "persist analytics events: " + e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }

type Service struct {
	writer EventWriter
	now    func() time.Time
}

func NewService(w EventWriter) *Service {
	return &Service{writer: w, now: time.Now}
}

// Ingest validates the whole batch before writing any of it. A single invalid
// record rejects the batch.
func (s *Service) Ingest(ctx context.Context, raws []RawEvent, rc RequestContext) (int, error) {
	items := make([]Attributed, len(raws))
	for i, raw := range raws {
		items[i] = Attributed{Raw: raw, Request: rc}
	}
	return s.IngestAttributed(ctx, items)
}

// Attributed pairs a raw event with the request it was observed on.
type Attributed struct {
	Raw     RawEvent
	Request RequestContext
}

// IngestAttributed is Ingest for batches whose events come from different requests.
func (s *Service) IngestAttributed(ctx context.Context, items []Attributed) (int, error) {
	if len(items) == 0 {
		return 0, ErrNoEvents
	}

	now := s.now()
	events := make([]models.AnalyticsEvent, 0, len(items))
	for i, it := range items {
		ev, err := Normalize(it.Raw, it.Request, now)
		if err != nil {
			return 0, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, ev)
	}

	if err := s.writer.InsertAnalyticsEvents(ctx, events); err != nil {
		return 0, &PersistError{Err: err}
	}

	log.Debug().Int("events", len(events)).Msg("analytics events recorded")
	return len(events), nil
}
