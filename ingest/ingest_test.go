package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook/api/models"
	"lookbook/api/tracker"
)

type fakeWriter struct {
	batches [][]models.AnalyticsEvent
	err     error
}

func (f *fakeWriter) InsertAnalyticsEvents(_ context.Context, events []models.AnalyticsEvent) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

var testRC = RequestContext{
	ClientIP:  "203.0.113.7",
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Referer:   "https://www.instagram.com/",
}

func TestDecode(t *testing.T) {
	single, err := Decode([]byte(` {"eventType":"page_view"} `))
	require.NoError(t, err)
	assert.Len(t, single, 1)

	many, err := Decode([]byte(`[{"eventType":"page_view"},{"event":"search"}]`))
	require.NoError(t, err)
	assert.Len(t, many, 2)
	assert.Equal(t, "search", many[1].Event)

	_, err = Decode([]byte(""))
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = Decode([]byte(`"page_view"`))
	assert.ErrorIs(t, err, ErrMalformedBody)

	_, err = Decode([]byte(`[{"eventType":`))
	assert.ErrorIs(t, err, ErrMalformedBody)
}

func TestNormalize_Defaults(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	ev, err := Normalize(RawEvent{EventType: "product_view", ProductID: "prod_001"}, testRC, now)
	require.NoError(t, err)

	assert.Equal(t, "anonymous", ev.UserID)
	assert.Equal(t, models.EventProductView, ev.EventType)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, now.UTC(), ev.CreatedAt)
	assert.Equal(t, "https://www.instagram.com/", ev.Referrer, "referrer falls back to the Referer header")
	assert.Equal(t, "Chrome", ev.Browser)
	assert.Equal(t, "desktop", ev.Device)
	assert.Nil(t, ev.Metadata)
}

func TestNormalize_IgnoresClientSuppliedRequestFields(t *testing.T) {
	raw := RawEvent{
		UserID:    "u-42",
		EventType: "page_view",
		IPAddress: "10.0.0.1",
		UserAgent: "spoofed-agent",
		Timestamp: "1999-01-01T00:00:00Z",
		Referrer:  "https://pinterest.com/",
	}
	now := time.Now()

	ev, err := Normalize(raw, testRC, now)
	require.NoError(t, err)

	assert.Equal(t, "203.0.113.7", ev.IPAddress)
	assert.Equal(t, testRC.UserAgent, ev.UserAgent)
	assert.Equal(t, now.UTC(), ev.CreatedAt)
	assert.Equal(t, "u-42", ev.UserID)
	assert.Equal(t, "https://pinterest.com/", ev.Referrer, "payload referrer wins over the header")
}

func TestNormalize_LegacyFields(t *testing.T) {
	raw := RawEvent{
		Event:     "search",
		EventData: json.RawMessage(`{"query":"linen","resultsCount":3}`),
		Metadata:  json.RawMessage(`null`),
	}

	ev, err := Normalize(raw, testRC, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.EventSearch, ev.EventType)
	assert.JSONEq(t, `{"query":"linen","resultsCount":3}`, string(ev.Metadata))

	both := RawEvent{EventType: "search", Event: "page_view"}
	ev, err = Normalize(both, testRC, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.EventSearch, ev.EventType)
}

func TestNormalize_ResourceType(t *testing.T) {
	tests := []struct {
		in   string
		want models.ResourceType
	}{
		{"product", models.ResourceProduct},
		{" Moodboard ", models.ResourceMoodboard},
		{"", ""},
		{"retailer", ""},
		{"<script>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ev, err := Normalize(RawEvent{EventType: "product_view", ResourceType: tt.in}, testRC, time.Now())
			require.NoError(t, err, "an unknown resource type does not reject the event")
			assert.Equal(t, tt.want, ev.ResourceType)
		})
	}
}

func TestNormalize_UnknownType(t *testing.T) {
	_, err := Normalize(RawEvent{EventType: "checkout"}, testRC, time.Now())
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = Normalize(RawEvent{}, testRC, time.Now())
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestService_Ingest(t *testing.T) {
	w := &fakeWriter{}
	svc := NewService(w)

	n, err := svc.Ingest(context.Background(), []RawEvent{
		{EventType: "page_view"},
		{EventType: "affiliate_click", ProductID: "prod_001", Metadata: json.RawMessage(`{"retailer":"ssense.com"}`)},
	}, testRC)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, w.batches, 1, "one bulk insert per request")
	assert.Len(t, w.batches[0], 2)
	assert.NotEqual(t, w.batches[0][0].ID, w.batches[0][1].ID)
}

func TestService_Ingest_InvalidRecordRejectsBatch(t *testing.T) {
	w := &fakeWriter{}
	svc := NewService(w)

	_, err := svc.Ingest(context.Background(), []RawEvent{
		{EventType: "page_view"},
		{EventType: "bogus"},
	}, testRC)
	assert.ErrorIs(t, err, ErrUnknownEventType)
	assert.Empty(t, w.batches)
}

func TestService_Ingest_Empty(t *testing.T) {
	w := &fakeWriter{}
	_, err := NewService(w).Ingest(context.Background(), nil, testRC)
	assert.ErrorIs(t, err, ErrNoEvents)
	assert.Empty(t, w.batches)
}

func TestService_Ingest_PersistFailure(t *testing.T) {
	boom := errors.New("clickhouse: connection reset")
	svc := NewService(&fakeWriter{err: boom})

	_, err := svc.Ingest(context.Background(), []RawEvent{{EventType: "page_view"}}, testRC)
	require.Error(t, err)

	var perr *PersistError
	assert.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, boom)
}

func TestLocalSender_KeepsPerEventAttribution(t *testing.T) {
	w := &fakeWriter{}
	sender := LocalSender(NewService(w))

	res, err := sender.Send(context.Background(), []tracker.Payload{
		{
			UserID:    "u1",
			EventType: models.EventAffiliateClick,
			ProductID: "prod_001",
			Metadata:  models.AffiliateClickMetadata{ProductName: "Wool Coat", Retailer: "ssense.com"},
			ClientIP:  "198.51.100.4",
			UserAgent: "curl/8.0",
		},
		{EventType: models.EventPageView, ClientIP: "198.51.100.5"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	require.Len(t, w.batches, 1)
	got := w.batches[0]
	assert.Equal(t, "198.51.100.4", got[0].IPAddress)
	assert.Equal(t, "198.51.100.5", got[1].IPAddress)
	assert.JSONEq(t, `{"productName":"Wool Coat","retailer":"ssense.com"}`, string(got[0].Metadata))
	assert.Equal(t, "anonymous", got[1].UserID)
}
