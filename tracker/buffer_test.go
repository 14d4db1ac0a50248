package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook/api/models"
)

type recordingSender struct {
	mu      sync.Mutex
	batches [][]Payload
	err     error
}

func (r *recordingSender) Send(_ context.Context, batch []Payload) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Payload, len(batch))
	copy(cp, batch)
	r.batches = append(r.batches, cp)
	if r.err != nil {
		return Result{}, r.err
	}
	return Result{Inserted: len(batch)}, nil
}

func (r *recordingSender) calls() [][]Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

func view(id string) Event {
	return Event{UserID: "u1", Type: models.EventProductView, ResourceType: models.ResourceProduct, ResourceID: id, ProductID: id}
}

func TestBuffer_ThresholdTriggersSingleFlush(t *testing.T) {
	s := &recordingSender{}
	b := New(s, WithFlushInterval(time.Hour))

	for i := 0; i < DefaultMaxQueue; i++ {
		b.Track(view("prod_001"))
	}
	require.NoError(t, b.Close(context.Background()))

	calls := s.calls()
	require.Len(t, calls, 1, "ten events must produce exactly one send")
	assert.Len(t, calls[0], DefaultMaxQueue)
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_FlushEmptyQueueSendsNothing(t *testing.T) {
	s := &recordingSender{}
	b := New(s)

	require.NoError(t, b.Flush(context.Background()))
	require.NoError(t, b.Flush(context.Background()))
	assert.Empty(t, s.calls())
}

func TestBuffer_FlushSendsQueuedEventsOnce(t *testing.T) {
	s := &recordingSender{}
	b := New(s, WithContext(func() Context {
		return Context{URL: "https://lookbook.test/products/prod_001", Referrer: "https://google.com/"}
	}))

	b.Track(view("prod_001"))
	b.Track(Event{UserID: "u1", Type: models.EventSearch, Metadata: models.SearchMetadata{Query: "linen", ResultsCount: 4}})
	assert.Equal(t, 2, b.Len())

	require.NoError(t, b.Flush(context.Background()))
	require.NoError(t, b.Flush(context.Background()))

	calls := s.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, "https://lookbook.test/products/prod_001", calls[0][0].URL)
	assert.Equal(t, "https://google.com/", calls[0][0].Referrer)
	assert.False(t, calls[0][0].Timestamp.IsZero())
	assert.Equal(t, models.EventSearch, calls[0][1].EventType)
}

func TestBuffer_FailedBatchIsDiscarded(t *testing.T) {
	s := &recordingSender{err: errors.New("connection refused")}
	b := New(s)

	b.Track(view("prod_001"))
	err := b.Flush(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, b.Len(), "failed events must not be re-queued")

	s.err = nil
	require.NoError(t, b.Flush(context.Background()))
	assert.Len(t, s.calls(), 1)
}

func TestBuffer_Disabled(t *testing.T) {
	s := &recordingSender{}
	b := New(s)
	b.SetEnabled(false)

	for i := 0; i < 25; i++ {
		b.Track(view("prod_001"))
	}
	require.NoError(t, b.Close(context.Background()))
	assert.Empty(t, s.calls())
}

func TestBuffer_TrackSurvivesPanickingContext(t *testing.T) {
	s := &recordingSender{}
	b := New(s, WithContext(func() Context { panic("no window") }))

	assert.NotPanics(t, func() { b.Track(view("prod_001")) })

	// the mutex must have been released
	done := make(chan struct{})
	go func() {
		b.Len()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("buffer lock was not released after panic")
	}
}

func TestBuffer_IntervalFlush(t *testing.T) {
	s := &recordingSender{}
	b := New(s, WithFlushInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	b.Track(view("prod_002"))

	assert.Eventually(t, func() bool { return len(s.calls()) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, b.Close(context.Background()))
	assert.Len(t, s.calls(), 1)
}

func TestBuffer_CloseFlushesRemainder(t *testing.T) {
	s := &recordingSender{}
	b := New(s, WithFlushInterval(time.Hour))
	b.Start(context.Background())

	b.Track(view("prod_001"))
	b.Track(view("prod_002"))
	require.NoError(t, b.Close(context.Background()))
	require.NoError(t, b.Close(context.Background()))

	calls := s.calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 2)
}

func TestHTTPSender_Send(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, TrackPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"inserted":2}`))
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL+"/", srv.Client())
	res, err := sender.Send(context.Background(), []Payload{
		{EventType: models.EventPageView, Timestamp: time.Now()},
		{EventType: models.EventSearch, Metadata: models.SearchMetadata{Query: "boots"}, Timestamp: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	require.Len(t, got, 2)
	assert.Equal(t, "search", got[1]["eventType"])
	assert.Equal(t, "boots", got[1]["metadata"].(map[string]any)["query"])
}

func TestHTTPSender_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"Failed to record analytics events"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPSender(srv.URL, srv.Client()).Send(context.Background(), []Payload{{EventType: models.EventPageView}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to record analytics events")
}
