package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook/api/models"
	"lookbook/api/tracker"
)

type fakeAPI struct {
	mu         sync.Mutex
	events     []map[string]any
	userAgents []string
	gateHits   []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == tracker.TrackPath:
		body, _ := io.ReadAll(r.Body)
		var batch []map[string]any
		_ = json.Unmarshal(body, &batch)
		f.events = append(f.events, batch...)
		f.userAgents = append(f.userAgents, r.UserAgent())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"inserted":` + strconv.Itoa(len(batch)) + `}`))
	case strings.HasPrefix(r.URL.Path, "/go/"):
		f.gateHits = append(f.gateHits, r.URL.RequestURI())
		http.Redirect(w, r, "https://www.ssense.com/p/coat", http.StatusFound)
	default:
		http.NotFound(w, r)
	}
}

func TestVisitor_Browse(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	catalog := []models.Product{
		{ID: "prod_001", Name: "Double-Faced Wool Coat"},
		{ID: "prod_002", Name: "Linen Shirt"},
	}

	for seed := uint64(1); seed <= 5; seed++ {
		v := newVisitor(gofakeit.New(seed), client, srv.URL, "https://lookbook.example")
		require.NoError(t, v.browse(context.Background(), catalog))
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	require.NotEmpty(t, api.events)
	assert.Equal(t, "page_view", api.events[0]["eventType"])

	views := 0
	for _, e := range api.events {
		assert.NotEmpty(t, e["userId"])
		assert.NotEmpty(t, e["sessionId"])
		assert.NotEqual(t, "affiliate_click", e["eventType"], "clicks are recorded by the gate, not the client")
		if e["eventType"] == "product_view" {
			views++
			assert.Contains(t, e["url"], "https://lookbook.example/products/prod_00")
		}
	}
	assert.GreaterOrEqual(t, views, 5, "every session views at least one product")

	for _, ua := range api.userAgents {
		assert.NotEmpty(t, ua)
	}
	for _, hit := range api.gateHits {
		assert.Contains(t, hit, "now=1")
		assert.Contains(t, hit, "uid=user_")
	}
}

func TestSyntheticCatalog(t *testing.T) {
	products := syntheticCatalog(gofakeit.New(7), 3)
	require.Len(t, products, 3)
	assert.Equal(t, "prod_001", products[0].ID)
	assert.NotEmpty(t, products[2].Name)
}

func TestNewPacer(t *testing.T) {
	p := newPacer(4)
	for i := 0; i < 4; i++ {
		assert.True(t, p.Allow(), "startup burst %d", i+1)
	}
	assert.False(t, p.Allow(), "further visitors wait for the next slot")

	assert.True(t, newPacer(0.5).Allow(), "slow rates still admit the first visitor")
}
