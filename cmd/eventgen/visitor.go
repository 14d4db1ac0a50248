package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"lookbook/api/models"
	"lookbook/api/tracker"
)

var referrers = []string{
	"",
	"https://www.google.com/",
	"https://www.instagram.com/",
	"https://www.pinterest.com/",
	"https://www.tiktok.com/",
	"https://newsletter.lookbook.example/",
}

var sorts = []string{"newest", "price_asc", "price_desc", "popular"}

// visitor is one simulated shopper with a single browsing session.
type visitor struct {
	faker     *gofakeit.Faker
	client    *http.Client
	apiURL    string
	siteURL   string
	userAgent string

	userID    string
	sessionID string
	page      string
	referrer  string

	buf *tracker.Buffer
}

func newVisitor(f *gofakeit.Faker, client *http.Client, apiURL, siteURL string) *visitor {
	v := &visitor{
		faker:     f,
		client:    client,
		apiURL:    strings.TrimRight(apiURL, "/"),
		siteURL:   strings.TrimRight(siteURL, "/"),
		userAgent: f.UserAgent(),
		userID:    "user_" + f.UUID()[:8],
		sessionID: f.UUID(),
		referrer:  f.RandomString(referrers),
	}
	sender := tracker.NewHTTPSender(v.apiURL, client).WithUserAgent(v.userAgent)
	v.buf = tracker.New(sender, tracker.WithContext(v.pageContext))
	return v
}

func (v *visitor) pageContext() tracker.Context {
	return tracker.Context{URL: v.page, Referrer: v.referrer}
}

func (v *visitor) chance(pct int) bool {
	return v.faker.Number(1, 100) <= pct
}

func (v *visitor) visit(path string) {
	if v.page != "" {
		v.referrer = v.page
	}
	v.page = v.siteURL + path
}

func (v *visitor) track(e tracker.Event) {
	e.UserID = v.userID
	e.SessionID = v.sessionID
	v.buf.Track(e)
}

// browse runs one session: a landing page, an optional search, a few product
// views, maybe a favorite and maybe an affiliate click. Queued events are
// flushed before it returns.
func (v *visitor) browse(ctx context.Context, catalog []models.Product) error {
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = v.buf.Close(flushCtx)
	}()

	v.visit("/")
	v.track(tracker.Event{Type: models.EventPageView, Metadata: models.ViewMetadata{Title: "Lookbook"}})

	if v.chance(50) {
		query := strings.ToLower(v.faker.ProductCategory())
		v.visit("/search?q=" + url.QueryEscape(query))
		v.track(tracker.Event{
			Type:     models.EventSearch,
			Metadata: models.SearchMetadata{Query: query, ResultsCount: v.faker.Number(0, 40)},
		})
		if v.chance(30) {
			v.track(tracker.Event{Type: models.EventSortChange, Metadata: models.SortChangeMetadata{Sort: v.faker.RandomString(sorts)}})
		}
	}

	var last models.Product
	for i, n := 0, v.faker.Number(1, 4); i < n; i++ {
		if err := pause(ctx, v.faker); err != nil {
			return err
		}
		last = catalog[v.faker.Number(0, len(catalog)-1)]
		v.visit("/products/" + last.ID)
		v.track(tracker.Event{
			Type:         models.EventProductView,
			ResourceType: models.ResourceProduct,
			ResourceID:   last.ID,
			ResourceName: last.Name,
			ProductID:    last.ID,
			Metadata:     models.ViewMetadata{Type: models.EventProductView, Title: last.Name},
		})
	}

	if v.chance(30) {
		v.track(tracker.Event{
			Type:         models.EventFavoriteAdd,
			ResourceType: models.ResourceProduct,
			ResourceID:   last.ID,
			ProductID:    last.ID,
			Metadata:     models.FavoriteMetadata{ProductName: last.Name},
		})
	}

	if v.chance(40) {
		// The affiliate_click itself is recorded by the server's redirect gate.
		return v.followAffiliateLink(ctx, last.ID)
	}
	return nil
}

func (v *visitor) followAffiliateLink(ctx context.Context, productID string) error {
	q := url.Values{"now": {"1"}, "uid": {v.userID}, "sid": {v.sessionID}}
	endpoint := v.apiURL + "/go/" + url.PathEscape(productID) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", v.userAgent)
	if v.page != "" {
		req.Header.Set("Referer", v.page)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("follow %s: %w", productID, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return fmt.Errorf("follow %s: gate answered %s", productID, resp.Status)
	}
	return nil
}

func pause(ctx context.Context, f *gofakeit.Faker) error {
	t := time.NewTimer(time.Duration(f.Number(50, 400)) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
