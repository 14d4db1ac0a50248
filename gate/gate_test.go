package gate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook/api/models"
	"lookbook/api/store"
	"lookbook/api/tracker"
)

var testRetailers = []models.TrustedRetailer{
	{Domain: "ssense.com", Name: "SSENSE", Category: models.RetailerLuxury, IsActive: true},
	{Domain: "www.cos.com", Name: "COS", Category: models.RetailerContemporary, IsActive: true},
	{Domain: "shein.com", Name: "SHEIN", Category: models.RetailerFastFashion, IsActive: false},
}

var testParams = TrackingParams{Source: "lookbook", Medium: "affiliate", Campaign: "product_redirect", Ref: "lookbook"}

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"ssense.com":                 "ssense.com",
		"WWW.SSENSE.COM":             "ssense.com",
		"https://www.ssense.com/en/": "ssense.com",
		"http://cos.com:443?x=1":     "cos.com",
		" farfetch.com. ":            "farfetch.com",
		"shop.mango.com":             "shop.mango.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), in)
	}
}

func TestValidateBasicURL(t *testing.T) {
	_, err := ValidateBasicURL("http://evil-deals.example/x")
	assert.NoError(t, err)

	for _, bad := range []string{"", "not a url", "/relative/path", "ftp://ssense.com/x", "javascript:alert(1)", "https://"} {
		_, err := ValidateBasicURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestWhitelist_Check(t *testing.T) {
	w := NewWhitelist(testRetailers)
	assert.Equal(t, 2, w.Len())

	assert.NoError(t, w.Check("https://www.ssense.com/en-us/product/123"))
	assert.NoError(t, w.Check("https://ssense.com/"))
	assert.NoError(t, w.Check("https://cos.com/item?id=1"))
	assert.NoError(t, w.Check("https://WWW.COS.COM/item"))

	assert.ErrorIs(t, w.Check("http://ssense.com/x"), ErrNotHTTPS)
	assert.ErrorIs(t, w.Check("https://shein.com/x"), ErrUntrustedDomain, "inactive retailer")
	assert.ErrorIs(t, w.Check("https://ssense.com.evil.example/x"), ErrUntrustedDomain)
	assert.ErrorIs(t, w.Check("https://shop.ssense.com/x"), ErrUntrustedDomain, "subdomains are not trusted")
	assert.ErrorIs(t, w.Check("https://evilssense.com/x"), ErrUntrustedDomain)
	assert.Error(t, w.Check("ssense.com/x"))
}

// The whitelist holds iff the scheme is https and the www-stripped host is an
// active retailer domain.
func TestWhitelist_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789-"
	label := func() string {
		n := 3 + rng.Intn(10)
		b := make([]byte, n)
		for i := range b {
			b[i] = letters[rng.Intn(len(letters)-1)]
		}
		return string(b)
	}
	tlds := []string{"com", "co.uk", "fr", "example"}

	var retailers []models.TrustedRetailer
	active := map[string]bool{}
	for i := 0; i < 50; i++ {
		d := label() + "." + tlds[rng.Intn(len(tlds))]
		on := rng.Intn(3) > 0
		retailers = append(retailers, models.TrustedRetailer{Domain: d, IsActive: on})
		if on {
			active[d] = true
		}
	}
	w := NewWhitelist(retailers)

	for i := 0; i < 2000; i++ {
		var host string
		if rng.Intn(2) == 0 {
			host = retailers[rng.Intn(len(retailers))].Domain
		} else {
			host = label() + "." + tlds[rng.Intn(len(tlds))]
		}
		prefixed := host
		if rng.Intn(2) == 0 {
			prefixed = "www." + host
		}
		scheme := []string{"https", "http"}[rng.Intn(2)]
		raw := fmt.Sprintf("%s://%s/p/%d?color=black", scheme, prefixed, rng.Intn(1000))

		want := scheme == "https" && active[host]
		assert.Equal(t, want, w.IsValidAffiliateURL(raw), raw)
	}
}

func TestAppendTracking(t *testing.T) {
	got, err := AppendTracking("https://www.ssense.com/p/coat?size=M&color=camel", testParams, "prod_001")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "M", q.Get("size"))
	assert.Equal(t, "camel", q.Get("color"))
	assert.Equal(t, "lookbook", q.Get("utm_source"))
	assert.Equal(t, "affiliate", q.Get("utm_medium"))
	assert.Equal(t, "product_redirect", q.Get("utm_campaign"))
	assert.Equal(t, "prod_001", q.Get("utm_content"))
	assert.Equal(t, "lookbook", q.Get("ref"))
	assert.Equal(t, "/p/coat", u.Path)
	assert.Equal(t, "www.ssense.com", u.Host)
}

type fakeProducts map[string]*models.Product

func (f fakeProducts) GetProduct(_ context.Context, id string) (*models.Product, error) {
	if id == "prod_err" {
		return nil, errors.New("connection refused")
	}
	p, ok := f[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

type fakeRetailers struct {
	list []models.TrustedRetailer
	err  error
}

func (f fakeRetailers) ListActiveRetailers(context.Context) ([]models.TrustedRetailer, error) {
	return f.list, f.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []tracker.Event
}

func (r *recordingEmitter) Track(e tracker.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func newTestGate(em Emitter) *Gate {
	products := fakeProducts{
		"prod_001": {ID: "prod_001", Name: "Double-Faced Wool Coat", AffiliateURL: "https://www.ssense.com/p/coat?size=M", IsActive: true},
		"prod_002": {ID: "prod_002", Name: "No Link", IsActive: true},
		"prod_003": {ID: "prod_003", Name: "Bad Link", AffiliateURL: "::not a url", IsActive: true},
		"prod_004": {ID: "prod_004", Name: "Unknown Shop", AffiliateURL: "https://deals.example/x", IsActive: true},
		"prod_009": {ID: "prod_009", Name: "Too Good", AffiliateURL: "http://evil-deals.example/x", IsActive: true},
		"prod_010": {ID: "prod_010", Name: "Retired Coat", AffiliateURL: "https://ssense.com/x", IsActive: false},
	}
	return New(products, fakeRetailers{list: testRetailers}, em, testParams, 3*time.Second)
}

func TestGate_Redirecting(t *testing.T) {
	em := &recordingEmitter{}
	d := newTestGate(em).Resolve(context.Background(), "prod_001", Visitor{UserID: "u1", ClientIP: "203.0.113.9"})

	require.True(t, d.Redirecting(), d.Message)
	assert.Equal(t, "SSENSE", d.Retailer)
	assert.Equal(t, 3, d.CountdownSeconds)
	assert.Contains(t, d.Destination, "utm_content=prod_001")
	assert.Contains(t, d.Destination, "size=M")

	require.Len(t, em.events, 1, "exactly one affiliate click")
	ev := em.events[0]
	assert.Equal(t, models.EventAffiliateClick, ev.Type)
	assert.Equal(t, "prod_001", ev.ProductID)
	assert.Equal(t, "203.0.113.9", ev.ClientIP)
	assert.Equal(t, models.AffiliateClickMetadata{ProductName: "Double-Faced Wool Coat", Retailer: "www.ssense.com"}, ev.Metadata)
}

func TestGate_Errors(t *testing.T) {
	tests := []struct {
		id   string
		kind ErrorKind
	}{
		{"prod_404", KindNotFound},
		{"", KindNotFound},
		{"prod_010", KindNotFound},
		{"prod_err", KindLoadFailed},
		{"prod_002", KindInvalid},
		{"prod_003", KindInvalid},
		{"prod_004", KindInvalid},
		{"prod_009", KindInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			em := &recordingEmitter{}
			d := newTestGate(em).Resolve(context.Background(), tt.id, Visitor{})
			assert.Equal(t, StateError, d.State)
			assert.Equal(t, tt.kind, d.ErrorKind)
			assert.NotEmpty(t, d.Message)
			assert.Empty(t, d.Destination)
			assert.Empty(t, em.events, "no click is recorded for a blocked redirect")
		})
	}
}

func TestGate_HTTPAffiliateURLIsRejected(t *testing.T) {
	d := newTestGate(&recordingEmitter{}).Resolve(context.Background(), "prod_009", Visitor{})
	assert.Equal(t, StateError, d.State)
	assert.Equal(t, "This purchase link is not secure", d.Message)
}

func TestGate_WhitelistUnavailableFailsClosed(t *testing.T) {
	g := New(fakeProducts{"prod_001": {ID: "prod_001", AffiliateURL: "https://ssense.com/x", IsActive: true}},
		fakeRetailers{err: errors.New("db down")}, &recordingEmitter{}, testParams, time.Second)

	d := g.Resolve(context.Background(), "prod_001", Visitor{})
	assert.Equal(t, StateError, d.State)
	assert.Equal(t, KindLoadFailed, d.ErrorKind)
}

func TestCountdown_Expires(t *testing.T) {
	c := NewCountdown(20*time.Millisecond, nil)
	c.Start(context.Background())
	assert.Equal(t, Navigated, c.Wait())
}

func TestCountdown_Continue(t *testing.T) {
	c := NewCountdown(time.Hour, nil)
	c.Start(context.Background())

	assert.True(t, c.Continue())
	assert.False(t, c.Cancel(), "first transition wins")
	assert.Equal(t, Navigated, c.Wait())
}

func TestCountdown_Cancel(t *testing.T) {
	c := NewCountdown(50*time.Millisecond, nil)
	c.Start(context.Background())

	assert.True(t, c.Cancel())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, Cancelled, c.State(), "timer must not fire after cancel")
}

func TestCountdown_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCountdown(time.Hour, nil)
	c.Start(ctx)
	cancel()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("countdown did not settle after context cancellation")
	}
	assert.Equal(t, Cancelled, c.State())
}

func TestCountdown_Ticks(t *testing.T) {
	var mu sync.Mutex
	var ticks []time.Duration
	c := NewCountdown(2500*time.Millisecond, func(r time.Duration) {
		mu.Lock()
		ticks = append(ticks, r)
		mu.Unlock()
	})
	c.Start(context.Background())
	assert.Equal(t, Navigated, c.Wait())

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, ticks)
}
