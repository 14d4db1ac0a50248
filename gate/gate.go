package gate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"lookbook/api/models"
	"lookbook/api/store"
	"lookbook/api/tracker"
)

type State string

const (
	StateRedirecting State = "redirecting"
	StateError       State = "error"
)

// ErrorKind separates "not found" from validation and load failures so the
// page can word them differently.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindInvalid    ErrorKind = "invalid"
	KindLoadFailed ErrorKind = "load_failed"
)

// Decision is the outcome of resolving a product redirect.
type Decision struct {
	State            State         `json:"state"`
	ProductID        string        `json:"productId"`
	ProductName      string        `json:"productName,omitempty"`
	Retailer         string        `json:"retailer,omitempty"`
	Destination      string        `json:"destination,omitempty"`
	Countdown        time.Duration `json:"-"`
	CountdownSeconds int           `json:"countdownSeconds,omitempty"`
	ErrorKind        ErrorKind     `json:"errorKind,omitempty"`
	Message          string        `json:"message,omitempty"`
}

func (d Decision) Redirecting() bool { return d.State == StateRedirecting }

// Visitor identifies who is being redirected, for the click event.
type Visitor struct {
	UserID    string
	SessionID string
	ClientIP  string
	UserAgent string
	Referer   string
	PageURL   string
}

type ProductFinder interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

type RetailerLister interface {
	ListActiveRetailers(ctx context.Context) ([]models.TrustedRetailer, error)
}

// Emitter receives the affiliate click. *tracker.Buffer implements it.
type Emitter interface {
	Track(e tracker.Event)
}

type Gate struct {
	products  ProductFinder
	retailers RetailerLister
	emitter   Emitter
	params    TrackingParams
	countdown time.Duration
}

func New(products ProductFinder, retailers RetailerLister, emitter Emitter, params TrackingParams, countdown time.Duration) *Gate {
	return &Gate{
		products:  products,
		retailers: retailers,
		emitter:   emitter,
		params:    params,
		countdown: countdown,
	}
}

// Resolve runs the gate for productID. Every failure is terminal; there is no
// fallback destination. On success exactly one affiliate_click is emitted.
func (g *Gate) Resolve(ctx context.Context, productID string, v Visitor) Decision {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return failure(productID, KindNotFound, "Product not found")
	}

	p, err := g.products.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p == nil) {
		return failure(productID, KindNotFound, "Product not found")
	}
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("gate: product lookup failed")
		return failure(productID, KindLoadFailed, "Error loading product")
	}
	// Retired products are hidden from the catalog and must not redirect either.
	if !p.IsActive {
		return failure(productID, KindNotFound, "Product not found")
	}
	if strings.TrimSpace(p.AffiliateURL) == "" {
		return failure(productID, KindInvalid, "This product does not have a purchase link")
	}
	if _, err := ValidateBasicURL(p.AffiliateURL); err != nil {
		return failure(productID, KindInvalid, "This product's purchase link is invalid")
	}

	retailers, err := g.retailers.ListActiveRetailers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("gate: retailer whitelist unavailable")
		return failure(productID, KindLoadFailed, "Error loading product")
	}

	retailer, err := NewWhitelist(retailers).Match(p.AffiliateURL)
	switch {
	case errors.Is(err, ErrNotHTTPS):
		log.Warn().Str("product_id", productID).Msg("gate: blocked non-https affiliate URL")
		return failure(productID, KindInvalid, "This purchase link is not secure")
	case err != nil:
		log.Warn().Err(err).Str("product_id", productID).Msg("gate: blocked untrusted affiliate URL")
		return failure(productID, KindInvalid, "This retailer is not on our trusted list")
	}

	dest, err := AppendTracking(p.AffiliateURL, g.params, p.ID)
	if err != nil {
		return failure(productID, KindInvalid, "This product's purchase link is invalid")
	}

	host := retailerHost(dest)
	g.emitter.Track(tracker.Event{
		UserID:       v.UserID,
		SessionID:    v.SessionID,
		ClientIP:     v.ClientIP,
		UserAgent:    v.UserAgent,
		Referrer:     v.Referer,
		URL:          v.PageURL,
		Type:         models.EventAffiliateClick,
		ResourceType: models.ResourceProduct,
		ResourceID:   p.ID,
		ResourceName: p.Name,
		ProductID:    p.ID,
		Metadata:     models.AffiliateClickMetadata{ProductName: p.Name, Retailer: host},
	})

	return Decision{
		State:            StateRedirecting,
		ProductID:        p.ID,
		ProductName:      p.Name,
		Retailer:         retailer.Name,
		Destination:      dest,
		Countdown:        g.countdown,
		CountdownSeconds: int(g.countdown / time.Second),
	}
}

func failure(productID string, kind ErrorKind, msg string) Decision {
	return Decision{State: StateError, ProductID: productID, ErrorKind: kind, Message: msg}
}

func retailerHost(raw string) string {
	u, err := ValidateBasicURL(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
