// Package gate decides whether a product's affiliate link may be followed and
// builds the tracked destination. It fails closed: any doubt blocks the redirect.
package gate

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"lookbook/api/models"
)

var (
	ErrMalformedURL     = errors.New("URL is malformed")
	ErrUnsupportedProto = errors.New("URL must use http or https")
	ErrNotHTTPS         = errors.New("URL must use https")
	ErrUntrustedDomain  = errors.New("domain is not a trusted retailer")
)

// NormalizeDomain lowercases s and strips any scheme, path, port and leading "www.".
// "https://WWW.Ssense.com/en" becomes "ssense.com".
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	return strings.TrimPrefix(s, "www.")
}

// ValidateBasicURL checks that raw is an absolute http(s) URL with a host.
func ValidateBasicURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformedURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrUnsupportedProto
	}
	if u.Hostname() == "" {
		return nil, ErrMalformedURL
	}
	return u, nil
}

// Whitelist is an immutable snapshot of active retailer domains.
type Whitelist struct {
	domains map[string]models.TrustedRetailer
}

// NewWhitelist keeps only active retailers.
func NewWhitelist(retailers []models.TrustedRetailer) *Whitelist {
	w := &Whitelist{domains: make(map[string]models.TrustedRetailer, len(retailers))}
	for _, r := range retailers {
		if !r.IsActive {
			continue
		}
		d := NormalizeDomain(r.Domain)
		if d == "" {
			continue
		}
		w.domains[d] = r
	}
	return w
}

func (w *Whitelist) Len() int {
	return len(w.domains)
}

// Check returns nil iff raw is https and its host, without a leading "www.",
// is exactly an active retailer domain. Subdomains do not match.
func (w *Whitelist) Check(raw string) error {
	_, err := w.Match(raw)
	return err
}

// Match is Check returning the matched retailer.
func (w *Whitelist) Match(raw string) (models.TrustedRetailer, error) {
	u, err := ValidateBasicURL(raw)
	if err != nil {
		return models.TrustedRetailer{}, err
	}
	if u.Scheme != "https" {
		return models.TrustedRetailer{}, ErrNotHTTPS
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	r, ok := w.domains[host]
	if !ok {
		return models.TrustedRetailer{}, fmt.Errorf("%w: %s", ErrUntrustedDomain, host)
	}
	return r, nil
}

func (w *Whitelist) IsValidAffiliateURL(raw string) bool {
	return w.Check(raw) == nil
}
