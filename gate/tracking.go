package gate

import (
	"fmt"
	"net/url"
)

// TrackingParams are appended to every outbound affiliate URL.
type TrackingParams struct {
	Source   string
	Medium   string
	Campaign string
	Ref      string
}

// AppendTracking sets the UTM and ref parameters on raw. Existing query
// parameters are kept; tracking keys already present are overwritten.
func AppendTracking(raw string, p TrackingParams, productID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	q := u.Query()
	q.Set("utm_source", p.Source)
	q.Set("utm_medium", p.Medium)
	q.Set("utm_campaign", p.Campaign)
	q.Set("utm_content", productID)
	q.Set("ref", p.Ref)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
