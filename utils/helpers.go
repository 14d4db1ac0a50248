package utils

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mozillazg/go-unidecode"
)

var (
	slugInvalid     = regexp.MustCompile(`[^a-z0-9-]+`)
	multipleHyphens = regexp.MustCompile(`-{2,}`)

	// UGC policy keeps basic formatting in admin-authored descriptions.
	descriptionPolicy = bluemonday.UGCPolicy()
	stripAll          = bluemonday.StrictPolicy()
)

// Slugify transliterates s to ASCII and converts it to a URL slug.
// "Crème Brûlée Trench" becomes "creme-brulee-trench".
func Slugify(s string) string {
	out := strings.ToLower(unidecode.Unidecode(s))
	out = strings.Join(strings.Fields(out), "-")
	out = slugInvalid.ReplaceAllString(out, "")
	out = multipleHyphens.ReplaceAllString(out, "-")
	return strings.Trim(out, "-")
}

// SanitizeDescription removes scripts and unsafe attributes from admin HTML.
func SanitizeDescription(s string) string {
	return strings.TrimSpace(descriptionPolicy.Sanitize(s))
}

// StripTags returns s with all markup removed.
func StripTags(s string) string {
	return strings.TrimSpace(stripAll.Sanitize(s))
}

// ReferrerHost reduces a referrer URL to its host without "www.".
// Empty or unparseable referrers are reported as "direct".
func ReferrerHost(ref string) string {
	if ref == "" {
		return "direct"
	}
	u, err := url.Parse(ref)
	if err != nil || u.Hostname() == "" {
		return "direct"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
