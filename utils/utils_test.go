package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook/api/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Linen Wrap Dress", "linen-wrap-dress"},
		{"Crème Brûlée Trench", "creme-brulee-trench"},
		{"  Café -- Noir!! ", "cafe-noir"},
		{"Straße 90s", "strasse-90s"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestSanitizeDescription(t *testing.T) {
	got := SanitizeDescription(`<p>Soft <b>wool</b></p><script>alert(1)</script><a href="javascript:alert(1)">x</a>`)
	assert.Contains(t, got, "<b>wool</b>")
	assert.NotContains(t, got, "<script>")
	assert.NotContains(t, got, "javascript:")
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Hello", StripTags("<em>Hello</em>"))
}

func TestReferrerHost(t *testing.T) {
	assert.Equal(t, "direct", ReferrerHost(""))
	assert.Equal(t, "direct", ReferrerHost("not a url"))
	assert.Equal(t, "instagram.com", ReferrerHost("https://www.Instagram.com/p/abc"))
}

func TestParseUserAgent(t *testing.T) {
	iphone := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	desktop := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	bot := "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

	assert.Equal(t, "mobile", ParseUserAgent(iphone).Device)

	d := ParseUserAgent(desktop)
	assert.Equal(t, "desktop", d.Device)
	assert.Equal(t, "Chrome", d.Browser)
	assert.True(t, strings.HasPrefix(d.OS, "Windows"))

	assert.Equal(t, "bot", ParseUserAgent(bot).Device)

	empty := ParseUserAgent("")
	assert.Equal(t, "Unknown", empty.Browser)
	assert.Equal(t, "unknown", empty.Device)
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	token, err := m.GenerateJWT(&models.Admin{ID: 7, Email: "ops@lookbook.test"})
	require.NoError(t, err)

	claims, err := m.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.AdminID)
	assert.Equal(t, "ops@lookbook.test", claims.Email)
	assert.Equal(t, "7", claims.Subject)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	token, err := m.GenerateJWT(&models.Admin{ID: 1, Email: "a@b.c"})
	require.NoError(t, err)

	other := NewJWTManager(strings.Repeat("x", 32), time.Hour)
	_, err = other.ValidateJWT(token)
	assert.Error(t, err, "wrong secret")

	expired := NewJWTManager(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.ValidateJWT(token)
	assert.Error(t, err, "expired")

	_, err = m.ValidateJWT("garbage")
	assert.Error(t, err)
}
