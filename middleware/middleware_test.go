package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook/api/models"
	"lookbook/api/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimitByIP(t *testing.T) {
	r := gin.New()
	r.POST("/track", RateLimitByIP(100, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/track", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 100; i++ {
		require.Equal(t, http.StatusOK, send("198.51.100.1"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"), "101st request in the window")
	assert.Equal(t, http.StatusOK, send("198.51.100.2"), "limits are per client")
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimitByIP_SpreadAcrossWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	r := gin.New()
	r.POST("/track", rateLimitByIP(100, 2*time.Second, clock.now), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/track", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	// One call every 5ms for a whole 2s window.
	accepted := 0
	var last *httptest.ResponseRecorder
	for i := 0; i < 400; i++ {
		last = send()
		if last.Code == http.StatusOK {
			accepted++
		}
		clock.advance(5 * time.Millisecond)
	}
	assert.Equal(t, 100, accepted)
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))

	clock.advance(time.Millisecond)
	assert.Equal(t, http.StatusOK, send().Code, "a new window starts fresh")
}

func TestLimiterCache_Prune(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	lc := newLimiterCache[int](1, time.Second, clock.now)

	ok, _ := lc.allow(1)
	require.True(t, ok)
	ok, _ = lc.allow(1)
	require.False(t, ok)

	clock.advance(time.Second)
	lc.prune(clock.now())
	assert.Empty(t, lc.windows)
}

func TestAuthRequired(t *testing.T) {
	jwt := utils.NewJWTManager("0123456789abcdef0123456789abcdef", time.Hour)
	token, err := jwt.GenerateJWT(&models.Admin{ID: 3, Email: "ops@lookbook.test"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin/x", AuthRequired(jwt), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetInt(ContextAdminID), "email": c.GetString(ContextAdminEmail)})
	})

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no token", func(*http.Request) {}, http.StatusUnauthorized},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: token}) }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"id":3,"email":"ops@lookbook.test"}`, w.Body.String())
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://lookbook.test"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://lookbook.test", w.Header().Get("Access-Control-Allow-Origin"))
}
