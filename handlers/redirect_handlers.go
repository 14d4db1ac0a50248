package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"

	"lookbook/api/gate"
)

const (
	userCookie    = "lookbook_uid"
	sessionCookie = "lookbook_sid"
)

//go:embed templates/redirect.html
var templateFS embed.FS

var redirectPage = template.Must(template.ParseFS(templateFS, "templates/redirect.html"))

type RedirectHandlers struct {
	Gate *gate.Gate
}

func NewRedirectHandlers(g *gate.Gate) *RedirectHandlers {
	return &RedirectHandlers{Gate: g}
}

type redirectView struct {
	gate.Decision
	CancelURL string
	BackURL   string
}

// Interstitial serves GET /go/:productId. ?now=1 skips the countdown page.
func (h *RedirectHandlers) Interstitial(c *gin.Context) {
	d := h.Gate.Resolve(c.Request.Context(), c.Param("productId"), visitor(c))

	c.Header("Cache-Control", "no-store")
	if d.Redirecting() && c.Query("now") == "1" {
		c.Redirect(http.StatusFound, d.Destination)
		return
	}

	view := redirectView{
		Decision:  d,
		CancelURL: "/products/" + url.PathEscape(d.ProductID),
		BackURL:   backURL(c.Request.Referer()),
	}
	c.Render(decisionStatus(d), render.HTML{
		Template: redirectPage,
		Name:     "redirect.html",
		Data:     view,
	})
}

// ResolveJSON serves GET /api/go/:productId for non-browser clients.
func (h *RedirectHandlers) ResolveJSON(c *gin.Context) {
	d := h.Gate.Resolve(c.Request.Context(), c.Param("productId"), visitor(c))
	c.Header("Cache-Control", "no-store")
	c.JSON(decisionStatus(d), d)
}

func decisionStatus(d gate.Decision) int {
	if d.Redirecting() {
		return http.StatusOK
	}
	switch d.ErrorKind {
	case gate.KindNotFound:
		return http.StatusNotFound
	case gate.KindInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func visitor(c *gin.Context) gate.Visitor {
	uid := c.Query("uid")
	if uid == "" {
		uid, _ = c.Cookie(userCookie)
	}
	sid := c.Query("sid")
	if sid == "" {
		sid, _ = c.Cookie(sessionCookie)
	}
	return gate.Visitor{
		UserID:    uid,
		SessionID: sid,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
		PageURL:   c.Request.URL.RequestURI(),
	}
}

// backURL only links back to http(s) referers.
func backURL(referer string) string {
	u, err := url.Parse(referer)
	if err != nil || referer == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "/"
	}
	return u.String()
}
