// api/handlers/auth_handlers.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"lookbook/api/middleware"
	"lookbook/api/models"
	"lookbook/api/store"
	"lookbook/api/utils"
)

// AdminStore is the subset of *store.UserStore the auth handlers need.
type AdminStore interface {
	CreateAdmin(ctx context.Context, email string, hashedPassword []byte) (*models.Admin, error)
	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)
}

type AuthHandlers struct {
	UserStore AdminStore
	JWT       *utils.JWTManager
	// SecureCookie marks the token cookie Secure; set in release mode.
	SecureCookie bool
}

func NewAuthHandlers(userStore AdminStore, jwt *utils.JWTManager, secureCookie bool) *AuthHandlers {
	return &AuthHandlers{UserStore: userStore, JWT: jwt, SecureCookie: secureCookie}
}

// CreateAdmin registers another back-office admin. Only reachable by an
// authenticated admin.
func (h *AuthHandlers) CreateAdmin(c *gin.Context) {
	var req models.CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	admin, err := h.UserStore.CreateAdmin(c.Request.Context(), req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "Admin with this email already exists"})
			return
		}
		log.Error().Err(err).Str("email", req.Email).Msg("failed to create admin")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create admin"})
		return
	}

	log.Info().
		Int("admin_id", admin.ID).
		Str("created_by", c.GetString(middleware.ContextAdminEmail)).
		Msg("admin registered")
	c.JSON(http.StatusCreated, gin.H{"message": "Admin created successfully", "admin": admin})
}

// Login handles admin authentication and JWT token creation.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	admin, err := h.UserStore.GetAdminByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("admin lookup failed during login")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify credentials"})
			return
		}
		log.Info().Str("email", req.Email).Msg("login failed: unknown email")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(admin.HashedPassword, []byte(req.Password)); err != nil {
		log.Info().Str("email", req.Email).Msg("login failed: password mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := h.JWT.GenerateJWT(admin)
	if err != nil {
		log.Error().Err(err).Int("admin_id", admin.ID).Msg("failed to generate JWT")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		middleware.TokenCookie,
		tokenString,
		int(h.JWT.TTL().Seconds()),
		"/",
		"",
		h.SecureCookie,
		true,
	)

	log.Info().Int("admin_id", admin.ID).Msg("admin logged in")
	c.JSON(http.StatusOK, gin.H{
		"message":     "Login successful",
		"token":       tokenString,
		"expires_in":  int(h.JWT.TTL().Seconds()),
		"admin_email": admin.Email,
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	// MaxAge -1 expires the cookie immediately.
	c.SetCookie(
		middleware.TokenCookie,
		"",
		-1,
		"/",
		"",
		h.SecureCookie,
		true,
	)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
