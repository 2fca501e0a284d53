// Package handler exposes the authentication flow over HTTP. The transport is
// a thin shell: it binds JSON, delegates to the service, and maps sentinel
// errors to statuses.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"authcore/internal/auth/service"
)

// AuthService is the service surface the HTTP layer depends on.
type AuthService interface {
	Authenticate(ctx context.Context, username, password string) (*service.TokenIssuanceResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenIssuanceResult, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler returns an AuthHandler backed by the given service.
func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register mounts the auth routes on the router.
func (h *AuthHandler) Register(r *gin.Engine) {
	v1 := r.Group("/v1/auth")
	v1.POST("/login", h.login)
	v1.POST("/refresh", h.refresh)
	v1.POST("/logout", h.logout)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
}

func toTokenResponse(res *service.TokenIssuanceResult) tokenResponse {
	return tokenResponse{
		AccessToken:      res.AccessToken,
		TokenType:        "Bearer",
		IssuedAt:         res.IssuedAt,
		ExpiresAt:        res.ExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshRecord.ExpiresAt,
		UserID:           res.UserID,
	}
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	res, err := h.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(res))
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(res))
}

func (h *AuthHandler) logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.auth.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// writeAuthError maps service sentinels to HTTP statuses. Unknown-username and
// wrong-password failures share one response shape so the endpoint does not
// leak which usernames exist.
func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, service.ErrInvalidRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
	case errors.Is(err, service.ErrAccountDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "account_disabled"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
