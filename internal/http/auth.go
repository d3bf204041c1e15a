package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"torrentify/internal/service"
)

const usernameKey = "username"

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	if !h.authEnabled() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authentication is disabled"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.opts.Auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.opts.Logger.WithField("username", req.Username).Warn("failed login attempt")
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "authenticate", err)
		return
	}

	token, expires, err := h.opts.Auth.IssueToken(user)
	if err != nil {
		h.internalError(c, "issue token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expires,
		"user":      user,
	})
}

func (h *Handler) authStatus(c *gin.Context) {
	if !h.authEnabled() {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "authenticated": true})
		return
	}
	resp := gin.H{"enabled": true, "authenticated": false}
	if token := bearerToken(c, false); token != "" {
		if claims, err := h.opts.Auth.ParseToken(token); err == nil {
			resp["authenticated"] = true
			resp["username"] = claims.Username
		}
	}
	c.JSON(http.StatusOK, resp)
}

// authMiddleware requires a valid bearer token when auth is enabled.
// Browsers cannot set headers on websocket upgrades, so allowQuery also
// accepts ?token=.
func (h *Handler) authMiddleware(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authEnabled() {
			c.Next()
			return
		}
		token := bearerToken(c, allowQuery)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		claims, err := h.opts.Auth.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(usernameKey, claims.Username)
		c.Next()
	}
}

func (h *Handler) authEnabled() bool {
	return h.opts.Auth != nil && h.opts.Auth.Enabled()
}

func bearerToken(c *gin.Context, allowQuery bool) string {
	header := c.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if allowQuery {
		return c.Query("token")
	}
	return ""
}
