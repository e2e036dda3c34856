// internal/middleware/auth_middleware.go
package middleware

import (
	"net/http"
	"strings"

	"questa-service/internal/pkg/jwt"
	"questa-service/internal/pkg/response"
	"questa-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	jwtManager *jwt.Manager
	sessions   *session.Store
}

func NewAuthMiddleware(jwtManager *jwt.Manager, sessions *session.Store) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		sessions:   sessions,
	}
}

// Auth validates the bearer token and checks that its session is still
// live in Redis. A revoked or expired session fails even when the token
// itself still verifies.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.jwtManager.VerifyAccessToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		if _, err := m.sessions.Get(c.Request.Context(), claims.IdentityID, claims.ID); err != nil {
			response.Error(c, http.StatusUnauthorized, "session is no longer active", nil)
			return
		}

		// Set user context
		c.Set("identity_id", claims.IdentityID)
		c.Set("jti", claims.ID)
		c.Set("email", claims.Email)
		c.Set("access_token", token)

		c.Next()
	}
}

// OptionalAuth middleware that doesn't abort if no token is provided
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := m.jwtManager.VerifyAccessToken(token)
		if err != nil {
			// Don't abort, just continue without setting user context
			c.Next()
			return
		}

		c.Set("identity_id", claims.IdentityID)
		c.Set("jti", claims.ID)
		c.Set("email", claims.Email)
		c.Set("access_token", token)

		c.Next()
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	// Try header first
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// Fallback to query param for websocket upgrades
	token := c.Query("token")
	if token != "" {
		return token
	}

	return ""
}

// GetIdentityID returns the authenticated identity id from context
func GetIdentityID(c *gin.Context) (string, bool) {
	identityID, exists := c.Get("identity_id")
	if !exists {
		return "", false
	}

	id, ok := identityID.(string)
	return id, ok
}

// GetJTI returns the token id from context
func GetJTI(c *gin.Context) (string, bool) {
	jti, exists := c.Get("jti")
	if !exists {
		return "", false
	}

	jtiStr, ok := jti.(string)
	return jtiStr, ok
}

// GetAccessToken returns the raw bearer token from context
func GetAccessToken(c *gin.Context) (string, bool) {
	token, exists := c.Get("access_token")
	if !exists {
		return "", false
	}

	tokenStr, ok := token.(string)
	return tokenStr, ok
}
