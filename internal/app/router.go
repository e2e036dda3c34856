// internal/app/router.go
package app

import (
	authHandler "questa-service/internal/handlers/auth"
	profileHandler "questa-service/internal/handlers/profile"
	wsHandler "questa-service/internal/handlers/websocket"
	"questa-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	ProfileHandler *profileHandler.ProfileHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
	AvatarDir      string
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Avatar assets ====================
	r.Static("/storage/avatars", h.AvatarDir)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/signup", h.AuthHandler.SignUp)
		authPublic.POST("/signin", h.AuthHandler.SignIn)
		authPublic.GET("/confirm", h.AuthHandler.ConfirmEmail)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/signout", h.AuthHandler.SignOut)
		authProtected.POST("/refresh", h.AuthHandler.Refresh)
		authProtected.GET("/session", h.AuthHandler.Session)
	}

	// ==================== Profiles ====================
	profiles := api.Group("/profiles")
	profiles.Use(h.AuthMiddleware.Auth())
	{
		profiles.GET("/me", h.ProfileHandler.GetMe)
		profiles.PUT("/me", h.ProfileHandler.Submit)
	}

	// ==================== WebSocket stats ====================
	wsStats := api.Group("/ws")
	wsStats.Use(h.AuthMiddleware.Auth())
	{
		wsStats.GET("/stats", h.WSHandler.GetStats)
	}
}
