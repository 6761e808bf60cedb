package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/portfolio-platform/internal/chat"
	"github.com/suPer8Hu/portfolio-platform/internal/common"
	"github.com/suPer8Hu/portfolio-platform/internal/config"
	"github.com/suPer8Hu/portfolio-platform/internal/httpapi/handlers"
	"github.com/suPer8Hu/portfolio-platform/internal/httpapi/middleware"
	"github.com/suPer8Hu/portfolio-platform/internal/store/redisstore"
	"gorm.io/gorm"
)

// NewRouter builds the HTTP API. rds may be nil when Redis is unavailable.
func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, sessions *chat.Registry) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	h := handlers.NewHandler(db, cfg, rds, sessions)

	r.GET("/ping", h.Ping)

	// public portfolio
	r.GET("/api/profile", h.GetProfile)
	r.GET("/api/profiles/:id", h.GetProfileByID)

	// chat relay
	r.POST("/chat/sessions", h.CreateChatSession)
	r.GET("/chat/sessions/:session_id/messages", h.ListChatMessages)
	r.POST("/chat/sessions/:session_id/messages", h.StreamChatMessage)
	r.DELETE("/chat/sessions/:session_id", h.DeleteChatSession)

	// admin auth
	r.GET("/admin/status", h.AdminStatus)
	r.POST("/admin/register", h.RegisterAdmin)
	r.POST("/admin/login", h.Login)

	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	adminGroup.GET("/me", h.Me)
	adminGroup.GET("/entities/:kind", h.ListEntities)
	adminGroup.POST("/entities/:kind", h.CreateEntity)
	adminGroup.PUT("/entities/:kind/:id", h.UpdateEntity)
	adminGroup.DELETE("/entities/:kind/:id", h.DeleteEntity)
	adminGroup.GET("/chat/turns", h.ListChatTurns)
	adminGroup.GET("/chat/turns/:turn_id", h.GetChatTurn)
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Last-Event-ID", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
