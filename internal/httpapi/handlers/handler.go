package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/portfolio-platform/internal/archive"
	"github.com/suPer8Hu/portfolio-platform/internal/chat"
	"github.com/suPer8Hu/portfolio-platform/internal/common"
	"github.com/suPer8Hu/portfolio-platform/internal/config"
	"github.com/suPer8Hu/portfolio-platform/internal/httpapi/middleware"
	"github.com/suPer8Hu/portfolio-platform/internal/portfolio"
	"github.com/suPer8Hu/portfolio-platform/internal/store/redisstore"
	"gorm.io/gorm"
)

// LoginThrottle counts failed admin logins per username.
type LoginThrottle interface {
	LoginFailures(ctx context.Context, username string) (int64, error)
	RecordLoginFailure(ctx context.Context, username string, window time.Duration) (int64, error)
	ResetLoginFailures(ctx context.Context, username string) error
}

type Handler struct {
	Cfg       config.Config
	Portfolio *portfolio.Service
	Turns     *archive.Repo
	Sessions  *chat.Registry
	Throttle  LoginThrottle
}

// NewHandler wires the handlers. rds may be nil, which disables the profile
// cache and login throttling.
func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, sessions *chat.Registry) *Handler {
	var (
		cache    portfolio.ProfileCache
		throttle LoginThrottle
	)
	if rds != nil {
		cache, throttle = rds, rds
	}
	return &Handler{
		Cfg:       cfg,
		Portfolio: portfolio.NewService(portfolio.NewRepo(db), cache, cfg.ProfileCacheTTL, slog.Default()),
		Turns:     archive.NewRepo(db),
		Sessions:  sessions,
		Throttle:  throttle,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func logger(c *gin.Context) *slog.Logger {
	return slog.Default().With(slog.String("request_id", c.GetString(middleware.RequestIDKey)))
}
