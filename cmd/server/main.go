package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/portfolio-platform/internal/archive"
	"github.com/suPer8Hu/portfolio-platform/internal/chat"
	"github.com/suPer8Hu/portfolio-platform/internal/common"
	"github.com/suPer8Hu/portfolio-platform/internal/config"
	"github.com/suPer8Hu/portfolio-platform/internal/db"
	"github.com/suPer8Hu/portfolio-platform/internal/httpapi"
	"github.com/suPer8Hu/portfolio-platform/internal/portfolio"
	"github.com/suPer8Hu/portfolio-platform/internal/store/rabbitmq"
	"github.com/suPer8Hu/portfolio-platform/internal/store/redisstore"
)

const (
	sessionTTL    = time.Hour
	pruneInterval = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)
	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Error("connect db", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := db.Migrate(gdb, append(portfolio.Models(), &archive.TurnRecord{})...); err != nil {
		logger.Error("migrate", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// redis is optional: without it the profile is read uncached and logins
	// are not throttled
	var rds *redisstore.Store
	if cfg.RedisAddr != "" {
		rds = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rds.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", slog.String("error", err.Error()))
			_ = rds.Close()
			rds = nil
		} else {
			defer rds.Close()
		}
	}

	var pub *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		pub, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Warn("rabbitmq unavailable, turns will not be archived", slog.String("error", err.Error()))
			pub = nil
		} else {
			defer pub.Close()
		}
	}

	if cfg.ChatAPIBaseURL == "" {
		logger.Warn("CHAT_API_BASE_URL not set, chat is disabled")
	}
	sessions := chat.NewRegistry(common.NewULID, func(id string) *chat.Session {
		opts := []chat.Option{
			chat.WithID(id),
			chat.WithLogger(logger),
			chat.WithIdleTimeout(cfg.ChatStreamIdleTimeout),
		}
		if pub != nil {
			opts = append(opts, chat.WithTurnHook(archiveTurn(pub, logger)))
		}
		return chat.NewSession(chat.NewClient(cfg.ChatAPIBaseURL, cfg.ChatLegacyEndpoint), cfg.ChatProfileID, opts...)
	})
	go pruneSessions(ctx, sessions, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(gdb, cfg, rds, sessions),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.String("error", err.Error()))
	}
}

// archiveTurn publishes every finished turn for the worker to persist.
func archiveTurn(pub *rabbitmq.Publisher, logger *slog.Logger) func(chat.Turn) {
	return func(t chat.Turn) {
		id, err := common.NewULID()
		if err != nil {
			logger.Error("turn id", slog.String("error", err.Error()))
			return
		}
		if err := pub.PublishTurn(context.Background(), archive.Message{ID: id, Turn: t}); err != nil {
			logger.Error("publish turn",
				slog.String("session_id", t.SessionID),
				slog.String("turn_id", id),
				slog.String("error", err.Error()))
		}
	}
}

func pruneSessions(ctx context.Context, sessions *chat.Registry, logger *slog.Logger) {
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := sessions.Prune(now.Add(-sessionTTL)); n > 0 {
				logger.Info("pruned idle chat sessions", slog.Int("count", n), slog.Int("live", sessions.Len()))
			}
		}
	}
}
