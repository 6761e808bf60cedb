package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/portfolio-platform/internal/auth"
	"github.com/suPer8Hu/portfolio-platform/internal/common"
	"github.com/suPer8Hu/portfolio-platform/internal/httpapi/middleware"
	"github.com/suPer8Hu/portfolio-platform/internal/portfolio"
	"gorm.io/gorm"
)

const (
	tokenTTL         = 24 * time.Hour
	maxLoginFailures = 5
	loginWindow      = 15 * time.Minute
)

func (h *Handler) AdminStatus(c *gin.Context) {
	exists, err := h.Portfolio.AdminExists(c.Request.Context())
	if err != nil {
		logger(c).Error("check admin", slog.String("error", err.Error()))
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	common.OK(c, gin.H{"admin_exists": exists})
}

type registerReq struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) RegisterAdmin(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	u, err := h.Portfolio.RegisterAdmin(c.Request.Context(), req.Username, req.Password, req.ConfirmPassword)
	if err != nil {
		var verr *portfolio.ValidationError
		switch {
		case errors.As(err, &verr):
			common.Fail(c, http.StatusBadRequest, 10002, verr.Error())
		case errors.Is(err, portfolio.ErrPasswordMismatch):
			common.Fail(c, http.StatusBadRequest, 10010, "passwords do not match")
		case errors.Is(err, portfolio.ErrPasswordTooShort):
			common.Fail(c, http.StatusBadRequest, 10011, "password must be at least 6 characters")
		case errors.Is(err, portfolio.ErrAdminExists):
			common.Fail(c, http.StatusForbidden, 40301, "admin already registered")
		case errors.Is(err, portfolio.ErrUsernameTaken):
			common.Fail(c, http.StatusConflict, 40901, "username already taken")
		default:
			logger(c).Error("register admin", slog.String("error", err.Error()))
			common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		}
		return
	}

	logger(c).Info("admin registered", slog.String("username", u.Username))
	common.OK(c, gin.H{"id": u.ID, "username": u.Username})
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "username and password required")
		return
	}
	ctx := c.Request.Context()
	username := strings.TrimSpace(req.Username)
	log := logger(c).With(slog.String("username", username))

	if h.Throttle != nil {
		n, err := h.Throttle.LoginFailures(ctx, username)
		if err != nil {
			log.Warn("read login failures", slog.String("error", err.Error()))
		} else if n >= maxLoginFailures {
			common.Fail(c, http.StatusTooManyRequests, 42901, "too many failed attempts, try again later")
			return
		}
	}

	u, err := h.Portfolio.Authenticate(ctx, username, req.Password)
	if err != nil {
		if errors.Is(err, portfolio.ErrInvalidCredentials) {
			if h.Throttle != nil {
				if _, terr := h.Throttle.RecordLoginFailure(ctx, username, loginWindow); terr != nil {
					log.Warn("record login failure", slog.String("error", terr.Error()))
				}
			}
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid username or password")
			return
		}
		log.Error("authenticate", slog.String("error", err.Error()))
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}

	if h.Throttle != nil {
		if err := h.Throttle.ResetLoginFailures(ctx, username); err != nil {
			log.Warn("reset login failures", slog.String("error", err.Error()))
		}
	}

	token, err := auth.SignJWT(u.ID, u.Username, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	common.OK(c, gin.H{
		"token":      token,
		"username":   u.Username,
		"expires_in": int(tokenTTL.Seconds()),
	})
}

func (h *Handler) Me(c *gin.Context) {
	common.OK(c, gin.H{
		"id":       c.GetString(middleware.AdminIDKey),
		"username": c.GetString(middleware.UsernameKey),
	})
}

func (h *Handler) ListEntities(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	rows, err := h.Portfolio.List(c.Request.Context(), kind)
	if err != nil {
		h.failPortfolio(c, err)
		return
	}
	common.OK(c, gin.H{"kind": kind, "items": rows})
}

func (h *Handler) CreateEntity(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	d, ok := decodeDraft(c, kind)
	if !ok {
		return
	}
	row, err := h.Portfolio.Create(c.Request.Context(), d)
	if err != nil {
		h.failPortfolio(c, err)
		return
	}
	common.OK(c, row)
}

func (h *Handler) UpdateEntity(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	d, ok := decodeDraft(c, kind)
	if !ok {
		return
	}
	row, err := h.Portfolio.Update(c.Request.Context(), kind, c.Param("id"), d)
	if err != nil {
		h.failPortfolio(c, err)
		return
	}
	common.OK(c, row)
}

func (h *Handler) DeleteEntity(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	if err := h.Portfolio.Delete(c.Request.Context(), kind, c.Param("id")); err != nil {
		h.failPortfolio(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": c.Param("id")})
}

func parseKind(c *gin.Context) (portfolio.Kind, bool) {
	kind, err := portfolio.ParseKind(c.Param("kind"))
	if err != nil {
		common.Fail(c, http.StatusNotFound, 40402, "unknown entity kind")
		return "", false
	}
	return kind, true
}

func decodeDraft(c *gin.Context, kind portfolio.Kind) (portfolio.Draft, bool) {
	body, err := c.GetRawData()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid body")
		return nil, false
	}
	d, err := portfolio.DecodeDraft(kind, body)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return nil, false
	}
	return d, true
}

func (h *Handler) failPortfolio(c *gin.Context, err error) {
	var verr *portfolio.ValidationError
	switch {
	case errors.As(err, &verr):
		common.Fail(c, http.StatusBadRequest, 10002, verr.Error())
	case errors.Is(err, portfolio.ErrInvalidReference):
		common.Fail(c, http.StatusBadRequest, 10003, "referenced row does not exist")
	case errors.Is(err, portfolio.ErrKindMismatch):
		common.Fail(c, http.StatusBadRequest, 10004, "entity kind mismatch")
	case errors.Is(err, gorm.ErrRecordNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "not found")
	default:
		logger(c).Error("portfolio write", slog.String("error", err.Error()))
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
	}
}
