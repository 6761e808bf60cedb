package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/portfolio-platform/internal/common"
	"gorm.io/gorm"
)

// GetProfile serves the site owner's profile with careers and projects.
func (h *Handler) GetProfile(c *gin.Context) {
	h.profileView(c, "")
}

func (h *Handler) GetProfileByID(c *gin.Context) {
	h.profileView(c, c.Param("id"))
}

func (h *Handler) profileView(c *gin.Context, id string) {
	view, err := h.Portfolio.ProfileView(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "profile not found")
			return
		}
		logger(c).Error("load profile", slog.String("profile_id", id), slog.String("error", err.Error()))
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	common.OK(c, view)
}
