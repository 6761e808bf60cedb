package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/portfolio-platform/internal/auth"
	"github.com/suPer8Hu/portfolio-platform/internal/common"
)

const (
	AdminIDKey  = "admin_id"
	UsernameKey = "username"
)

// AuthRequired accepts only requests carrying a valid admin bearer token.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(h, "Bearer ")
		token = strings.TrimSpace(token)
		if !found || token == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			return
		}

		claims, err := auth.ParseJWT(token, secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			return
		}

		c.Set(AdminIDKey, claims.Subject)
		c.Set(UsernameKey, claims.Username)
		c.Next()
	}
}
