package middleware

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"playlog/api/utils"
)

// AuthRequired accepts either the configured X-API-KEY (for batch tooling)
// or a valid JWT from the login cookie or Authorization header.
func AuthRequired(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != "" && apiKey == os.Getenv("AUTH_DEFAULT") {
			c.Next()
			return
		}

		tokenString, err := c.Cookie("jwt_token")
		if err != nil {
			tokenString = c.GetHeader("Authorization")
			if tokenString == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		}

		claims, err := utils.ValidateJWT(tokenString)
		if err != nil {
			log.Warn("invalid JWT token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Next()
	}
}
