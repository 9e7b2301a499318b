package middleware

import (
	"net/http"

	"chypto_bot/pkg/auth"
	"chypto_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SelfOnly lets an authenticated user read only the account named by the path param.
func SelfOnly(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		telegramUser, ok := auth.FromContext(c)
		if !ok {
			log.Error("telegram user data not found in context")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if telegramUser.UserID() != c.Param(param) {
			log.Info("access to foreign account denied",
				zap.String("user_id", telegramUser.UserID()),
				zap.String("account_id", c.Param(param)))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access to this account is not allowed"})
			return
		}

		c.Next()
	}
}
