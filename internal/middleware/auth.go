package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatsync/internal/auth"
	"chatsync/internal/domain"
	"chatsync/internal/transport/httpdto"
	"chatsync/pkg/logger"
)

const sessionKey = "chat.session"

// Auth authenticates the request with a bearer token and stashes the
// resulting session on the gin context.
func Auth(service *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := service.Parse(extractBearer(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		session := claims.Session()
		c.Set(sessionKey, session)
		ctx := context.WithValue(c.Request.Context(), logger.UserIdKey, session.UserID())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SessionFrom returns the session Auth stashed on the context.
func SessionFrom(c *gin.Context) (domain.Session, bool) {
	value, ok := c.Get(sessionKey)
	if !ok {
		return domain.Session{}, false
	}
	session, ok := value.(domain.Session)
	return session, ok
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
