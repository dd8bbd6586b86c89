package ginserver

import (
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"freightdesk/internal/domain/chat"
	"freightdesk/internal/infra/realtime"
)

const principalContextKey = "freightdesk.principal"

// PrincipalMiddleware reads the caller identity set by the upstream gateway.
// Requests without X-User-ID stay anonymous.
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(realtime.HeaderUserID))
		if id != "" {
			c.Set(principalContextKey, chat.Participant{
				ID:   id,
				Role: chat.ParseRole(c.GetHeader(realtime.HeaderUserRole)),
			})
		}
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) (chat.Participant, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return chat.Participant{}, false
	}
	p, ok := val.(chat.Participant)
	return p, ok
}

func requireRole(c *gin.Context, role chat.Role) (chat.Participant, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "auth required")
		return chat.Participant{}, false
	}
	if role != "" && p.Role != role {
		fail(c, http.StatusForbidden, "insufficient permissions")
		return chat.Participant{}, false
	}
	return p, true
}
