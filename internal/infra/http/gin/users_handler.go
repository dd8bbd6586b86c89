package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"freightdesk/internal/app/chatsvc"
)

type UsersHTTP interface {
	Batch(c *gin.Context)
}

type UsersHandler struct {
	Service *chatsvc.Service
	Logger  *slog.Logger
}

// Batch resolves ?ids=a,b into directory records keyed by id.
func (h UsersHandler) Batch(c *gin.Context) {
	if _, ok := requireRole(c, ""); !ok {
		return
	}
	var ids []string
	for _, raw := range c.QueryArray("ids") {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		fail(c, http.StatusBadRequest, "ids is required")
		return
	}
	users, err := h.Service.LookupUsers(c.Request.Context(), ids)
	if err != nil {
		respondError(c, h.Logger, err, "lookup users", "count", len(ids))
		return
	}
	reply(c, http.StatusOK, users)
}

var _ UsersHTTP = UsersHandler{}
