package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"freightdesk/internal/app/chatsvc"
	"freightdesk/internal/infra/realtime"
)

type RealtimeHTTP interface {
	Connect(c *gin.Context)
}

// RealtimeHandler upgrades participants of ?room=<conversation id> to a websocket.
type RealtimeHandler struct {
	Service *chatsvc.Service
	Hub     *realtime.Hub
	Logger  *slog.Logger
}

func (h RealtimeHandler) Connect(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	room := strings.TrimSpace(c.Query("room"))
	if room == "" {
		fail(c, http.StatusBadRequest, "room is required")
		return
	}
	if _, err := h.Service.Conversation(c.Request.Context(), p, room); err != nil {
		respondError(c, h.Logger, err, "join room", "room", room, "user_id", p.ID)
		return
	}
	if err := h.Hub.Serve(c.Writer, c.Request, p, room); err != nil && h.Logger != nil {
		h.Logger.Warn("websocket upgrade failed", "room", room, "user_id", p.ID, "error", err)
	}
}

var _ RealtimeHTTP = RealtimeHandler{}
