package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"freightdesk/internal/app/chatsvc"
	"freightdesk/internal/domain/chat"
)

func reply(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"ok": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// respondError maps service errors to statuses. Unknown errors are logged and
// reported as 500 without detail.
func respondError(c *gin.Context, logger *slog.Logger, err error, action string, attrs ...any) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		if logger != nil {
			logger.Error("chat request failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
	}
	fail(c, status, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return http.StatusNotFound, "conversation not found"
	case errors.Is(err, chat.ErrNotParticipant):
		return http.StatusForbidden, "not a chat participant"
	case errors.Is(err, chat.ErrSelfConversation):
		return http.StatusBadRequest, "cannot start a conversation with yourself"
	case errors.Is(err, chat.ErrUserIDRequired):
		return http.StatusBadRequest, "user_id is required"
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "message or file is required"
	case errors.Is(err, chat.ErrTooManyUsers):
		return http.StatusBadRequest, "at most 100 ids per request"
	case errors.Is(err, chat.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge, "file size must be less than 10MB"
	case errors.Is(err, chat.ErrAttachmentType):
		return http.StatusUnsupportedMediaType, "only JPEG, PNG and PDF files are allowed"
	case errors.Is(err, errBadUpload):
		return http.StatusBadRequest, "invalid upload"
	case errors.Is(err, chatsvc.ErrAttachmentsUnavailable):
		return http.StatusServiceUnavailable, "attachments unavailable"
	case errors.Is(err, chatsvc.ErrChangeFeedUnavailable):
		return http.StatusServiceUnavailable, "message stored but not delivered, reload the conversation"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
