package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"freightdesk/internal/app/chatsvc"
	"freightdesk/internal/domain/chat"
)

// ChatHTTP exposes the admin chat endpoints.
type ChatHTTP interface {
	ListConversations(c *gin.Context)
	OpenConversation(c *gin.Context)
	CleanupConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
}

type ChatHandler struct {
	Service *chatsvc.Service
	Logger  *slog.Logger
}

func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requireRole(c, chat.RoleAdmin)
	if !ok {
		return
	}
	convs, err := h.Service.ListConversations(c.Request.Context(), p)
	if err != nil {
		respondError(c, h.Logger, err, "list conversations", "user_id", p.ID)
		return
	}
	reply(c, http.StatusOK, convs)
}

// OpenConversation gets or creates the thread with user_id.
func (h ChatHandler) OpenConversation(c *gin.Context) {
	p, ok := requireRole(c, chat.RoleAdmin)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid payload")
		return
	}
	conv, created, err := h.Service.OpenConversation(c.Request.Context(), p, req.UserID)
	if err != nil {
		respondError(c, h.Logger, err, "open conversation", "user_id", p.ID, "peer_id", req.UserID)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	reply(c, status, gin.H{"conversation_id": conv.ID})
}

func (h ChatHandler) CleanupConversations(c *gin.Context) {
	p, ok := requireRole(c, chat.RoleAdmin)
	if !ok {
		return
	}
	if c.Query("cleanup") != "true" {
		fail(c, http.StatusBadRequest, "only cleanup=true is supported")
		return
	}
	n, err := h.Service.CleanupSelfConversations(c.Request.Context(), p)
	if err != nil {
		respondError(c, h.Logger, err, "cleanup conversations", "user_id", p.ID)
		return
	}
	reply(c, http.StatusOK, gin.H{"deleted_count": n})
}

func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireRole(c, chat.RoleAdmin)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	msgs, err := h.Service.History(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.Logger, err, "list messages", "conversation_id", id, "user_id", p.ID)
		return
	}
	reply(c, http.StatusOK, msgs)
}

// SendMessage accepts JSON {"message","client_id"} or a multipart form with
// message, file and client_id fields.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireRole(c, chat.RoleAdmin)
	if !ok {
		return
	}
	in := chatsvc.PostInput{ConversationID: strings.TrimSpace(c.Param("id"))}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		upload, err := readUpload(c)
		if err != nil {
			respondError(c, h.Logger, err, "read upload", "conversation_id", in.ConversationID)
			return
		}
		in.Body = c.PostForm("message")
		in.ClientID = c.PostForm("client_id")
		in.Upload = upload
	} else {
		var req struct {
			Message  string `json:"message"`
			ClientID string `json:"client_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid payload")
			return
		}
		in.Body = req.Message
		in.ClientID = req.ClientID
	}

	msg, err := h.Service.Post(c.Request.Context(), p, in)
	if err != nil {
		respondError(c, h.Logger, err, "send message", "conversation_id", in.ConversationID, "user_id", p.ID)
		return
	}
	reply(c, http.StatusCreated, chat.SendReceipt{ID: msg.ID, CreatedAt: msg.CreatedAt})
}

var errBadUpload = errors.New("invalid upload")

func readUpload(c *gin.Context) (*chat.Upload, error) {
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(errBadUpload, err)
	}
	contentType := fh.Header.Get("Content-Type")
	if err := chat.ValidateAttachment(fh.Filename, contentType, fh.Size); err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Join(errBadUpload, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, chat.MaxAttachmentBytes+1))
	if err != nil {
		return nil, errors.Join(errBadUpload, err)
	}
	return &chat.Upload{Name: fh.Filename, ContentType: contentType, Size: int64(len(data)), Data: data}, nil
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requireRole(c, chat.RoleAdmin)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	readAt, err := h.Service.MarkRead(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.Logger, err, "mark read", "conversation_id", id, "user_id", p.ID)
		return
	}
	reply(c, http.StatusOK, gin.H{"read_at": readAt})
}

var _ ChatHTTP = ChatHandler{}
