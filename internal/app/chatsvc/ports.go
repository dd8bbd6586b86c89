package chatsvc

import (
	"context"
	"io"
	"time"

	"freightdesk/internal/domain/chat"
)

// Store persists conversations, messages and per-user read markers.
type Store interface {
	// ListConversations returns the conversations userID takes part in, with
	// UnreadCount computed for userID.
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	FindConversation(ctx context.Context, userA, userB string) (chat.Conversation, error)
	CreateConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error)
	DeleteSelfConversations(ctx context.Context, userID string) (int, error)

	// AddMessage assigns an id when msg has none and updates the
	// conversation's last-message fields.
	AddMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	MessageByClientID(ctx context.Context, conversationID, clientID string) (chat.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	// MarkRead moves userID's read marker to at and returns the messages
	// whose read flag changed.
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) ([]chat.Message, error)
}

// Directory resolves user records for display names.
type Directory interface {
	Lookup(ctx context.Context, ids []string) (map[string]chat.UserInfo, error)
}

// Uploader stores attachment content and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error)
}
