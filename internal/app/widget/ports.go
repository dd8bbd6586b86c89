package widget

import (
	"context"

	"freightdesk/internal/domain/chat"
)

// API is the chat backend as seen by the widget.
type API interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	// ListMessages returns chat.ErrConversationNotFound when the thread is gone.
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	SendMessage(ctx context.Context, msg chat.OutgoingMessage) (chat.SendReceipt, error)
	MarkRead(ctx context.Context, conversationID string) error
	LookupUsers(ctx context.Context, ids []string) (map[string]chat.UserInfo, error)
	CleanupSelfConversations(ctx context.Context) (int, error)
}

// Broadcaster publishes ephemeral copies of outgoing messages to peers.
type Broadcaster interface {
	Publish(ctx context.Context, msg chat.BroadcastMessage) error
}

// Notifier surfaces user-facing toasts.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}
