package chat

import "errors"

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrNotParticipant       = errors.New("chat: not a conversation participant")
	ErrSelfConversation     = errors.New("chat: cannot start a conversation with yourself")
	ErrEmptyMessage         = errors.New("chat: message body or attachment is required")
	ErrAttachmentTooLarge   = errors.New("chat: attachment exceeds 10MB")
	ErrAttachmentType       = errors.New("chat: attachment type not allowed")
	ErrUserIDRequired       = errors.New("chat: user id is required")
	ErrMessageNotFound      = errors.New("chat: message not found")
	ErrTooManyUsers         = errors.New("chat: too many user ids")
)
