package chat

import (
	"strings"
	"time"
)

// Conversation is a two-party thread between an admin and a carrier (or another admin).
type Conversation struct {
	ID                    string    `json:"id"`
	AdminUserID           string    `json:"admin_user_id"`
	CarrierUserID         string    `json:"carrier_user_id"`
	CarrierRole           Role      `json:"carrier_role,omitempty"`
	WithRole              Role      `json:"conversation_with_type,omitempty"`
	LastMessage           string    `json:"last_message,omitempty"`
	LastMessageSenderID   string    `json:"last_message_sender_id,omitempty"`
	LastMessageSenderRole Role      `json:"last_message_sender_type,omitempty"`
	LastMessageAt         time.Time `json:"last_message_at,omitempty"`
	UnreadCount           int       `json:"unread_count"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// IsSelfConversation reports the degenerate case of both slots holding the same user.
func (c Conversation) IsSelfConversation() bool {
	return c.AdminUserID != "" && c.AdminUserID == c.CarrierUserID
}

func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.AdminUserID == userID || c.CarrierUserID == userID)
}

// Counterpart returns the id of the participant that is not viewerID.
func (c Conversation) Counterpart(viewerID string) string {
	if c.AdminUserID == viewerID {
		return c.CarrierUserID
	}
	return c.AdminUserID
}

// CounterpartRole returns the role of the participant that is not viewerID.
func (c Conversation) CounterpartRole(viewerID string) Role {
	if c.AdminUserID == viewerID {
		if c.CarrierRole == "" {
			return RoleCarrier
		}
		return c.CarrierRole
	}
	return RoleAdmin
}

// ForViewer fills the viewer-relative WithRole field.
func (c Conversation) ForViewer(viewerID string) Conversation {
	c.WithRole = c.CounterpartRole(viewerID)
	return c
}

// LastActivity is the last message time, or the creation time for empty threads.
func (c Conversation) LastActivity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// Snippet trims a message body to the preview length stored on conversations.
func Snippet(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}

// PreviewLength bounds the last-message snippet stored on a conversation.
const PreviewLength = 160

// WithLastMessage records m as the newest message of c.
func (c Conversation) WithLastMessage(m Message) Conversation {
	c.LastMessage = Snippet(m.Preview(), PreviewLength)
	c.LastMessageSenderID = m.SenderID
	c.LastMessageSenderRole = m.SenderRole
	c.LastMessageAt = m.CreatedAt
	c.UpdatedAt = m.CreatedAt
	return c
}

// UnreadFor reports whether m counts as unread for viewerID given the
// viewer's read marker.
func UnreadFor(m Message, viewerID string, readAt time.Time) bool {
	if m.SenderID == viewerID {
		return false
	}
	return m.CreatedAt.After(readAt)
}
