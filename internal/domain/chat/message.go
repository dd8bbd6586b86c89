package chat

import (
	"strings"
	"time"
)

// TempIDPrefix marks ids minted by a client before the server has persisted the message.
const TempIDPrefix = "temp-"

// IsTemporaryID reports whether id is a provisional client-side id.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Attachment describes a file stored alongside a message.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Message is a single chat message as stored and as shown in the widget.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	SenderRole     Role        `json:"sender_type"`
	Body           string      `json:"message"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	IsRead         bool        `json:"is_read"`
	ClientID       string      `json:"client_id,omitempty"`
}

func (m Message) attachmentName() string {
	if m.Attachment == nil {
		return ""
	}
	return m.Attachment.Name
}

// Preview is the text shown in conversation lists.
func (m Message) Preview() string {
	if body := strings.TrimSpace(m.Body); body != "" {
		return body
	}
	if name := m.attachmentName(); name != "" {
		return "📎 " + name
	}
	return ""
}

// SameIdentity reports whether a and b are known to be the same message by id:
// equal ids, or one side carrying the other's client id.
func SameIdentity(a, b Message) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if a.ClientID != "" && (a.ClientID == b.ID || a.ClientID == b.ClientID) {
		return true
	}
	return b.ClientID != "" && b.ClientID == a.ID
}

// SameContent reports whether a and b have the same sender, body and attachment
// name and were created no more than window apart.
func SameContent(a, b Message, window time.Duration) bool {
	if a.SenderID != b.SenderID || a.Body != b.Body || a.attachmentName() != b.attachmentName() {
		return false
	}
	delta := a.CreatedAt.Sub(b.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= window
}

// Matches combines SameIdentity and SameContent.
func Matches(a, b Message, window time.Duration) bool {
	return SameIdentity(a, b) || SameContent(a, b, window)
}

// BroadcastUser identifies the sender inside a broadcast frame.
type BroadcastUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// BroadcastMessage is the ephemeral low-latency copy of a message that peers
// exchange over the realtime channel before the durable copy exists.
type BroadcastMessage struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Content        string        `json:"content"`
	User           BroadcastUser `json:"user"`
	SenderRole     Role          `json:"sender_type,omitempty"`
	Attachment     *Attachment   `json:"attachment,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// NewBroadcast builds the broadcast copy of a locally sent message.
func NewBroadcast(m Message, senderName string) BroadcastMessage {
	return BroadcastMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Body,
		User:           BroadcastUser{ID: m.SenderID, Name: senderName},
		SenderRole:     m.SenderRole,
		Attachment:     m.Attachment,
		CreatedAt:      m.CreatedAt,
	}
}

// Message converts a broadcast into a provisional message. The sender role is
// a hint only; admin is assumed when the frame carries none.
func (b BroadcastMessage) Message() Message {
	role := b.SenderRole
	if role == "" {
		role = RoleAdmin
	}
	return Message{
		ID:             b.ID,
		ConversationID: b.ConversationID,
		SenderID:       b.User.ID,
		SenderRole:     role,
		Body:           b.Content,
		Attachment:     b.Attachment,
		CreatedAt:      b.CreatedAt,
		ClientID:       b.ID,
	}
}

// ChangeOp is the kind of row change carried by the durable change feed.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
)

// ChangeEvent is one durable change-feed notification for a message row.
type ChangeEvent struct {
	Op      ChangeOp `json:"event"`
	Message Message  `json:"payload"`
}

// OutgoingMessage is a send request from a client.
type OutgoingMessage struct {
	ConversationID string
	Body           string
	ClientID       string
	Upload         *Upload
}

// SendReceipt is the server acknowledgement of a persisted message.
type SendReceipt struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
