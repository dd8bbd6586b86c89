package scylla

import (
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"freightdesk/internal/domain/chat"
)

const conversationColumns = `id, admin_user_id, carrier_user_id, carrier_role, created_at, updated_at, last_message, last_message_sender_id, last_message_sender_role, last_message_at`

const messageColumns = `conversation_id, message_id, sender_id, sender_role, body, client_id, attachment_url, attachment_type, attachment_name, attachment_size, is_read, created_at`

type conversationRow struct {
	ID             gocql.UUID
	AdminUserID    string
	CarrierUserID  string
	CarrierRole    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastMessage    string
	LastSenderID   string
	LastSenderRole string
	LastMessageAt  time.Time
}

func (r *conversationRow) dest() []any {
	return []any{&r.ID, &r.AdminUserID, &r.CarrierUserID, &r.CarrierRole, &r.CreatedAt, &r.UpdatedAt, &r.LastMessage, &r.LastSenderID, &r.LastSenderRole, &r.LastMessageAt}
}

func (r conversationRow) toDomain() chat.Conversation {
	c := chat.Conversation{
		ID:                  r.ID.String(),
		AdminUserID:         r.AdminUserID,
		CarrierUserID:       r.CarrierUserID,
		LastMessage:         r.LastMessage,
		LastMessageSenderID: r.LastSenderID,
		LastMessageAt:       r.LastMessageAt.UTC(),
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
	if r.CarrierRole != "" {
		c.CarrierRole = chat.ParseRole(r.CarrierRole)
	}
	if r.LastSenderRole != "" {
		c.LastMessageSenderRole = chat.ParseRole(r.LastSenderRole)
	}
	return c
}

type messageRow struct {
	ConversationID gocql.UUID
	MessageID      gocql.UUID
	SenderID       string
	SenderRole     string
	Body           string
	ClientID       string
	AttachmentURL  string
	AttachmentType string
	AttachmentName string
	AttachmentSize int64
	IsRead         bool
	CreatedAt      time.Time
}

func (r *messageRow) dest() []any {
	return []any{&r.ConversationID, &r.MessageID, &r.SenderID, &r.SenderRole, &r.Body, &r.ClientID, &r.AttachmentURL, &r.AttachmentType, &r.AttachmentName, &r.AttachmentSize, &r.IsRead, &r.CreatedAt}
}

func (r messageRow) toDomain() chat.Message {
	m := chat.Message{
		ID:             r.MessageID.String(),
		ConversationID: r.ConversationID.String(),
		SenderID:       r.SenderID,
		SenderRole:     chat.ParseRole(r.SenderRole),
		Body:           r.Body,
		CreatedAt:      r.CreatedAt.UTC(),
		IsRead:         r.IsRead,
		ClientID:       r.ClientID,
	}
	if r.AttachmentURL != "" {
		m.Attachment = &chat.Attachment{URL: r.AttachmentURL, Type: r.AttachmentType, Name: r.AttachmentName, Size: r.AttachmentSize}
	}
	return m
}

func messageValues(convID, messageID gocql.UUID, m chat.Message) []any {
	var att chat.Attachment
	if m.Attachment != nil {
		att = *m.Attachment
	}
	return []any{convID, messageID, m.SenderID, string(m.SenderRole), m.Body, m.ClientID, att.URL, att.Type, att.Name, att.Size, m.IsRead, m.CreatedAt.UTC()}
}

// pairKey is the order-independent key of a two-party conversation.
func pairKey(a, b string) string {
	ids := []string{strings.TrimSpace(a), strings.TrimSpace(b)}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

func participants(a, b string) []string {
	if a == b {
		return []string{a}
	}
	return []string{a, b}
}
