package scylla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"freightdesk/internal/domain/chat"
)

// Store keeps conversations, messages and read markers in Scylla.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	return &Store{session: session, logger: logger}
}

var errNoSession = errors.New("scylla session not initialized")

func parseID(id string, notFound error) (gocql.UUID, error) {
	uuid, err := gocql.ParseUUID(strings.TrimSpace(id))
	if err != nil {
		return gocql.UUID{}, notFound
	}
	return uuid, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	iter := s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE participants CONTAINS ? ALLOW FILTERING`, userID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	var (
		row   conversationRow
		convs []chat.Conversation
	)
	for iter.Scan(row.dest()...) {
		convs = append(convs, row.toDomain())
		row = conversationRow{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	reads, err := s.readMarkers(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		n, err := s.countUnread(ctx, convs[i].ID, userID, reads[convs[i].ID])
		if err != nil {
			return nil, err
		}
		convs[i].UnreadCount = n
	}
	return convs, nil
}

func (s *Store) readMarkers(ctx context.Context, userID string) (map[string]time.Time, error) {
	iter := s.session.
		Query(`SELECT conversation_id, read_at FROM conversation_reads WHERE user_id = ?`, userID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	out := make(map[string]time.Time)
	var (
		convID gocql.UUID
		readAt time.Time
	)
	for iter.Scan(&convID, &readAt) {
		out[convID.String()] = readAt
	}
	return out, iter.Close()
}

func (s *Store) countUnread(ctx context.Context, conversationID, userID string, readAt time.Time) (int, error) {
	convID, err := parseID(conversationID, chat.ErrConversationNotFound)
	if err != nil {
		return 0, err
	}
	iter := s.session.
		Query(`SELECT sender_id, created_at FROM messages WHERE conversation_id = ? AND message_id > ?`, convID, gocql.MaxTimeUUID(readAt)).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	n := 0
	var (
		sender    string
		createdAt time.Time
	)
	for iter.Scan(&sender, &createdAt) {
		if chat.UnreadFor(chat.Message{SenderID: sender, CreatedAt: createdAt}, userID, readAt) {
			n++
		}
	}
	return n, iter.Close()
}

func (s *Store) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	if s.session == nil {
		return chat.Conversation{}, errNoSession
	}
	uuid, err := parseID(id, chat.ErrConversationNotFound)
	if err != nil {
		return chat.Conversation{}, err
	}
	var row conversationRow
	err = s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE id = ? LIMIT 1`, uuid).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(row.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) FindConversation(ctx context.Context, userA, userB string) (chat.Conversation, error) {
	if s.session == nil {
		return chat.Conversation{}, errNoSession
	}
	var row conversationRow
	err := s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE pair_key = ? LIMIT 1`, pairKey(userA, userB)).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(row.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) CreateConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	if s.session == nil {
		return chat.Conversation{}, errNoSession
	}
	id := gocql.TimeUUID()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	err := s.session.
		Query(`INSERT INTO conversations (id, admin_user_id, carrier_user_id, carrier_role, participants, pair_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, conv.AdminUserID, conv.CarrierUserID, string(conv.CarrierRole),
			participants(conv.AdminUserID, conv.CarrierUserID), pairKey(conv.AdminUserID, conv.CarrierUserID),
			conv.CreatedAt, conv.UpdatedAt.UTC()).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
	if err != nil {
		return chat.Conversation{}, err
	}
	conv.ID = id.String()
	conv.UnreadCount = 0
	conv.WithRole = ""
	return conv, nil
}

func (s *Store) DeleteSelfConversations(ctx context.Context, userID string) (int, error) {
	if s.session == nil {
		return 0, errNoSession
	}
	var ids []gocql.UUID
	iter := s.session.
		Query(`SELECT id FROM conversations WHERE pair_key = ?`, pairKey(userID, userID)).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	var id gocql.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	for i, id := range ids {
		batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
		batch.Query(`DELETE FROM messages WHERE conversation_id = ?`, id)
		batch.Query(`DELETE FROM conversation_reads WHERE user_id = ? AND conversation_id = ?`, userID, id)
		batch.Query(`DELETE FROM conversations WHERE id = ?`, id)
		if err := s.session.ExecuteBatch(batch); err != nil {
			return i, fmt.Errorf("delete conversation %s: %w", id, err)
		}
	}
	return len(ids), nil
}

func (s *Store) AddMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if s.session == nil {
		return chat.Message{}, errNoSession
	}
	conv, err := s.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return chat.Message{}, err
	}
	convID, _ := gocql.ParseUUID(conv.ID)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	messageID := gocql.UUIDFromTime(msg.CreatedAt)
	msg.ID = messageID.String()

	err = s.session.
		Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, messageValues(convID, messageID, msg)...).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
	if err != nil {
		return chat.Message{}, err
	}
	if msg.ClientID != "" {
		if err := s.session.
			Query(`INSERT INTO messages_by_client (conversation_id, client_id, message_id) VALUES (?, ?, ?)`, convID, msg.ClientID, messageID).
			WithContext(ctx).
			Exec(); err != nil && s.logger != nil {
			s.logger.Warn("failed to index client id", "error", err, "conversation_id", conv.ID, "client_id", msg.ClientID)
		}
	}

	latest := conv.WithLastMessage(msg)
	// best-effort update of the list preview
	if err := s.session.
		Query(`UPDATE conversations SET last_message = ?, last_message_sender_id = ?, last_message_sender_role = ?, last_message_at = ?, updated_at = ? WHERE id = ?`,
			latest.LastMessage, latest.LastMessageSenderID, string(latest.LastMessageSenderRole), latest.LastMessageAt, latest.UpdatedAt, convID).
		WithContext(ctx).
		Consistency(gocql.One).
		Exec(); err != nil && s.logger != nil {
		s.logger.Warn("failed to update last message meta", "error", err, "conversation_id", conv.ID)
	}
	return msg, nil
}

func (s *Store) MessageByClientID(ctx context.Context, conversationID, clientID string) (chat.Message, error) {
	if s.session == nil {
		return chat.Message{}, errNoSession
	}
	convID, err := parseID(conversationID, chat.ErrConversationNotFound)
	if err != nil {
		return chat.Message{}, err
	}
	var messageID gocql.UUID
	err = s.session.
		Query(`SELECT message_id FROM messages_by_client WHERE conversation_id = ? AND client_id = ?`, convID, clientID).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(&messageID)
	if errors.Is(err, gocql.ErrNotFound) {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	if err != nil {
		return chat.Message{}, err
	}
	var row messageRow
	err = s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND message_id = ?`, convID, messageID).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(row.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	if err != nil {
		return chat.Message{}, err
	}
	return row.toDomain(), nil
}

// ListMessages returns the whole thread oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	convID, _ := gocql.ParseUUID(strings.TrimSpace(conversationID))
	iter := s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ?`, convID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	messages := make([]chat.Message, 0)
	var row messageRow
	for iter.Scan(row.dest()...) {
		messages = append(messages, row.toDomain())
		row = messageRow{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	convID, _ := gocql.ParseUUID(strings.TrimSpace(conversationID))
	at = at.UTC()
	if err := s.session.
		Query(`INSERT INTO conversation_reads (user_id, conversation_id, read_at) VALUES (?, ?, ?)`, userID, convID, at).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return nil, err
	}

	iter := s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND message_id <= ?`, convID, gocql.MaxTimeUUID(at)).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	var (
		row     messageRow
		changed []chat.Message
	)
	for iter.Scan(row.dest()...) {
		if !row.IsRead && row.SenderID != userID {
			m := row.toDomain()
			m.IsRead = true
			changed = append(changed, m)
		}
		row = messageRow{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	for _, m := range changed {
		messageID, _ := gocql.ParseUUID(m.ID)
		if err := s.session.
			Query(`UPDATE messages SET is_read = true WHERE conversation_id = ? AND message_id = ?`, convID, messageID).
			WithContext(ctx).
			Exec(); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

// Ping runs a trivial query for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if s.session == nil {
		return errNoSession
	}
	return s.session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Exec()
}
