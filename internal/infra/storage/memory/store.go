package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"freightdesk/internal/domain/chat"
)

// ChatStore keeps conversations, messages and read markers in memory. It is
// used for local runs and tests.
type ChatStore struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
	reads         map[readKey]time.Time
	newID         func() string
}

type readKey struct {
	conversationID string
	userID         string
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
		reads:         make(map[readKey]time.Time),
		newID:         uuid.NewString,
	}
}

func (s *ChatStore) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Conversation, 0)
	for _, c := range s.conversations {
		if !c.HasParticipant(userID) {
			continue
		}
		c.UnreadCount = s.unreadLocked(c.ID, userID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ChatStore) unreadLocked(conversationID, userID string) int {
	readAt := s.reads[readKey{conversationID, userID}]
	n := 0
	for _, m := range s.messages[conversationID] {
		if chat.UnreadFor(m, userID, readAt) {
			n++
		}
	}
	return n
}

func (s *ChatStore) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	return c, nil
}

// FindConversation matches userA and userB in either slot.
func (s *ChatStore) FindConversation(ctx context.Context, userA, userB string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if (c.AdminUserID == userA && c.CarrierUserID == userB) || (c.AdminUserID == userB && c.CarrierUserID == userA) {
			return c, nil
		}
	}
	return chat.Conversation{}, chat.ErrConversationNotFound
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = s.newID()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	conv.UnreadCount = 0
	conv.WithRole = ""
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *ChatStore) DeleteSelfConversations(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.conversations {
		if !c.IsSelfConversation() || c.AdminUserID != userID {
			continue
		}
		delete(s.conversations, id)
		delete(s.messages, id)
		delete(s.reads, readKey{id, userID})
		n++
	}
	return n, nil
}

func (s *ChatStore) AddMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return chat.Message{}, chat.ErrConversationNotFound
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	list := append(s.messages[msg.ConversationID], msg)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	s.messages[msg.ConversationID] = list
	if !msg.CreatedAt.Before(conv.LastActivity()) {
		s.conversations[conv.ID] = conv.WithLastMessage(msg)
	}
	return msg, nil
}

func (s *ChatStore) MessageByClientID(ctx context.Context, conversationID, clientID string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages[conversationID] {
		if clientID != "" && m.ClientID == clientID {
			return m, nil
		}
	}
	return chat.Message{}, chat.ErrMessageNotFound
}

func (s *ChatStore) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, chat.ErrConversationNotFound
	}
	list := s.messages[conversationID]
	out := make([]chat.Message, len(list))
	copy(out, list)
	return out, nil
}

func (s *ChatStore) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, chat.ErrConversationNotFound
	}
	key := readKey{conversationID, userID}
	if at.After(s.reads[key]) {
		s.reads[key] = at
	}
	var changed []chat.Message
	list := s.messages[conversationID]
	for i := range list {
		m := &list[i]
		if m.IsRead || m.SenderID == userID || m.CreatedAt.After(at) {
			continue
		}
		m.IsRead = true
		changed = append(changed, *m)
	}
	return changed, nil
}
