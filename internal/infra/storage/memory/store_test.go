package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightdesk/internal/domain/chat"
)

var base = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func seedConversation(t *testing.T, s *ChatStore, admin, carrier string) chat.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(context.Background(), chat.Conversation{AdminUserID: admin, CarrierUserID: carrier, CreatedAt: base})
	require.NoError(t, err)
	return conv
}

func TestChatStoreUnreadFollowsReadMarker(t *testing.T) {
	ctx := context.Background()
	s := NewChatStore()
	conv := seedConversation(t, s, "admin-1", "carrier-1")

	for i, sender := range []string{"carrier-1", "carrier-1", "admin-1"} {
		_, err := s.AddMessage(ctx, chat.Message{
			ConversationID: conv.ID,
			SenderID:       sender,
			Body:           "m",
			CreatedAt:      base.Add(time.Duration(i+1) * time.Second),
		})
		require.NoError(t, err)
	}

	list, err := s.ListConversations(ctx, "admin-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].UnreadCount)

	list, err = s.ListConversations(ctx, "carrier-1")
	require.NoError(t, err)
	assert.Equal(t, 1, list[0].UnreadCount)

	changed, err := s.MarkRead(ctx, conv.ID, "admin-1", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, changed, 2)
	for _, m := range changed {
		assert.True(t, m.IsRead)
		assert.Equal(t, "carrier-1", m.SenderID)
	}

	list, err = s.ListConversations(ctx, "admin-1")
	require.NoError(t, err)
	assert.Zero(t, list[0].UnreadCount)

	again, err := s.MarkRead(ctx, conv.ID, "admin-1", base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestChatStoreAddMessageUpdatesPreview(t *testing.T) {
	ctx := context.Background()
	s := NewChatStore()
	conv := seedConversation(t, s, "admin-1", "carrier-1")

	stored, err := s.AddMessage(ctx, chat.Message{ConversationID: conv.ID, SenderID: "admin-1", SenderRole: chat.RoleAdmin, Body: "Pickup confirmed", CreatedAt: base.Add(time.Second), ClientID: "temp-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pickup confirmed", got.LastMessage)
	assert.Equal(t, chat.RoleAdmin, got.LastMessageSenderRole)
	assert.Equal(t, base.Add(time.Second), got.LastMessageAt)

	byClient, err := s.MessageByClientID(ctx, conv.ID, "temp-1")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, byClient.ID)

	_, err = s.MessageByClientID(ctx, conv.ID, "temp-2")
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)

	_, err = s.AddMessage(ctx, chat.Message{ConversationID: "missing", Body: "x"})
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)
}

func TestChatStoreListMessagesSorted(t *testing.T) {
	ctx := context.Background()
	s := NewChatStore()
	conv := seedConversation(t, s, "admin-1", "carrier-1")
	for _, offset := range []int{3, 1, 2} {
		_, err := s.AddMessage(ctx, chat.Message{ConversationID: conv.ID, SenderID: "admin-1", Body: "x", CreatedAt: base.Add(time.Duration(offset) * time.Second)})
		require.NoError(t, err)
	}
	list, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}

	_, err = s.ListMessages(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)
}

func TestChatStoreFindAndCleanup(t *testing.T) {
	ctx := context.Background()
	s := NewChatStore()
	conv := seedConversation(t, s, "admin-1", "carrier-1")
	seedConversation(t, s, "admin-1", "admin-1")
	seedConversation(t, s, "admin-2", "admin-2")

	found, err := s.FindConversation(ctx, "carrier-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, found.ID)

	n, err := s.DeleteSelfConversations(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListConversations(ctx, "admin-2")
	require.NoError(t, err)
	assert.Len(t, list, 1, "other users' self conversations are untouched")
}

func TestOutboxClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	now := base
	o := NewOutbox()
	o.now = func() time.Time { return now }

	require.NoError(t, o.Add(ctx, recordFor("evt-1")))
	require.NoError(t, o.Add(ctx, recordFor("evt-2")))

	doc, err := o.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "evt-1", doc.ID)

	require.NoError(t, o.MarkFailed(ctx, "evt-1", now.Add(time.Minute), "broker down"))

	doc, err = o.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "evt-2", doc.ID)
	require.NoError(t, o.MarkSent(ctx, "evt-2"))

	doc, err = o.Claim(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, doc, "failed event is not due yet")

	now = now.Add(2 * time.Minute)
	doc, err = o.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 1, doc.Attempts)
	assert.Equal(t, 1, o.Pending())
}

func TestInboxSeen(t *testing.T) {
	in := NewInbox()
	seen, err := in.Seen(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = in.Seen(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, seen)
}
