package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightdesk/internal/domain/chat"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := chat.Participant{ID: r.Header.Get(HeaderUserID), Role: chat.ParseRole(r.Header.Get(HeaderUserRole))}
		_ = hub.Serve(w, r, user, r.URL.Query().Get("room"))
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

type inbox struct {
	broadcasts chan chat.BroadcastMessage
	changes    chan chat.ChangeEvent
}

func newInbox() *inbox {
	return &inbox{broadcasts: make(chan chat.BroadcastMessage, 8), changes: make(chan chat.ChangeEvent, 8)}
}

func (i *inbox) handlers() Handlers {
	return Handlers{
		OnBroadcast: func(m chat.BroadcastMessage) { i.broadcasts <- m },
		OnChange:    func(ev chat.ChangeEvent) { i.changes <- ev },
	}
}

func TestHubRelaysBroadcastToPeersOnly(t *testing.T) {
	hub, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	admin := chat.Participant{ID: "admin-1", Role: chat.RoleAdmin}
	carrier := chat.Participant{ID: "carrier-1", Role: chat.RoleCarrier}
	adminBox, carrierBox := newInbox(), newInbox()

	adminSub, err := NewClient(srv.URL, admin).Subscribe(ctx, "conv-1", adminBox.handlers())
	require.NoError(t, err)
	defer adminSub.Close()
	carrierSub, err := NewClient(srv.URL, carrier).Subscribe(ctx, "conv-1", carrierBox.handlers())
	require.NoError(t, err)
	defer carrierSub.Close()
	require.Eventually(t, func() bool { return hub.Size("conv-1") == 2 }, time.Second, 10*time.Millisecond)

	err = adminSub.Publish(ctx, chat.BroadcastMessage{
		ID:             "temp-1000-1",
		ConversationID: "spoofed",
		Content:        "Pickup confirmed",
		User:           chat.BroadcastUser{ID: "someone-else", Name: "Ops"},
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	select {
	case got := <-carrierBox.broadcasts:
		assert.Equal(t, "temp-1000-1", got.ID)
		assert.Equal(t, "admin-1", got.User.ID, "sender identity comes from the socket")
		assert.Equal(t, "conv-1", got.ConversationID)
		assert.Equal(t, chat.RoleAdmin, got.SenderRole)
	case <-ctx.Done():
		t.Fatal("carrier did not receive broadcast")
	}

	select {
	case got := <-adminBox.broadcasts:
		t.Fatalf("sender received its own broadcast: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubDeliversChangesToEveryone(t *testing.T) {
	hub, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boxes := []*inbox{newInbox(), newInbox()}
	for i, id := range []string{"admin-1", "carrier-1"} {
		sub, err := NewClient(srv.URL, chat.Participant{ID: id}).Subscribe(ctx, "conv-1", boxes[i].handlers())
		require.NoError(t, err)
		defer sub.Close()
	}
	other := newInbox()
	sub, err := NewClient(srv.URL, chat.Participant{ID: "x"}).Subscribe(ctx, "conv-2", other.handlers())
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool { return hub.Size("conv-1") == 2 }, time.Second, 10*time.Millisecond)

	n := hub.Deliver("conv-1", chat.ChangeEvent{Op: chat.ChangeInsert, Message: chat.Message{ID: "msg-55", ConversationID: "conv-1", Body: "Pickup confirmed"}})
	assert.Equal(t, 2, n)

	for _, b := range boxes {
		select {
		case ev := <-b.changes:
			assert.Equal(t, chat.ChangeInsert, ev.Op)
			assert.Equal(t, "msg-55", ev.Message.ID)
		case <-ctx.Done():
			t.Fatal("change not delivered")
		}
	}
	assert.Empty(t, other.changes)
}

func TestChannelJoinsOnPublishAndLeaves(t *testing.T) {
	hub, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peer := newInbox()
	peerSub, err := NewClient(srv.URL, chat.Participant{ID: "carrier-1"}).Subscribe(ctx, "conv-1", peer.handlers())
	require.NoError(t, err)
	defer peerSub.Close()

	ch := NewChannel(NewClient(srv.URL, chat.Participant{ID: "admin-1", Role: chat.RoleAdmin}), nil)
	require.NoError(t, ch.Publish(ctx, chat.BroadcastMessage{ID: "temp-1", ConversationID: "conv-1", Content: "hi"}))

	select {
	case got := <-peer.broadcasts:
		assert.Equal(t, "hi", got.Content)
	case <-ctx.Done():
		t.Fatal("broadcast not relayed")
	}

	first, err := ch.Join(ctx, "conv-1")
	require.NoError(t, err)
	second, err := ch.Join(ctx, "conv-1")
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, ch.Leave("conv-1"))
	assert.ErrorIs(t, ch.Leave("conv-1"), ErrNotJoined)
	require.Eventually(t, func() bool { return hub.Size("conv-1") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, ch.Close())
}
