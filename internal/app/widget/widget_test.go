package widget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"freightdesk/internal/domain/chat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func messageIDs(w *Widget, conv string) []string {
	msgs := w.Messages(conv)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestSendShowsOptimisticThenDurableID(t *testing.T) {
	api := newFakeAPI()
	api.sendGate = make(chan struct{})
	api.sendReceipt = chat.SendReceipt{ID: "msg-55", CreatedAt: time.Now().Add(80 * time.Millisecond)}
	bc := &recordingBroadcaster{}
	w := New(api, Options{Self: testSelf, SelfName: "Dana", Broadcaster: bc, Config: testConfig()})
	defer w.Close()

	require.NoError(t, w.Send(context.Background(), "c1", "Pickup confirmed", nil))

	msgs := w.Messages("c1")
	require.Len(t, msgs, 1)
	assert.True(t, chat.IsTemporaryID(msgs[0].ID))
	assert.Equal(t, "Pickup confirmed", msgs[0].Body)
	assert.Equal(t, testSelf.ID, msgs[0].SenderID)
	assert.Equal(t, chat.RoleAdmin, msgs[0].SenderRole)
	tempID := msgs[0].ID

	close(api.sendGate)
	require.Eventually(t, func() bool {
		ids := messageIDs(w, "c1")
		return len(ids) == 1 && ids[0] == "msg-55" && len(bc.Published()) == 1
	}, waitFor, tick)

	// self-echo of the broadcast is dropped, the change feed event collapses into the entry
	w.HandleBroadcast(bc.Published()[0])
	w.HandleDurable(chat.ChangeEvent{Op: chat.ChangeInsert, Message: chat.Message{
		ID: "msg-55", ConversationID: "c1", SenderID: testSelf.ID, SenderRole: chat.RoleAdmin,
		Body: "Pickup confirmed", CreatedAt: api.sendReceipt.CreatedAt, ClientID: tempID,
	}})
	assert.Equal(t, []string{"msg-55"}, messageIDs(w, "c1"))

	published := bc.Published()
	require.Len(t, published, 1)
	assert.Equal(t, tempID, published[0].ID)
	assert.Equal(t, "Dana", published[0].User.Name)

	api.mu.Lock()
	require.Len(t, api.sent, 1)
	assert.Equal(t, tempID, api.sent[0].ClientID)
	api.mu.Unlock()
}

func TestSendFailureRollsBackAndNotifies(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = errServer
	notifier := &recordingNotifier{}
	w := New(api, Options{Self: testSelf, Notifier: notifier, Config: testConfig()})
	defer w.Close()

	require.NoError(t, w.Send(context.Background(), "c1", "Truck delayed", nil))

	require.Eventually(t, func() bool {
		return len(w.Messages("c1")) == 0 && len(notifier.Errors()) == 1
	}, waitFor, tick)
	assert.Equal(t, "Failed to send message", notifier.Errors()[0])

	// no retry
	time.Sleep(50 * time.Millisecond)
	_, sent := api.counts()
	assert.Equal(t, 1, sent)
}

func TestFallbackRevalidatesWhenTempIDLingers(t *testing.T) {
	api := newFakeAPI()
	// the server acknowledged without an id and the change feed never delivers
	api.sendReceipt = chat.SendReceipt{}
	api.history["c1"] = []chat.Message{{
		ID: "msg-77", ConversationID: "c1", SenderID: testSelf.ID, SenderRole: chat.RoleAdmin,
		Body: "BOL uploaded", CreatedAt: time.Now(),
	}}
	w := New(api, Options{Self: testSelf, Config: testConfig()})
	defer w.Close()

	require.NoError(t, w.Send(context.Background(), "c1", "BOL uploaded", nil))

	require.Eventually(t, func() bool {
		ids := messageIDs(w, "c1")
		return len(ids) == 1 && ids[0] == "msg-77"
	}, waitFor, tick)
	listMsg, _ := api.counts()
	assert.Equal(t, 1, listMsg)
}

func TestFallbackSkippedWhenAcked(t *testing.T) {
	api := newFakeAPI()
	api.sendReceipt = chat.SendReceipt{ID: "msg-1", CreatedAt: time.Now()}
	w := New(api, Options{Self: testSelf, Config: testConfig()})

	require.NoError(t, w.Send(context.Background(), "c1", "hello", nil))
	require.Eventually(t, func() bool {
		ids := messageIDs(w, "c1")
		return len(ids) == 1 && ids[0] == "msg-1"
	}, waitFor, tick)
	time.Sleep(4 * testConfig().FallbackDelay)
	w.Close()

	listMsg, _ := api.counts()
	assert.Zero(t, listMsg)
}

func TestStalledBroadcastDoesNotBlockPersistence(t *testing.T) {
	api := newFakeAPI()
	api.sendReceipt = chat.SendReceipt{ID: "msg-1", CreatedAt: time.Now()}
	bc := &stalledBroadcaster{}
	cfg := testConfig()
	cfg.PublishTimeout = time.Hour
	w := New(api, Options{Self: testSelf, Broadcaster: bc, Config: cfg})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Send(ctx, "c1", "Reefer set to 34F", nil))

	require.Eventually(t, func() bool {
		ids := messageIDs(w, "c1")
		return len(ids) == 1 && ids[0] == "msg-1"
	}, waitFor, tick)

	// the stuck publish holds no send slot
	require.Eventually(t, func() bool {
		return w.Send(context.Background(), "c1", "Departed shipper", nil) == nil
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		_, sent := api.counts()
		return sent == 2
	}, waitFor, tick)

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("Close blocked on a stalled publish")
	}
	attempts, errs := bc.Results()
	assert.Equal(t, 2, attempts)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestPublishTimeoutBoundsStalledBroadcast(t *testing.T) {
	api := newFakeAPI()
	api.sendReceipt = chat.SendReceipt{ID: "msg-1", CreatedAt: time.Now()}
	bc := &stalledBroadcaster{}
	cfg := testConfig()
	cfg.PublishTimeout = 20 * time.Millisecond
	w := New(api, Options{Self: testSelf, Broadcaster: bc, Config: cfg})
	defer w.Close()

	require.NoError(t, w.Send(context.Background(), "c1", "At receiver", nil))
	require.Eventually(t, func() bool {
		_, errs := bc.Results()
		return len(errs) == 1
	}, waitFor, tick)
	_, errs := bc.Results()
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
}

func TestBroadcastFailureStillPersists(t *testing.T) {
	api := newFakeAPI()
	api.sendReceipt = chat.SendReceipt{ID: "msg-9", CreatedAt: time.Now()}
	notifier := &recordingNotifier{}
	w := New(api, Options{Self: testSelf, Broadcaster: failingBroadcaster{}, Notifier: notifier, Config: testConfig()})
	defer w.Close()

	require.NoError(t, w.Send(context.Background(), "c1", "POD attached", nil))
	require.Eventually(t, func() bool {
		ids := messageIDs(w, "c1")
		return len(ids) == 1 && ids[0] == "msg-9"
	}, waitFor, tick)
	assert.Empty(t, notifier.Errors())
}

func TestRevalidateKeepsDurableRowThatArrivedDuringFetch(t *testing.T) {
	api := newFakeAPI()
	api.history["c1"] = []chat.Message{{ID: "msg-1", ConversationID: "c1", SenderID: "carrier-7", Body: "Checked in", CreatedAt: time.Now().Add(-time.Minute)}}
	w := New(api, Options{Self: testSelf, Config: testConfig()})
	defer w.Close()

	w.HandleDurable(chat.ChangeEvent{Op: chat.ChangeInsert, Message: chat.Message{
		ID: "msg-2", ConversationID: "c1", SenderID: "carrier-7", SenderRole: chat.RoleCarrier,
		Body: "Loading now", CreatedAt: time.Now(),
	}})
	require.NoError(t, w.RevalidateMessages(context.Background(), "c1"))
	assert.Equal(t, []string{"msg-1", "msg-2"}, messageIDs(w, "c1"))
}

func TestSendIsSingleFlight(t *testing.T) {
	api := newFakeAPI()
	api.sendGate = make(chan struct{})
	api.sendReceipt = chat.SendReceipt{ID: "msg-1", CreatedAt: time.Now()}
	w := New(api, Options{Self: testSelf, Config: testConfig()})
	defer w.Close()

	require.NoError(t, w.Send(context.Background(), "c1", "first", nil))
	err := w.Send(context.Background(), "c1", "second", nil)
	assert.True(t, errors.Is(err, ErrSendInFlight))
	assert.Len(t, w.Messages("c1"), 1)

	close(api.sendGate)
	require.Eventually(t, func() bool {
		return w.Send(context.Background(), "c1", "third", nil) == nil
	}, waitFor, tick)
}

func TestSendRejectionsLeaveStateUntouched(t *testing.T) {
	api := newFakeAPI()
	notifier := &recordingNotifier{}
	w := New(api, Options{Self: testSelf, Notifier: notifier, Config: testConfig()})
	defer w.Close()
	ctx := context.Background()

	assert.True(t, errors.Is(w.Send(ctx, "", "hi", nil), ErrNoConversation))
	assert.True(t, errors.Is(w.Send(ctx, "c1", "   ", nil), chat.ErrEmptyMessage))

	big := &chat.Upload{Name: "scan.pdf", ContentType: "application/pdf", Size: chat.MaxAttachmentBytes + 1}
	assert.True(t, errors.Is(w.Send(ctx, "c1", "see attached", big), chat.ErrAttachmentTooLarge))

	odd := &chat.Upload{Name: "notes.txt", ContentType: "text/plain", Size: 12}
	assert.True(t, errors.Is(w.Send(ctx, "c1", "", odd), chat.ErrAttachmentType))

	assert.Empty(t, w.Messages("c1"))
	assert.Equal(t, []string{"File size must be less than 10MB", "Only JPEG, PNG and PDF files are allowed"}, notifier.Errors())
	_, sent := api.counts()
	assert.Zero(t, sent)

	// the single-flight slot was released by the rejections
	api.sendReceipt = chat.SendReceipt{ID: "msg-9", CreatedAt: time.Now()}
	ok := &chat.Upload{Name: "rate.pdf", ContentType: "application/pdf", Size: 2048, Data: make([]byte, 2048)}
	require.NoError(t, w.Send(ctx, "c1", "", ok))
	msgs := w.Messages("c1")
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Attachment)
	assert.Equal(t, "rate.pdf", msgs[0].Attachment.Name)
}

func TestSelectConversationResetsUnread(t *testing.T) {
	api := newFakeAPI()
	api.conversations = []chat.Conversation{
		{ID: "c1", AdminUserID: testSelf.ID, CarrierUserID: "carrier-7", UnreadCount: 3, LastMessageAt: time.Now()},
		{ID: "c2", AdminUserID: testSelf.ID, CarrierUserID: "carrier-8", UnreadCount: 2},
	}
	w := New(api, Options{Self: testSelf, Config: testConfig()})
	defer w.Close()
	ctx := context.Background()

	require.NoError(t, w.RefreshConversations(ctx))
	assert.Equal(t, 5, w.TotalUnread())

	require.NoError(t, w.SelectConversation(ctx, "c1"))
	assert.Equal(t, "c1", w.Selected())

	require.Eventually(t, func() bool {
		for _, c := range w.Conversations() {
			if c.ID == "c1" {
				return c.UnreadCount == 0
			}
		}
		return false
	}, waitFor, tick)
	assert.Equal(t, 2, w.TotalUnread())
}

func TestSelectMissingConversationClearsSelection(t *testing.T) {
	api := newFakeAPI()
	api.missing["gone"] = true
	w := New(api, Options{Self: testSelf, Config: testConfig()})
	defer w.Close()

	require.NoError(t, w.SelectConversation(context.Background(), "gone"))
	assert.Empty(t, w.Selected())
	assert.Empty(t, w.Messages("gone"))
}

func TestRefreshDropsSelectionOfRemovedConversation(t *testing.T) {
	api := newFakeAPI()
	api.conversations = []chat.Conversation{{ID: "c1", AdminUserID: testSelf.ID, CarrierUserID: "carrier-7"}}
	w := New(api, Options{Self: testSelf, Config: testConfig()})
	defer w.Close()
	ctx := context.Background()

	require.NoError(t, w.SelectConversation(ctx, "c1"))
	api.mu.Lock()
	api.conversations = nil
	api.mu.Unlock()

	require.Eventually(t, func() bool {
		return w.RefreshConversations(ctx) == nil && w.Selected() == ""
	}, waitFor, tick)
}

func TestBroadcastFromSelfIsIgnored(t *testing.T) {
	w := New(newFakeAPI(), Options{Self: testSelf, Config: testConfig()})
	defer w.Close()

	w.HandleBroadcast(chat.BroadcastMessage{ID: "temp-1", ConversationID: "c1", Content: "mine", User: chat.BroadcastUser{ID: testSelf.ID}, CreatedAt: time.Now()})
	assert.Empty(t, w.Messages("c1"))

	w.HandleBroadcast(chat.BroadcastMessage{ID: "temp-2", ConversationID: "c1", Content: "theirs", User: chat.BroadcastUser{ID: "carrier-7"}, SenderRole: chat.RoleCarrier, CreatedAt: time.Now()})
	msgs := w.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleCarrier, msgs[0].SenderRole)
}

func TestPeerSeesOneMessageForBroadcastAndDurable(t *testing.T) {
	peer := chat.Participant{ID: "carrier-7", Role: chat.RoleCarrier}
	w := New(newFakeAPI(), Options{Self: peer, Config: testConfig()})
	defer w.Close()

	at := time.Now()
	w.HandleBroadcast(chat.BroadcastMessage{ID: "temp-1000", ConversationID: "c1", Content: "Pickup confirmed", User: chat.BroadcastUser{ID: testSelf.ID}, CreatedAt: at})
	w.HandleDurable(chat.ChangeEvent{Op: chat.ChangeInsert, Message: chat.Message{
		ID: "msg-55", ConversationID: "c1", SenderID: testSelf.ID, SenderRole: chat.RoleAdmin,
		Body: "Pickup confirmed", CreatedAt: at.Add(650 * time.Millisecond),
	}})
	assert.Equal(t, []string{"msg-55"}, messageIDs(w, "c1"))
}

func TestFilteredConversationsIsPure(t *testing.T) {
	api := newFakeAPI()
	api.conversations = []chat.Conversation{
		{ID: "c1", AdminUserID: testSelf.ID, CarrierUserID: "carrier-7", LastMessage: "Load #4411 picked up"},
		{ID: "c2", AdminUserID: testSelf.ID, CarrierUserID: "carrier-8", LastMessage: "Invoice sent"},
		{ID: "c3", AdminUserID: "admin-2", CarrierUserID: testSelf.ID, CarrierRole: chat.RoleAdmin, LastMessage: "see you"},
	}
	api.users["carrier-7"] = chat.UserInfo{FirstName: "Rosa", LastName: "Trucking"}
	api.users["admin-2"] = chat.UserInfo{FullName: "Ops Desk"}
	w := New(api, Options{Self: testSelf, Config: testConfig()})
	defer w.Close()
	ctx := context.Background()
	require.NoError(t, w.RefreshConversations(ctx))

	pick := func(term string) []string {
		var out []string
		for _, c := range w.FilteredConversations(term) {
			out = append(out, c.ID)
		}
		return out
	}
	assert.Equal(t, []string{"c1"}, pick("rosa"))
	assert.Equal(t, []string{"c2"}, pick("CARRIER-8"))
	assert.Equal(t, []string{"c2"}, pick("invoice"))
	assert.Equal(t, []string{"c3"}, pick("ops desk"))
	assert.Len(t, pick(""), 3)
	assert.Len(t, w.Conversations(), 3)
}

func TestStartCleansUpSelfConversations(t *testing.T) {
	api := newFakeAPI()
	api.conversations = []chat.Conversation{
		{ID: "self", AdminUserID: testSelf.ID, CarrierUserID: testSelf.ID},
		{ID: "c1", AdminUserID: testSelf.ID, CarrierUserID: "carrier-7"},
	}
	w := New(api, Options{Self: testSelf, Config: testConfig()})
	defer w.Close()

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, 1, api.cleanupCalls)
	convs := w.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ID)
}

func TestRunPollsUntilCancelled(t *testing.T) {
	api := newFakeAPI()
	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond
	w := New(api, Options{Self: testSelf, Config: cfg})
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.listConvCalls >= 3
	}, waitFor, tick)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSendAfterCloseIsRejected(t *testing.T) {
	w := New(newFakeAPI(), Options{Self: testSelf, Config: testConfig()})
	w.Close()
	assert.ErrorIs(t, w.Send(context.Background(), "c1", "late", nil), ErrClosed)
}
