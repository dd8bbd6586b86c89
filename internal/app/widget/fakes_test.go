package widget

import (
	"context"
	"errors"
	"sync"
	"time"

	"freightdesk/internal/domain/chat"
)

type fakeAPI struct {
	mu            sync.Mutex
	conversations []chat.Conversation
	history       map[string][]chat.Message
	missing       map[string]bool
	users         map[string]chat.UserInfo

	sendReceipt chat.SendReceipt
	sendErr     error
	sendGate    chan struct{}

	sent          []chat.OutgoingMessage
	listMsgCalls  int
	listConvCalls int
	markReadCalls []string
	lookupCalls   [][]string
	cleanupCalls  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history: make(map[string][]chat.Message),
		missing: make(map[string]bool),
		users:   make(map[string]chat.UserInfo),
	}
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listConvCalls++
	out := make([]chat.Conversation, len(f.conversations))
	copy(out, f.conversations)
	return out, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listMsgCalls++
	if f.missing[conversationID] {
		return nil, chat.ErrConversationNotFound
	}
	return append([]chat.Message(nil), f.history[conversationID]...), nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, msg chat.OutgoingMessage) (chat.SendReceipt, error) {
	f.mu.Lock()
	gate := f.sendGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return chat.SendReceipt{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.sendErr != nil {
		return chat.SendReceipt{}, f.sendErr
	}
	return f.sendReceipt, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls = append(f.markReadCalls, conversationID)
	for i := range f.conversations {
		if f.conversations[i].ID == conversationID {
			f.conversations[i].UnreadCount = 0
		}
	}
	return nil
}

func (f *fakeAPI) LookupUsers(ctx context.Context, ids []string) (map[string]chat.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls = append(f.lookupCalls, append([]string(nil), ids...))
	out := make(map[string]chat.UserInfo)
	for _, id := range ids {
		if info, ok := f.users[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (f *fakeAPI) CleanupSelfConversations(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	kept := f.conversations[:0]
	deleted := 0
	for _, c := range f.conversations {
		if c.IsSelfConversation() {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	f.conversations = kept
	return deleted, nil
}

func (f *fakeAPI) counts() (listMsg, sent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listMsgCalls, len(f.sent)
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *recordingNotifier) Success(string) {}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	n.errors = append(n.errors, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []chat.BroadcastMessage
}

func (b *recordingBroadcaster) Publish(ctx context.Context, msg chat.BroadcastMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	return nil
}

func (b *recordingBroadcaster) Published() []chat.BroadcastMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]chat.BroadcastMessage(nil), b.msgs...)
}

var errServer = errors.New("api: status 500: internal error")

var testSelf = chat.Participant{ID: "admin-0001-aaaa", Role: chat.RoleAdmin}

func testConfig() Config {
	return Config{PollInterval: time.Hour, FallbackDelay: 20 * time.Millisecond}
}

// stalledBroadcaster blocks every publish until its context ends, like a
// realtime server that accepts the TCP connection and never answers.
type stalledBroadcaster struct {
	mu       sync.Mutex
	attempts int
	errs     []error
}

func (b *stalledBroadcaster) Publish(ctx context.Context, msg chat.BroadcastMessage) error {
	b.mu.Lock()
	b.attempts++
	b.mu.Unlock()
	<-ctx.Done()
	b.mu.Lock()
	b.errs = append(b.errs, ctx.Err())
	b.mu.Unlock()
	return ctx.Err()
}

func (b *stalledBroadcaster) Results() (attempts int, errs []error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts, append([]error(nil), b.errs...)
}

type failingBroadcaster struct{}

func (failingBroadcaster) Publish(context.Context, chat.BroadcastMessage) error {
	return errors.New("realtime: dial: connection refused")
}
