// Package widget is the admin chat client: optimistic sends, realtime
// reconciliation, the conversation list and display names.
package widget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"freightdesk/internal/app/reconcile"
	"freightdesk/internal/domain/chat"
)

var (
	ErrNoConversation = errors.New("widget: no conversation selected")
	ErrSendInFlight   = errors.New("widget: a message is already being sent")
	ErrClosed         = errors.New("widget: closed")
)

// Options configures a Widget.
type Options struct {
	Self chat.Participant
	// SelfName is the name peers see on broadcast copies.
	SelfName    string
	Broadcaster Broadcaster
	Notifier    Notifier
	Logger      *slog.Logger
	Config      Config
	// OnChange is invoked after every state change, outside the widget lock.
	OnChange func()
	Now      func() time.Time
}

// Widget owns the conversation list and the per-conversation message caches.
// All cache mutations go through the reconcile reducer under one mutex; no
// lock is held across network calls.
type Widget struct {
	api         API
	broadcaster Broadcaster
	notifier    Notifier
	logger      *slog.Logger
	cfg         Config
	reducer     reconcile.Reducer
	self        chat.Participant
	selfName    string
	onChange    func()
	now         func() time.Time
	names       *Names

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sending atomic.Bool
	tempSeq atomic.Uint64

	mu            sync.Mutex
	closed        bool
	conversations []chat.Conversation
	states        map[string]reconcile.State
	selected      string
	timers        map[string]*time.Timer
}

func New(api API, opts Options) *Widget {
	cfg := opts.Config.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Widget{
		api:         api,
		broadcaster: opts.Broadcaster,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg,
		reducer:     reconcile.Reducer{Tolerance: cfg.Tolerance},
		self:        opts.Self,
		selfName:    opts.SelfName,
		onChange:    opts.OnChange,
		now:         now,
		ctx:         ctx,
		cancel:      cancel,
		states:      make(map[string]reconcile.State),
		timers:      make(map[string]*time.Timer),
	}
	w.names = NewNames(opts.Self.ID, api.LookupUsers)
	return w
}

// Self returns the local participant.
func (w *Widget) Self() chat.Participant { return w.self }

// Names exposes the display-name cache.
func (w *Widget) Names() *Names { return w.names }

// DisplayName resolves id through the name cache.
func (w *Widget) DisplayName(id string, isAdmin bool) string {
	return w.names.Resolve(id, isAdmin)
}

// Messages returns the cached messages of a conversation in display order.
func (w *Widget) Messages(conversationID string) []chat.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[conversationID].Messages()
}

// Entries returns the cache entries of a conversation, including provenance.
func (w *Widget) Entries(conversationID string) []reconcile.Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[conversationID].Entries()
}

// Close stops pending fallback timers and waits for in-flight sends and
// read receipts. The widget cannot send after Close.
func (w *Widget) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for id, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, id)
	}
	w.mu.Unlock()
	w.cancel()
	w.wg.Wait()
}

// mutate applies ev to one conversation cache.
func (w *Widget) mutate(conversationID string, ev reconcile.Event) {
	w.mu.Lock()
	w.states[conversationID] = w.reducer.Apply(w.states[conversationID], ev)
	w.mu.Unlock()
	w.changed()
}

func (w *Widget) changed() {
	if w.onChange != nil {
		w.onChange()
	}
}

// goTracked runs fn in a goroutine that Close waits for.
func (w *Widget) goTracked(fn func()) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.wg.Add(1)
	w.mu.Unlock()
	go func() {
		defer w.wg.Done()
		fn()
	}()
	return true
}

func (w *Widget) nextTempID() string {
	return fmt.Sprintf("%s%d-%d", chat.TempIDPrefix, w.now().UnixMilli(), w.tempSeq.Add(1))
}
