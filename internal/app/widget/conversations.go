package widget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"freightdesk/internal/app/reconcile"
	"freightdesk/internal/domain/chat"
)

// Start removes degenerate self-conversations and loads the first page of
// the conversation list.
func (w *Widget) Start(ctx context.Context) error {
	deleted, err := w.api.CleanupSelfConversations(ctx)
	if err != nil {
		w.logger.Warn("self-conversation cleanup failed", "error", err)
	} else if deleted > 0 {
		w.logger.Info("removed self-conversations", "count", deleted)
	}
	return w.RefreshConversations(ctx)
}

// Run starts the widget and polls the conversation list until ctx is done.
func (w *Widget) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		w.logger.Warn("initial conversation load failed", "error", err)
	}
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.RefreshConversations(ctx); err != nil {
				w.logger.Warn("conversation poll failed", "error", err)
			}
		}
	}
}

// RefreshConversations reloads the conversation list. The selection is
// cleared when the selected conversation is no longer listed.
func (w *Widget) RefreshConversations(ctx context.Context) error {
	convs, err := w.api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	listed := make([]chat.Conversation, 0, len(convs))
	for _, c := range convs {
		if c.IsSelfConversation() {
			continue
		}
		listed = append(listed, c)
	}
	sort.SliceStable(listed, func(i, j int) bool {
		return listed[i].LastActivity().After(listed[j].LastActivity())
	})

	w.mu.Lock()
	w.conversations = listed
	if w.selected != "" && !containsConversation(listed, w.selected) {
		w.selected = ""
	}
	w.mu.Unlock()
	w.changed()

	ids := make([]string, 0, len(listed))
	for _, c := range listed {
		ids = append(ids, c.Counterpart(w.self.ID))
	}
	w.discoverNames(ctx, ids)
	return nil
}

// Conversations returns the cached list, most recent activity first.
func (w *Widget) Conversations() []chat.Conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]chat.Conversation, len(w.conversations))
	copy(out, w.conversations)
	return out
}

// FilteredConversations matches term case-insensitively against the other
// participant's display name, their id and the last message text.
func (w *Widget) FilteredConversations(term string) []chat.Conversation {
	all := w.Conversations()
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all
	}
	out := make([]chat.Conversation, 0, len(all))
	for _, c := range all {
		otherID, isAdmin := w.Counterpart(c)
		haystack := []string{w.names.Resolve(otherID, isAdmin), otherID, c.LastMessage}
		for _, s := range haystack {
			if strings.Contains(strings.ToLower(s), term) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Counterpart returns the other participant of c and whether they are an admin.
func (w *Widget) Counterpart(c chat.Conversation) (string, bool) {
	return c.Counterpart(w.self.ID), c.CounterpartRole(w.self.ID).IsAdmin()
}

// TotalUnread sums unread counts for the badge.
func (w *Widget) TotalUnread() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, c := range w.conversations {
		total += c.UnreadCount
	}
	return total
}

// Selected returns the selected conversation id, or "".
func (w *Widget) Selected() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected
}

// ClearSelection deselects without touching any cache.
func (w *Widget) ClearSelection() {
	w.mu.Lock()
	w.selected = ""
	w.mu.Unlock()
	w.changed()
}

// SelectConversation selects id, marks it read in the background and loads
// its history.
func (w *Widget) SelectConversation(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoConversation
	}
	w.mu.Lock()
	w.selected = id
	w.mu.Unlock()
	w.changed()

	readCtx := context.WithoutCancel(ctx)
	w.goTracked(func() {
		if err := w.MarkRead(readCtx, id); err != nil {
			w.logger.Warn("mark read failed", "conversation_id", id, "error", err)
		}
	})
	return w.RevalidateMessages(ctx, id)
}

// MarkRead sends the read receipt and then reloads the conversation list so
// the unread badge reflects it.
func (w *Widget) MarkRead(ctx context.Context, id string) error {
	if err := w.api.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return w.RefreshConversations(ctx)
}

// RevalidateMessages replaces a conversation cache with server history,
// keeping sends that are still in flight. A conversation that no longer
// exists is dropped and deselected.
func (w *Widget) RevalidateMessages(ctx context.Context, id string) error {
	history, err := w.api.ListMessages(ctx, id)
	if errors.Is(err, chat.ErrConversationNotFound) {
		w.mu.Lock()
		if w.selected == id {
			w.selected = ""
		}
		delete(w.states, id)
		w.mu.Unlock()
		w.changed()
		return nil
	}
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	w.mutate(id, reconcile.Revalidate(history))

	senders := make([]string, 0, len(history))
	for _, m := range history {
		senders = append(senders, m.SenderID)
	}
	w.discoverNames(ctx, senders)
	return nil
}

func (w *Widget) discoverNames(ctx context.Context, ids []string) {
	if err := w.names.Discover(ctx, ids); err != nil {
		w.logger.Warn("user lookup failed", "error", err)
		return
	}
	w.changed()
}

func containsConversation(convs []chat.Conversation, id string) bool {
	for _, c := range convs {
		if c.ID == id {
			return true
		}
	}
	return false
}
