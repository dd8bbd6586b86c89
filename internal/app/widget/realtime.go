package widget

import (
	"freightdesk/internal/app/reconcile"
	"freightdesk/internal/domain/chat"
)

// HandleDurable applies a change-feed event to its conversation cache.
func (w *Widget) HandleDurable(ev chat.ChangeEvent) {
	if ev.Message.ConversationID == "" || ev.Message.ID == "" {
		return
	}
	w.mutate(ev.Message.ConversationID, reconcile.Durable(ev.Message))
}

// HandleBroadcast applies a peer's ephemeral copy. Frames sent by the local
// user are dropped; the optimistic entry already covers them.
func (w *Widget) HandleBroadcast(msg chat.BroadcastMessage) {
	if msg.ConversationID == "" || msg.User.ID == w.self.ID {
		return
	}
	w.mutate(msg.ConversationID, reconcile.Broadcast(msg.Message()))
}
