package widget

import (
	"context"
	"errors"
	"strings"
	"time"

	"freightdesk/internal/app/reconcile"
	"freightdesk/internal/domain/chat"
)

// Send queues text (and an optional attachment) for conversationID. It returns
// an error only for rejections that happen before anything is shown; the
// outcome of the write itself is reflected in the message cache.
func (w *Widget) Send(ctx context.Context, conversationID, text string, upload *chat.Upload) error {
	text = strings.TrimSpace(text)
	if conversationID == "" {
		return ErrNoConversation
	}
	if text == "" && upload == nil {
		return chat.ErrEmptyMessage
	}
	if !w.sending.CompareAndSwap(false, true) {
		return ErrSendInFlight
	}
	if upload != nil {
		if err := upload.Validate(); err != nil {
			w.sending.Store(false)
			w.notifier.Error(attachmentProblem(err))
			return err
		}
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.sending.Store(false)
		return ErrClosed
	}
	tempID := w.nextTempID()
	msg := chat.Message{
		ID:             tempID,
		ConversationID: conversationID,
		SenderID:       w.self.ID,
		SenderRole:     w.self.Role,
		Body:           text,
		CreatedAt:      w.now(),
		ClientID:       tempID,
	}
	if upload != nil {
		msg.Attachment = &chat.Attachment{Type: upload.ContentType, Name: upload.Name, Size: upload.Size}
	}
	w.states[conversationID] = w.reducer.Apply(w.states[conversationID], reconcile.Optimistic(msg))
	w.wg.Add(1)
	if w.broadcaster != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.publish(msg)
		}()
	}
	w.mu.Unlock()
	w.changed()

	sendCtx := context.WithoutCancel(ctx)
	go func() {
		defer w.wg.Done()
		defer w.sending.Store(false)
		w.deliver(sendCtx, msg, upload)
	}()
	return nil
}

// publish sends the ephemeral copy to peers. It never gates the durable write:
// a slow or failed publish leaves peers on the change feed and polling.
func (w *Widget) publish(msg chat.Message) {
	ctx, cancel := context.WithTimeout(w.ctx, w.cfg.PublishTimeout)
	defer cancel()
	if err := w.broadcaster.Publish(ctx, chat.NewBroadcast(msg, w.selfName)); err != nil {
		w.logger.Warn("broadcast publish failed", "conversation_id", msg.ConversationID, "temp_id", msg.ID, "error", err)
	}
}

func (w *Widget) deliver(ctx context.Context, msg chat.Message, upload *chat.Upload) {
	log := w.logger.With("conversation_id", msg.ConversationID, "temp_id", msg.ID)
	receipt, err := w.api.SendMessage(ctx, chat.OutgoingMessage{
		ConversationID: msg.ConversationID,
		Body:           msg.Body,
		ClientID:       msg.ID,
		Upload:         upload,
	})
	if err != nil {
		log.Error("send message failed", "error", err)
		w.mutate(msg.ConversationID, reconcile.Rollback(msg.ID))
		w.notifier.Error("Failed to send message")
		return
	}

	w.mutate(msg.ConversationID, reconcile.Ack(msg.ID, receipt.ID, receipt.CreatedAt))
	w.scheduleFallback(msg.ConversationID, msg.ID)
	if err := w.RefreshConversations(ctx); err != nil {
		log.Warn("refresh conversations after send failed", "error", err)
	}
}

// scheduleFallback revalidates the conversation if tempID is still cached
// once the fallback delay has passed, covering a missed change-feed event.
func (w *Widget) scheduleFallback(conversationID, tempID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.wg.Add(1)
	w.timers[tempID] = time.AfterFunc(w.cfg.FallbackDelay, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.timers, tempID)
		closed := w.closed
		stale := w.states[conversationID].Contains(tempID)
		w.mu.Unlock()
		if closed || !stale {
			return
		}
		w.logger.Debug("fallback revalidation", "conversation_id", conversationID, "temp_id", tempID)
		if err := w.RevalidateMessages(w.ctx, conversationID); err != nil {
			w.logger.Warn("fallback revalidation failed", "conversation_id", conversationID, "error", err)
		}
	})
}

func attachmentProblem(err error) string {
	switch {
	case errors.Is(err, chat.ErrAttachmentTooLarge):
		return "File size must be less than 10MB"
	case errors.Is(err, chat.ErrAttachmentType):
		return "Only JPEG, PNG and PDF files are allowed"
	default:
		return "Invalid attachment"
	}
}
