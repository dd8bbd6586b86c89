// Package chatsvc implements the chat backend use cases behind the HTTP API.
package chatsvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"freightdesk/internal/app/outbox"
	"freightdesk/internal/domain/chat"
)

// MaxLookupIDs caps a single batch user lookup.
const MaxLookupIDs = 100

var (
	ErrAttachmentsUnavailable = errors.New("chatsvc: attachment storage is not configured")
	// ErrChangeFeedUnavailable means a write was stored but its change event
	// could not be recorded after every retry.
	ErrChangeFeedUnavailable = errors.New("chatsvc: change feed unavailable")
)

// DefaultOutboxRetry is the pause before each repeated outbox write.
var DefaultOutboxRetry = []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, time.Second}

type Service struct {
	Store     Store
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Uploader  Uploader
	Directory Directory
	Logger    *slog.Logger
	Now       func() time.Time

	// OutboxRetry overrides DefaultOutboxRetry; an empty non-nil slice disables retries.
	OutboxRetry []time.Duration
}

// PostInput is one message submission.
type PostInput struct {
	ConversationID string
	Body           string
	ClientID       string
	Upload         *chat.Upload
}

func (s *Service) ListConversations(ctx context.Context, viewer chat.Participant) ([]chat.Conversation, error) {
	convs, err := s.Store.ListConversations(ctx, viewer.ID)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Conversation, 0, len(convs))
	for _, c := range convs {
		if c.IsSelfConversation() {
			continue
		}
		out = append(out, c.ForViewer(viewer.ID))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity().After(out[j].LastActivity())
	})
	return out, nil
}

// OpenConversation returns the conversation between viewer and targetID,
// creating it when none exists.
func (s *Service) OpenConversation(ctx context.Context, viewer chat.Participant, targetID string) (chat.Conversation, bool, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return chat.Conversation{}, false, chat.ErrUserIDRequired
	}
	if targetID == viewer.ID {
		return chat.Conversation{}, false, chat.ErrSelfConversation
	}
	existing, err := s.Store.FindConversation(ctx, viewer.ID, targetID)
	if err == nil {
		return existing.ForViewer(viewer.ID), false, nil
	}
	if !errors.Is(err, chat.ErrConversationNotFound) {
		return chat.Conversation{}, false, err
	}

	now := s.now()
	created, err := s.Store.CreateConversation(ctx, chat.Conversation{
		AdminUserID:   viewer.ID,
		CarrierUserID: targetID,
		CarrierRole:   s.roleOf(ctx, targetID),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return chat.Conversation{}, false, err
	}
	s.logger().Info("conversation created", "conversation_id", created.ID, "admin_id", viewer.ID, "peer_id", targetID)
	return created.ForViewer(viewer.ID), true, nil
}

func (s *Service) roleOf(ctx context.Context, userID string) chat.Role {
	if s.Directory == nil {
		return chat.RoleCarrier
	}
	found, err := s.Directory.Lookup(ctx, []string{userID})
	if err != nil {
		s.logger().Warn("role lookup failed", "user_id", userID, "error", err)
		return chat.RoleCarrier
	}
	if info, ok := found[userID]; ok && info.Role != "" {
		return info.Role
	}
	return chat.RoleCarrier
}

func (s *Service) CleanupSelfConversations(ctx context.Context, viewer chat.Participant) (int, error) {
	n, err := s.Store.DeleteSelfConversations(ctx, viewer.ID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger().Info("self conversations removed", "user_id", viewer.ID, "count", n)
	}
	return n, nil
}

// Conversation loads id and checks that viewer takes part in it.
func (s *Service) Conversation(ctx context.Context, viewer chat.Participant, id string) (chat.Conversation, error) {
	conv, err := s.Store.GetConversation(ctx, strings.TrimSpace(id))
	if err != nil {
		return chat.Conversation{}, err
	}
	if !conv.HasParticipant(viewer.ID) {
		return chat.Conversation{}, chat.ErrNotParticipant
	}
	return conv.ForViewer(viewer.ID), nil
}

func (s *Service) History(ctx context.Context, viewer chat.Participant, id string) ([]chat.Message, error) {
	if _, err := s.Conversation(ctx, viewer, id); err != nil {
		return nil, err
	}
	return s.Store.ListMessages(ctx, id)
}

// Post persists a message and records it for the change feed. A repeated
// client id returns the message stored the first time.
func (s *Service) Post(ctx context.Context, viewer chat.Participant, in PostInput) (chat.Message, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" && in.Upload == nil {
		return chat.Message{}, chat.ErrEmptyMessage
	}
	if in.Upload != nil {
		if err := in.Upload.Validate(); err != nil {
			return chat.Message{}, err
		}
	}
	if _, err := s.Conversation(ctx, viewer, in.ConversationID); err != nil {
		return chat.Message{}, err
	}
	if in.ClientID != "" {
		prior, err := s.Store.MessageByClientID(ctx, in.ConversationID, in.ClientID)
		if err == nil {
			return prior, nil
		}
		if !errors.Is(err, chat.ErrMessageNotFound) {
			return chat.Message{}, err
		}
	}

	msg := chat.Message{
		ConversationID: in.ConversationID,
		SenderID:       viewer.ID,
		SenderRole:     viewer.Role,
		Body:           body,
		CreatedAt:      s.now(),
		ClientID:       in.ClientID,
	}
	if in.Upload != nil {
		att, err := s.storeAttachment(ctx, in.ConversationID, *in.Upload)
		if err != nil {
			return chat.Message{}, err
		}
		msg.Attachment = &att
	}

	stored, err := s.Store.AddMessage(ctx, msg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("store message: %w", err)
	}
	if err := s.record(ctx, chat.NewMessagePosted(stored, stored.CreatedAt)); err != nil {
		s.logger().Error("record message event failed", "conversation_id", stored.ConversationID, "message_id", stored.ID, "error", err)
		return chat.Message{}, err
	}
	return stored, nil
}

func (s *Service) storeAttachment(ctx context.Context, conversationID string, up chat.Upload) (chat.Attachment, error) {
	if s.Uploader == nil {
		return chat.Attachment{}, ErrAttachmentsUnavailable
	}
	key := fmt.Sprintf("chat/%s/%s-%s", conversationID, uuid.NewString(), cleanFileName(up.Name))
	url, err := s.Uploader.Upload(ctx, key, bytes.NewReader(up.Data), up.ContentType)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("upload attachment: %w", err)
	}
	size := up.Size
	if size == 0 {
		size = int64(len(up.Data))
	}
	return chat.Attachment{URL: url, Type: up.ContentType, Name: up.Name, Size: size}, nil
}

// MarkRead moves viewer's read marker to now and emits an update for each
// message whose read flag changed.
func (s *Service) MarkRead(ctx context.Context, viewer chat.Participant, id string) (time.Time, error) {
	if _, err := s.Conversation(ctx, viewer, id); err != nil {
		return time.Time{}, err
	}
	now := s.now()
	changed, err := s.Store.MarkRead(ctx, id, viewer.ID, now)
	if err != nil {
		return time.Time{}, err
	}
	events := make([]outbox.Event, 0, len(changed))
	for _, m := range changed {
		events = append(events, chat.NewMessageUpdated(m, now))
	}
	if err := s.record(ctx, events...); err != nil {
		s.logger().Error("record read events failed", "conversation_id", id, "error", err)
		return time.Time{}, err
	}
	return now, nil
}

// record writes evs to the outbox, retrying on the OutboxRetry schedule. The
// store and the outbox are separate backends, so a write that exhausts the
// retries fails the request instead of leaving the change feed silently behind.
// Repeated attempts may record an event twice; consumers upsert by message id.
func (s *Service) record(ctx context.Context, evs ...outbox.Event) error {
	if len(evs) == 0 {
		return nil
	}
	backoff := s.OutboxRetry
	if backoff == nil {
		backoff = DefaultOutboxRetry
	}
	for attempt := 0; ; attempt++ {
		err := outbox.Record(ctx, s.Outbox, s.Encoder, evs...)
		if err == nil {
			return nil
		}
		if attempt >= len(backoff) {
			return fmt.Errorf("%w: %w", ErrChangeFeedUnavailable, err)
		}
		s.logger().Warn("outbox write failed, retrying", "attempt", attempt+1, "event", evs[0].EventName(), "error", err)
		timer := time.NewTimer(backoff[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrChangeFeedUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
}

// LookupUsers resolves up to MaxLookupIDs ids. The synthetic system user is
// always known.
func (s *Service) LookupUsers(ctx context.Context, ids []string) (map[string]chat.UserInfo, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) > MaxLookupIDs {
		return nil, fmt.Errorf("%w: %d > %d", chat.ErrTooManyUsers, len(unique), MaxLookupIDs)
	}

	out := make(map[string]chat.UserInfo, len(unique))
	rest := unique[:0:0]
	for _, id := range unique {
		if id == chat.SystemUserID {
			out[id] = chat.SystemUser()
			continue
		}
		rest = append(rest, id)
	}
	if len(rest) == 0 || s.Directory == nil {
		return out, nil
	}
	found, err := s.Directory.Lookup(ctx, rest)
	if err != nil {
		return nil, err
	}
	for id, info := range found {
		info.ID = id
		out[id] = info
	}
	return out, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
