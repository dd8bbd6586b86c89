// Package changefeed turns published outbox events back into durable message
// changes and hands them to the realtime gateway.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"freightdesk/internal/domain/chat"
)

var ErrMalformedEvent = errors.New("changefeed: malformed event")

// Change is one decoded change-feed event.
type Change struct {
	EventID string
	Type    string
	Event   chat.ChangeEvent
}

// Room is the realtime room the change belongs to.
func (c Change) Room() string { return c.Event.Message.ConversationID }

type cloudEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type eventData struct {
	Op      chat.ChangeOp `json:"op"`
	Message chat.Message  `json:"message"`
}

// Decode parses a CloudEvents JSON envelope carrying a message event.
func Decode(payload []byte) (Change, error) {
	var evt cloudEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.ID == "" || len(evt.Data) == 0 {
		return Change{}, fmt.Errorf("%w: missing id or data", ErrMalformedEvent)
	}
	var data eventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if data.Message.ID == "" || data.Message.ConversationID == "" {
		return Change{}, fmt.Errorf("%w: message without id or conversation", ErrMalformedEvent)
	}
	switch data.Op {
	case chat.ChangeInsert, chat.ChangeUpdate:
	default:
		return Change{}, fmt.Errorf("%w: unknown op %q", ErrMalformedEvent, data.Op)
	}
	return Change{
		EventID: evt.ID,
		Type:    evt.Type,
		Event:   chat.ChangeEvent{Op: data.Op, Message: data.Message},
	}, nil
}

// Sink receives decoded changes, normally the realtime hub.
type Sink interface {
	Deliver(room string, ev chat.ChangeEvent) int
}

// Inbox deduplicates event ids across redeliveries.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// Dispatcher decodes, deduplicates and fans out change events.
type Dispatcher struct {
	Sink   Sink
	Inbox  Inbox
	Logger *slog.Logger
}

// Handle processes one raw event. Malformed events are dropped with a log
// line and no error, so a poison message cannot stall a consumer.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) error {
	change, err := Decode(payload)
	if err != nil {
		d.logger().Warn("change event dropped", "error", err)
		return nil
	}
	if d.Inbox != nil {
		seen, err := d.Inbox.Seen(ctx, change.EventID)
		if err != nil {
			return fmt.Errorf("inbox: %w", err)
		}
		if seen {
			d.logger().Debug("change event duplicate", "event_id", change.EventID)
			return nil
		}
	}
	if d.Sink == nil {
		return nil
	}
	n := d.Sink.Deliver(change.Room(), change.Event)
	d.logger().Debug("change event delivered",
		"event_id", change.EventID,
		"op", change.Event.Op,
		"conversation_id", change.Room(),
		"message_id", change.Event.Message.ID,
		"subscribers", n,
	)
	return nil
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// LocalProducer publishes straight into a Dispatcher. It stands in for the
// broker when chatd runs as a single process.
type LocalProducer struct {
	Dispatcher *Dispatcher
}

func (p LocalProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.Dispatcher == nil {
		return errors.New("changefeed: local producer without dispatcher")
	}
	return p.Dispatcher.Handle(ctx, payload)
}
