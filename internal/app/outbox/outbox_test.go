package outbox_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightdesk/internal/app/outbox"
	"freightdesk/internal/domain/chat"
)

type sliceBox struct {
	records []outbox.EventRecord
	err     error
}

func (b *sliceBox) Add(_ context.Context, rec outbox.EventRecord) error {
	if b.err != nil {
		return b.err
	}
	b.records = append(b.records, rec)
	return nil
}

func TestRecordEncodesInOrder(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	enc := outbox.JSONEventEncoder{
		IDGenerator: func() string { n++; return "evt-" + strconv.Itoa(n) },
		Headers:     map[string]string{"traceparent": "00-abc-def-01"},
	}
	posted := chat.NewMessagePosted(chat.Message{ID: "msg-1", ConversationID: "conv-1", Body: "Pickup confirmed"}, at)
	updated := chat.NewMessageUpdated(chat.Message{ID: "msg-1", ConversationID: "conv-1", IsRead: true}, at)

	box := &sliceBox{}
	require.NoError(t, outbox.Record(context.Background(), box, enc, posted, updated))
	require.Len(t, box.records, 2)

	first := box.records[0]
	assert.Equal(t, "evt-1", first.ID)
	assert.Equal(t, "message.created", first.Name)
	assert.Equal(t, "conv-1", first.Aggregate)
	assert.Equal(t, at, first.OccurredAt)
	assert.Equal(t, "conv-1", first.Headers[outbox.HeaderAggregate])
	assert.Equal(t, "00-abc-def-01", first.Headers["traceparent"])
	assert.Contains(t, string(first.Payload), "Pickup confirmed")
	assert.Equal(t, "message.updated", box.records[1].Name)

	// headers are copied per record
	first.Headers["traceparent"] = "changed"
	assert.Equal(t, "00-abc-def-01", box.records[1].Headers["traceparent"])
}

func TestRecordSkipsNilOutboxAndWrapsAddErrors(t *testing.T) {
	ev := chat.NewMessagePosted(chat.Message{ID: "msg-1", ConversationID: "conv-1"}, time.Now())
	assert.NoError(t, outbox.Record(context.Background(), nil, nil, ev))

	boom := errors.New("mongo down")
	err := outbox.Record(context.Background(), &sliceBox{err: boom}, nil, ev)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "message.created")
}
