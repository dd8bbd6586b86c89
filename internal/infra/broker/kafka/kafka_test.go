package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerPublishesKeyedRecord(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "message.events.v1" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "conv-1" {
			return errors.New("unexpected key " + string(key))
		}
		if len(msg.Headers) != 2 || string(msg.Headers[0].Key) != "content-type" {
			return errors.New("headers not sorted")
		}
		return nil
	})
	p := NewProducerFrom(mock)
	err := p.Publish(context.Background(), "message.events.v1", "conv-1", []byte(`{}`), map[string]string{
		"traceparent":  "00-abc",
		"content-type": "application/cloudevents+json",
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducerSurfacesBrokerErrors(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	p := NewProducerFrom(mock)
	err := p.Publish(context.Background(), "t", "k", []byte(`{}`), nil)
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	require.NoError(t, p.Close())
}

func TestProducerHonoursCancelledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := NewProducerFrom(mock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "t", "k", nil, nil), context.Canceled)
	require.NoError(t, p.Close())
}

type payloadRecorder struct{ got [][]byte }

func (r *payloadRecorder) Handle(ctx context.Context, payload []byte) error {
	r.got = append(r.got, payload)
	return nil
}

func TestChangeFeedHandlerForwardsValue(t *testing.T) {
	rec := &payloadRecorder{}
	h := ChangeFeedHandler{Next: rec}
	require.NoError(t, h.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"id":"e"}`)}))
	require.Len(t, rec.got, 1)
	assert.JSONEq(t, `{"id":"e"}`, string(rec.got[0]))
}
