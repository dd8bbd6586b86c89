package kafka

import (
	"context"

	"github.com/IBM/sarama"
)

// PayloadHandler consumes a raw event body.
type PayloadHandler interface {
	Handle(ctx context.Context, payload []byte) error
}

// ChangeFeedHandler feeds consumed records into the change-feed dispatcher.
type ChangeFeedHandler struct {
	Next PayloadHandler
}

func (h ChangeFeedHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return h.Next.Handle(ctx, msg.Value)
}
