package chat

import "time"

// MessagePosted is recorded whenever a message is persisted. Its JSON form is
// the change-feed payload.
type MessagePosted struct {
	Op      ChangeOp  `json:"op"`
	Message Message   `json:"message"`
	At      time.Time `json:"at"`
}

func (e MessagePosted) EventName() string     { return "message.created" }
func (e MessagePosted) AggregateID() string   { return e.Message.ConversationID }
func (e MessagePosted) OccurredAt() time.Time { return e.At }

// MessageUpdated is recorded when a stored message changes, e.g. its read flag.
type MessageUpdated struct {
	Op      ChangeOp  `json:"op"`
	Message Message   `json:"message"`
	At      time.Time `json:"at"`
}

func (e MessageUpdated) EventName() string     { return "message.updated" }
func (e MessageUpdated) AggregateID() string   { return e.Message.ConversationID }
func (e MessageUpdated) OccurredAt() time.Time { return e.At }

func NewMessagePosted(m Message, at time.Time) MessagePosted {
	return MessagePosted{Op: ChangeInsert, Message: m, At: at}
}

func NewMessageUpdated(m Message, at time.Time) MessageUpdated {
	return MessageUpdated{Op: ChangeUpdate, Message: m, At: at}
}
