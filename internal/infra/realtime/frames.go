// Package realtime is the websocket channel between chatd and widgets: a
// gorilla-based hub on the server and an nhooyr-based client.
package realtime

import (
	"encoding/json"

	"freightdesk/internal/domain/chat"
)

type FrameType string

const (
	FrameJoined    FrameType = "joined"
	FrameBroadcast FrameType = "broadcast"
	FrameChange    FrameType = "change"
	FrameError     FrameType = "error"
)

// Frame is the JSON envelope of every websocket message.
type Frame struct {
	Type    FrameType       `json:"type"`
	Room    string          `json:"room,omitempty"`
	Event   chat.ChangeOp   `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func encodeFrame(typ FrameType, room string, op chat.ChangeOp, payload any) ([]byte, error) {
	f := Frame{Type: typ, Room: room, Event: op}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Payload = raw
	}
	return json.Marshal(f)
}

func broadcastFrame(room string, msg chat.BroadcastMessage) ([]byte, error) {
	return encodeFrame(FrameBroadcast, room, "", msg)
}

func changeFrame(room string, ev chat.ChangeEvent) ([]byte, error) {
	return encodeFrame(FrameChange, room, ev.Op, ev.Message)
}

func errorFrame(room, msg string) []byte {
	raw, _ := json.Marshal(Frame{Type: FrameError, Room: room, Error: msg})
	return raw
}
