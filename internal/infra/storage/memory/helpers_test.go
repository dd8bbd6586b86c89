package memory

import appoutbox "freightdesk/internal/app/outbox"

func recordFor(id string) appoutbox.EventRecord {
	return appoutbox.EventRecord{ID: id, Name: "message.created", Payload: []byte(`{}`), OccurredAt: base, Aggregate: "conv-1"}
}
