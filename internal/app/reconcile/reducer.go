package reconcile

import (
	"time"

	"freightdesk/internal/domain/chat"
)

// Kind tags an Event.
type Kind int

const (
	KindOptimistic Kind = iota + 1
	KindAck
	KindRollback
	KindBroadcast
	KindDurable
	KindRevalidate
)

// Event is one input to the reducer. Only the fields relevant to Kind are read.
type Event struct {
	Kind      Kind
	Message   chat.Message
	TempID    string
	DurableID string
	At        time.Time
	History   []chat.Message
}

// Optimistic inserts a locally sent message that is not yet persisted.
func Optimistic(m chat.Message) Event { return Event{Kind: KindOptimistic, Message: m} }

// Ack confirms a local send. durableID may be empty when the server did not return one.
func Ack(tempID, durableID string, at time.Time) Event {
	return Event{Kind: KindAck, TempID: tempID, DurableID: durableID, At: at}
}

// Rollback drops a local send that failed to persist.
func Rollback(tempID string) Event { return Event{Kind: KindRollback, TempID: tempID} }

// Broadcast applies an ephemeral peer copy.
func Broadcast(m chat.Message) Event { return Event{Kind: KindBroadcast, Message: m} }

// Durable applies a change-feed row.
func Durable(m chat.Message) Event { return Event{Kind: KindDurable, Message: m} }

// Revalidate replaces the cache with server history.
func Revalidate(history []chat.Message) Event {
	return Event{Kind: KindRevalidate, History: history}
}

// Reducer applies events with a given matching tolerance.
type Reducer struct {
	Tolerance Tolerance
}

// Apply applies ev with DefaultTolerance.
func Apply(s State, ev Event) State {
	return Reducer{Tolerance: DefaultTolerance}.Apply(s, ev)
}

// Apply returns the state after ev. s is never modified.
func (r Reducer) Apply(s State, ev Event) State {
	tol := r.Tolerance.orDefault()
	switch ev.Kind {
	case KindOptimistic:
		return applyOptimistic(s, ev.Message, tol)
	case KindAck:
		return applyAck(s, ev.TempID, ev.DurableID, ev.At)
	case KindRollback:
		return applyRollback(s, ev.TempID)
	case KindBroadcast:
		return applyBroadcast(s, ev.Message, tol)
	case KindDurable:
		return applyDurable(s, ev.Message, tol)
	case KindRevalidate:
		return applyRevalidate(s, ev.History, tol)
	default:
		return s
	}
}

func applyOptimistic(s State, m chat.Message, tol Tolerance) State {
	if m.ID == "" || s.Contains(m.ID) {
		return s
	}
	// the durable copy won the race; inserting would show the message twice
	for _, e := range s.entries {
		if e.Origin == OriginDurable && chat.Matches(e.Message, m, tol.Durable) {
			return s
		}
	}
	next := s.clone()
	next.push(Entry{Message: m, Origin: OriginLocal, Pending: true})
	next.sortEntries()
	return next
}

func applyAck(s State, tempID, durableID string, at time.Time) State {
	idx := s.indexOf(tempID)
	if idx < 0 {
		return s
	}
	next := s.clone()
	if durableID == "" {
		next.entries[idx].Pending = false
		return next
	}
	if next.indexOf(durableID) >= 0 {
		next.removeAt(idx)
		return next
	}
	e := &next.entries[idx]
	e.Message.ID = durableID
	if e.Message.ClientID == "" {
		e.Message.ClientID = tempID
	}
	if !at.IsZero() {
		e.Message.CreatedAt = at
	}
	e.Pending = false
	next.sortEntries()
	return next
}

func applyRollback(s State, tempID string) State {
	idx := s.indexOf(tempID)
	if idx < 0 {
		return s
	}
	next := s.clone()
	next.removeAt(idx)
	return next
}

func applyBroadcast(s State, m chat.Message, tol Tolerance) State {
	if m.ID == "" {
		return s
	}
	for _, e := range s.entries {
		if chat.Matches(e.Message, m, tol.Broadcast) {
			return s
		}
	}
	if m.SenderRole == "" {
		m.SenderRole = chat.RoleAdmin
	}
	next := s.clone()
	next.push(Entry{Message: m, Origin: OriginBroadcast})
	next.sortEntries()
	return next
}

func applyDurable(s State, m chat.Message, tol Tolerance) State {
	if m.ID == "" {
		return s
	}
	next := s.clone()
	if idx := provisionalMatch(next.entries, m, tol.Durable); idx >= 0 {
		if m.ClientID == "" {
			m.ClientID = next.entries[idx].Message.ClientID
			if m.ClientID == "" && chat.IsTemporaryID(next.entries[idx].Message.ID) {
				m.ClientID = next.entries[idx].Message.ID
			}
		}
		next.removeAt(idx)
	}
	if idx := next.indexOf(m.ID); idx >= 0 {
		e := &next.entries[idx]
		if m.ClientID == "" {
			m.ClientID = e.Message.ClientID
		}
		e.Message = m
		e.Origin = OriginDurable
		e.Pending = false
	} else {
		next.push(Entry{Message: m, Origin: OriginDurable})
	}
	next.sortEntries()
	return next
}

// provisionalMatch finds the non-durable entry a durable row replaces. Identity
// matches win over content matches so two identical quick sends stay distinct.
func provisionalMatch(entries []Entry, m chat.Message, window time.Duration) int {
	contentIdx := -1
	for i, e := range entries {
		if e.Origin == OriginDurable {
			continue
		}
		if chat.SameIdentity(e.Message, m) {
			return i
		}
		if contentIdx < 0 && chat.SameContent(e.Message, m, window) {
			contentIdx = i
		}
	}
	return contentIdx
}

// applyRevalidate replaces the cache with history. History is a snapshot taken
// before the call returned, so entries that may have arrived after it survive:
// durable rows missing from it, unmatched broadcasts no older than its newest
// message, and pending local sends.
func applyRevalidate(s State, history []chat.Message, tol Tolerance) State {
	next := State{entries: make([]Entry, 0, len(history)+len(s.entries)), nextSeq: s.nextSeq}
	seen := make(map[string]struct{}, len(history))
	var newest time.Time
	for _, m := range history {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
		next.push(Entry{Message: m, Origin: OriginDurable})
	}
	for _, e := range s.entries {
		switch e.Origin {
		case OriginDurable:
			if _, ok := seen[e.Message.ID]; ok {
				continue
			}
		case OriginBroadcast:
			if e.Message.CreatedAt.Before(newest) || matchesAny(history, e.Message, tol.Durable) {
				continue
			}
		default:
			if !e.Pending && chat.IsTemporaryID(e.Message.ID) {
				continue
			}
			if matchesAny(history, e.Message, tol.Durable) {
				continue
			}
		}
		next.entries = append(next.entries, e)
	}
	next.sortEntries()
	return next
}

func matchesAny(history []chat.Message, m chat.Message, window time.Duration) bool {
	for _, h := range history {
		if chat.Matches(h, m, window) {
			return true
		}
	}
	return false
}
