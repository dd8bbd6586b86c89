// Package reconcile merges the optimistic, broadcast and durable copies of
// chat messages into a single ordered list per conversation.
package reconcile

import (
	"sort"
	"time"

	"freightdesk/internal/domain/chat"
)

// Origin records which channel produced a cache entry.
type Origin int

const (
	OriginLocal Origin = iota
	OriginBroadcast
	OriginDurable
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginBroadcast:
		return "broadcast"
	case OriginDurable:
		return "durable"
	default:
		return "unknown"
	}
}

// Entry is one cached message with its provenance.
type Entry struct {
	Message chat.Message
	Origin  Origin
	// Pending is true for a local send that has not been acknowledged yet.
	Pending bool
	seq     uint64
}

// State is the immutable message cache of one conversation. The zero value is empty.
type State struct {
	entries []Entry
	nextSeq uint64
}

// Len returns the number of cached messages.
func (s State) Len() int { return len(s.entries) }

// Entries returns a copy of the entries in display order.
func (s State) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Messages returns the cached messages in display order.
func (s State) Messages() []chat.Message {
	out := make([]chat.Message, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Message)
	}
	return out
}

// Contains reports whether an entry with the given id is cached.
func (s State) Contains(id string) bool {
	return s.indexOf(id) >= 0
}

func (s State) indexOf(id string) int {
	for i, e := range s.entries {
		if e.Message.ID == id {
			return i
		}
	}
	return -1
}

func (s State) clone() State {
	entries := make([]Entry, len(s.entries), len(s.entries)+1)
	copy(entries, s.entries)
	return State{entries: entries, nextSeq: s.nextSeq}
}

func (s *State) push(e Entry) {
	e.seq = s.nextSeq
	s.nextSeq++
	s.entries = append(s.entries, e)
}

func (s *State) removeAt(i int) {
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}

// sortEntries orders by creation time, ties broken by insertion sequence.
func (s *State) sortEntries() {
	sort.Slice(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if !a.Message.CreatedAt.Equal(b.Message.CreatedAt) {
			return a.Message.CreatedAt.Before(b.Message.CreatedAt)
		}
		return a.seq < b.seq
	})
}

// Tolerance holds the content-matching windows.
type Tolerance struct {
	// Durable bounds how far a durable row may be from the provisional copy it replaces.
	Durable time.Duration
	// Broadcast bounds broadcast dedup against entries already cached.
	Broadcast time.Duration
}

// DefaultTolerance is 5s for durable reconciliation and 2s for broadcast dedup.
var DefaultTolerance = Tolerance{Durable: 5 * time.Second, Broadcast: 2 * time.Second}

func (t Tolerance) orDefault() Tolerance {
	if t.Durable <= 0 {
		t.Durable = DefaultTolerance.Durable
	}
	if t.Broadcast <= 0 {
		t.Broadcast = DefaultTolerance.Broadcast
	}
	return t
}
