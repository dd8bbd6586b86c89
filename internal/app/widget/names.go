package widget

import (
	"context"
	"strings"
	"sync"

	"freightdesk/internal/domain/chat"
)

const lookupBatchSize = 100

// UserLookup batch-loads directory records.
type UserLookup func(ctx context.Context, ids []string) (map[string]chat.UserInfo, error)

type lookupState int

const (
	lookupPending lookupState = iota + 1
	lookupDone
)

// Names caches directory records for display. Entries are merged, never evicted.
type Names struct {
	selfID string
	lookup UserLookup

	mu    sync.RWMutex
	infos map[string]chat.UserInfo
	state map[string]lookupState
}

func NewNames(selfID string, lookup UserLookup) *Names {
	return &Names{
		selfID: selfID,
		lookup: lookup,
		infos:  make(map[string]chat.UserInfo),
		state:  make(map[string]lookupState),
	}
}

// Put merges a known record into the cache.
func (n *Names) Put(info chat.UserInfo) {
	if info.ID == "" {
		return
	}
	n.mu.Lock()
	n.infos[info.ID] = n.infos[info.ID].Merge(info)
	n.state[info.ID] = lookupDone
	n.mu.Unlock()
}

// Info returns the cached record for id.
func (n *Names) Info(id string) (chat.UserInfo, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	info, ok := n.infos[id]
	return info, ok
}

// Discover loads every id not seen before. Ids whose lookup fails are
// forgotten so a later call retries them.
func (n *Names) Discover(ctx context.Context, ids []string) error {
	n.mu.Lock()
	unseen := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := n.state[id]; ok {
			continue
		}
		n.state[id] = lookupPending
		unseen = append(unseen, id)
	}
	n.mu.Unlock()
	if len(unseen) == 0 || n.lookup == nil {
		return nil
	}

	for start := 0; start < len(unseen); start += lookupBatchSize {
		end := min(start+lookupBatchSize, len(unseen))
		batch := unseen[start:end]
		found, err := n.lookup(ctx, batch)
		n.mu.Lock()
		for _, id := range batch {
			if err != nil {
				delete(n.state, id)
				continue
			}
			n.state[id] = lookupDone
			if info, ok := found[id]; ok {
				info.ID = id
				n.infos[id] = n.infos[id].Merge(info)
			}
		}
		n.mu.Unlock()
		if err != nil {
			n.mu.Lock()
			for _, id := range unseen[end:] {
				delete(n.state, id)
			}
			n.mu.Unlock()
			return err
		}
	}
	return nil
}

// Resolve returns a non-empty display name for id. Until the lookup for id
// completes, the local admin shows as "You" and others as a shortened id;
// afterwards unmatched ids fall back to "Admin" or "Carrier".
func (n *Names) Resolve(id string, isAdmin bool) string {
	label := "Carrier"
	if isAdmin {
		label = "Admin"
	}
	if id == "" {
		return label
	}
	n.mu.RLock()
	info, known := n.infos[id]
	st := n.state[id]
	n.mu.RUnlock()

	if known {
		if name := info.DisplayName(); name != "" {
			return name
		}
	}
	if id == n.selfID && isAdmin {
		return "You"
	}
	if st == lookupDone {
		return label
	}
	return shortID(id)
}

func shortID(id string) string {
	r := []rune(id)
	if len(r) <= 8 {
		return id
	}
	return string(r[:8]) + "..."
}
