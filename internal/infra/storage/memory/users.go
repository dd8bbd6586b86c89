package memory

import (
	"context"
	"strings"
	"sync"

	"freightdesk/internal/domain/chat"
)

// Directory is an in-memory user directory.
type Directory struct {
	mu    sync.RWMutex
	users map[string]chat.UserInfo
}

func NewDirectory(users ...chat.UserInfo) *Directory {
	d := &Directory{users: make(map[string]chat.UserInfo, len(users))}
	for _, u := range users {
		d.Save(u)
	}
	return d
}

func (d *Directory) Save(u chat.UserInfo) {
	id := strings.TrimSpace(u.ID)
	if id == "" {
		return
	}
	u.ID = id
	d.mu.Lock()
	d.users[id] = u
	d.mu.Unlock()
}

// Lookup returns the known subset of ids.
func (d *Directory) Lookup(ctx context.Context, ids []string) (map[string]chat.UserInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]chat.UserInfo, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}
