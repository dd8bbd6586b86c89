package redis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"freightdesk/internal/domain/chat"
)

const keyPrefix = "freightdesk:user:"

// Store is the key/value surface CachedDirectory needs.
type Store interface {
	GetMany(ctx context.Context, keys []string) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string, ttl time.Duration) error
}

// Source is the directory behind the cache.
type Source interface {
	Lookup(ctx context.Context, ids []string) (map[string]chat.UserInfo, error)
}

// CachedDirectory is a read-through cache over a user directory. Cache
// failures are logged and the lookup falls through to the source.
type CachedDirectory struct {
	Cache  Store
	Source Source
	TTL    time.Duration
	Logger *slog.Logger
}

func (d *CachedDirectory) Lookup(ctx context.Context, ids []string) (map[string]chat.UserInfo, error) {
	out := make(map[string]chat.UserInfo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	cached, err := d.Cache.GetMany(ctx, keys)
	if err != nil {
		d.logger().Warn("user cache read failed", "error", err)
		cached = nil
	}

	var missing []string
	for i, id := range ids {
		raw, ok := cached[keys[i]]
		if !ok {
			missing = append(missing, id)
			continue
		}
		var info chat.UserInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			missing = append(missing, id)
			continue
		}
		out[id] = info
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := d.Source.Lookup(ctx, missing)
	if err != nil {
		return nil, err
	}
	fill := make(map[string]string, len(found))
	for id, info := range found {
		out[id] = info
		raw, err := json.Marshal(info)
		if err != nil {
			continue
		}
		fill[keyPrefix+id] = string(raw)
	}
	if err := d.Cache.SetMany(ctx, fill, d.ttl()); err != nil {
		d.logger().Warn("user cache write failed", "error", err)
	}
	return out, nil
}

func (d *CachedDirectory) ttl() time.Duration {
	if d.TTL <= 0 {
		return 10 * time.Minute
	}
	return d.TTL
}

func (d *CachedDirectory) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
