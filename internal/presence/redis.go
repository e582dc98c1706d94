package presence

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "chat:presence:"

// RedisMirror copies presence into Redis so other tooling can read it. The
// in-process Registry stays authoritative; the mirror is write-behind only.
//
// Keys: <prefix><user> holds the bind time and expires after ttl unless
// refreshed; <prefix>last_seen:<user> holds the last unbind time.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisMirror{client: client, ttl: ttl, prefix: defaultRedisPrefix}
}

func (m *RedisMirror) onlineKey(userID string) string {
	return m.prefix + userID
}

func (m *RedisMirror) lastSeenKey(userID string) string {
	return m.prefix + "last_seen:" + userID
}

func (m *RedisMirror) PresenceChanged(ctx context.Context, userID string, online bool, at time.Time) error {
	stamp := at.UTC().Format(time.RFC3339Nano)
	if online {
		if err := m.client.Set(ctx, m.onlineKey(userID), stamp, m.ttl).Err(); err != nil {
			return errors.Wrap(err, "redis set presence")
		}
		return nil
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.onlineKey(userID))
	pipe.Set(ctx, m.lastSeenKey(userID), stamp, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis clear presence")
	}
	return nil
}

func (m *RedisMirror) Refresh(ctx context.Context, userID string) error {
	if err := m.client.Expire(ctx, m.onlineKey(userID), m.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis refresh presence")
	}
	return nil
}

// lookup reports whether the mirror currently holds userID as online and,
// if so, since when.
func (m *RedisMirror) lookup(ctx context.Context, userID string) (time.Time, bool, error) {
	value, err := m.client.Get(ctx, m.onlineKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "redis lookup presence")
	}
	since, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, true, nil
	}
	return since, true, nil
}
