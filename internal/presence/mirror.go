package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror copies connection state into Redis so other instances (and the
// REST presence endpoint behind a load balancer) can answer presence
// queries. The local Registry stays authoritative for delivery.
//
// Keys:
//   <prefix>:conn:<userID>     set of session ids, refreshed with a TTL
//   <prefix>:presence:<userID> "online" while at least one session is up
type Mirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewMirror(client *redis.Client, prefix string, ttl time.Duration) *Mirror {
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &Mirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *Mirror) connKey(userID string) string {
	return fmt.Sprintf("%s:conn:%s", m.prefix, userID)
}

func (m *Mirror) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", m.prefix, userID)
}

func (m *Mirror) AddConnection(ctx context.Context, userID, sessionID string) error {
	if m == nil || m.client == nil {
		return nil
	}
	key := m.connKey(userID)
	if err := m.client.SAdd(ctx, key, sessionID).Err(); err != nil {
		return err
	}
	_ = m.client.Expire(ctx, key, m.ttl).Err()
	return m.client.Set(ctx, m.presenceKey(userID), "online", m.ttl).Err()
}

func (m *Mirror) RemoveConnection(ctx context.Context, userID, sessionID string) error {
	if m == nil || m.client == nil {
		return nil
	}
	key := m.connKey(userID)
	if err := m.client.SRem(ctx, key, sessionID).Err(); err != nil {
		return err
	}
	cnt, _ := m.client.SCard(ctx, key).Result()
	if cnt == 0 {
		return m.client.Del(ctx, m.presenceKey(userID)).Err()
	}
	return nil
}

// Refresh extends the TTLs for a user that is still connected. Called
// from the session ping loop so idle connections do not expire.
func (m *Mirror) Refresh(ctx context.Context, userID string) {
	if m == nil || m.client == nil {
		return
	}
	_ = m.client.Expire(ctx, m.connKey(userID), m.ttl).Err()
	_ = m.client.Set(ctx, m.presenceKey(userID), "online", m.ttl).Err()
}

func (m *Mirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	if m == nil || m.client == nil {
		return false, nil
	}
	val, err := m.client.Get(ctx, m.presenceKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "online", nil
}
