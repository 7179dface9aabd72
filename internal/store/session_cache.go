package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teresa-solution/tenant-isolation-service/internal/crypto"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
)

// SessionCache is the fast store: one JSON snapshot per session under
// session:<id>, and a revocation marker under session:<id>:revoked. It holds
// no data the durable store does not have.
//
// The marker lives in its own key so that no write of an active snapshot,
// however late it lands, can hide a revocation: Get checks the marker first.
type SessionCache struct {
	redis RedisClient
}

func NewSessionCache(redis RedisClient) *SessionCache {
	return &SessionCache{redis: redis}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func revokedKey(id string) string {
	return fmt.Sprintf("session:%s:revoked", id)
}

// Get returns the cached snapshot, or nil on a miss. A revoked session
// comes back as its inactive snapshot even if an active one is also stored.
func (c *SessionCache) Get(ctx context.Context, id string) (*model.Session, error) {
	vals, err := c.redis.MGet(ctx, revokedKey(id), sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}

	for _, v := range vals {
		cached, ok := v.(string)
		if !ok {
			continue
		}
		s := &model.Session{}
		if err := json.Unmarshal([]byte(cached), s); err != nil {
			return nil, fmt.Errorf("corrupt session snapshot: %w", err)
		}
		if !crypto.Equal(s.ID, id) {
			return nil, fmt.Errorf("session snapshot key mismatch")
		}
		return s, nil
	}
	return nil, nil
}

// Put stores s for ttl. An inactive s is written as the revocation marker.
// A non-positive ttl removes the active snapshot instead.
func (c *SessionCache) Put(ctx context.Context, s *model.Session, ttl time.Duration) error {
	key := sessionKey(s.ID)
	if !s.IsActive {
		key = revokedKey(s.ID)
	} else if ttl <= 0 {
		return c.Delete(ctx, s.ID)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.redis.SetEx(ctx, key, data, ttl).Err()
}

// Delete drops the active snapshot for id. Revocation markers stay until
// they expire.
func (c *SessionCache) Delete(ctx context.Context, id string) error {
	return c.redis.Del(ctx, sessionKey(id)).Err()
}
