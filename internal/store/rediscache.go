package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/redis/go-redis/v9"
)

const sessionCacheKeyPrefix = "passport:session:"

// CachedSessionStore wraps a SessionStore with a Redis read-through
// cache keyed by token hash. Every write path invalidates the
// affected keys rather than updating them in place, so a cache miss
// always falls back to Postgres.
type CachedSessionStore struct {
	next   SessionStore
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSessionStore wraps next with a Redis cache. A nil client
// degrades to calling next directly, so the cache is optional.
func NewCachedSessionStore(next SessionStore, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSessionStore {
	return &CachedSessionStore{next: next, client: client, ttl: ttl, logger: logger}
}

var _ SessionStore = (*CachedSessionStore)(nil)

type cachedSession struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *CachedSessionStore) Create(ctx context.Context, sess *domain.Session) error {
	return c.next.Create(ctx, sess)
}

func (c *CachedSessionStore) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	if c.client == nil {
		return c.next.FindByTokenHash(ctx, tokenHash)
	}

	key := sessionCacheKeyPrefix + tokenHash
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cs cachedSession
		if jsonErr := json.Unmarshal(raw, &cs); jsonErr == nil {
			if time.Now().After(cs.ExpiresAt) {
				return nil, ErrNotFound
			}
			return &domain.Session{
				ID: cs.ID, UserID: cs.UserID, TokenHash: cs.TokenHash,
				IPAddress: cs.IPAddress, UserAgent: cs.UserAgent,
				ExpiresAt: cs.ExpiresAt, CreatedAt: cs.CreatedAt,
			}, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("session cache read failed", "error", err)
	}

	sess, err := c.next.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(cachedSession{
		ID: sess.ID, UserID: sess.UserID, TokenHash: sess.TokenHash,
		IPAddress: sess.IPAddress, UserAgent: sess.UserAgent,
		ExpiresAt: sess.ExpiresAt, CreatedAt: sess.CreatedAt,
	}); err == nil {
		ttl := c.ttl
		if until := time.Until(sess.ExpiresAt); until < ttl {
			ttl = until
		}
		if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
			c.logger.Warn("session cache write failed", "error", err)
		}
	}

	return sess, nil
}

func (c *CachedSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidateAll(ctx)
	return nil
}

func (c *CachedSessionStore) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	if err := c.next.DeleteForUser(ctx, userID); err != nil {
		return err
	}
	c.invalidateAll(ctx)
	return nil
}

func (c *CachedSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	return c.next.DeleteExpired(ctx)
}

// invalidateAll drops the whole session-cache keyspace. Session lookups
// are keyed by an unpredictable token hash, so there is no cheap way to
// invalidate a single affected entry from a user-scoped delete; a full
// sweep keeps the cache simple at the cost of a cold read afterward.
func (c *CachedSessionStore) invalidateAll(ctx context.Context) {
	if c.client == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, sessionCacheKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("session cache scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("session cache invalidation failed", "error", err)
	}
}
