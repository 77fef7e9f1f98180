package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ojclient/internal/common/cache"
	"ojclient/pkg/errors"

	"github.com/google/uuid"
)

const (
	defaultKeyPrefix = "ojclient:session:"

	lockSuffix       = ":refresh-lock"
	lockLease        = 15 * time.Second
	lockPollInterval = 25 * time.Millisecond
)

// RedisStore keeps sessions in a shared cache so several client processes can
// use one login. It implements Locker so their refreshes do not race.
type RedisStore struct {
	cache  cache.BasicOps
	prefix string
}

// NewRedisStore creates a store over c. An empty prefix uses the default.
func NewRedisStore(c cache.BasicOps, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{cache: c, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (Credentials, error) {
	var creds Credentials
	raw, err := s.cache.Get(ctx, s.key(id))
	if err != nil {
		return creds, errors.Wrapf(err, errors.CacheError, "load session failed: %v", err)
	}
	if raw == "" {
		return creds, errors.Newf(errors.SessionNotFound, "session %q not found", id)
	}
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return creds, errors.Wrapf(err, errors.CacheError, "decode session failed: %v", err)
	}
	return creds, nil
}

// Save stores creds until the refresh token expires, or without expiry when
// the refresh expiry is unknown.
func (s *RedisStore) Save(ctx context.Context, id string, creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	var ttl time.Duration
	if !creds.RefreshExpiresAt.IsZero() {
		ttl = time.Until(creds.RefreshExpiresAt)
		if ttl <= 0 {
			return s.Delete(ctx, id)
		}
	}
	if err := s.cache.Set(ctx, s.key(id), data, ttl); err != nil {
		return errors.Wrapf(err, errors.CacheError, "save session failed: %v", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.cache.Del(ctx, s.key(id)); err != nil {
		return errors.Wrapf(err, errors.CacheError, "delete session failed: %v", err)
	}
	return nil
}

// Lock takes the refresh lease of id, waiting until it is free or ctx ends.
// A lease whose holder died lapses after lockLease.
func (s *RedisStore) Lock(ctx context.Context, id string) (func(), error) {
	key := s.key(id) + lockSuffix
	owner := uuid.NewString()
	for {
		ok, err := s.cache.SetNX(ctx, key, owner, lockLease)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CacheError, "acquire session lock failed: %v", err)
		}
		if ok {
			return func() { s.unlock(key, owner) }, nil
		}
		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Wrapf(ctx.Err(), errors.Timeout, "wait for session lock: %v", ctx.Err())
		case <-timer.C:
		}
	}
}

// unlock releases the lease only while owner still holds it.
func (s *RedisStore) unlock(key, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	current, err := s.cache.Get(ctx, key)
	if err != nil || current != owner {
		return
	}
	_ = s.cache.Del(ctx, key)
}

var _ Locker = (*RedisStore)(nil)
