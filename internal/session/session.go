// Package session holds the credential pair every authenticated call is
// issued under, keyed by session id.
package session

import (
	"context"
	"sync"
	"time"

	"ojclient/pkg/errors"
)

// DefaultID is used when the caller does not name a session.
const DefaultID = "default"

// Credentials is the access/refresh token pair of one session.
type Credentials struct {
	Access           string    `json:"access_token"`
	Refresh          string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// Empty reports whether no token is held.
func (c Credentials) Empty() bool {
	return c.Access == "" && c.Refresh == ""
}

// Store persists credentials per session id. Implementations must be safe for
// concurrent use; the gateway's refresh is the only writer during a session.
type Store interface {
	// Load returns SessionNotFound when id has no credentials.
	Load(ctx context.Context, id string) (Credentials, error)
	Save(ctx context.Context, id string, creds Credentials) error
	Delete(ctx context.Context, id string) error
}

// Locker is implemented by stores shared between processes. The gateway holds
// the lock around a refresh exchange so only one process spends a rotating
// refresh token; the others find the new pair once the lock is released.
type Locker interface {
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Credentials)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.sessions[id]
	if !ok {
		return Credentials{}, errors.Newf(errors.SessionNotFound, "session %q not found", id)
	}
	return creds, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = creds
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
