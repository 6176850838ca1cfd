package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Role values assignable to users and carried on sessions.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// SessionUser is the identity bound to an active session. It carries only the
// fields handlers need for authorization decisions, never the password hash.
type SessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the session user holds the admin role.
func (u SessionUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// SessionStore issues, resolves, and destroys opaque session tokens.
// Implementations must treat expiry lazily: a token past its TTL resolves as
// absent and is removed on that access.
type SessionStore interface {
	Create(user SessionUser) (string, error)
	Resolve(sid string) (SessionUser, bool)
	Destroy(sid string)
}

// newSessionToken produces a cryptographically random, unguessable token.
func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

type memorySession struct {
	user      SessionUser
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in a process-local map. Sessions do not
// survive a restart; that is the intended behavior for single-node use.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessionStore creates an in-memory session store with a fixed TTL.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create issues a new token bound to the user, expiring at now + TTL.
// There is no sliding renewal; the expiry is fixed at creation.
func (s *MemorySessionStore) Create(user SessionUser) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sessions[token] = memorySession{
		user:      user,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()

	return token, nil
}

// Resolve returns the bound user iff the session exists and has not expired.
// An expired entry is deleted on this access.
func (s *MemorySessionStore) Resolve(sid string) (SessionUser, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[sid]
	s.mu.RUnlock()

	if !ok {
		return SessionUser{}, false
	}
	if s.now().After(sess.expiresAt) {
		s.Destroy(sid)
		return SessionUser{}, false
	}
	return sess.user, true
}

// Destroy removes a session. Removing an absent token is a no-op.
func (s *MemorySessionStore) Destroy(sid string) {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
}
