package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/payback159/contactgate/pkg/contact"
	"github.com/payback159/contactgate/pkg/logging"
	"github.com/payback159/contactgate/pkg/ratelimit"
)

// DefaultTTL is how long an idle visitor session lives
const DefaultTTL = 30 * time.Minute

// ErrSessionGone is returned by a Bucket whose session expired or was deleted
var ErrSessionGone = errors.New("session no longer exists")

// Store manages visitor sessions with automatic cleanup
type Store struct {
	sessions map[string]*Data
	mutex    sync.RWMutex
	ttl      time.Duration
}

// Data is everything kept for one visitor: a small key-value bag and the
// contact form they are filling in
type Data struct {
	ID        string
	Form      *contact.Form
	ExpiresAt time.Time
	values    map[string]string
}

// NewStore creates a new session store whose cleanup routine runs until
// ctx is done
func NewStore(ctx context.Context, ttl time.Duration) *Store {
	store := newStore(ttl)
	store.startCleanup(ctx)
	return store
}

func newStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*Data),
		ttl:      ttl,
	}
}

// Create starts a fresh session under id, replacing any previous one.
// newForm may be nil for sessions without a form.
func (s *Store) Create(id string, newForm FormFactory) *Data {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if old, exists := s.sessions[id]; exists {
		closeForm(old)
	}

	data := &Data{
		ID:        id,
		ExpiresAt: time.Now().Add(s.ttl),
		values:    make(map[string]string),
	}
	if newForm != nil {
		data.Form = newForm(s.Bucket(id))
	}
	s.sessions[id] = data

	logging.LogDebug("Session created",
		"session_id", id,
		"expires_at", data.ExpiresAt.Format(time.RFC3339))

	return data
}

// Get retrieves a session if it exists and hasn't expired. A hit extends
// the session's lifetime.
func (s *Store) Get(id string) (*Data, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sessionData, exists := s.sessions[id]
	if !exists {
		logging.LogDebug("Session not found", "session_id", id)
		return nil, false
	}

	if time.Now().After(sessionData.ExpiresAt) {
		logging.LogDebug("Session expired",
			"session_id", id,
			"expired_at", sessionData.ExpiresAt.Format(time.RFC3339))

		delete(s.sessions, id)
		closeForm(sessionData)

		return nil, false
	}

	sessionData.ExpiresAt = time.Now().Add(s.ttl)
	return sessionData, true
}

// Delete removes a session
func (s *Store) Delete(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if sessionData, exists := s.sessions[id]; exists {
		delete(s.sessions, id)
		closeForm(sessionData)
		logging.LogDebug("Session deleted", "session_id", id)
	}
}

// Bucket returns the key-value view of session id
func (s *Store) Bucket(id string) *Bucket {
	return &Bucket{store: s, id: id}
}

// startCleanup runs a background goroutine to clean up expired sessions
func (s *Store) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired()
			}
		}
	}()
}

// cleanupExpired removes all expired sessions
func (s *Store) cleanupExpired() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	expiredCount := 0

	for id, sessionData := range s.sessions {
		if now.After(sessionData.ExpiresAt) {
			delete(s.sessions, id)
			closeForm(sessionData)
			expiredCount++
		}
	}

	if expiredCount > 0 {
		logging.LogInfo("Cleaned up expired sessions",
			"expired_count", expiredCount,
			"remaining_sessions", len(s.sessions))
	}
}

// closeForm stops a pending confirmation timer of a dropped session
func closeForm(d *Data) {
	if d.Form != nil {
		d.Form.Close()
	}
}

// GenerateSessionID creates a cryptographically secure random session ID
func GenerateSessionID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		logging.LogError("Failed to generate session ID", err)
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// GetSessionCount returns the current number of active sessions
func (s *Store) GetSessionCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sessions)
}

var _ ratelimit.Store = (*Bucket)(nil)

// Bucket is the key-value storage of one session. Its contents vanish
// with the session, which is what scopes the submission ledger.
type Bucket struct {
	store *Store
	id    string
}

// live returns the session's data. Callers hold the store mutex.
func (b *Bucket) live() (*Data, error) {
	d, ok := b.store.sessions[b.id]
	if !ok || time.Now().After(d.ExpiresAt) {
		return nil, ErrSessionGone
	}
	return d, nil
}

func (b *Bucket) Get(key string) (string, bool, error) {
	b.store.mutex.RLock()
	defer b.store.mutex.RUnlock()
	d, err := b.live()
	if err != nil {
		return "", false, err
	}
	v, ok := d.values[key]
	return v, ok, nil
}

func (b *Bucket) Set(key, value string) error {
	b.store.mutex.Lock()
	defer b.store.mutex.Unlock()
	d, err := b.live()
	if err != nil {
		return err
	}
	d.values[key] = value
	return nil
}

func (b *Bucket) Remove(key string) error {
	b.store.mutex.Lock()
	defer b.store.mutex.Unlock()
	d, err := b.live()
	if err != nil {
		return err
	}
	delete(d.values, key)
	return nil
}
