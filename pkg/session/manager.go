package session

import (
	"crypto/rand"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/payback159/contactgate/pkg/contact"
	"github.com/payback159/contactgate/pkg/logging"
)

const (
	// CookieName is the name of the visitor cookie
	CookieName = "contactgate_session"
	idKey      = "sid"
)

// FormFactory builds the contact form of a new session on top of its bucket
type FormFactory func(b *Bucket) *contact.Form

// Manager ties the server-side store to a signed cookie holding only the
// session id
type Manager struct {
	cookies *sessions.CookieStore
	store   *Store
	newForm FormFactory
}

// NewManager creates a manager. An empty secret gets a random one, which
// invalidates cookies on restart.
func NewManager(secret []byte, secure bool, store *Store, newForm FormFactory) (*Manager, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		logging.LogWarn("SESSION_SECRET not set, using an ephemeral key")
	}

	cookies := sessions.NewCookieStore(secret)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(store.ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{cookies: cookies, store: store, newForm: newForm}, nil
}

// Load returns the visitor's session, creating one and setting the cookie
// when there is none
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*Data, error) {
	sess, err := m.cookies.Get(r, CookieName)
	if err != nil {
		// tampered or signed with an old key; a fresh session is returned anyway
		logging.LogDebug("Discarding unreadable session cookie", "error", err)
	}

	if id, ok := sess.Values[idKey].(string); ok && id != "" {
		if data, found := m.store.Get(id); found {
			// refresh the cookie lifetime together with the server-side TTL
			if err := sess.Save(r, w); err != nil {
				logging.LogWarn("Failed to refresh session cookie", "error", err)
			}
			return data, nil
		}
	}

	id, err := GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	data := m.store.Create(id, m.newForm)

	sess.Values[idKey] = id
	if err := sess.Save(r, w); err != nil {
		m.store.Delete(id)
		return nil, fmt.Errorf("saving session cookie: %w", err)
	}

	logging.LogDebug("New visitor session", "session_id", id)
	return data, nil
}

// Store returns the underlying session store
func (m *Manager) Store() *Store {
	return m.store
}
