// Package session keeps per-browser UI state such as the selected project
// and a one-shot flash message.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// CookieName is the cookie carrying the session id.
const CookieName = "notes_session"

// DefaultTTL is how long an idle session survives.
const DefaultTTL = 24 * time.Hour

// Flash is a message shown once on the next page render.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Session is the mutable state of one browser.
type Session struct {
	ID        string
	ProjectID int64
	User      string
	flash     *Flash
}

// Manager stores sessions in memory. Sessions expire after ttl without use.
type Manager struct {
	mu     sync.Mutex
	ttl    time.Duration
	secure bool
	items  *cache.Cache
}

// NewManager returns a manager whose sessions expire after ttl of inactivity.
func NewManager(ttl time.Duration, secure bool) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		ttl:    ttl,
		secure: secure,
		items:  cache.New(ttl, ttl*2),
	}
}

// Load returns the session bound to r, creating one and setting its cookie on
// w when the request has none or it has expired.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, err := r.Cookie(CookieName); err == nil {
		if v, found := m.items.Get(c.Value); found {
			s := v.(*Session)
			m.items.Set(s.ID, s, cache.DefaultExpiration)
			return s
		}
	}

	s := &Session{ID: uuid.NewString()}
	m.items.Set(s.ID, s, cache.DefaultExpiration)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// SetProject records the selected project.
func (m *Manager) SetProject(s *Session, projectID int64) {
	m.mu.Lock()
	s.ProjectID = projectID
	m.mu.Unlock()
}

// SetUser records the display name used in audit entries.
func (m *Manager) SetUser(s *Session, user string) {
	m.mu.Lock()
	s.User = user
	m.mu.Unlock()
}

// AddFlash queues a message for the next render, replacing any pending one.
func (m *Manager) AddFlash(s *Session, kind, message string) {
	m.mu.Lock()
	s.flash = &Flash{Kind: kind, Message: message}
	m.mu.Unlock()
}

// PopFlash returns and clears the pending message.
func (m *Manager) PopFlash(s *Session) *Flash {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := s.flash
	s.flash = nil
	return f
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.items.ItemCount()
}
