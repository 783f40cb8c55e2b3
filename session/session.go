// Package session tracks the authenticated FTP identities currently logged
// in. Exactly one Session exists per user key; a new login replaces the
// previous one without disconnecting it.
package session

import (
	"sync"
	"time"

	"github.com/cyberinferno/camingest/safeset"
)

// Session is the live record of one authenticated identity.
type Session struct {
	// User is the authenticated tenant key.
	User string
	// MainAddr is the client IP seen at login.
	MainAddr string

	addrs *safeset.SafeSet[string]

	mu           sync.Mutex
	loginAt      time.Time
	lastActivity time.Time
}

func newSession(user, addr string, now time.Time) *Session {
	return &Session{
		User:         user,
		MainAddr:     addr,
		addrs:        safeset.NewSafeSet[string](),
		loginAt:      now,
		lastActivity: now,
	}
}

// LoginAt returns when the session was created.
func (s *Session) LoginAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginAt
}

// LastActivity returns the time of the last command on the session.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// AdditionalAddrs returns the client addresses observed after login that
// differ from MainAddr.
func (s *Session) AdditionalAddrs() []string {
	return s.addrs.Values()
}

// Touch records activity from addr at now. It returns true the first time
// an address other than MainAddr is seen. It never blocks a command.
func (s *Session) Touch(addr string, now time.Time) bool {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()

	if addr == "" || addr == s.MainAddr {
		return false
	}

	return s.addrs.Add(addr)
}

// Manager is the mutex-guarded session table.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns an empty session table.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Login creates the session for user, replacing any existing one.
//
// Parameters:
//   - user: Authenticated tenant key
//   - addr: Client IP of the control connection
//   - now: Login time
//
// Returns:
//   - The new session
//   - true if an earlier session for the same user was replaced
func (m *Manager) Login(user, addr string, now time.Time) (*Session, bool) {
	s := newSession(user, addr, now)

	m.mu.Lock()
	defer m.mu.Unlock()
	_, replaced := m.sessions[user]
	m.sessions[user] = s

	return s, replaced
}

// Logout removes s from the table if it is still the current session for
// its user. A session already replaced by a newer login is left alone.
//
// Returns:
//   - true if the entry was removed
func (m *Manager) Logout(s *Session) bool {
	if s == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.User]; ok && cur == s {
		delete(m.sessions, s.User)
		return true
	}

	return false
}

// Get returns the current session for user.
func (m *Manager) Get(user string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[user]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
