// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wfunc/codexserver/network"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUsernameTaken   = errors.New("username already in use")
	ErrAlreadyBound    = errors.New("session already has a username")
	ErrInvalidUsername = errors.New("invalid username")
	ErrNotLoggedIn     = errors.New("login first")
)

var validate = validator.New()

type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time

	username   string
	lastActive time.Time
	data       map[string]interface{} // 自定义数据
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		data:       make(map[string]interface{}),
	}
}

func (s *Session) Set(key string, value interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.data[key] = value
}

func (s *Session) Get(key string) interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.data[key]
}

// Username returns the bound username, or "" before login.
func (s *Session) Username() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.username
}

// Touch records client activity.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Send(msgID uint16, data []byte) error {
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions   map[string]*Session
	byUsername map[string]*Session
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		byUsername: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

// Remove forgets the session and releases its username.
func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	if name := s.Username(); name != "" && m.byUsername[name] == s {
		delete(m.byUsername, name)
	}
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// Bind reserves username for the session. Usernames are unique among live
// sessions.
func (m *Manager) Bind(sessionID, username string) error {
	if err := validate.Var(username, "required,alphanum,max=32"); err != nil {
		return ErrInvalidUsername
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Username() != "" {
		return ErrAlreadyBound
	}
	if _, taken := m.byUsername[username]; taken {
		return ErrUsernameTaken
	}
	s.mutex.Lock()
	s.username = username
	s.mutex.Unlock()
	m.byUsername[username] = s
	return nil
}

func (m *Manager) GetByUsername(username string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.byUsername[username]
	return s, ok
}

// IdleSince returns the sessions with no activity after cutoff.
func (m *Manager) IdleSince(cutoff time.Time) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			result = append(result, s)
		}
	}
	return result
}

func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
