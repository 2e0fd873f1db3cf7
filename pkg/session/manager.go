package session

import (
	"path/filepath"
	"strings"
	"sync"
)

// SanitizeKey replaces characters illegal in filenames (e.g. ':' in
// conversation keys like "feishu:oc_abc").
func SanitizeKey(key string) string {
	key = strings.ReplaceAll(key, ":", "_")
	return strings.ReplaceAll(key, "/", "_")
}

// Manager is the process-wide registry mapping conversation key to Session.
// Sessions are created lazily and live for the process lifetime; there is no
// eviction, which is fine at the conversation cardinality this bot sees.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	dir      string
}

func NewManager(dir string) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		dir:      dir,
	}
}

// Get returns the Session for key, constructing and registering it on first
// access. Idempotent for a given key; safe under concurrent creation of
// different keys.
func (m *Manager) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := newSession(key, filepath.Join(m.dir, SanitizeKey(key)+".jsonl"))
	m.sessions[key] = s
	return s
}
