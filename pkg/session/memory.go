package session

import (
	"os"
	"path/filepath"
	"strings"
)

// MemoryStore is the long-term memory: one markdown blob, shared by every
// conversation, mutated only by explicit append. Writes are whole-file
// overwrites with no locking; concurrent appends from different
// conversations can lose an update (last writer wins). Accepted: turns for
// one conversation run sequentially and cross-conversation concurrency is
// low.
type MemoryStore struct {
	path string
}

// NewMemoryStore creates the backing directory if absent.
func NewMemoryStore(dir string) (*MemoryStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &MemoryStore{path: filepath.Join(dir, "MEMORY.md")}, nil
}

// Load returns the current memory content, or "" if none exists yet.
func (m *MemoryStore) Load() string {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return ""
	}
	return string(data)
}

// Append concatenates trimmed content to the existing blob, separated by a
// blank line, and writes the whole file back.
func (m *MemoryStore) Append(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	existing := strings.TrimRight(m.Load(), "\n")
	var blob string
	if existing == "" {
		blob = content + "\n"
	} else {
		blob = existing + "\n\n" + content + "\n"
	}
	return os.WriteFile(m.path, []byte(blob), 0644)
}
