package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/larkclaw/larkclaw/pkg/logger"
	"github.com/larkclaw/larkclaw/pkg/providers"
)

// storedMessage is the JSONL record for one message. Tool calls keep their
// wire form ({id, type, function:{name, arguments}}).
type storedMessage struct {
	Role       string               `json:"role"`
	Content    any                  `json:"content"`
	ToolCalls  []providers.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Name       string               `json:"name,omitempty"`
	TS         string               `json:"ts"`
}

// metaRecord marks the consolidation watermark in the log.
type metaRecord struct {
	Type             string `json:"_type"`
	LastConsolidated int    `json:"last_consolidated"`
}

// Session is one conversation's durable message history: an append-only
// JSONL file plus a watermark marking messages already folded into long-term
// context and excluded from prompt reconstruction.
type Session struct {
	Key string

	mu               sync.Mutex
	path             string
	messages         []providers.Message
	lastConsolidated int
}

func newSession(key, path string) *Session {
	s := &Session{Key: key, path: path}
	s.load()
	return s
}

func (s *Session) load() {
	f, err := os.Open(s.path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var meta metaRecord
		if err := json.Unmarshal(line, &meta); err == nil && meta.Type == "meta" {
			s.lastConsolidated = meta.LastConsolidated
			continue
		}

		var rec storedMessage
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.WarnCF("session", "Skipping corrupt session record", map[string]interface{}{
				"key":   s.Key,
				"error": err.Error(),
			})
			continue
		}
		s.messages = append(s.messages, providers.Message{
			Role:       rec.Role,
			Content:    rec.Content,
			ToolCalls:  rec.ToolCalls,
			ToolCallID: rec.ToolCallID,
			Name:       rec.Name,
		})
	}
}

// History returns the messages from the consolidation watermark onward,
// trimmed forward so the first element has role "user", projected down to
// the fields relevant for LLM replay. The suffix stays byte-stable between
// turns so provider prefix caching keeps working.
func (s *Session) History() []providers.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.lastConsolidated
	if start > len(s.messages) {
		start = len(s.messages)
	}
	msgs := s.messages[start:]
	firstUser := -1
	for i, m := range msgs {
		if m.Role == "user" {
			firstUser = i
			break
		}
	}
	if firstUser == -1 {
		return []providers.Message{}
	}
	msgs = msgs[firstUser:]

	history := make([]providers.Message, len(msgs))
	copy(history, msgs)
	return history
}

// SaveTurn appends a full turn (user + assistant + tool messages) to the
// in-memory sequence and durably to the JSONL file, stamping every record
// with the turn's timestamp. Call order is preserved exactly.
func (s *Session) SaveTurn(msgs []providers.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	ts := time.Now().Format(time.RFC3339)
	w := bufio.NewWriter(f)
	for _, m := range msgs {
		data, err := json.Marshal(storedMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
			TS:         ts,
		})
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
		s.messages = append(s.messages, m)
	}
	return w.Flush()
}

// MarkConsolidated records that the first n messages are folded into
// long-term context and should be excluded from prompt replay.
func (s *Session) MarkConsolidated(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > len(s.messages) {
		n = len(s.messages)
	}
	s.lastConsolidated = n

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(metaRecord{Type: "meta", LastConsolidated: n})
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Len returns the number of persisted messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
