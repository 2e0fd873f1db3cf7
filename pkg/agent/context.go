package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/larkclaw/larkclaw/pkg/providers"
	"github.com/larkclaw/larkclaw/pkg/session"
)

// ContextBuilder assembles the layered prompt for a turn: base system
// prompt, long-term memory, skills, the session's replayable history,
// a runtime-context message and the current user content.
type ContextBuilder struct {
	systemPrompt string
	memory       *session.MemoryStore
	skillsDir    string
}

func NewContextBuilder(systemPrompt string, memory *session.MemoryStore, skillsDir string) *ContextBuilder {
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		memory:       memory,
		skillsDir:    skillsDir,
	}
}

// systemMessage folds memory and skills into the base prompt. Rebuilt
// every turn so newly saved memory is visible on the next message.
func (cb *ContextBuilder) systemMessage() string {
	parts := []string{cb.systemPrompt}
	if mem := cb.memory.Load(); mem != "" {
		parts = append(parts, "## Memory\n\n"+mem)
	}
	if skills := LoadSkills(cb.skillsDir); skills != "" {
		parts = append(parts, skills)
	}
	return strings.Join(parts, "\n\n")
}

func runtimeContext(key string, now time.Time) string {
	return fmt.Sprintf("[Context]\nTime: %s\nChat: %s", now.Format("2006-01-02 15:04"), key)
}

// BuildMessages produces the full message list for one turn plus the
// positions that should carry a cache-eligibility mark: the system
// message and the runtime-context message. History sits between them
// unchanged, so consecutive turns share a byte-stable prefix and the
// provider's prompt cache stays warm.
func (cb *ContextBuilder) BuildMessages(sess *session.Session, userContent any) ([]providers.Message, []int) {
	history := sess.History()

	messages := make([]providers.Message, 0, len(history)+3)
	messages = append(messages, providers.Message{Role: "system", Content: cb.systemMessage()})
	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: "user", Content: runtimeContext(sess.Key, time.Now())})
	messages = append(messages, providers.Message{Role: "user", Content: userContent})

	cacheIndices := []int{0, 1 + len(history)}
	return messages, cacheIndices
}

// BuildUserContent packs text plus any attached images into message
// content. Plain text stays a string; with images it becomes a part
// list with one data-URL image part per attachment.
func BuildUserContent(text string, imagesB64 []string) any {
	if len(imagesB64) == 0 {
		return text
	}
	parts := []providers.ContentPart{{Type: "text", Text: text}}
	for _, img := range imagesB64 {
		parts = append(parts, providers.ContentPart{
			Type:     "image_url",
			ImageURL: &providers.ImageURL{URL: "data:image/jpeg;base64," + img},
		})
	}
	return parts
}
