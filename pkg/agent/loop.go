// larkclaw - Feishu-first personal AI agent
// License: MIT

package agent

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/larkclaw/larkclaw/pkg/logger"
	"github.com/larkclaw/larkclaw/pkg/providers"
	"github.com/larkclaw/larkclaw/pkg/session"
	"github.com/larkclaw/larkclaw/pkg/tools"
	"github.com/larkclaw/larkclaw/pkg/utils"
)

const maxRoundsNotice = "Reached maximum tool call rounds."

// Toolbox is what the loop needs from the tool layer: the schema to
// advertise and an executor that never fails out-of-band.
type Toolbox interface {
	Definitions() []providers.ToolDefinition
	Run(ctx context.Context, call tools.Call) tools.Result
}

// Loop drives one user turn at a time: prompt assembly, the bounded
// tool-call protocol against the provider, tool execution, persistence
// and deferred restart.
type Loop struct {
	provider  providers.Provider
	toolbox   Toolbox
	sessions  *session.Manager
	ctxb      *ContextBuilder
	maxRounds int

	// restartFn replaces the running process; swapped out in tests.
	restartFn func()
}

func NewLoop(provider providers.Provider, toolbox Toolbox, sessions *session.Manager, ctxb *ContextBuilder, maxRounds int) *Loop {
	if maxRounds <= 0 {
		maxRounds = 20
	}
	return &Loop{
		provider:  provider,
		toolbox:   toolbox,
		sessions:  sessions,
		ctxb:      ctxb,
		maxRounds: maxRounds,
		restartFn: execRestart,
	}
}

// Run processes one inbound message end to end and returns the final
// reply text. onReply delivers the reply to the chat before Run
// returns; if a tool requested a restart, the process is replaced only
// after delivery and persistence, so the user always sees the reply
// first.
func (l *Loop) Run(ctx context.Context, key string, userContent any, onReply func(string) error) string {
	sess := l.sessions.Get(key)
	messages, cacheIndices := l.ctxb.BuildMessages(sess, userContent)

	turn := []providers.Message{{Role: "user", Content: userContent}}
	finalReply := ""
	pendingRestart := false

	for round := 0; round < l.maxRounds; round++ {
		resp := l.provider.Chat(ctx, messages, l.toolbox.Definitions(), cacheIndices)

		if resp.FinishReason == "error" {
			finalReply = resp.Content
			break
		}

		assistant := providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistant)
		turn = append(turn, assistant)

		if !resp.HasToolCalls() {
			finalReply = resp.Content
			break
		}

		for _, tc := range resp.ToolCalls {
			result := l.toolbox.Run(ctx, tools.Call{ID: tc.ID, Name: tc.Name, Args: tc.Arguments})
			if result.Restart {
				pendingRestart = true
			}
			toolMsg := providers.Message{
				Role:       "tool",
				Content:    result.Text,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			}
			messages = append(messages, toolMsg)
			turn = append(turn, toolMsg)
		}

		if round == l.maxRounds-1 {
			finalReply = maxRoundsNotice
		}
	}

	if err := sess.SaveTurn(turn); err != nil {
		logger.ErrorCF("agent", "Failed to persist turn", map[string]interface{}{
			"session": key,
			"error":   err.Error(),
		})
	}

	if finalReply != "" && onReply != nil {
		if err := onReply(finalReply); err != nil {
			logger.ErrorCF("agent", "Failed to deliver reply", map[string]interface{}{
				"session": key,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoCF("agent", "Turn complete", map[string]interface{}{
		"session":  key,
		"messages": len(turn),
		"reply":    utils.Truncate(finalReply, 120),
	})

	if pendingRestart {
		logger.InfoC("agent", "Restart requested, replacing process")
		l.restartFn()
	}

	return finalReply
}

// execRestart replaces the process image with a fresh copy of itself.
// The short sleep lets the outbound reply flush first.
func execRestart() {
	time.Sleep(time.Second)
	exe, err := os.Executable()
	if err != nil {
		logger.ErrorCF("agent", "Restart failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		logger.ErrorCF("agent", "Restart failed", map[string]interface{}{"error": err.Error()})
	}
}
