package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/larkclaw/larkclaw/pkg/providers"
	"github.com/larkclaw/larkclaw/pkg/session"
	"github.com/larkclaw/larkclaw/pkg/tools"
)

// scriptedProvider returns canned responses in order.
type scriptedProvider struct {
	responses []*providers.LLMResponse
	calls     int
}

func (p *scriptedProvider) Chat(_ context.Context, _ []providers.Message, _ []providers.ToolDefinition, _ []int) *providers.LLMResponse {
	if p.calls >= len(p.responses) {
		return &providers.LLMResponse{Content: "out of script", FinishReason: "stop"}
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp
}

// fakeToolbox records calls and maps tool names to fixed results.
type fakeToolbox struct {
	results map[string]tools.Result
	calls   []tools.Call
}

func (tb *fakeToolbox) Definitions() []providers.ToolDefinition { return nil }

func (tb *fakeToolbox) Run(_ context.Context, call tools.Call) tools.Result {
	tb.calls = append(tb.calls, call)
	if r, ok := tb.results[call.Name]; ok {
		return r
	}
	return tools.Result{Text: "Unknown tool: " + call.Name}
}

func toolCall(id, name string, args map[string]any) providers.ToolCall {
	return providers.ToolCall{ID: id, Type: "function", Name: name, Arguments: args,
		Function: &providers.FunctionCall{Name: name}}
}

func newTestLoop(t *testing.T, provider providers.Provider, toolbox Toolbox, maxRounds int) (*Loop, *session.Manager) {
	t.Helper()
	memory, err := session.NewMemoryStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sessions := session.NewManager(t.TempDir())
	ctxb := NewContextBuilder("You are a test bot.", memory, t.TempDir())
	loop := NewLoop(provider, toolbox, sessions, ctxb, maxRounds)
	loop.restartFn = func() {}
	return loop, sessions
}

func TestRun_ToolRoundTrip(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{toolCall("call_1", "shell", map[string]any{"cmd": "ls"})}, FinishReason: "tool_calls"},
		{Content: "Two files: a.txt and b.txt", FinishReason: "stop"},
	}}
	toolbox := &fakeToolbox{results: map[string]tools.Result{
		"shell": {Text: "a.txt\nb.txt"},
	}}
	loop, sessions := newTestLoop(t, provider, toolbox, 10)

	var delivered []string
	reply := loop.Run(context.Background(), "test:chat", "list files", func(s string) error {
		delivered = append(delivered, s)
		return nil
	})

	if reply != "Two files: a.txt and b.txt" {
		t.Errorf("reply = %q", reply)
	}
	if len(delivered) != 1 || delivered[0] != reply {
		t.Errorf("delivered = %v", delivered)
	}
	if len(toolbox.calls) != 1 || toolbox.calls[0].Name != "shell" || toolbox.calls[0].ID != "call_1" {
		t.Errorf("tool calls = %+v", toolbox.calls)
	}

	// user, assistant-with-tool-call, tool, final assistant
	sess := sessions.Get("test:chat")
	if sess.Len() != 4 {
		t.Fatalf("persisted %d messages, want 4", sess.Len())
	}
	history := sess.History()
	wantRoles := []string{"user", "assistant", "tool", "assistant"}
	for i, role := range wantRoles {
		if history[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, history[i].Role, role)
		}
	}
	if history[2].ToolCallID != "call_1" || history[2].Name != "shell" {
		t.Errorf("tool message = %+v", history[2])
	}
}

func TestRun_ToolOrderPreserved(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{
			toolCall("c1", "write_file", map[string]any{"path": "a"}),
			toolCall("c2", "read_file", map[string]any{"path": "a"}),
			toolCall("c3", "shell", map[string]any{"cmd": "cat a"}),
		}, FinishReason: "tool_calls"},
		{Content: "done", FinishReason: "stop"},
	}}
	toolbox := &fakeToolbox{results: map[string]tools.Result{}}
	loop, sessions := newTestLoop(t, provider, toolbox, 10)

	loop.Run(context.Background(), "test:order", "go", nil)

	if len(toolbox.calls) != 3 {
		t.Fatalf("got %d tool calls, want 3", len(toolbox.calls))
	}
	wantIDs := []string{"c1", "c2", "c3"}
	for i, id := range wantIDs {
		if toolbox.calls[i].ID != id {
			t.Errorf("call %d id = %q, want %q", i, toolbox.calls[i].ID, id)
		}
	}

	// Each tool message echoes its call ID, in issue order.
	history := sessions.Get("test:order").History()
	var gotIDs []string
	for _, m := range history {
		if m.Role == "tool" {
			gotIDs = append(gotIDs, m.ToolCallID)
		}
	}
	if strings.Join(gotIDs, ",") != "c1,c2,c3" {
		t.Errorf("tool message ids = %v", gotIDs)
	}
}

func TestRun_ProviderErrorEndsTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{Content: "Error: connection refused", FinishReason: "error"},
	}}
	toolbox := &fakeToolbox{}
	loop, sessions := newTestLoop(t, provider, toolbox, 10)

	reply := loop.Run(context.Background(), "test:err", "hello", nil)

	if reply != "Error: connection refused" {
		t.Errorf("reply = %q", reply)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1 (no retry)", provider.calls)
	}
	// Only the user message was produced this turn.
	if got := sessions.Get("test:err").Len(); got != 1 {
		t.Errorf("persisted %d messages, want 1", got)
	}
}

func TestRun_MaxRoundsNotice(t *testing.T) {
	alwaysTools := &providers.LLMResponse{
		ToolCalls:    []providers.ToolCall{toolCall("c", "shell", map[string]any{"cmd": "ls"})},
		FinishReason: "tool_calls",
	}
	provider := &scriptedProvider{responses: []*providers.LLMResponse{alwaysTools, alwaysTools, alwaysTools}}
	toolbox := &fakeToolbox{results: map[string]tools.Result{"shell": {Text: "x"}}}
	loop, _ := newTestLoop(t, provider, toolbox, 2)

	reply := loop.Run(context.Background(), "test:rounds", "loop forever", nil)

	if reply != "Reached maximum tool call rounds." {
		t.Errorf("reply = %q", reply)
	}
	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2", provider.calls)
	}
}

func TestRun_RestartAfterReply(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{toolCall("c1", "restart_self", nil)}, FinishReason: "tool_calls"},
		{Content: "Restarting to pick up changes.", FinishReason: "stop"},
	}}
	toolbox := &fakeToolbox{results: map[string]tools.Result{
		"restart_self": {Text: "Restarting now...", Restart: true},
	}}
	loop, _ := newTestLoop(t, provider, toolbox, 10)

	var events []string
	loop.restartFn = func() { events = append(events, "restart") }

	reply := loop.Run(context.Background(), "test:restart", "restart yourself", func(s string) error {
		events = append(events, "reply")
		return nil
	})

	if reply != "Restarting to pick up changes." {
		t.Errorf("reply = %q", reply)
	}
	if strings.Join(events, ",") != "reply,restart" {
		t.Errorf("events = %v, want reply before restart", events)
	}
}

func TestRun_NoToolsDirectReply(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{Content: "Just an answer.", FinishReason: "stop"},
	}}
	loop, sessions := newTestLoop(t, provider, &fakeToolbox{}, 10)

	reply := loop.Run(context.Background(), "test:plain", "a question", nil)

	if reply != "Just an answer." {
		t.Errorf("reply = %q", reply)
	}
	if got := sessions.Get("test:plain").Len(); got != 2 {
		t.Errorf("persisted %d messages, want 2", got)
	}
}
