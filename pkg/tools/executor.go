package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/larkclaw/larkclaw/pkg/logger"
	"github.com/larkclaw/larkclaw/pkg/session"
	"github.com/larkclaw/larkclaw/pkg/utils"
)

// Kind is a closed enumeration of the tools the model may call.
type Kind string

const (
	KindShell        Kind = "shell"
	KindReadFile     Kind = "read_file"
	KindWriteFile    Kind = "write_file"
	KindEditFile     Kind = "edit_file"
	KindPatchFile    Kind = "patch_file"
	KindSaveMemory   Kind = "save_memory"
	KindRecallMemory Kind = "recall_memory"
	KindRestartSelf  Kind = "restart_self"
	KindWebSearch    Kind = "web_search"
	KindWebFetch     Kind = "web_fetch"
)

// Call is one model-requested tool invocation with its decoded arguments.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Result is what every tool returns: text the model can see and react to,
// plus a flag asking the process to restart once the turn is done. Tool
// failures are always encoded in Text, never surfaced as errors.
type Result struct {
	Text    string
	Restart bool
}

// Config is the explicit configuration for an Executor. No globals: tests
// inject fake endpoints and temp workspaces here.
type Config struct {
	Workspace    string
	Memory       *session.MemoryStore
	BraveAPIKey  string
	HTTPProxyURL string
}

// Executor owns every side-effecting operation the model can request.
type Executor struct {
	workspace  string
	memory     *session.MemoryStore
	braveKey   string
	httpClient *http.Client
}

func NewExecutor(cfg Config) *Executor {
	transport := &http.Transport{}
	if cfg.HTTPProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.HTTPProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &Executor{
		workspace: cfg.Workspace,
		memory:    cfg.Memory,
		braveKey:  cfg.BraveAPIKey,
		httpClient: &http.Client{
			Transport: transport,
		},
	}
}

// Run executes one tool call and converts every failure into a textual
// result the model can see.
func (e *Executor) Run(ctx context.Context, call Call) Result {
	argsJSON, _ := json.Marshal(call.Args)
	logger.InfoCF("tool", fmt.Sprintf("Tool call: %s(%s)", call.Name, utils.Truncate(string(argsJSON), 200)),
		map[string]interface{}{"tool": call.Name})

	start := time.Now()
	result := e.dispatch(ctx, call)
	logger.DebugCF("tool", "Tool call completed", map[string]interface{}{
		"tool":        call.Name,
		"duration_ms": time.Since(start).Milliseconds(),
		"result_len":  len(result.Text),
		"restart":     result.Restart,
	})
	return result
}

func (e *Executor) dispatch(ctx context.Context, call Call) Result {
	switch Kind(call.Name) {
	case KindShell:
		return e.shell(ctx, decodeArgs[shellArgs](call.Args))
	case KindReadFile:
		return e.readFile(decodeArgs[readFileArgs](call.Args))
	case KindWriteFile:
		return e.writeFile(decodeArgs[writeFileArgs](call.Args))
	case KindEditFile:
		return e.editFile(decodeArgs[editFileArgs](call.Args))
	case KindPatchFile:
		return e.patchFile(decodeArgs[patchFileArgs](call.Args))
	case KindSaveMemory:
		return e.saveMemory(decodeArgs[saveMemoryArgs](call.Args))
	case KindRecallMemory:
		return e.recallMemory()
	case KindRestartSelf:
		return Result{Text: "Restarting now...", Restart: true}
	case KindWebSearch:
		return e.webSearch(ctx, decodeArgs[webSearchArgs](call.Args))
	case KindWebFetch:
		return e.webFetch(ctx, decodeArgs[webFetchArgs](call.Args))
	default:
		return Result{Text: fmt.Sprintf("Unknown tool: %s", call.Name)}
	}
}

// decodeArgs converts a loosely-typed argument map into the typed structure
// for one tool kind. Missing or malformed fields fall back to zero values;
// tools supply their own defaults from there.
func decodeArgs[T any](args map[string]any) T {
	var out T
	data, err := json.Marshal(args)
	if err != nil {
		return out
	}
	json.Unmarshal(data, &out)
	return out
}

type saveMemoryArgs struct {
	Content string `json:"content"`
}

func (e *Executor) saveMemory(args saveMemoryArgs) Result {
	if err := e.memory.Append(args.Content); err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	return Result{Text: "Memory saved."}
}

func (e *Executor) recallMemory() Result {
	content := e.memory.Load()
	if content == "" {
		return Result{Text: "(no memory yet)"}
	}
	return Result{Text: content}
}
