package tools

import "github.com/larkclaw/larkclaw/pkg/providers"

func toolDef(name Kind, desc string, props map[string]any, required []string) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionDefinition{
			Name:        string(name),
			Description: desc,
			Parameters: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		},
	}
}

// Definitions returns the function-call schema exposed to the LLM. The field
// names here are the wire contract and must match exactly what the typed
// argument structs decode.
func (e *Executor) Definitions() []providers.ToolDefinition {
	return []providers.ToolDefinition{
		toolDef(KindShell, "Execute a shell command and return stdout+stderr.",
			map[string]any{
				"cmd":     map[string]any{"type": "string"},
				"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds (default 30)"},
			}, []string{"cmd"}),
		toolDef(KindReadFile, "Read the contents of a file.",
			map[string]any{
				"path": map[string]any{"type": "string"},
			}, []string{"path"}),
		toolDef(KindWriteFile, "Write content to a file (creates parent dirs if needed).",
			map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			}, []string{"path", "content"}),
		toolDef(KindEditFile, "Replace one exact occurrence of `old` with `new` in a file. `old` must match exactly once.",
			map[string]any{
				"path": map[string]any{"type": "string"},
				"old":  map[string]any{"type": "string", "description": "Exact text to replace (must be unique in file)"},
				"new":  map[string]any{"type": "string", "description": "Replacement text"},
			}, []string{"path", "old", "new"}),
		toolDef(KindPatchFile, "Replace exact text snippets in a file. Provide {old,new} pairs; each `old` must match exactly once.",
			map[string]any{
				"path": map[string]any{"type": "string"},
				"patches": map[string]any{
					"type":        "array",
					"description": "List of {old, new} replacement pairs",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"old": map[string]any{"type": "string"},
							"new": map[string]any{"type": "string"},
						},
						"required": []string{"old", "new"},
					},
				},
			}, []string{"path", "patches"}),
		toolDef(KindSaveMemory, "Persist important facts to long-term memory.",
			map[string]any{
				"content": map[string]any{"type": "string"},
			}, []string{"content"}),
		toolDef(KindRecallMemory, "Read current long-term memory.",
			map[string]any{}, []string{}),
		toolDef(KindRestartSelf, "Restart the bot by re-executing the current process. MUST be called after modifying the bot's own source code.",
			map[string]any{}, []string{}),
		toolDef(KindWebSearch, "Search the web using Brave Search. Returns titles, URLs and snippets.",
			map[string]any{
				"query": map[string]any{"type": "string"},
				"count": map[string]any{"type": "integer", "description": "Number of results (1-10, default 5)"},
			}, []string{"query"}),
		toolDef(KindWebFetch, "Fetch a URL and return its readable text content.",
			map[string]any{
				"url":       map[string]any{"type": "string"},
				"max_chars": map[string]any{"type": "integer", "description": "Max chars to return (default 8000)"},
			}, []string{"url"}),
	}
}
