package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LLM.APIBase != "https://api.openai.com/v1" {
		t.Errorf("api_base = %q", cfg.LLM.APIBase)
	}
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d", cfg.LLM.MaxTokens)
	}
	if cfg.Agent.MaxToolRounds != 20 {
		t.Errorf("max_tool_rounds = %d", cfg.Agent.MaxToolRounds)
	}
	if cfg.Agent.SystemPrompt == "" {
		t.Error("system prompt empty")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.Feishu.Enabled = true
	cfg.Feishu.AppID = "cli_abc"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LLM.APIKey != "sk-test" || !loaded.Feishu.Enabled || loaded.Feishu.AppID != "cli_abc" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LARKCLAW_LLM_MODEL", "claude-sonnet-4-5")
	t.Setenv("LARKCLAW_AGENT_MAX_TOOL_ROUNDS", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.Agent.MaxToolRounds != 7 {
		t.Errorf("max_tool_rounds = %d", cfg.Agent.MaxToolRounds)
	}
}

func TestSaveLoad_EncryptedSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.Secrets.Encrypt = true
	cfg.LLM.APIKey = "sk-secret"
	cfg.Telegram.Token = "123:abc"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// On-disk form must not contain the plaintext secrets.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "sk-secret") || strings.Contains(string(raw), "123:abc") {
		t.Error("plaintext secret written to disk")
	}
	if !strings.Contains(string(raw), "enc:") {
		t.Error("expected enc: prefixed values on disk")
	}

	// The caller's config keeps its plaintext values.
	if cfg.LLM.APIKey != "sk-secret" {
		t.Errorf("Save mutated caller config: %q", cfg.LLM.APIKey)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LLM.APIKey != "sk-secret" || loaded.Telegram.Token != "123:abc" {
		t.Errorf("decryption failed: %+v", loaded)
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/larkclaw"

	if got := cfg.WorkspacePath(); got != "/srv/larkclaw/workspace" {
		t.Errorf("WorkspacePath = %q", got)
	}
	if got := cfg.SessionsDir(); got != "/srv/larkclaw/workspace/sessions" {
		t.Errorf("SessionsDir = %q", got)
	}
	if got := cfg.MemoryDir(); got != "/srv/larkclaw/workspace/memory" {
		t.Errorf("MemoryDir = %q", got)
	}
	if got := cfg.LogsDir(); got != "/srv/larkclaw/workspace/logs" {
		t.Errorf("LogsDir = %q", got)
	}
}
