package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/larkclaw/larkclaw/pkg/secrets"
)

const defaultSystemPrompt = "You are larkclaw, a helpful AI assistant living in a chat app. " +
	"You have a workspace directory, shell access, long-term memory and web tools. " +
	"Be concise; use tools when a question needs fresh information or an action."

type Config struct {
	Feishu   FeishuConfig   `json:"feishu"`
	Telegram TelegramConfig `json:"telegram"`
	LLM      LLMConfig      `json:"llm"`
	Agent    AgentConfig    `json:"agent"`
	Tools    ToolsConfig    `json:"tools"`
	Secrets  SecretsConfig  `json:"secrets"`
	DataDir  string         `json:"data_dir,omitempty" env:"LARKCLAW_DATA_DIR"`
}

type FeishuConfig struct {
	Enabled   bool     `json:"enabled" env:"LARKCLAW_FEISHU_ENABLED"`
	AppID     string   `json:"app_id" env:"LARKCLAW_FEISHU_APP_ID"`
	AppSecret string   `json:"app_secret" env:"LARKCLAW_FEISHU_APP_SECRET"`
	AllowFrom []string `json:"allow_from,omitempty" env:"LARKCLAW_FEISHU_ALLOW_FROM"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled" env:"LARKCLAW_TELEGRAM_ENABLED"`
	Token     string   `json:"token" env:"LARKCLAW_TELEGRAM_TOKEN"`
	AllowFrom []string `json:"allow_from,omitempty" env:"LARKCLAW_TELEGRAM_ALLOW_FROM"`
}

type LLMConfig struct {
	APIKey    string `json:"api_key" env:"LARKCLAW_LLM_API_KEY"`
	APIBase   string `json:"api_base" env:"LARKCLAW_LLM_API_BASE"`
	Model     string `json:"model" env:"LARKCLAW_LLM_MODEL"`
	MaxTokens int    `json:"max_tokens" env:"LARKCLAW_LLM_MAX_TOKENS"`
}

type AgentConfig struct {
	SystemPrompt  string `json:"system_prompt" env:"LARKCLAW_AGENT_SYSTEM_PROMPT"`
	MaxToolRounds int    `json:"max_tool_rounds" env:"LARKCLAW_AGENT_MAX_TOOL_ROUNDS"`
}

type WebToolsConfig struct {
	BraveAPIKey string `json:"brave_api_key" env:"LARKCLAW_TOOLS_WEB_BRAVE_API_KEY"`
	HTTPProxy   string `json:"http_proxy" env:"LARKCLAW_TOOLS_WEB_HTTP_PROXY"`
}

type ToolsConfig struct {
	Web WebToolsConfig `json:"web"`
}

type SecretsConfig struct {
	Encrypt bool `json:"encrypt" env:"LARKCLAW_SECRETS_ENCRYPT"`
}

func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			APIBase:   "https://api.openai.com/v1",
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		Agent: AgentConfig{
			SystemPrompt:  defaultSystemPrompt,
			MaxToolRounds: 20,
		},
	}
}

// DefaultPath is ~/.larkclaw/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".larkclaw", "config.json")
}

func (c *Config) dataDir() string {
	if c.DataDir != "" {
		return expandHome(c.DataDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".larkclaw"
	}
	return filepath.Join(home, ".larkclaw")
}

func (c *Config) WorkspacePath() string { return filepath.Join(c.dataDir(), "workspace") }
func (c *Config) SessionsDir() string   { return filepath.Join(c.WorkspacePath(), "sessions") }
func (c *Config) MemoryDir() string     { return filepath.Join(c.WorkspacePath(), "memory") }
func (c *Config) LogsDir() string       { return filepath.Join(c.WorkspacePath(), "logs") }

// SkillsDir is the skills/ directory next to the running binary's working
// directory; skill files there are folded into the system prompt.
func (c *Config) SkillsDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "skills"
	}
	return filepath.Join(wd, "skills")
}

// sensitiveFields returns pointers to every string field that is encrypted
// at rest when secrets.encrypt is enabled.
func sensitiveFields(cfg *Config) []*string {
	return []*string{
		&cfg.Feishu.AppSecret,
		&cfg.Telegram.Token,
		&cfg.LLM.APIKey,
		&cfg.Tools.Web.BraveAPIKey,
	}
}

// Load reads the config file at path (defaults applied underneath), decrypts
// any encrypted sensitive fields, then applies environment overrides.
// A missing file is not an error: defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	hasEncrypted := false
	hasPlaintext := false
	for _, fp := range sensitiveFields(cfg) {
		if *fp == "" {
			continue
		}
		if secrets.IsEncrypted(*fp) {
			hasEncrypted = true
		} else {
			hasPlaintext = true
		}
	}

	if hasEncrypted {
		store, err := secrets.NewStore(keyPath(path))
		if err != nil {
			return nil, fmt.Errorf("config: init secret store: %w", err)
		}
		for _, fp := range sensitiveFields(cfg) {
			decrypted, err := store.Decrypt(*fp)
			if err != nil {
				return nil, fmt.Errorf("config: decrypt field: %w", err)
			}
			*fp = decrypted
		}
	}

	// Auto-encrypt: plaintext secrets found while encryption is on are
	// written back encrypted.
	if cfg.Secrets.Encrypt && hasPlaintext {
		if err := Save(path, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to auto-encrypt config secrets: %v\n", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to path, encrypting sensitive fields when
// secrets.encrypt is enabled.
func Save(path string, cfg *Config) error {
	toSave := cfg
	perm := os.FileMode(0644)

	if cfg.Secrets.Encrypt {
		// Clone via JSON so the caller's config keeps its plaintext values.
		cloneData, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		var clone Config
		if err := json.Unmarshal(cloneData, &clone); err != nil {
			return err
		}

		store, err := secrets.NewStore(keyPath(path))
		if err != nil {
			return fmt.Errorf("config: init secret store: %w", err)
		}
		for _, fp := range sensitiveFields(&clone) {
			encrypted, err := store.Encrypt(*fp)
			if err != nil {
				return fmt.Errorf("config: encrypt field: %w", err)
			}
			*fp = encrypted
		}
		toSave = &clone
		perm = 0600
	}

	data, err := json.MarshalIndent(toSave, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

func keyPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".secret_key")
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
