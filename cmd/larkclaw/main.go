// larkclaw - Feishu-first personal AI agent
// License: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/larkclaw/larkclaw/pkg/agent"
	"github.com/larkclaw/larkclaw/pkg/channels"
	"github.com/larkclaw/larkclaw/pkg/config"
	"github.com/larkclaw/larkclaw/pkg/logger"
	"github.com/larkclaw/larkclaw/pkg/providers"
	"github.com/larkclaw/larkclaw/pkg/session"
	"github.com/larkclaw/larkclaw/pkg/tools"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	cmd := flag.Arg(0)
	switch cmd {
	case "init":
		if err := runInit(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println("larkclaw " + version)
	case "", "start":
		if err := runStart(*configPath, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\nUsage: larkclaw [-config path] [-v] [init|start|version]\n", cmd)
		os.Exit(1)
	}
}

func runInit(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}
	cfg := config.DefaultConfig()
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", configPath)
	fmt.Println("Fill in llm.api_key plus feishu or telegram credentials, then run: larkclaw start")
	return nil
}

func runStart(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if verbose {
		logger.SetLevel(logger.LevelDebug)
	}
	if err := os.MkdirAll(cfg.LogsDir(), 0755); err == nil {
		logger.SetLogFile(filepath.Join(cfg.LogsDir(), "larkclaw.log"))
	}
	logger.InfoCF("main", "Starting larkclaw", map[string]interface{}{
		"version": version,
		"model":   cfg.LLM.Model,
	})

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is not set (config: %s)", configPath)
	}
	if err := os.MkdirAll(cfg.WorkspacePath(), 0755); err != nil {
		return err
	}

	memory, err := session.NewMemoryStore(cfg.MemoryDir())
	if err != nil {
		return fmt.Errorf("init memory store: %w", err)
	}
	sessions := session.NewManager(cfg.SessionsDir())
	provider := providers.NewHTTPProvider(cfg.LLM.APIKey, cfg.LLM.APIBase, cfg.LLM.Model, cfg.LLM.MaxTokens)
	executor := tools.NewExecutor(tools.Config{
		Workspace:    cfg.WorkspacePath(),
		Memory:       memory,
		BraveAPIKey:  cfg.Tools.Web.BraveAPIKey,
		HTTPProxyURL: cfg.Tools.Web.HTTPProxy,
	})
	ctxb := agent.NewContextBuilder(cfg.Agent.SystemPrompt, memory, cfg.SkillsDir())
	loop := agent.NewLoop(provider, executor, sessions, ctxb, cfg.Agent.MaxToolRounds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var started []channels.Channel

	// handlerFor binds a channel to the loop: each inbound message runs
	// one turn, with the sender ID folded into the user content so the
	// model can tell group participants apart.
	handlerFor := func(ch func() channels.Channel) channels.Handler {
		return func(senderID, chatID, text string, imagesB64 []string) {
			channel := ch()
			key := channel.Name() + ":" + chatID
			content := agent.BuildUserContent(fmt.Sprintf("[sender_open_id:%s]\n%s", senderID, text), imagesB64)
			go loop.Run(ctx, key, content, func(reply string) error {
				return channel.Send(ctx, chatID, reply)
			})
		}
	}

	if cfg.Feishu.Enabled {
		var feishu *channels.FeishuChannel
		feishu = channels.NewFeishuChannel(cfg.Feishu.AppID, cfg.Feishu.AppSecret, cfg.Feishu.AllowFrom,
			handlerFor(func() channels.Channel { return feishu }))
		if err := feishu.Start(ctx); err != nil {
			return fmt.Errorf("start feishu channel: %w", err)
		}
		started = append(started, feishu)
	}

	if cfg.Telegram.Enabled {
		var telegram *channels.TelegramChannel
		telegram, err = channels.NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.AllowFrom,
			handlerFor(func() channels.Channel { return telegram }))
		if err != nil {
			return err
		}
		if err := telegram.Start(ctx); err != nil {
			return fmt.Errorf("start telegram channel: %w", err)
		}
		started = append(started, telegram)
	}

	if len(started) == 0 {
		logger.InfoC("main", "No chat channel enabled, starting local CLI")
		var cli *channels.CLIChannel
		cli, err = channels.NewCLIChannel(handlerFor(func() channels.Channel { return cli }))
		if err != nil {
			return err
		}
		if err := cli.Start(ctx); err != nil {
			return err
		}
		started = append(started, cli)
	}

	logger.InfoCF("main", "All channels running", map[string]interface{}{
		"channels": len(started),
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")
	for _, ch := range started {
		if err := ch.Stop(); err != nil {
			logger.WarnCF("main", "Channel stop failed", map[string]interface{}{
				"channel": ch.Name(),
				"error":   err.Error(),
			})
		}
	}
	return nil
}
