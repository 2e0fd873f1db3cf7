package channels

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// CLIChannel is a local REPL for talking to the agent without any chat
// platform configured. Every line typed becomes one inbound message on
// the fixed chat ID "local".
type CLIChannel struct {
	*BaseChannel
	rl     *readline.Instance
	cancel context.CancelFunc
}

func NewCLIChannel(handler Handler) (*CLIChannel, error) {
	rl, err := readline.New("> ")
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return &CLIChannel{
		BaseChannel: NewBaseChannel("cli", nil, handler),
		rl:          rl,
	}, nil
}

func (c *CLIChannel) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setRunning(true)

	go func() {
		defer c.setRunning(false)
		for {
			select {
			case <-loopCtx.Done():
				return
			default:
			}
			line, err := c.rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt {
					continue
				}
				if err == io.EOF {
					return
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			c.HandleMessage("local", "local", line, nil)
		}
	}()

	return nil
}

func (c *CLIChannel) Stop() error {
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return c.rl.Close()
}

func (c *CLIChannel) Send(_ context.Context, _ string, text string) error {
	fmt.Println(text)
	return nil
}
