package channels

import (
	"context"
	"sync/atomic"
)

// Handler is the inbound contract every channel feeds: one call per
// qualifying message, after the channel's own dedup and mention
// filtering. Images arrive base64-encoded.
type Handler func(senderID, chatID, text string, imagesB64 []string)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, chatID, text string) error
	IsRunning() bool
}

// BaseChannel carries the pieces every transport shares: name,
// allowlist, running flag and the inbound handler.
type BaseChannel struct {
	name      string
	allowList []string
	handler   Handler
	running   atomic.Bool
}

func NewBaseChannel(name string, allowList []string, handler Handler) *BaseChannel {
	return &BaseChannel{
		name:      name,
		allowList: allowList,
		handler:   handler,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// IsAllowed reports whether senderID passes the allowlist. An empty
// allowlist admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if senderID == allowed {
			return true
		}
	}
	return false
}

func (c *BaseChannel) HandleMessage(senderID, chatID, text string, imagesB64 []string) {
	if c.handler != nil {
		c.handler(senderID, chatID, text, imagesB64)
	}
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
