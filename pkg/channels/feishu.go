// larkclaw - Feishu-first personal AI agent
// License: MIT

package channels

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/larkclaw/larkclaw/pkg/logger"
	"github.com/larkclaw/larkclaw/pkg/utils"
)

const dedupCacheSize = 1000

// FeishuChannel connects over Feishu's long-lived WebSocket event
// stream, so no public inbound endpoint is needed.
type FeishuChannel struct {
	*BaseChannel
	appID     string
	appSecret string
	client    *lark.Client
	wsClient  *larkws.Client
	cancel    context.CancelFunc

	mu    sync.Mutex
	seen  map[string]struct{}
	seenQ []string
}

func NewFeishuChannel(appID, appSecret string, allowFrom []string, handler Handler) *FeishuChannel {
	return &FeishuChannel{
		BaseChannel: NewBaseChannel("feishu", allowFrom, handler),
		appID:       appID,
		appSecret:   appSecret,
		client:      lark.NewClient(appID, appSecret),
		seen:        make(map[string]struct{}, dedupCacheSize),
	}
}

func (c *FeishuChannel) Start(ctx context.Context) error {
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			c.handleEvent(ctx, event)
			return nil
		})

	c.wsClient = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelWarn),
	)

	wsCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setRunning(true)

	go func() {
		// Start blocks and reconnects internally until the context ends.
		if err := c.wsClient.Start(wsCtx); err != nil {
			logger.ErrorCF("feishu", "WebSocket client stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
		c.setRunning(false)
	}()

	logger.InfoC("feishu", "Connected via long WebSocket")
	return nil
}

func (c *FeishuChannel) Stop() error {
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}

// markSeen records a message ID and reports whether it was already
// seen. Feishu redelivers events until acked, so duplicates happen.
func (c *FeishuChannel) markSeen(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[messageID]; dup {
		return true
	}
	c.seen[messageID] = struct{}{}
	c.seenQ = append(c.seenQ, messageID)
	if len(c.seenQ) > dedupCacheSize {
		delete(c.seen, c.seenQ[0])
		c.seenQ = c.seenQ[1:]
	}
	return false
}

func (c *FeishuChannel) handleEvent(ctx context.Context, event *larkim.P2MessageReceiveV1) {
	msg := event.Event.Message
	if msg == nil || msg.MessageId == nil || msg.ChatId == nil {
		return
	}
	if c.markSeen(*msg.MessageId) {
		return
	}

	senderID := ""
	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil && event.Event.Sender.SenderId.OpenId != nil {
		senderID = *event.Event.Sender.SenderId.OpenId
	}
	if !c.IsAllowed(senderID) {
		logger.DebugCF("feishu", "Sender not in allow list, ignoring", map[string]interface{}{
			"sender": senderID,
		})
		return
	}

	// In group chats only respond when the bot itself is @mentioned.
	chatType := ""
	if msg.ChatType != nil {
		chatType = *msg.ChatType
	}
	if chatType == "group" && len(msg.Mentions) == 0 {
		return
	}

	text, imageKeys := c.extractContent(msg)
	text = stripMentionKeys(text, msg.Mentions)
	if text == "" && len(imageKeys) == 0 {
		return
	}

	var imagesB64 []string
	for _, key := range imageKeys {
		if b64 := c.downloadImage(ctx, *msg.MessageId, key); b64 != "" {
			imagesB64 = append(imagesB64, b64)
		}
	}

	logger.InfoCF("feishu", "Message received", map[string]interface{}{
		"chat":   *msg.ChatId,
		"sender": senderID,
		"text":   utils.Truncate(text, 80),
		"images": len(imagesB64),
	})

	c.react(ctx, *msg.MessageId)
	c.HandleMessage(senderID, *msg.ChatId, text, imagesB64)
}

// extractContent pulls plain text and image keys out of the message
// content JSON, handling text, post (rich text) and image messages.
func (c *FeishuChannel) extractContent(msg *larkim.EventMessage) (string, []string) {
	if msg.Content == nil || msg.MessageType == nil {
		return "", nil
	}
	raw := *msg.Content

	switch *msg.MessageType {
	case "text":
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return "", nil
		}
		return strings.TrimSpace(body.Text), nil

	case "image":
		var body struct {
			ImageKey string `json:"image_key"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return "", nil
		}
		return "", []string{body.ImageKey}

	case "post":
		return extractPost(raw)
	}

	return "", nil
}

func extractPost(raw string) (string, []string) {
	var body struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text"`
			Href     string `json:"href"`
			ImageKey string `json:"image_key"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return "", nil
	}

	var lines []string
	var imageKeys []string
	if body.Title != "" {
		lines = append(lines, body.Title)
	}
	for _, row := range body.Content {
		var parts []string
		for _, el := range row {
			switch el.Tag {
			case "text", "a":
				parts = append(parts, el.Text)
			case "img":
				if el.ImageKey != "" {
					imageKeys = append(imageKeys, el.ImageKey)
				}
			}
		}
		if line := strings.TrimSpace(strings.Join(parts, "")); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), imageKeys
}

// stripMentionKeys removes the "@_user_N" placeholders Feishu embeds
// where mentions appear in the text.
func stripMentionKeys(text string, mentions []*larkim.MentionEvent) string {
	for _, m := range mentions {
		if m != nil && m.Key != nil {
			text = strings.ReplaceAll(text, *m.Key, "")
		}
	}
	return strings.TrimSpace(text)
}

func (c *FeishuChannel) downloadImage(ctx context.Context, messageID, imageKey string) string {
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(messageID).
		FileKey(imageKey).
		Type("image").
		Build()

	resp, err := c.client.Im.MessageResource.Get(ctx, req)
	if err != nil || !resp.Success() {
		logger.WarnCF("feishu", "Failed to download image", map[string]interface{}{
			"image_key": imageKey,
		})
		return ""
	}
	data, err := io.ReadAll(resp.File)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// react acknowledges receipt with an emoji so the user knows the bot
// is working before the reply lands.
func (c *FeishuChannel) react(ctx context.Context, messageID string) {
	req := larkim.NewCreateMessageReactionReqBuilder().
		MessageId(messageID).
		Body(larkim.NewCreateMessageReactionReqBodyBuilder().
			ReactionType(larkim.NewEmojiBuilder().EmojiType("OnIt").Build()).
			Build()).
		Build()
	if _, err := c.client.Im.MessageReaction.Create(ctx, req); err != nil {
		logger.DebugCF("feishu", "Reaction failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (c *FeishuChannel) Send(ctx context.Context, chatID, text string) error {
	if containsMarkdown(text) {
		if err := c.sendCard(ctx, chatID, text); err == nil {
			return nil
		}
		// Card rendering can reject odd markdown; plain text always works.
	}
	return c.sendText(ctx, chatID, text)
}

func (c *FeishuChannel) sendText(ctx context.Context, chatID, text string) error {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	return c.createMessage(ctx, chatID, larkim.MsgTypeText, string(content))
}

// sendCard renders the reply as an interactive card with a markdown
// element, which Feishu displays far better than raw text.
func (c *FeishuChannel) sendCard(ctx context.Context, chatID, text string) error {
	card := map[string]interface{}{
		"config": map[string]interface{}{
			"wide_screen_mode": true,
		},
		"elements": []interface{}{
			map[string]interface{}{
				"tag":     "markdown",
				"content": text,
			},
		},
	}
	content, err := json.Marshal(card)
	if err != nil {
		return err
	}
	return c.createMessage(ctx, chatID, larkim.MsgTypeInteractive, string(content))
}

func (c *FeishuChannel) createMessage(ctx context.Context, chatID, msgType, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.client.Im.Message.Create(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("feishu send failed: %s", resp.Msg)
	}
	return nil
}

func containsMarkdown(text string) bool {
	for _, marker := range []string{"```", "**", "\n- ", "\n# ", "\n## ", "]("} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
