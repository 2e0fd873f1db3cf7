package channels

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/larkclaw/larkclaw/pkg/logger"
	"github.com/larkclaw/larkclaw/pkg/utils"
)

// TelegramChannel is the secondary transport, long-polling based.
type TelegramChannel struct {
	*BaseChannel
	bot         *telego.Bot
	cancel      context.CancelFunc
	botUsername string
}

func NewTelegramChannel(token string, allowFrom []string, handler Handler) (*TelegramChannel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", allowFrom, handler),
		bot:         bot,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	botInfo, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}
	c.botUsername = botInfo.Username

	pollCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{Timeout: 30})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	c.setRunning(true)
	logger.InfoCF("telegram", "Bot connected", map[string]interface{}{
		"username": botInfo.Username,
	})

	go func() {
		for update := range updates {
			if update.Message != nil {
				c.handleMessage(pollCtx, update.Message)
			}
		}
		c.setRunning(false)
	}()

	return nil
}

func (c *TelegramChannel) Stop() error {
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}

func (c *TelegramChannel) handleMessage(ctx context.Context, message *telego.Message) {
	if message.From == nil {
		return
	}
	senderID := fmt.Sprintf("%d", message.From.ID)
	chatID := fmt.Sprintf("%d", message.Chat.ID)

	if !c.IsAllowed(senderID) {
		logger.DebugCF("telegram", "Sender not in allow list, ignoring", map[string]interface{}{
			"sender": senderID,
		})
		return
	}

	text := message.Text
	if message.Caption != "" {
		if text != "" {
			text += "\n"
		}
		text += message.Caption
	}

	// In groups only respond to @botname mentions, and strip the tag.
	if message.Chat.Type != "private" {
		tag := "@" + c.botUsername
		if !strings.Contains(text, tag) {
			return
		}
		text = strings.TrimSpace(strings.ReplaceAll(text, tag, ""))
	}

	var imagesB64 []string
	if len(message.Photo) > 0 {
		// Last size is the largest rendition.
		photo := message.Photo[len(message.Photo)-1]
		if b64 := c.downloadPhoto(ctx, photo.FileID); b64 != "" {
			imagesB64 = append(imagesB64, b64)
		}
	}

	if text == "" && len(imagesB64) == 0 {
		return
	}

	logger.InfoCF("telegram", "Message received", map[string]interface{}{
		"chat":   chatID,
		"sender": senderID,
		"text":   utils.Truncate(text, 80),
		"images": len(imagesB64),
	})

	c.HandleMessage(senderID, chatID, text, imagesB64)
}

func (c *TelegramChannel) downloadPhoto(ctx context.Context, fileID string) string {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil || file.FilePath == "" {
		logger.WarnCF("telegram", "Failed to resolve photo file", map[string]interface{}{
			"file_id": fileID,
		})
		return ""
	}

	resp, err := http.Get(c.bot.FileDownloadURL(file.FilePath))
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

func (c *TelegramChannel) Send(ctx context.Context, chatID, text string) error {
	if !c.IsRunning() {
		return errors.New("telegram bot not running")
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}
	return c.sendWithRetry(func() error {
		_, e := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), text))
		return e
	})
}

// sendWithRetry retries a Telegram API call on rate limit (429) errors.
func (c *TelegramChannel) sendWithRetry(fn func() error) error {
	const maxRetries = 3
	for i := 0; i <= maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		var tgErr *telegoapi.Error
		if errors.As(err, &tgErr) && tgErr.Parameters != nil && tgErr.Parameters.RetryAfter > 0 {
			wait := time.Duration(tgErr.Parameters.RetryAfter) * time.Second
			logger.WarnCF("telegram", "Rate limited, retrying", map[string]interface{}{
				"after_s": tgErr.Parameters.RetryAfter,
				"attempt": i + 1,
			})
			time.Sleep(wait)
			continue
		}
		return err
	}
	return errors.New("telegram rate limit: max retries exceeded")
}

func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}
