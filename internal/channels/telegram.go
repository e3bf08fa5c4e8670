package channels

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/local/steward/internal/chat"
)

// StartTelegram connects a Telegram bot via long polling and bridges it onto
// hub. allowFrom restricts which Telegram user IDs may send messages; empty
// means allow all. With an empty token the adapter runs in bridge-only mode:
// it blocks until ctx is done without starting a local poller, matching C13's
// webhook-driven secondary path for platforms without long polling.
func StartTelegram(ctx context.Context, hub *chat.Hub, token string, allowFrom []string) error {
	allowed := make(map[int64]bool, len(allowFrom))
	for _, id := range allowFrom {
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			continue
		}
		allowed[n] = true
	}

	tc := &telegramClient{
		hub:     hub,
		outCh:   hub.Subscribe("telegram"),
		allowed: allowed,
		ctx:     ctx,
	}

	if token == "" {
		log.Println("telegram: no token configured, running in bridge-only mode")
		go tc.runOutbound()
		<-ctx.Done()
		return nil
	}

	tgBot, err := bot.New(token, bot.WithDefaultHandler(tc.handleUpdate))
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	tc.bot = tgBot

	go tc.runOutbound()
	log.Println("telegram: starting long polling")
	tgBot.Start(ctx)
	return nil
}

type telegramClient struct {
	bot     *bot.Bot
	hub     *chat.Hub
	outCh   <-chan chat.Outbound
	allowed map[int64]bool
	ctx     context.Context
}

func (c *telegramClient) handleUpdate(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		c.handleCallback(ctx, tgBot, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		c.handleMessage(ctx, update.Message)
	}
}

func (c *telegramClient) handleCallback(ctx context.Context, tgBot *bot.Bot, cb *models.CallbackQuery) {
	userID := cb.From.ID
	if len(c.allowed) > 0 && !c.allowed[userID] {
		log.Printf("telegram: dropped callback from unauthorized user %d", userID)
		return
	}
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cb.ID})

	chatID := strconv.FormatInt(cb.Message.Message.Chat.ID, 10)
	c.hub.In <- chat.Inbound{
		Channel:  "telegram",
		SenderID: strconv.FormatInt(userID, 10),
		ChatID:   chatID,
		Content:  cb.Data,
		Metadata: map[string]interface{}{"callback": true, "message_id": cb.Message.Message.ID},
	}
}

func (c *telegramClient) handleMessage(ctx context.Context, m *models.Message) {
	if m.From == nil {
		return
	}
	if len(c.allowed) > 0 && !c.allowed[m.From.ID] {
		log.Printf("telegram: dropped message from unauthorized user %d", m.From.ID)
		return
	}

	content := strings.TrimSpace(m.Text)
	if m.Voice != nil {
		content = "[voice message received - transcription not configured]"
	}
	if content == "" {
		return
	}

	chatID := strconv.FormatInt(m.Chat.ID, 10)
	log.Printf("telegram: received message from %d in chat %s: %s", m.From.ID, chatID, truncate(content, 50))

	c.hub.In <- chat.Inbound{
		Channel:   "telegram",
		SenderID:  strconv.FormatInt(m.From.ID, 10),
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Unix(int64(m.Date), 0),
		Metadata:  map[string]interface{}{"message_id": m.ID},
	}
}

func (c *telegramClient) runOutbound() {
	for {
		select {
		case <-c.ctx.Done():
			log.Println("telegram: stopping outbound sender")
			return
		case out := <-c.outCh:
			if c.bot == nil {
				log.Printf("telegram: outbound message dropped, no token configured (chat %s)", out.ChatID)
				continue
			}
			chatID, err := strconv.ParseInt(out.ChatID, 10, 64)
			if err != nil {
				log.Printf("telegram: invalid chat ID %s: %v", out.ChatID, err)
				continue
			}
			for _, chunk := range splitMessage(out.Content, 4096) {
				_, err := c.bot.SendMessage(c.ctx, &bot.SendMessageParams{
					ChatID: chatID,
					Text:   chunk,
				})
				if err != nil {
					log.Printf("telegram: send error: %v", err)
				}
			}
		}
	}
}
