package channels

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/local/steward/internal/chat"
)

// StartDiscord connects a Discord bot and bridges it onto hub. guildID
// restricts handling to a single guild; empty means any guild the bot has
// been invited to. allowFrom restricts which Discord user IDs may send
// messages; empty means allow all.
func StartDiscord(ctx context.Context, hub *chat.Hub, token, guildID string, allowFrom []string) error {
	if token == "" {
		return fmt.Errorf("discord bot token not provided")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = struct{}{}
	}

	dc := &discordClient{
		session: session,
		hub:     hub,
		outCh:   hub.Subscribe("discord"),
		guildID: guildID,
		allowed: allowed,
		ctx:     ctx,
	}

	session.AddHandler(dc.handleReady)
	session.AddHandler(dc.handleMessage)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	go dc.runOutbound()

	go func() {
		<-ctx.Done()
		log.Println("discord: shutting down")
		session.Close()
	}()

	return nil
}

type discordClient struct {
	session *discordgo.Session
	hub     *chat.Hub
	outCh   <-chan chat.Outbound
	guildID string
	allowed map[string]struct{}
	ctx     context.Context
}

func (c *discordClient) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("discord: connected as %s#%s", r.User.Username, r.User.Discriminator)
}

func (c *discordClient) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if c.guildID != "" && m.GuildID != c.guildID {
		return
	}
	if len(c.allowed) > 0 {
		if _, ok := c.allowed[m.Author.ID]; !ok {
			log.Printf("discord: dropped message from unauthorized user %s", m.Author.ID)
			return
		}
	}

	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	s.ChannelTyping(m.ChannelID)

	var attachments []chat.Attachment
	for _, a := range m.Attachments {
		attachments = append(attachments, chat.Attachment{Kind: "file", URL: a.URL, Mime: a.ContentType})
	}

	c.hub.In <- chat.Inbound{
		Channel:     "discord",
		SenderID:    m.Author.ID,
		ChatID:      m.ChannelID,
		Content:     content,
		Attachments: attachments,
		Timestamp:   m.Timestamp,
		Metadata: map[string]interface{}{
			"message_id": m.ID,
			"guild_id":   m.GuildID,
		},
	}
}

func (c *discordClient) runOutbound() {
	for {
		select {
		case <-c.ctx.Done():
			log.Println("discord: stopping outbound sender")
			return
		case out := <-c.outCh:
			for _, chunk := range splitMessage(out.Content, 1900) {
				if _, err := c.session.ChannelMessageSend(out.ChatID, chunk); err != nil {
					log.Printf("discord: send error: %v", err)
				}
			}
			if out.Media != nil && out.Media.URL != "" {
				if _, err := c.session.ChannelMessageSend(out.ChatID, out.Media.URL); err != nil {
					log.Printf("discord: send error (media): %v", err)
				}
			}
		}
	}
}
