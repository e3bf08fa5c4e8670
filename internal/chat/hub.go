// Package chat defines the channel-agnostic message contract shared by every
// messaging adapter (internal/channels) and the processing pipeline
// (internal/pipeline).
package chat

import (
	"context"
	"sync"
	"time"
)

// Inbound is a normalized message received from any platform, matching the
// InboundMessage wire contract.
type Inbound struct {
	ID          string
	Channel     string // "telegram", "discord", "whatsapp", "webhook", "voice"
	SenderID    string
	ChatID      string
	Content     string
	VoiceURL    string
	Attachments []Attachment
	Timestamp   time.Time
	Metadata    map[string]interface{}
}

// Attachment describes a single media attachment on an Inbound message.
type Attachment struct {
	Kind string
	URL  string
	Mime string
}

// Outbound is a normalized reply destined for a platform adapter, matching
// the OutboundMessage wire contract. The core never adds markup: text
// arrives pre-formatted by internal/status or a skill.
type Outbound struct {
	Channel   string
	ChatID    string
	Content   string
	Media     *Media
	ReplyToID string
}

// Media describes an outbound media attachment.
type Media struct {
	URL     string
	Caption string
}

// Hub fans inbound messages from every adapter into a single queue and
// fans outbound replies back out to the adapter that owns a given channel.
// Adapters each Subscribe to their own channel name so a reply meant for
// "telegram" never reaches the "discord" adapter's goroutine.
type Hub struct {
	In  chan Inbound
	Out chan Outbound

	mu   sync.Mutex
	subs map[string]chan Outbound
}

// NewHub creates a Hub with the given buffer size for In/Out.
func NewHub(buffer int) *Hub {
	return &Hub{
		In:   make(chan Inbound, buffer),
		Out:  make(chan Outbound, buffer),
		subs: make(map[string]chan Outbound),
	}
}

// Subscribe registers a per-channel outbound queue and returns the receive
// end. Adapters call this once at startup, before StartRouter runs, so the
// router never races a late subscriber.
func (h *Hub) Subscribe(channel string) <-chan Outbound {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Outbound, 64)
	h.subs[channel] = ch
	return ch
}

// StartRouter begins routing h.Out to each channel's dedicated queue. It
// must be called after every adapter has subscribed, otherwise messages
// for a not-yet-subscribed channel are dropped.
func (h *Hub) StartRouter(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case out, ok := <-h.Out:
				if !ok {
					return
				}
				h.mu.Lock()
				ch, found := h.subs[out.Channel]
				h.mu.Unlock()
				if !found {
					continue
				}
				select {
				case ch <- out:
				default:
					// subscriber queue full; drop rather than block the router
				}
			}
		}
	}()
}
