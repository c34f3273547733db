package protocol

import (
	"strings"
	"time"
)

// InboundEvent is one webhook delivery from the messaging platform after it
// has been decoded. It is never mutated once built.
type InboundEvent struct {
	ID         string    `json:"event_id"`
	UserID     string    `json:"user"`
	ChannelID  string    `json:"channel"`
	Text       string    `json:"text"`
	FromBot    bool      `json:"from_bot"`
	ReceivedAt time.Time `json:"received_at"`
}

// Ignorable reports whether the event carries nothing the dialogue should see:
// an automated sender or text that is empty after trimming.
func (e InboundEvent) Ignorable() bool {
	return e.FromBot || strings.TrimSpace(e.Text) == ""
}

// OutboundMessage is a notification to deliver to a channel.
type OutboundMessage struct {
	ChannelID string `json:"channel"`
	Text      string `json:"text"`
}
