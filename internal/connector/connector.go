package connector

import (
	"context"

	"github.com/h1v3-io/jirabot/pkg/protocol"
)

// Sender delivers outbound notifications to the messaging platform.
// Callers treat delivery as best-effort; the error is for logging only.
type Sender interface {
	Send(ctx context.Context, msg protocol.OutboundMessage) error
}

// Receiver is a long-running inbound transport that pushes events to an
// EventHandler (the HTTP webhook is mounted separately).
type Receiver interface {
	// Name returns the transport name (e.g., "slack-socket").
	Name() string
	// Start begins listening. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the receiver.
	Stop() error
}

// EventHandler processes one decoded inbound event.
type EventHandler func(ctx context.Context, ev protocol.InboundEvent)
