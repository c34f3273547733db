// Package dispatch is the single entry point for inbound chat events: it
// answers verification handshakes, drops duplicates and noise, and hands
// everything else to the dialogue.
package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/h1v3-io/jirabot/internal/dedup"
	"github.com/h1v3-io/jirabot/internal/metrics"
	"github.com/h1v3-io/jirabot/pkg/protocol"
)

// Dialogue receives the messages that survive dispatch.
type Dialogue interface {
	Handle(ctx context.Context, userID, channelID, text string)
}

// Outcome is what the dispatcher did with an event.
type Outcome string

const (
	OutcomeMissingID  Outcome = "missing_id"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeDispatched Outcome = "dispatched"
)

// Dispatcher deduplicates events and routes them into the dialogue.
type Dispatcher struct {
	seen     *dedup.Set
	dialogue Dialogue
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Dispatcher. m may be nil.
func New(seen *dedup.Set, dialogue Dialogue, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{seen: seen, dialogue: dialogue, metrics: m, logger: logger}
}

// HandleEvent processes one event. The ID is marked handled before any side
// effect, so a redelivery after a crash is dropped rather than replayed.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev protocol.InboundEvent) Outcome {
	outcome := d.handle(ctx, ev)
	d.metrics.Event(string(outcome))
	return outcome
}

func (d *Dispatcher) handle(ctx context.Context, ev protocol.InboundEvent) Outcome {
	if ev.ID == "" {
		d.logger.Debug("event without id dropped")
		return OutcomeMissingID
	}
	if !d.seen.MarkIfNew(ev.ID) {
		d.logger.Debug("duplicate event dropped", "event_id", ev.ID)
		return OutcomeDuplicate
	}
	if ev.Ignorable() {
		d.logger.Debug("event ignored", "event_id", ev.ID, "from_bot", ev.FromBot)
		return OutcomeIgnored
	}

	d.logger.Info("event dispatched", "event_id", ev.ID, "user", ev.UserID, "channel", ev.ChannelID)
	d.dialogue.Handle(ctx, ev.UserID, ev.ChannelID, strings.TrimSpace(ev.Text))
	return OutcomeDispatched
}
