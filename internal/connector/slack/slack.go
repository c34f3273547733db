package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/h1v3-io/jirabot/internal/connector"
	"github.com/h1v3-io/jirabot/pkg/protocol"
)

// Sender posts plain-text messages with chat.postMessage.
type Sender struct {
	api    *slack.Client
	logger *slog.Logger
}

// NewSender creates a Sender for the given bot token. Extra slack options
// (e.g. slack.OptionAPIURL) are passed through to the client.
func NewSender(botToken string, logger *slog.Logger, opts ...slack.Option) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		api:    slack.New(botToken, opts...),
		logger: logger,
	}
}

// Send delivers a message to a Slack channel.
func (s *Sender) Send(ctx context.Context, msg protocol.OutboundMessage) error {
	_, _, err := s.api.PostMessageContext(ctx, msg.ChannelID, slack.MsgOptionText(msg.Text, false))
	if err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	s.logger.Debug("slack message sent", "channel", msg.ChannelID)
	return nil
}

// SocketConfig holds Socket Mode receiver configuration.
type SocketConfig struct {
	BotToken string // xoxb-... Bot User OAuth Token
	AppToken string // xapp-... App-Level Token
}

var _ connector.Receiver = (*SocketReceiver)(nil)

// SocketReceiver implements connector.Receiver for Slack via Socket Mode.
// Events arrive over a websocket instead of the HTTP webhook but are fed to
// the same handler.
type SocketReceiver struct {
	api     *slack.Client
	socket  *socketmode.Client
	handler connector.EventHandler
	logger  *slog.Logger
	botID   string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSocketReceiver creates a Socket Mode receiver.
func NewSocketReceiver(cfg SocketConfig, handler connector.EventHandler, logger *slog.Logger) (*SocketReceiver, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}

	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	// Test auth and get bot user ID
	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}

	logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)

	return &SocketReceiver{
		api:     api,
		socket:  socketmode.New(api),
		handler: handler,
		logger:  logger,
		botID:   authResp.UserID,
	}, nil
}

func (r *SocketReceiver) Name() string { return "slack-socket" }

// Start begins listening for events via Socket Mode. Blocks until context is cancelled.
func (r *SocketReceiver) Start(ctx context.Context) error {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go r.handleEvents(ctx)

	r.logger.Info("slack receiver started (socket mode)")
	return r.socket.RunContext(ctx)
}

// Stop gracefully shuts down the receiver.
func (r *SocketReceiver) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func (r *SocketReceiver) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-r.socket.Events:
			if event.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			r.socket.Ack(*event.Request)

			ev, ok := FromEventsAPI(eventsAPIEvent, r.botID)
			if !ok {
				continue
			}
			// Handled inline so one user's messages keep their order.
			r.handler(ctx, ev)
		}
	}
}

// FromEventsAPI converts a message callback into an InboundEvent. It returns
// false for anything that is not a plain or bot message: edits, deletes and
// other subtypes are dropped here. Messages from botUserID count as bot
// messages.
func FromEventsAPI(outer slackevents.EventsAPIEvent, botUserID string) (protocol.InboundEvent, bool) {
	cb, ok := outer.Data.(*slackevents.EventsAPICallbackEvent)
	if !ok {
		return protocol.InboundEvent{}, false
	}
	msg, ok := outer.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return protocol.InboundEvent{}, false
	}
	if msg.SubType != "" && msg.SubType != "bot_message" {
		return protocol.InboundEvent{}, false
	}

	return protocol.InboundEvent{
		ID:         cb.EventID,
		UserID:     msg.User,
		ChannelID:  msg.Channel,
		Text:       msg.Text,
		FromBot:    msg.BotID != "" || msg.SubType == "bot_message" || (botUserID != "" && msg.User == botUserID),
		ReceivedAt: time.Now(),
	}, true
}
