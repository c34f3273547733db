package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/h1v3-io/jirabot/pkg/protocol"
)

// ErrBadSignature is returned when a request fails Slack signature checks.
var ErrBadSignature = errors.New("dispatch: bad request signature")

// envelope is the recognized subset of an Events API delivery.
type envelope struct {
	Challenge json.RawMessage `json:"challenge"`
	EventID   string          `json:"event_id"`
	Event     *messageEvent   `json:"event"`
}

type messageEvent struct {
	Type    string          `json:"type"`
	SubType string          `json:"subtype"`
	Text    string          `json:"text"`
	User    string          `json:"user"`
	Channel string          `json:"channel"`
	BotID   json.RawMessage `json:"bot_id"` // any value, even null, marks a bot
}

// Webhook serves the Slack Events API endpoint.
type Webhook struct {
	dispatcher    *Dispatcher
	signingSecret string
	logger        *slog.Logger
	now           func() time.Time
}

// NewWebhook creates the HTTP handler. An empty signingSecret disables
// signature verification (for development).
func NewWebhook(d *Dispatcher, signingSecret string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		dispatcher:    d,
		signingSecret: signingSecret,
		logger:        logger,
		now:           time.Now,
	}
}

// ServeHTTP handles POST /slack/events.
func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := h.verify(r.Header, body); err != nil {
		h.logger.Warn("webhook rejected", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
		return
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	var syntaxErr *json.SyntaxError
	if errors.As(decodeErr, &syntaxErr) || (decodeErr != nil && !json.Valid(body)) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON payload"})
		return
	}

	// URL verification handshake: echo and stop.
	if len(env.Challenge) > 0 {
		writeJSON(w, http.StatusOK, map[string]json.RawMessage{"challenge": env.Challenge})
		return
	}

	// Well-formed JSON of an unexpected shape is acknowledged but never dispatched.
	if decodeErr != nil {
		h.logger.Debug("unrecognized delivery acknowledged", "error", decodeErr)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if n := r.Header.Get("X-Slack-Retry-Num"); n != "" {
		h.logger.Debug("slack redelivery", "event_id", env.EventID, "retry", n, "reason", r.Header.Get("X-Slack-Retry-Reason"))
	}

	// The dialogue runs to completion even if Slack hangs up first.
	ctx := context.WithoutCancel(r.Context())
	h.dispatcher.HandleEvent(ctx, env.toEvent(h.now()))

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Webhook) verify(header http.Header, body []byte) error {
	if h.signingSecret == "" {
		return nil
	}
	sv, err := slack.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

func (env envelope) toEvent(now time.Time) protocol.InboundEvent {
	ev := protocol.InboundEvent{ID: env.EventID, ReceivedAt: now}
	if env.Event == nil {
		return ev
	}
	ev.UserID = env.Event.User
	ev.ChannelID = env.Event.Channel
	ev.Text = env.Event.Text
	ev.FromBot = len(env.Event.BotID) > 0 || env.Event.SubType == "bot_message"
	return ev
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
