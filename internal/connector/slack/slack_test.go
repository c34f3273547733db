package slackconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h1v3-io/jirabot/pkg/protocol"
)

func TestSenderPostsMessage(t *testing.T) {
	var channel, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		channel = r.FormValue("channel")
		text = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1751387400.000100"}`))
	}))
	defer srv.Close()

	s := NewSender("xoxb-test", nil, slack.OptionAPIURL(srv.URL+"/"))
	err := s.Send(context.Background(), protocol.OutboundMessage{ChannelID: "C123", Text: "📝 What is the task summary?"})
	require.NoError(t, err)

	assert.Equal(t, "C123", channel)
	assert.Equal(t, "📝 What is the task summary?", text)
}

func TestSenderSurfacesSlackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	s := NewSender("xoxb-test", nil, slack.OptionAPIURL(srv.URL+"/"))
	err := s.Send(context.Background(), protocol.OutboundMessage{ChannelID: "C404", Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func parseCallback(t *testing.T, inner map[string]any) slackevents.EventsAPIEvent {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"token":      "verification",
		"team_id":    "T1",
		"api_app_id": "A1",
		"type":       "event_callback",
		"event_id":   "Ev0001",
		"event_time": 1751387400,
		"event":      inner,
	})
	require.NoError(t, err)
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	require.NoError(t, err)
	return ev
}

func TestFromEventsAPIMessage(t *testing.T) {
	outer := parseCallback(t, map[string]any{
		"type": "message", "user": "U1", "text": "Fix login bug", "channel": "D1", "ts": "1.0",
	})

	ev, ok := FromEventsAPI(outer, "UBOT")
	require.True(t, ok)
	assert.Equal(t, "Ev0001", ev.ID)
	assert.Equal(t, "U1", ev.UserID)
	assert.Equal(t, "D1", ev.ChannelID)
	assert.Equal(t, "Fix login bug", ev.Text)
	assert.False(t, ev.FromBot)
}

func TestFromEventsAPIBotMessages(t *testing.T) {
	cases := []map[string]any{
		{"type": "message", "bot_id": "B1", "text": "hi", "channel": "D1", "ts": "1.0"},
		{"type": "message", "subtype": "bot_message", "text": "hi", "channel": "D1", "ts": "1.0"},
		{"type": "message", "user": "UBOT", "text": "hi", "channel": "D1", "ts": "1.0"},
	}
	for _, inner := range cases {
		ev, ok := FromEventsAPI(parseCallback(t, inner), "UBOT")
		require.True(t, ok)
		assert.True(t, ev.FromBot, "event %v", inner)
	}
}

func TestFromEventsAPIDropsEdits(t *testing.T) {
	outer := parseCallback(t, map[string]any{
		"type": "message", "subtype": "message_changed", "channel": "D1", "ts": "1.0",
	})
	_, ok := FromEventsAPI(outer, "UBOT")
	assert.False(t, ok)
}
