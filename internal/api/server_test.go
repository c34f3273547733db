package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h1v3-io/jirabot/internal/dialogue"
	"github.com/h1v3-io/jirabot/internal/ledger"
	"github.com/h1v3-io/jirabot/internal/logbuf"
)

type stubSessions []dialogue.Session

func (s stubSessions) Sessions() []dialogue.Session { return s }
func (s stubSessions) Session(user string) (dialogue.Session, bool) {
	for _, sess := range s {
		if sess.UserID == user {
			return sess, true
		}
	}
	return dialogue.Session{}, false
}

func newLedger(t *testing.T) *ledger.SQLiteStore {
	t.Helper()
	store, err := ledger.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestServer(deps Deps, key string) *Server {
	return NewServer(Config{Host: "127.0.0.1", Port: 0, Key: key}, deps, nil)
}

func do(t *testing.T, srv *Server, method, path, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := newTestServer(Deps{Sessions: stubSessions{{UserID: "U1"}}}, "secret")
	w := do(t, srv, "GET", "/api/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["sessions"])
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(Deps{}, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, "GET", "/api/sessions", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, "GET", "/api/sessions", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, "GET", "/api/sessions", "secret").Code)
}

func TestNoAuthWhenKeyEmpty(t *testing.T) {
	srv := newTestServer(Deps{}, "")
	assert.Equal(t, http.StatusOK, do(t, srv, "GET", "/api/tickets", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(Deps{}, "secret")
	w := do(t, srv, "OPTIONS", "/api/tickets", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSessions(t *testing.T) {
	sessions := stubSessions{
		{UserID: "U1", ChannelID: "C1", Step: dialogue.StepAskDue, Summary: "Fix login bug"},
		{UserID: "U2", ChannelID: "C2", Step: dialogue.StepAskSummary},
	}
	srv := newTestServer(Deps{Sessions: sessions}, "")

	w := do(t, srv, "GET", "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "ASK_DUE", list[0]["step"])

	w = do(t, srv, "GET", "/api/sessions/U1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fix login bug")

	assert.Equal(t, http.StatusNotFound, do(t, srv, "GET", "/api/sessions/U9", "").Code)
}

func TestTickets(t *testing.T) {
	store := newLedger(t)
	ctx := context.Background()
	created, err := store.Record(ctx, ledger.Entry{
		UserID: "U1", ChannelID: "C1", Summary: "Fix login bug", DueText: "tomorrow",
		DueDate: "2025-07-02", Priority: "High", IssueKey: "BT-7", Status: ledger.StatusCreated,
	})
	require.NoError(t, err)
	_, err = store.Record(ctx, ledger.Entry{
		UserID: "U2", ChannelID: "C2", Summary: "Write docs", DueText: "asdf",
		Priority: "Low", Status: ledger.StatusDateUnresolved,
	})
	require.NoError(t, err)

	srv := newTestServer(Deps{Ledger: store}, "")

	w := do(t, srv, "GET", "/api/tickets", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list ticketList
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Entries, 2)

	w = do(t, srv, "GET", "/api/tickets?status=created", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "BT-7", list.Entries[0].IssueKey)

	w = do(t, srv, "GET", "/api/tickets?limit=1", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Entries, 1)

	w = do(t, srv, "GET", "/api/tickets/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"issue_key":"BT-7"`)

	assert.Equal(t, http.StatusNotFound, do(t, srv, "GET", "/api/tickets/nope", "").Code)
}

func TestLogs(t *testing.T) {
	buf := logbuf.New(10)
	now := time.Now()
	buf.Write(logbuf.Entry{Time: now, Level: "DEBUG", Component: "dispatch", Message: "event received"})
	buf.Write(logbuf.Entry{Time: now, Level: "ERROR", Component: "dialogue", Message: "jira create failed"})

	srv := newTestServer(Deps{Logs: buf}, "")

	var entries []logbuf.Entry
	w := do(t, srv, "GET", "/api/logs", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	assert.Len(t, entries, 2)

	w = do(t, srv, "GET", "/api/logs?level=error", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "dialogue", entries[0].Component)

	w = do(t, srv, "GET", "/api/logs?component=dispatch", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	assert.Len(t, entries, 1)
}

func TestEventsRouteMounted(t *testing.T) {
	var hit bool
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	})
	srv := newTestServer(Deps{Events: events}, "secret")

	req := httptest.NewRequest("POST", "/slack/events", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.True(t, hit, "events handler should not require the admin key")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "jirabot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	srv := newTestServer(Deps{Metrics: reg}, "secret")
	w := do(t, srv, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jirabot_test_total 1")
}
