package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/h1v3-io/jirabot/internal/ledger"
	"github.com/h1v3-io/jirabot/pkg/protocol"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []protocol.OutboundMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg protocol.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.Text
	}
	return out
}

type fakeCreator struct {
	mu    sync.Mutex
	calls []protocol.TicketRequest
	key   protocol.IssueKey
	err   error
}

func (f *fakeCreator) CreateIssue(_ context.Context, req protocol.TicketRequest) (protocol.IssueKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

type fakeResolver struct {
	mu   sync.Mutex
	date time.Time
	err  error
	seen []string
}

func (f *fakeResolver) Name() string { return "fake" }

func (f *fakeResolver) Resolve(_ context.Context, text string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, text)
	return f.date, f.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (f *fakeRecorder) Record(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return e, nil
}
