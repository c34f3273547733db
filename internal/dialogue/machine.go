package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/h1v3-io/jirabot/internal/connector"
	"github.com/h1v3-io/jirabot/internal/dateresolve"
	"github.com/h1v3-io/jirabot/internal/keyed"
	"github.com/h1v3-io/jirabot/internal/ledger"
	"github.com/h1v3-io/jirabot/internal/metrics"
	"github.com/h1v3-io/jirabot/pkg/protocol"
)

// Messages sent when a dialogue ends.
const (
	MsgCreated       = "✅ Created Jira issue *%s*: %s"
	MsgCreateFailed  = "❌ Failed to create Jira issue.\n%s"
	MsgDueUnparsable = "⚠️ Couldn't understand the due date. Please say something like 'tomorrow' or 'July 2, 2025'."
	MsgDueError      = "❌ Error parsing due date: %v"
	MsgExpired       = "⌛ Your ticket draft expired. Send any message to start again."
)

// TicketCreator files a work item in the tracker.
type TicketCreator interface {
	CreateIssue(ctx context.Context, req protocol.TicketRequest) (protocol.IssueKey, error)
}

// Recorder receives the outcome of every finished dialogue.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
}

// Config holds the fixed tracker fields.
type Config struct {
	ProjectKey string
	IssueType  string
}

// Machine runs the dialogue for all users. Turns for the same user are
// serialized; different users proceed in parallel.
type Machine struct {
	cfg      Config
	sessions *keyed.Map[Session]
	dates    dateresolve.Resolver
	tickets  TicketCreator
	sender   connector.Sender

	// Optional collaborators.
	Recorder Recorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// New creates a Machine. sessions may be shared with other readers (the
// admin API); all writes go through the Machine.
func New(cfg Config, sessions *keyed.Map[Session], dates dateresolve.Resolver, tickets TicketCreator, sender connector.Sender) *Machine {
	if cfg.ProjectKey == "" {
		cfg.ProjectKey = protocol.DefaultProjectKey
	}
	if cfg.IssueType == "" {
		cfg.IssueType = protocol.DefaultIssueType
	}
	if sessions == nil {
		sessions = keyed.New[Session]()
	}
	return &Machine{
		cfg:      cfg,
		sessions: sessions,
		dates:    dates,
		tickets:  tickets,
		sender:   sender,
		Logger:   slog.Default(),
		Now:      time.Now,
	}
}

// Handle feeds one message from userID into the dialogue.
func (m *Machine) Handle(ctx context.Context, userID, channelID, text string) {
	lease := m.sessions.Acquire(userID)
	defer lease.Release()

	cur, _ := lease.Load()
	next, eff, err := Transition(cur, text)
	if err != nil {
		// Unreachable through Handle; drop the session so the user can restart.
		m.Logger.Error("dialogue transition failed", "user", userID, "step", cur.Step, "error", err)
		lease.Delete()
		return
	}

	now := m.Now()
	next.UserID = userID
	next.ChannelID = channelID
	if next.StartedAt.IsZero() {
		next.StartedAt = now
	}
	next.UpdatedAt = now
	m.Metrics.Step(next.Step.String())

	switch eff.Kind {
	case EffectPrompt:
		lease.Store(next)
		m.Logger.Debug("dialogue advanced", "user", userID, "step", next.Step)
		m.notify(ctx, channelID, eff.Prompt)
	case EffectFinalize:
		m.finalize(ctx, next)
		lease.Delete()
	}
}

// Session returns the current session for userID.
func (m *Machine) Session(userID string) (Session, bool) {
	lease := m.sessions.Acquire(userID)
	defer lease.Release()
	return lease.Load()
}

// Sessions returns all open sessions ordered by user.
func (m *Machine) Sessions() []Session {
	snap := m.sessions.Snapshot()
	out := make([]Session, 0, len(snap))
	for _, s := range snap {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ActiveSessions returns the number of open sessions.
func (m *Machine) ActiveSessions() int {
	return m.sessions.Len()
}

// ExpireIdle drops sessions not updated since cutoff and tells their users.
// It returns how many sessions were dropped.
func (m *Machine) ExpireIdle(ctx context.Context, cutoff time.Time) int {
	expired := 0
	for _, userID := range m.sessions.Keys() {
		lease := m.sessions.Acquire(userID)
		s, ok := lease.Load()
		if ok && s.UpdatedAt.Before(cutoff) {
			lease.Delete()
			lease.Release()
			expired++
			m.Metrics.SessionExpired()
			m.Logger.Info("session expired", "user", userID, "step", s.Step, "idle_since", s.UpdatedAt)
			m.notify(ctx, s.ChannelID, MsgExpired)
			continue
		}
		lease.Release()
	}
	return expired
}

func (m *Machine) finalize(ctx context.Context, s Session) {
	entry := ledger.Entry{
		UserID:    s.UserID,
		ChannelID: s.ChannelID,
		Summary:   s.Summary,
		DueText:   s.DueText,
		Priority:  s.Priority,
	}

	start := m.Now()
	due, err := m.dates.Resolve(ctx, s.DueText)
	if err == nil {
		// Only a plain YYYY-MM-DD date reaches the tracker; far-off years fail here.
		due, err = dateresolve.Normalize(due.Format(protocol.DateLayout))
	}
	if err != nil {
		if errors.Is(err, dateresolve.ErrUnresolvable) {
			m.Metrics.DateResolution(m.dates.Name(), "unresolvable", m.Now().Sub(start))
			m.Logger.Info("due date unresolvable", "user", s.UserID, "due_text", s.DueText, "error", err)
			entry.Status = ledger.StatusDateUnresolved
			m.notify(ctx, s.ChannelID, MsgDueUnparsable)
		} else {
			m.Metrics.DateResolution(m.dates.Name(), "error", m.Now().Sub(start))
			m.Logger.Warn("due date resolver failed", "user", s.UserID, "error", err)
			entry.Status = ledger.StatusDateError
			m.notify(ctx, s.ChannelID, fmt.Sprintf(MsgDueError, err))
		}
		entry.Detail = err.Error()
		m.record(ctx, entry)
		return
	}
	m.Metrics.DateResolution(m.dates.Name(), "ok", m.Now().Sub(start))

	req := protocol.TicketRequest{
		ProjectKey: m.cfg.ProjectKey,
		Summary:    s.Summary,
		DueDate:    due,
		Priority:   s.Priority,
		IssueType:  m.cfg.IssueType,
	}
	entry.DueDate = req.Due()

	start = m.Now()
	key, err := m.tickets.CreateIssue(ctx, req)
	if err != nil {
		m.Metrics.Ticket("failed", m.Now().Sub(start))
		detail := failureDetail(err)
		m.Logger.Warn("ticket creation failed", "user", s.UserID, "error", err)
		entry.Status = ledger.StatusFailed
		entry.Detail = detail
		m.notify(ctx, s.ChannelID, fmt.Sprintf(MsgCreateFailed, detail))
		m.record(ctx, entry)
		return
	}
	m.Metrics.Ticket("created", m.Now().Sub(start))

	m.Logger.Info("ticket created", "user", s.UserID, "issue_key", key, "due", req.Due(), "priority", req.Priority)
	entry.Status = ledger.StatusCreated
	entry.IssueKey = string(key)
	m.notify(ctx, s.ChannelID, fmt.Sprintf(MsgCreated, key, s.Summary))
	m.record(ctx, entry)
}

// failureDetail prefers the tracker's raw response over the wrapped error text.
func failureDetail(err error) string {
	var d interface{ Detail() string }
	if errors.As(err, &d) {
		return d.Detail()
	}
	return err.Error()
}

func (m *Machine) notify(ctx context.Context, channelID, text string) {
	if err := m.sender.Send(ctx, protocol.OutboundMessage{ChannelID: channelID, Text: text}); err != nil {
		m.Metrics.NotifyFailed()
		m.Logger.Warn("notify failed", "channel", channelID, "error", err)
	}
}

func (m *Machine) record(ctx context.Context, e ledger.Entry) {
	if m.Recorder == nil {
		return
	}
	if _, err := m.Recorder.Record(ctx, e); err != nil {
		m.Logger.Error("ledger record failed", "user", e.UserID, "status", e.Status, "error", err)
	}
}
