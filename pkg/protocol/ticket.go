package protocol

import "time"

// Fixed tracker fields used when no override is configured.
const (
	DefaultProjectKey = "BT"
	DefaultIssueType  = "Task"
)

// DateLayout is the ISO calendar date shape the tracker expects.
const DateLayout = "2006-01-02"

// IssueKey identifies a created work item (e.g. "BT-42").
type IssueKey string

// TicketRequest is built once at the end of a dialogue and sent exactly once.
type TicketRequest struct {
	ProjectKey string    `json:"project_key"`
	Summary    string    `json:"summary"`
	DueDate    time.Time `json:"due_date"`
	Priority   string    `json:"priority"`
	IssueType  string    `json:"issue_type"`
}

// Due returns the due date formatted as YYYY-MM-DD.
func (r TicketRequest) Due() string {
	return r.DueDate.Format(DateLayout)
}
