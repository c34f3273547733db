// Package ledger keeps an audit trail of every finished dialogue: the ticket
// that was filed, or why filing did not happen.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for unknown entry IDs.
var ErrNotFound = errors.New("ledger: entry not found")

// Status is the terminal outcome of a dialogue.
type Status string

const (
	StatusCreated        Status = "created"
	StatusFailed         Status = "failed"
	StatusDateUnresolved Status = "date_unresolved"
	StatusDateError      Status = "date_error"
)

// Entry is one finished dialogue.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user"`
	ChannelID string    `json:"channel"`
	Summary   string    `json:"summary"`
	DueText   string    `json:"due_text"`
	DueDate   string    `json:"due_date,omitempty"` // YYYY-MM-DD when resolved
	Priority  string    `json:"priority"`
	IssueKey  string    `json:"issue_key,omitempty"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence interface for ledger entries.
type Store interface {
	// Record appends an entry, assigning ID and CreatedAt when empty.
	Record(ctx context.Context, e Entry) (Entry, error)
	// Get retrieves an entry by ID.
	Get(ctx context.Context, id string) (*Entry, error)
	// List returns entries matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]Entry, error)
	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)
}

// Filter constrains ledger queries.
type Filter struct {
	Status *Status
	UserID string
	Query  string // text search on summary and issue key
	Limit  int    // 0 = no limit
}
