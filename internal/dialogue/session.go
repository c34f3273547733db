package dialogue

import "time"

// Session is one user's progress through the dialogue. It exists only while
// the user owes an answer to a prompt.
type Session struct {
	UserID    string    `json:"user"`
	ChannelID string    `json:"channel"`
	Step      Step      `json:"step"`
	Summary   string    `json:"summary,omitempty"`
	DueText   string    `json:"due_text,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
