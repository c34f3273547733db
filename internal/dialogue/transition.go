// Package dialogue drives the per-user four-question conversation that ends
// in a filed ticket.
package dialogue

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Step is the position of a user in the dialogue.
type Step int

const (
	StepNone Step = iota
	StepAskSummary
	StepAskDue
	StepAskPriority
	StepCreateIssue // terminal; resolved within the same turn
)

func (s Step) String() string {
	switch s {
	case StepNone:
		return "NONE"
	case StepAskSummary:
		return "ASK_SUMMARY"
	case StepAskDue:
		return "ASK_DUE"
	case StepAskPriority:
		return "ASK_PRIORITY"
	case StepCreateIssue:
		return "CREATE_ISSUE"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// MarshalText encodes the step by name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by String.
func (s *Step) UnmarshalText(b []byte) error {
	for st := StepNone; st <= StepCreateIssue; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownStep, b)
}

// User-visible prompts.
const (
	PromptSummary  = "📝 What is the task summary?"
	PromptDue      = "🗓️ When is it due?"
	PromptPriority = "❗ How important is it? (e.g., Low, Medium, High)"
)

// ErrUnknownStep is returned by Transition for a step outside the table.
var ErrUnknownStep = errors.New("dialogue: unknown step")

// EffectKind says what the caller must do after a transition.
type EffectKind int

const (
	// EffectPrompt: store the new session and send Effect.Prompt.
	EffectPrompt EffectKind = iota
	// EffectFinalize: resolve the date, file the ticket, drop the session.
	EffectFinalize
)

// Effect is the side effect a transition asks for.
type Effect struct {
	Kind   EffectKind
	Prompt string
}

// Transition applies one user answer to the session. A zero Session (StepNone)
// means the user has no session yet. Transition has no side effects.
func Transition(cur Session, text string) (Session, Effect, error) {
	next := cur
	switch cur.Step {
	case StepNone:
		next = Session{Step: StepAskSummary}
		return next, Effect{Kind: EffectPrompt, Prompt: PromptSummary}, nil
	case StepAskSummary:
		next.Summary = text
		next.Step = StepAskDue
		return next, Effect{Kind: EffectPrompt, Prompt: PromptDue}, nil
	case StepAskDue:
		next.DueText = text
		next.Step = StepAskPriority
		return next, Effect{Kind: EffectPrompt, Prompt: PromptPriority}, nil
	case StepAskPriority:
		next.Priority = Capitalize(text)
		next.Step = StepCreateIssue
		return next, Effect{Kind: EffectFinalize}, nil
	default:
		return cur, Effect{}, fmt.Errorf("%w: %s", ErrUnknownStep, cur.Step)
	}
}

// Capitalize upper-cases the first character and lower-cases the rest
// ("hIGH" -> "High"). The result is not checked against any priority list.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size <= 1 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
