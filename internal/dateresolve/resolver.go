// Package dateresolve turns free-text due dates ("tomorrow", "July 2, 2025")
// into calendar dates.
package dateresolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/h1v3-io/jirabot/pkg/protocol"
)

// ErrUnresolvable means the text did not yield a usable calendar date.
// Errors that do not wrap it come from the resolving service itself
// (network failure, timeout, bad credentials).
var ErrUnresolvable = errors.New("dateresolve: unresolvable date")

// Resolver maps free text to a calendar date at midnight UTC.
type Resolver interface {
	Resolve(ctx context.Context, text string) (time.Time, error)
	Name() string
}

// Normalize accepts only a 10-character YYYY-MM-DD string.
func Normalize(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(protocol.DateLayout) || !strings.Contains(s, "-") {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrUnresolvable, s)
	}
	d, err := time.Parse(protocol.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrUnresolvable, s, err)
	}
	return d, nil
}

// dateOnly drops the clock part, keeping the wall-clock calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Bounded wraps a Resolver with a timeout, turns panics into errors and
// rejects dates that do not format as YYYY-MM-DD.
type Bounded struct {
	Inner   Resolver
	Timeout time.Duration
}

func (b Bounded) Name() string { return b.Inner.Name() }

func (b Bounded) Resolve(ctx context.Context, text string) (d time.Time, err error) {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d, err = time.Time{}, fmt.Errorf("dateresolve: %s panicked: %v", b.Inner.Name(), r)
		}
	}()

	d, err = b.Inner.Resolve(ctx, text)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return time.Time{}, fmt.Errorf("dateresolve: %s timed out after %s: %w", b.Inner.Name(), b.Timeout, err)
		}
		return time.Time{}, err
	}
	return Normalize(d.Format(protocol.DateLayout))
}

// Chain tries each resolver in order and returns the first success.
// When all fail, the last error is returned.
type Chain []Resolver

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, r := range c {
		names[i] = r.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c Chain) Resolve(ctx context.Context, text string) (time.Time, error) {
	err := fmt.Errorf("%w: no resolvers configured", ErrUnresolvable)
	for _, r := range c {
		var d time.Time
		d, err = r.Resolve(ctx, text)
		if err == nil {
			return d, nil
		}
	}
	return time.Time{}, err
}
