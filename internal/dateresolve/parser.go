package dateresolve

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParserResolver understands common relative phrases itself and hands
// anything else to dateparse.
type ParserResolver struct {
	now func() time.Time
	loc *time.Location
}

// ParserOption configures a ParserResolver.
type ParserOption func(*ParserResolver)

// WithClock sets the reference clock used for relative phrases.
func WithClock(now func() time.Time) ParserOption {
	return func(p *ParserResolver) { p.now = now }
}

// WithLocation sets the time zone that "today" is evaluated in.
func WithLocation(loc *time.Location) ParserOption {
	return func(p *ParserResolver) { p.loc = loc }
}

// NewParser creates a ParserResolver using the local clock and UTC.
func NewParser(opts ...ParserOption) *ParserResolver {
	p := &ParserResolver{now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ParserResolver) Name() string { return "parser" }

func (p *ParserResolver) Resolve(_ context.Context, text string) (time.Time, error) {
	phrase := cleanPhrase(text)
	if phrase == "" {
		return time.Time{}, fmt.Errorf("%w: empty text", ErrUnresolvable)
	}

	today := dateOnly(p.now().In(p.loc))
	if d, ok := relativeDate(phrase, today); ok {
		return d, nil
	}

	t, err := dateparse.ParseIn(stripFillers(strings.TrimSpace(text)), p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnresolvable, text)
	}
	return dateOnly(t), nil
}

var fillerPrefixes = []string{"due ", "by ", "on ", "before ", "until ", "this "}

// cleanPhrase lower-cases, drops trailing punctuation and leading fillers.
func cleanPhrase(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, ".!?,; ")
	return stripFillers(s)
}

func stripFillers(s string) string {
	for changed := true; changed; {
		changed = false
		for _, p := range fillerPrefixes {
			if len(s) > len(p) && strings.EqualFold(s[:len(p)], p) {
				s = strings.TrimSpace(s[len(p):])
				changed = true
			}
		}
	}
	return s
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var smallNumbers = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

func relativeDate(phrase string, today time.Time) (time.Time, bool) {
	switch phrase {
	case "today", "now", "tonight", "eod", "end of day", "asap":
		return today, true
	case "tomorrow", "tmrw", "tmr", "tomorow":
		return today.AddDate(0, 0, 1), true
	case "day after tomorrow", "the day after tomorrow":
		return today.AddDate(0, 0, 2), true
	case "next week":
		return today.AddDate(0, 0, 7), true
	case "next month":
		return today.AddDate(0, 1, 0), true
	case "end of week", "end of the week", "eow":
		return nextWeekday(today, time.Friday, true), true
	case "end of month", "end of the month", "eom":
		return time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, time.UTC), true
	}

	if wd, ok := weekdays[strings.TrimPrefix(phrase, "next ")]; ok {
		return nextWeekday(today, wd, false), true
	}

	// "in 3 days", "in two weeks", "in a month"
	if rest, ok := strings.CutPrefix(phrase, "in "); ok {
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return time.Time{}, false
		}
		n, ok := smallNumbers[fields[0]]
		if !ok {
			v, err := strconv.Atoi(fields[0])
			if err != nil || v < 0 {
				return time.Time{}, false
			}
			n = v
		}
		switch strings.TrimSuffix(fields[1], "s") {
		case "day":
			return today.AddDate(0, 0, n), true
		case "week":
			return today.AddDate(0, 0, 7*n), true
		case "month":
			return today.AddDate(0, n, 0), true
		}
	}
	return time.Time{}, false
}

// nextWeekday returns the first wd after today, or today itself when
// includeToday is set and today is wd.
func nextWeekday(today time.Time, wd time.Weekday, includeToday bool) time.Time {
	delta := (int(wd) - int(today.Weekday()) + 7) % 7
	if delta == 0 && !includeToday {
		delta = 7
	}
	return today.AddDate(0, 0, delta)
}
