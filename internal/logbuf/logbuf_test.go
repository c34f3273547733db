package logbuf

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func fill(buf *Buffer, n int, base time.Time) {
	for i := 0; i < n; i++ {
		buf.Write(Entry{
			Time:    base.Add(time.Duration(i) * time.Second),
			Level:   "INFO",
			Message: "msg",
			Attrs:   map[string]any{"i": i},
		})
	}
}

func TestBufferRingOverwrite(t *testing.T) {
	buf := New(3)
	fill(buf, 5, time.Now())

	entries := buf.Query(Filter{MinLevel: slog.LevelDebug})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Attrs["i"] != 2 || entries[2].Attrs["i"] != 4 {
		t.Fatalf("unexpected order: %v .. %v", entries[0].Attrs["i"], entries[2].Attrs["i"])
	}
	if buf.Len() != 3 {
		t.Errorf("Len = %d, want 3", buf.Len())
	}
}

func TestBufferQuerySinceAndLimit(t *testing.T) {
	buf := New(10)
	now := time.Now()
	fill(buf, 5, now)

	got := buf.Query(Filter{Since: now.Add(2 * time.Second)})
	if len(got) != 3 {
		t.Fatalf("since: expected 3 entries, got %d", len(got))
	}
	got = buf.Query(Filter{Limit: 2})
	if len(got) != 2 || got[1].Attrs["i"] != 4 {
		t.Fatalf("limit: expected newest 2, got %+v", got)
	}
}

func TestBufferQueryLevelComponentContains(t *testing.T) {
	buf := New(10)
	now := time.Now()
	buf.Write(Entry{Time: now, Level: "DEBUG", Component: "dispatch", Message: "event received"})
	buf.Write(Entry{Time: now, Level: "WARN", Component: "dialogue", Message: "Notify failed"})
	buf.Write(Entry{Time: now, Level: "ERROR", Component: "dialogue", Message: "jira create failed"})

	if got := buf.Query(Filter{MinLevel: slog.LevelWarn}); len(got) != 2 {
		t.Errorf("level: got %d entries, want 2", len(got))
	}
	if got := buf.Query(Filter{Component: "dispatch"}); len(got) != 0 {
		t.Errorf("component+default level: got %d entries, want 0", len(got))
	}
	if got := buf.Query(Filter{Component: "dispatch", MinLevel: slog.LevelDebug}); len(got) != 1 {
		t.Errorf("component: got %d entries, want 1", len(got))
	}
	if got := buf.Query(Filter{Contains: "NOTIFY"}); len(got) != 1 {
		t.Errorf("contains: got %d entries, want 1", len(got))
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"ERROR": slog.LevelError, "info": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHandlerCapturesAllLevels(t *testing.T) {
	buf := New(10)
	var out bytes.Buffer
	inner := slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewHandler(inner, buf))

	logger.Debug("quiet")
	logger.Warn("loud")

	if buf.Len() != 2 {
		t.Fatalf("buffer should hold both records, got %d", buf.Len())
	}
	if bytes.Contains(out.Bytes(), []byte("quiet")) {
		t.Error("inner handler should not see debug records")
	}
	if !bytes.Contains(out.Bytes(), []byte("loud")) {
		t.Error("inner handler should see warn records")
	}
}

func TestHandlerComponentAndAttrs(t *testing.T) {
	buf := New(10)
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	logger := slog.New(NewHandler(inner, buf)).With(ComponentKey, "jira")

	logger.Info("create failed", "err", errors.New("boom"), "took", 2*time.Second)
	logger.WithGroup("req").Info("sent", "status", 201)

	got := buf.Query(Filter{Component: "jira"})
	if len(got) != 2 {
		t.Fatalf("expected 2 jira entries, got %d", len(got))
	}
	if got[0].Attrs["err"] != "boom" {
		t.Errorf("error attr = %v, want boom", got[0].Attrs["err"])
	}
	if got[0].Attrs["took"] != "2s" {
		t.Errorf("duration attr = %v, want 2s", got[0].Attrs["took"])
	}
	if _, ok := got[1].Attrs["req.status"]; !ok {
		t.Errorf("grouped attr missing: %v", got[1].Attrs)
	}
}
