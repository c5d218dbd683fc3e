package applog

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"townwatch/internal/clock"
)

type recordingSink struct {
	clock    clock.Clock
	times    []time.Time
	levels   []string
	labels   []string
	messages []string
}

func (r *recordingSink) Now() time.Time {
	if r.clock == nil {
		return time.Now()
	}
	return r.clock.Now()
}

func (r *recordingSink) AddLog(at time.Time, level, label, message string) {
	r.times = append(r.times, at)
	r.levels = append(r.levels, level)
	r.labels = append(r.labels, label)
	r.messages = append(r.messages, message)
}

func TestFormatMessageKeepsAttributeOrder(t *testing.T) {
	got := FormatMessage(time.Now(), "WARN", "dropped frame", "bytes", 12, "error", errors.New("bad json"))

	if !strings.HasPrefix(got, `{"time":"`) {
		t.Fatalf("expected time first, got %s", got)
	}
	idxLevel := strings.Index(got, `"level":"WARN"`)
	idxMsg := strings.Index(got, `"msg":"dropped frame"`)
	idxBytes := strings.Index(got, `"bytes":12`)
	idxErr := strings.Index(got, `"error":"bad json"`)
	if idxLevel < 0 || idxMsg < idxLevel || idxBytes < idxMsg || idxErr < idxBytes {
		t.Fatalf("unexpected field order: %s", got)
	}
	if !strings.HasSuffix(got, "}") {
		t.Fatalf("expected closing brace, got %s", got)
	}
}

func TestLoggerMirrorsEnabledLevelsOnly(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	slog.SetDefault(slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelInfo})))

	sink := &recordingSink{}
	log := New("Stream", sink)
	log.Debug("hidden")
	log.Warn("visible", "attempt", 1)

	if len(sink.levels) != 1 {
		t.Fatalf("expected 1 mirrored record, got %d", len(sink.levels))
	}
	if sink.levels[0] != "WARN" || sink.labels[0] != "Stream" {
		t.Fatalf("unexpected record: level=%s label=%s", sink.levels[0], sink.labels[0])
	}
	if !strings.Contains(sink.messages[0], `"attempt":1`) {
		t.Fatalf("expected attributes in message, got %s", sink.messages[0])
	}
}

func TestFormatMessageEscapesKeys(t *testing.T) {
	got := FormatMessage(time.Now(), "INFO", "odd key", `say "hi"`, 1, "back\\slash", true)

	var fields map[string]any
	if err := json.Unmarshal([]byte(got), &fields); err != nil {
		t.Fatalf("invalid JSON %s: %v", got, err)
	}
	if fields[`say "hi"`] != float64(1) || fields["back\\slash"] != true {
		t.Fatalf("unexpected fields %#v", fields)
	}
}

func TestLoggerStampsWithSinkClock(t *testing.T) {
	at := time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC)
	sink := &recordingSink{clock: clock.NewFake(at)}
	New("Poll", sink).Warn("poll failed")

	if len(sink.times) != 1 || !sink.times[0].Equal(at) {
		t.Fatalf("expected record stamped %v, got %v", at, sink.times)
	}
	var fields struct {
		Time string `json:"time"`
	}
	if err := json.Unmarshal([]byte(sink.messages[0]), &fields); err != nil {
		t.Fatalf("invalid JSON %s: %v", sink.messages[0], err)
	}
	if fields.Time != at.Format(time.RFC3339Nano) {
		t.Fatalf("message time %q does not match record time %v", fields.Time, at)
	}
}

func TestNilLoggerIsUsable(t *testing.T) {
	var log *Logger
	log.Info("no sink")
	if got := log.With("Poll"); got == nil || got.component != "Poll" {
		t.Fatalf("expected With on nil logger to build a new logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
