package render

import (
	"fmt"
	"time"

	"townwatch/internal/router"
)

// SummaryLength is how much of a payload's JSON a billboard entry shows when
// the payload has no message.
const SummaryLength = 80

// BillboardEntry is one line of the recent-events list.
type BillboardEntry struct {
	Name    string    `json:"name"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Level   string    `json:"level,omitempty"`
	Class   string    `json:"class,omitempty"`
}

// NewBillboardEntry renders an event. Log events with a level get a
// "log-<LEVEL>" severity class.
func NewBillboardEntry(name string, payload router.Payload, at time.Time) BillboardEntry {
	e := BillboardEntry{Name: name, Time: at}
	if msg, ok := payload.Field("message"); ok {
		e.Message = msg
	} else {
		e.Message = payload.Summary(SummaryLength)
	}
	if name == router.LogEvent {
		if level, ok := payload.Field("level"); ok {
			e.Level = level
			e.Class = LevelClass(level)
		}
	}
	return e
}

// LevelClass returns the severity class for a log level.
func LevelClass(level string) string {
	return "log-" + level
}

// PushBillboard returns a new list with e first, holding at most max entries.
// The input list is not modified.
func PushBillboard(list []BillboardEntry, e BillboardEntry, max int) []BillboardEntry {
	if max < 1 {
		return []BillboardEntry{}
	}
	n := len(list) + 1
	if n > max {
		n = max
	}
	out := make([]BillboardEntry, n)
	out[0] = e
	copy(out[1:], list)
	return out
}

// TickerText renders a log payload as "[LEVEL] message".
func TickerText(payload router.Payload) string {
	level, ok := payload.Field("level")
	if !ok {
		level = "INFO"
	}
	message, _ := payload.Field("message")
	return fmt.Sprintf("[%s] %s", level, message)
}
