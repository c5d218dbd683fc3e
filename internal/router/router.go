package router

import "strings"

// BillboardSink receives every event.
type BillboardSink interface {
	PushEvent(name string, payload Payload)
}

// TickerSink receives the payload of log events.
type TickerSink interface {
	ShowLog(payload Payload)
}

// HighlightSink receives every event name for window highlighting.
type HighlightSink interface {
	Highlight(name string)
}

// Router fans an event out to its sinks. It does not filter, prioritise or
// deduplicate, and does not track delivery.
type Router struct {
	billboard BillboardSink
	ticker    TickerSink
	highlight HighlightSink
}

// New creates a Router. Any sink may be nil.
func New(billboard BillboardSink, ticker TickerSink, highlight HighlightSink) *Router {
	return &Router{billboard: billboard, ticker: ticker, highlight: highlight}
}

// Dispatch routes one event.
func (r *Router) Dispatch(ev LiveEvent) {
	payload := ev.Payload()

	if r.billboard != nil {
		r.billboard.PushEvent(ev.Name, payload)
	}
	if ev.Name == LogEvent && r.ticker != nil {
		r.ticker.ShowLog(payload)
	}
	if r.highlight != nil {
		r.highlight.Highlight(ev.Name)
	}
}

// MatchesDomain reports whether an event concerns a domain. It is a plain
// substring test, so coincidental matches are expected: domain "api" matches
// "mapia.changed", and an empty domain matches everything.
func MatchesDomain(eventName, domainID string) bool {
	return strings.Contains(eventName, domainID)
}
