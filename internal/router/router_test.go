package router

import (
	"errors"
	"strings"
	"testing"
)

type recorder struct {
	billboard []string
	payloads  []Payload
	ticker    []Payload
	highlight []string
}

func (r *recorder) PushEvent(name string, p Payload) {
	r.billboard = append(r.billboard, name)
	r.payloads = append(r.payloads, p)
}

func (r *recorder) ShowLog(p Payload) { r.ticker = append(r.ticker, p) }

func (r *recorder) Highlight(name string) { r.highlight = append(r.highlight, name) }

func mustDecode(t *testing.T, frame string) LiveEvent {
	t.Helper()
	ev, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode(%s) error: %v", frame, err)
	}
	return ev
}

func TestDispatchFansOut(t *testing.T) {
	rec := &recorder{}
	r := New(rec, rec, rec)

	r.Dispatch(mustDecode(t, `{"type":"event","event":"users.created","data":{"payload":{"id":7}}}`))
	r.Dispatch(mustDecode(t, `{"event":"system.log","data":{"payload":{"level":"ERROR","message":"disk full"}}}`))

	if strings.Join(rec.billboard, ",") != "users.created,system.log" {
		t.Fatalf("unexpected billboard dispatch: %v", rec.billboard)
	}
	if strings.Join(rec.highlight, ",") != "users.created,system.log" {
		t.Fatalf("unexpected highlight dispatch: %v", rec.highlight)
	}
	if len(rec.ticker) != 1 {
		t.Fatalf("expected only the log event on the ticker, got %d", len(rec.ticker))
	}
	if lvl, _ := rec.ticker[0].Field("level"); lvl != "ERROR" {
		t.Fatalf("expected ERROR level on ticker payload, got %q", lvl)
	}
}

func TestDispatchSkipsNilSinks(t *testing.T) {
	rec := &recorder{}
	r := New(nil, nil, rec)
	r.Dispatch(mustDecode(t, `{"event":"system.log","data":{}}`))
	if len(rec.highlight) != 1 {
		t.Fatalf("expected highlight sink to still receive the event")
	}
}

func TestExtractPayloadPrecedence(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  string
	}{
		{"wrapped", `{"event":"e","data":{"payload":{"a":1},"b":2}}`, `{"a":1}`},
		{"bare object", `{"event":"e","data":{"b":2}}`, `{"b":2}`},
		{"null payload falls through", `{"event":"e","data":{"payload":null,"b":2}}`, `{"payload":null,"b":2}`},
		{"empty string payload falls through", `{"event":"e","data":{"payload":""}}`, `{"payload":""}`},
		{"string data", `{"event":"e","data":"raw text"}`, `"raw text"`},
		{"missing data", `{"event":"e"}`, `{}`},
		{"null data", `{"event":"e","data":null}`, `{}`},
		{"zero data", `{"event":"e","data":0}`, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mustDecode(t, tc.frame).Payload().Summary(-1)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestPayloadFieldTruthiness(t *testing.T) {
	p := NewPayload(map[string]any{"level": "", "message": "ok", "count": float64(3), "zero": float64(0)})
	if _, ok := p.Field("level"); ok {
		t.Fatalf("empty string field should be falsy")
	}
	if _, ok := p.Field("zero"); ok {
		t.Fatalf("zero field should be falsy")
	}
	if v, ok := p.Field("count"); !ok || v != "3" {
		t.Fatalf("expected count=3, got %q ok=%v", v, ok)
	}
	if v, ok := p.Field("message"); !ok || v != "ok" {
		t.Fatalf("expected message=ok, got %q", v)
	}
	if _, ok := NewPayload("text").Field("message"); ok {
		t.Fatalf("non-object payload has no fields")
	}
}

func TestPayloadSummaryKeepsSenderOrderAndCharacters(t *testing.T) {
	ev := mustDecode(t, `{"event":"users.created","data":{"payload":{"zeta":1,"alpha":"<b>&"}}}`)
	if got := ev.Payload().Summary(80); got != `{"zeta":1,"alpha":"<b>&"}` {
		t.Fatalf("unexpected summary %s", got)
	}

	cases := []struct {
		name, frame, want string
	}{
		{"whitespace dropped", `{"event":"e","data":{ "b" : [ 1 , 2 ] , "a" : { } }}`, `{"b":[1,2],"a":{}}`},
		{"index keys first", `{"event":"e","data":{"b":true,"10":1,"2":2,"01":3}}`, `{"2":2,"10":1,"b":true,"01":3}`},
		{"duplicate key keeps first slot", `{"event":"e","data":{"a":1,"b":2,"a":3}}`, `{"a":3,"b":2}`},
		{"numbers shortest form", `{"event":"e","data":{"n":[1.50,1e21,0.0000001,-0.0,100]}}`, `{"n":[1.5,1e+21,1e-7,0,100]}`},
		{"escapes normalized", `{"event":"e","data":{"s":"\u0041\/\"q\""}}`, `{"s":"A/\"q\""}`},
		{"bare string", `{"event":"e","data":"<raw>"}`, `"<raw>"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mustDecode(t, tc.frame).Payload().Summary(-1); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestPayloadSummaryCutsSenderOrderedText(t *testing.T) {
	ev := mustDecode(t, `{"event":"e","data":{"z":"`+strings.Repeat("x", 100)+`","a":1}}`)
	got := ev.Payload().Summary(80)
	if !strings.HasPrefix(got, `{"z":"xxx`) || len([]rune(got)) != 80 {
		t.Fatalf("expected the first 80 characters in sender order, got %s", got)
	}
}

func TestPayloadSummaryTruncatesByCharacter(t *testing.T) {
	p := NewPayload(map[string]any{"message": strings.Repeat("é", 100)})
	got := p.Summary(80)
	if n := len([]rune(got)); n != 80 {
		t.Fatalf("expected 80 characters, got %d", n)
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	for _, frame := range []string{`{not json`, `[1,2,3]`, `"event"`, `{"data":{}}`, `{"event":""}`} {
		if _, err := Decode([]byte(frame)); err == nil {
			t.Fatalf("expected Decode(%s) to fail", frame)
		}
	}
	if _, err := Decode([]byte(`{"data":{}}`)); !errors.Is(err, ErrNoEventName) {
		t.Fatalf("expected ErrNoEventName, got %v", err)
	}
}

func TestMatchesDomain(t *testing.T) {
	cases := []struct {
		event, domain string
		want          bool
	}{
		{"ui.plugin.loaded", "ui", true},
		{"users.created", "users", true},
		{"users.created", "ui", false},
		// Coincidental substring matches are part of the heuristic.
		{"mapia.changed", "api", true},
		{"build.started", "ui", true},
		{"anything", "", true},
	}
	for _, tc := range cases {
		if got := MatchesDomain(tc.event, tc.domain); got != tc.want {
			t.Fatalf("MatchesDomain(%q, %q)=%v want %v", tc.event, tc.domain, got, tc.want)
		}
	}
}
