package router

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsText encodes the way a browser's JSON.stringify does: no HTML escaping.
// Map keys are sorted since Go maps carry no order of their own.
var jsText = jsoniter.Config{EscapeHTML: false, SortMapKeys: true}.Froze()

// LogEvent is the event name the kernel's logger publishes.
const LogEvent = "system.log"

// ErrNoEventName is returned for frames without an event name.
var ErrNoEventName = errors.New("frame has no event name")

// LiveEvent is one frame of the event stream.
type LiveEvent struct {
	Type string `json:"type,omitempty"`
	Name string `json:"event"`
	Data any    `json:"data"`

	raw jsoniter.RawMessage // data as sent, when decoded from a frame
}

type wireEvent struct {
	Type string              `json:"type"`
	Name string              `json:"event"`
	Data jsoniter.RawMessage `json:"data"`
}

// Decode parses a text frame. Frames that are not JSON objects or carry no
// event name are rejected.
func Decode(frame []byte) (LiveEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(frame, &w); err != nil {
		return LiveEvent{}, fmt.Errorf("decode frame: %w", err)
	}
	if w.Name == "" {
		return LiveEvent{}, ErrNoEventName
	}
	ev := LiveEvent{Type: w.Type, Name: w.Name}
	if len(w.Data) > 0 {
		if err := json.Unmarshal(w.Data, &ev.Data); err != nil {
			return LiveEvent{}, fmt.Errorf("decode frame data: %w", err)
		}
		ev.raw = w.Data
	}
	return ev, nil
}

// Payload is the body of an event after unwrapping. It is usually a JSON
// object but servers may send any JSON value.
type Payload struct {
	value any
	text  string // JSON text in the sender's key order, if known
}

// NewPayload wraps a decoded JSON value.
func NewPayload(v any) Payload {
	return Payload{value: v}
}

// Value returns the wrapped value.
func (p Payload) Value() any {
	return p.value
}

// ExtractPayload unwraps event data: data.payload when present, else data
// itself, else the empty object. "Present" follows JavaScript truthiness so
// null, false, 0 and "" fall through.
func ExtractPayload(data any) Payload {
	if obj, ok := data.(map[string]any); ok {
		if inner, ok := obj["payload"]; ok && truthy(inner) {
			return Payload{value: inner}
		}
	}
	if truthy(data) {
		return Payload{value: data}
	}
	return Payload{value: map[string]any{}}
}

// Payload returns the unwrapped payload of the event. For decoded frames the
// payload keeps the sender's key order.
func (ev LiveEvent) Payload() Payload {
	p := ExtractPayload(ev.Data)
	if ev.raw == nil || !truthy(ev.Data) {
		return p
	}
	raw := []byte(ev.raw)
	if obj, ok := ev.Data.(map[string]any); ok {
		if inner, ok := obj["payload"]; ok && truthy(inner) {
			var fields map[string]jsoniter.RawMessage
			if err := json.Unmarshal(raw, &fields); err != nil {
				return p
			}
			raw = fields["payload"]
		}
	}
	p.text = stringifyJS(raw)
	return p
}

// Field returns the string form of an object field when the field is truthy.
func (p Payload) Field(key string) (string, bool) {
	obj, ok := p.value.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := obj[key]
	if !ok || !truthy(v) {
		return "", false
	}
	return stringify(v), true
}

// Text returns the compact JSON form of the payload.
func (p Payload) Text() string {
	if p.text != "" {
		return p.text
	}
	data, err := jsText.MarshalToString(p.value)
	if err != nil {
		return ""
	}
	return data
}

// Summary returns the compact JSON form of the payload cut to max characters.
func (p Payload) Summary(max int) string {
	r := []rune(p.Text())
	if max >= 0 && len(r) > max {
		r = r[:max]
	}
	return string(r)
}

// MarshalJSON encodes the wrapped value.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.text != "" {
		return []byte(p.text), nil
	}
	return jsText.Marshal(p.value)
}

// stringifyJS re-encodes raw JSON the way JSON.stringify(JSON.parse(raw))
// does: compact, no HTML escaping, integer-like keys first in numeric order,
// other keys in first-seen order with the last duplicate's value, and
// numbers in shortest form. It returns "" for malformed input.
func stringifyJS(raw []byte) string {
	iter := json.BorrowIterator(raw)
	defer json.ReturnIterator(iter)
	out := readJS(iter)
	if iter.Error != nil {
		return ""
	}
	return out
}

func readJS(iter *jsoniter.Iterator) string {
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		var keys []string
		vals := make(map[string]string)
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			if _, seen := vals[key]; !seen {
				keys = append(keys, key)
			}
			vals[key] = readJS(it)
			return it.Error == nil
		})
		keys = orderKeysJS(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = quoteJS(k) + ":" + vals[k]
		}
		return "{" + strings.Join(parts, ",") + "}"
	case jsoniter.ArrayValue:
		var parts []string
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			parts = append(parts, readJS(it))
			return it.Error == nil
		})
		return "[" + strings.Join(parts, ",") + "]"
	case jsoniter.StringValue:
		return quoteJS(iter.ReadString())
	case jsoniter.NumberValue:
		return formatNumberJS(iter.ReadFloat64())
	case jsoniter.BoolValue:
		return strconv.FormatBool(iter.ReadBool())
	case jsoniter.NilValue:
		iter.ReadNil()
		return "null"
	default:
		iter.ReportError("readJS", "unexpected value")
		return ""
	}
}

// orderKeysJS puts array-index keys first in ascending order, then the rest
// in insertion order.
func orderKeysJS(keys []string) []string {
	var index, named []string
	for _, k := range keys {
		if isArrayIndex(k) {
			index = append(index, k)
		} else {
			named = append(named, k)
		}
	}
	if len(index) == 0 {
		return keys
	}
	sort.Slice(index, func(i, j int) bool {
		a, _ := strconv.ParseUint(index[i], 10, 32)
		b, _ := strconv.ParseUint(index[j], 10, 32)
		return a < b
	})
	return append(index, named...)
}

func isArrayIndex(k string) bool {
	n, err := strconv.ParseUint(k, 10, 32)
	return err == nil && n < math.MaxUint32 && strconv.FormatUint(n, 10) == k
}

func quoteJS(s string) string {
	out, err := jsText.MarshalToString(s)
	if err != nil {
		return `""`
	}
	return out
}

func formatNumberJS(f float64) string {
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case jsoniter.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := jsText.MarshalToString(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return data
	}
}
