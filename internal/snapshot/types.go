package snapshot

import (
	"bytes"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one key/value pair of an ordered JSON object.
type Entry[V any] struct {
	Name  string
	Value V
}

// Entries is a JSON object decoded with its key order preserved. Grouping
// and "first domain" selection depend on the order the server sent.
type Entries[V any] []Entry[V]

// Get returns the value stored under name.
func (e Entries[V]) Get(name string) (V, bool) {
	for _, item := range e {
		if item.Name == name {
			return item.Value, true
		}
	}
	var zero V
	return zero, false
}

// Names returns the keys in order.
func (e Entries[V]) Names() []string {
	out := make([]string, len(e))
	for i, item := range e {
		out[i] = item.Name
	}
	return out
}

// UnmarshalJSON decodes an object keeping key order. A repeated key keeps
// its first position and its last value. null decodes as empty.
func (e *Entries[V]) UnmarshalJSON(data []byte) error {
	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)

	out := Entries[V]{}
	if iter.WhatIsNext() == jsoniter.NilValue {
		iter.Skip()
		*e = out
		return nil
	}

	index := make(map[string]int)
	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		var v V
		it.ReadVal(&v)
		if it.Error != nil {
			return false
		}
		if i, ok := index[key]; ok {
			out[i].Value = v
			return true
		}
		index[key] = len(out)
		out = append(out, Entry[V]{Name: key, Value: v})
		return true
	})
	if iter.Error != nil && iter.Error != io.EOF {
		return iter.Error
	}
	*e = out
	return nil
}

// MarshalJSON encodes the entries as an object in order.
func (e Entries[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToolStatus is the health of a kernel tool. "OK" is healthy.
type ToolStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the tool is healthy.
func (t ToolStatus) OK() bool {
	return t.Status == "OK"
}

// PluginInfo describes a registered plugin. Dependencies name other plugins
// and are not validated.
type PluginInfo struct {
	Domain       string   `json:"domain,omitempty"`
	Dependencies []string `json:"dependencies"`
}

// DomainInfo is free-form domain metadata.
type DomainInfo map[string]any

// SystemSnapshot is the full status payload of /api/system/info. It is
// replaced wholesale, never mutated in place.
type SystemSnapshot struct {
	Tools   Entries[ToolStatus] `json:"tools"`
	Plugins Entries[PluginInfo] `json:"plugins"`
	Domains Entries[DomainInfo] `json:"domains"`
}

// Empty returns the snapshot used before the first successful fetch.
func Empty() SystemSnapshot {
	return SystemSnapshot{
		Tools:   Entries[ToolStatus]{},
		Plugins: Entries[PluginInfo]{},
		Domains: Entries[DomainInfo]{},
	}
}

// normalize replaces missing members with empty ones.
func (s *SystemSnapshot) normalize() {
	if s.Tools == nil {
		s.Tools = Entries[ToolStatus]{}
	}
	if s.Plugins == nil {
		s.Plugins = Entries[PluginInfo]{}
	}
	if s.Domains == nil {
		s.Domains = Entries[DomainInfo]{}
	}
	for i := range s.Plugins {
		if s.Plugins[i].Value.Dependencies == nil {
			s.Plugins[i].Value.Dependencies = []string{}
		}
	}
}

// envelope is the response body of the status endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    *SystemSnapshot `json:"data"`
}
