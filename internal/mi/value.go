// Package mi implements GDB's Machine Interface wire protocol: a parser
// for the asynchronous, line-oriented output grammar and an encoder for
// token-prefixed commands.
package mi

import (
	"fmt"
	"strings"
)

// Value is one node of a parsed MI result tree: a string, an ordered
// mapping, or a list.
type Value interface {
	isValue()
	// Dump renders the value as compact JSON-ish text for raw tool output.
	Dump() string
}

// String is a leaf value (the unescaped contents of an MI c-string).
type String string

// List is an ordered sequence of values.
type List []Value

// Map is an ordered name->value mapping. GDB sometimes emits the same
// name twice inside one tuple; repeats are collapsed into a List under
// the shared name so no occurrence is lost.
type Map struct {
	entries []mapEntry
}

type mapEntry struct {
	key   string
	value Value
}

func (String) isValue() {}
func (List) isValue()   {}
func (*Map) isValue()   {}

// NewMap returns an empty ordered map.
func NewMap() *Map {
	return &Map{}
}

// Add inserts a key/value pair, preserving insertion order. A repeated
// key promotes the existing value to a List and appends.
func (m *Map) Add(key string, v Value) {
	for i := range m.entries {
		if m.entries[i].key == key {
			if l, ok := m.entries[i].value.(List); ok {
				m.entries[i].value = append(l, v)
			} else {
				m.entries[i].value = List{m.entries[i].value, v}
			}
			return
		}
	}
	m.entries = append(m.entries, mapEntry{key: key, value: v})
}

// Get returns the value stored under key, or nil if absent.
func (m *Map) Get(key string) Value {
	for i := range m.entries {
		if m.entries[i].key == key {
			return m.entries[i].value
		}
	}
	return nil
}

// GetString returns the string stored under key, or "" if the key is
// absent or not a string leaf.
func (m *Map) GetString(key string) string {
	if s, ok := m.Get(key).(String); ok {
		return string(s)
	}
	return ""
}

// Len reports the number of distinct keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Keys returns the distinct keys in insertion order.
func (m *Map) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}
	return keys
}

func (s String) Dump() string {
	return fmt.Sprintf("%q", string(s))
}

func (l List) Dump() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range l {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(v.Dump())
	}
	b.WriteByte(']')
	return b.String()
}

func (m *Map) Dump() string {
	if m == nil {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q: %s", e.key, e.value.Dump())
	}
	b.WriteByte('}')
	return b.String()
}
