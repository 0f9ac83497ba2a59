package domain

import (
	"encoding/json"
	"slices"
	"strings"
)

// Reserved field names owned by the accounting engine.
const (
	FieldClickCount = "clickcount"
	FieldMoney      = "money"
	FieldStatus     = "status"
)

// IsReserved reports whether key names a reserved field. Matching ignores case
// so a custom field can never shadow a reserved one in serialized output.
func IsReserved(key string) bool {
	switch strings.ToLower(key) {
	case FieldClickCount, FieldMoney, FieldStatus:
		return true
	}
	return false
}

// Fields is an insertion-ordered mapping of keys to raw JSON values.
// The zero value is ready to use.
type Fields struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewFields returns an empty Fields.
func NewFields() *Fields {
	return &Fields{}
}

// Set stores value under key. A new key is appended; an existing key keeps
// its position and has its value replaced.
func (f *Fields) Set(key string, value json.RawMessage) {
	if f.values == nil {
		f.values = make(map[string]json.RawMessage)
	}
	if _, exists := f.values[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.values[key] = slices.Clone(value)
}

// Get returns the raw value stored under key.
func (f *Fields) Get(key string) (json.RawMessage, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	return slices.Clone(f.keys)
}

// Len returns the number of keys.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Each calls fn for every pair in insertion order.
func (f *Fields) Each(fn func(key string, value json.RawMessage)) {
	if f == nil {
		return
	}
	for _, k := range f.keys {
		fn(k, f.values[k])
	}
}

// Clone returns a deep copy.
func (f *Fields) Clone() *Fields {
	out := NewFields()
	f.Each(out.Set)
	return out
}
