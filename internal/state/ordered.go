package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errOrderedMapNotObject = errors.New("state: expected JSON object")

// OrderedMap is a string-keyed map that remembers insertion order and keeps it
// through JSON encoding. The zero value is an empty map ready to use.
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
}

// Len reports the number of entries.
func (m *OrderedMap[V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Get returns the value stored under key.
func (m *OrderedMap[V]) Get(key string) (V, bool) {
	var zero V
	if m == nil || m.values == nil {
		return zero, false
	}
	value, ok := m.values[key]
	return value, ok
}

// Set stores value under key, appending key to the order when it is new.
func (m *OrderedMap[V]) Set(key string, value V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key and keeps the relative order of the remaining keys.
func (m *OrderedMap[V]) Delete(key string) {
	if m == nil || m.values == nil {
		return
	}
	if _, exists := m.values[key]; !exists {
		return
	}
	delete(m.values, key)
	for index, candidate := range m.keys {
		if candidate == key {
			m.keys = append(m.keys[:index], m.keys[index+1:]...)
			break
		}
	}
	if len(m.keys) == 0 {
		m.keys = nil
		m.values = nil
	}
}

// Keys returns a copy of the keys in insertion order.
func (m *OrderedMap[V]) Keys() []string {
	if m == nil || len(m.keys) == 0 {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *OrderedMap[V]) Range(fn func(key string, value V) bool) {
	if m == nil {
		return
	}
	for _, key := range m.keys {
		if !fn(key, m.values[key]) {
			return
		}
	}
}

// MarshalJSON writes the entries as a JSON object in insertion order.
func (m OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for index, key := range m.keys {
		if index > 0 {
			buffer.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		encodedValue, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, fmt.Errorf("state: encode %q: %w", key, err)
		}
		buffer.Write(encodedKey)
		buffer.WriteByte(':')
		buffer.Write(encodedValue)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, recording keys in document order. A JSON null
// leaves the map empty.
func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.values = nil
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return errOrderedMapNotObject
	}
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return err
		}
		key, ok := keyToken.(string)
		if !ok {
			return errOrderedMapNotObject
		}
		var value V
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("state: decode %q: %w", key, err)
		}
		m.Set(key, value)
	}
	if _, err := decoder.Token(); err != nil {
		return err
	}
	return nil
}
