package entity

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// OrderedMap is a string-keyed map that remembers insertion order and keeps
// it when encoded as a JSON object. Setting an existing key replaces the
// value in place.
type OrderedMap[V any] struct {
	pairs *orderedmap.OrderedMap[string, V]
}

func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{pairs: orderedmap.New[string, V]()}
}

func (m *OrderedMap[V]) Set(key string, value V) {
	if m.pairs == nil {
		m.pairs = orderedmap.New[string, V]()
	}

	m.pairs.Set(key, value)
}

func (m *OrderedMap[V]) Get(key string) (V, bool) {
	if m == nil || m.pairs == nil {
		var zero V

		return zero, false
	}

	return m.pairs.Get(key)
}

func (m *OrderedMap[V]) Keys() []string {
	if m.Len() == 0 {
		return nil
	}

	keys := make([]string, 0, m.pairs.Len())
	for pair := m.pairs.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}

	return keys
}

func (m *OrderedMap[V]) Len() int {
	if m == nil || m.pairs == nil {
		return 0
	}

	return m.pairs.Len()
}

func (m *OrderedMap[V]) MarshalJSON() ([]byte, error) {
	if m == nil || m.pairs == nil {
		return []byte("{}"), nil
	}

	return m.pairs.MarshalJSON()
}

func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	if m.pairs == nil {
		m.pairs = orderedmap.New[string, V]()
	}

	return m.pairs.UnmarshalJSON(data)
}
