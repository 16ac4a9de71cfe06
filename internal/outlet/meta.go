package outlet

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Meta is an ordered key/value description, e.g. one channel of a stream.
// Keys keep their insertion order in every encoding.
type Meta struct {
	pairs *orderedmap.OrderedMap[string, string]
}

// NewMeta creates an empty description
func NewMeta() *Meta {
	return &Meta{pairs: orderedmap.New[string, string]()}
}

// NewChannel creates a channel description starting with its label
func NewChannel(label string) *Meta {
	return NewMeta().Set("label", label)
}

// Set adds or replaces a key; returns the receiver for chaining
func (m *Meta) Set(key, value string) *Meta {
	m.pairs.Set(key, value)
	return m
}

// Get returns the value of key
func (m *Meta) Get(key string) (string, bool) {
	return m.pairs.Get(key)
}

// Label returns the "label" key, empty if unset
func (m *Meta) Label() string {
	v, _ := m.pairs.Get("label")
	return v
}

// Keys returns the keys in insertion order
func (m *Meta) Keys() []string {
	keys := make([]string, 0, m.pairs.Len())
	for pair := m.pairs.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of keys
func (m *Meta) Len() int {
	return m.pairs.Len()
}

// MarshalJSON encodes the description as an object with ordered keys
func (m *Meta) MarshalJSON() ([]byte, error) {
	return m.pairs.MarshalJSON()
}

// UnmarshalJSON decodes an object, keeping key order
func (m *Meta) UnmarshalJSON(data []byte) error {
	pairs := orderedmap.New[string, string]()
	if err := json.Unmarshal(data, pairs); err != nil {
		return err
	}
	m.pairs = pairs
	return nil
}

// MarshalYAML encodes the description as a mapping node with ordered keys
func (m *Meta) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for pair := m.pairs.Oldest(); pair != nil; pair = pair.Next() {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: pair.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: pair.Value},
		)
	}
	return node, nil
}
