package toolexecutor

import (
	"bytes"
	"encoding/json"
)

// DiscoveryEntry is the public description of one tool
type DiscoveryEntry struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Discovery lists active tools in registry order. It encodes as a JSON
// object keyed by tool name with keys in that order.
type Discovery []DiscoveryEntry

// Names returns tool names in order
func (d Discovery) Names() []string {
	names := make([]string, len(d))
	for i, e := range d {
		names[i] = e.Name
	}
	return names
}

// Get returns the entry for name
func (d Discovery) Get(name string) (DiscoveryEntry, bool) {
	for _, e := range d {
		if e.Name == name {
			return e, true
		}
	}
	return DiscoveryEntry{}, false
}

// MarshalJSON encodes the listing as an ordered object
func (d Discovery) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
