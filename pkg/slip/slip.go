// Package slip decodes the pick slips handed to slipfill: an encoded payload
// (inline, from a file, or from the environment) or a structured slip file.
package slip

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// Side is the requested direction of a pick.
type Side string

// Sides
const (
	Over  Side = "Over"
	Under Side = "Under"
)

// ParseSide recognizes "over"/"under" in any case. Anything else is Over.
func ParseSide(s string) Side {
	if strings.EqualFold(strings.TrimSpace(s), string(Under)) {
		return Under
	}
	return Over
}

// Item is one desired pick.
type Item struct {
	Name string `json:"name" yaml:"name"`
	Prop string `json:"prop" yaml:"prop"`
	Side Side   `json:"side" yaml:"side"`
}

// UnmarshalJSON normalizes the side while decoding.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name string `json:"name"`
		Prop string `json:"prop"`
		Side string `json:"side"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*it = Item{Name: raw.Name, Prop: raw.Prop, Side: ParseSide(raw.Side)}
	return nil
}

// UnmarshalYAML normalizes the side while decoding.
func (it *Item) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name string `yaml:"name"`
		Prop string `yaml:"prop"`
		Side string `yaml:"side"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*it = Item{Name: raw.Name, Prop: raw.Prop, Side: ParseSide(raw.Side)}
	return nil
}

// Describe renders the item for log lines.
func (it Item) Describe() string {
	return it.Name + " / " + it.Prop + " / " + string(it.Side)
}

// Slip is the ordered list of picks. Items are independent; order only
// decides execution order.
type Slip struct {
	Version int    `json:"version,omitempty" yaml:"version,omitempty"`
	Items   []Item `json:"items" yaml:"items"`
}

// Len returns the number of items, treating a nil slip as empty.
func (s *Slip) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}
