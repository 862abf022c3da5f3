// Package mapping builds the search-index mapping for one content type.
package mapping

import (
	"encoding/json"
	"fmt"
)

// Elasticsearch field types emitted by the generator.
const (
	TypeKeyword  = "keyword"
	TypeText     = "text"
	TypeBoolean  = "boolean"
	TypeDate     = "date"
	TypeGeoPoint = "geo_point"
	TypeInteger  = "integer"
	TypeDouble   = "double"
	TypeNested   = "nested"
	TypeObject   = "object"
)

// Template is one dynamic-template rule.
type Template struct {
	Match        string         `json:"match,omitempty"`
	PathMatch    string         `json:"path_match,omitempty"`
	MatchPattern string         `json:"match_pattern,omitempty"`
	Mapping      map[string]any `json:"mapping"`
}

// NamedTemplate is a template with its rule name. Order is significant: the
// first matching rule wins.
type NamedTemplate struct {
	Name     string
	Template Template
}

// MarshalJSON renders the single-key object the index expects.
func (n NamedTemplate) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(map[string]Template{n.Name: n.Template})
	if err != nil {
		return nil, fmt.Errorf("marshal template %s: %w", n.Name, err)
	}
	return data, nil
}

// Mapping is the index mapping for one content type.
type Mapping struct {
	DynamicTemplates []NamedTemplate          `json:"dynamic_templates"`
	Properties       map[string]map[string]any `json:"properties"`
}

// Template returns the named rule.
func (m Mapping) Template(name string) (Template, bool) {
	for _, t := range m.DynamicTemplates {
		if t.Name == name {
			return t.Template, true
		}
	}
	return Template{}, false
}

// Body serializes the create-index request body.
func (m Mapping) Body() ([]byte, error) {
	data, err := json.Marshal(map[string]any{"mappings": m})
	if err != nil {
		return nil, fmt.Errorf("marshal mapping: %w", err)
	}
	return data, nil
}
